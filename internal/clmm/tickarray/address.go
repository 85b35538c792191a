package tickarray

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/clmm-engine/internal/common"
)

// Address derives the tick array PDA: seeds "tick_array", pool, big-endian start index.
func Address(programID, poolID solana.PublicKey, startIndex int32) (solana.PublicKey, error) {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(startIndex))
	pda, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte(common.TickArraySeed),
			poolID[:],
			idx[:],
		},
		programID,
	)
	return pda, err
}
