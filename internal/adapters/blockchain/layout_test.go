package blockchain

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/clmm-engine/internal/domain"
)

var (
	testPool      = solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32))
	testAmmConfig = solana.PublicKeyFromBytes(bytes.Repeat([]byte{9}, 32))
	testMint0     = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testMint1     = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func putI128(b []byte, v int64) {
	binary.LittleEndian.PutUint64(b, uint64(v))
	var hi uint64
	if v < 0 {
		hi = math.MaxUint64
	}
	binary.LittleEndian.PutUint64(b[8:], hi)
}

func poolAccount(tick int32, status domain.PoolStatus) []byte {
	b := make([]byte, PoolStateSize)
	copy(b[9:], testAmmConfig[:])
	copy(b[73:], testMint0[:])
	copy(b[105:], testMint1[:])
	b[233] = 9
	b[234] = 6
	binary.LittleEndian.PutUint16(b[235:], 60)
	binary.LittleEndian.PutUint64(b[237:], 1_000_000)
	binary.LittleEndian.PutUint64(b[261:], 1) // sqrt price high word: 2^64
	binary.LittleEndian.PutUint32(b[269:], uint32(tick))
	binary.LittleEndian.PutUint64(b[309:], 77)
	b[389] = byte(status)
	binary.LittleEndian.PutUint64(b[904+8*8:], 1)
	return b
}

func ammConfigAccount(feeRate uint32, spacing uint16) []byte {
	b := make([]byte, AmmConfigSize)
	binary.LittleEndian.PutUint32(b[47:], feeRate)
	binary.LittleEndian.PutUint16(b[51:], spacing)
	return b
}

func tickArrayAccount(pool solana.PublicKey, start int32, offsets map[int]int64) []byte {
	b := make([]byte, TickArraySize)
	copy(b[8:], pool[:])
	binary.LittleEndian.PutUint32(b[40:], uint32(start))
	for i, net := range offsets {
		base := 44 + 168*i
		binary.LittleEndian.PutUint32(b[base:], uint32(start+int32(i)*60))
		putI128(b[base+4:], net)
		gross := net
		if gross < 0 {
			gross = -gross
		}
		binary.LittleEndian.PutUint64(b[base+20:], uint64(gross))
	}
	b[44+168*domain.TickArraySize] = byte(len(offsets))
	return b
}

func TestDecodePoolState(t *testing.T) {
	state, err := DecodePoolState(testPool, solana.PublicKey{}, poolAccount(-1902, domain.StatusDisableSwap))
	require.NoError(t, err)

	assert.Equal(t, testAmmConfig, state.AmmConfig)
	assert.Equal(t, testMint0, state.TokenMint0)
	assert.Equal(t, testMint1, state.TokenMint1)
	assert.Equal(t, uint8(9), state.MintDecimals0)
	assert.Equal(t, uint8(6), state.MintDecimals1)
	assert.Equal(t, uint16(60), state.TickSpacing)
	assert.Equal(t, uint64(1_000_000), state.Liquidity.Uint64())
	assert.Equal(t, "18446744073709551616", state.SqrtPriceX64.Dec())
	assert.Equal(t, int32(-1902), state.TickCurrent)
	assert.Equal(t, uint64(77), state.ProtocolFeesToken0)
	assert.False(t, state.SwapEnabled())
	assert.True(t, state.TickArrayBitmap.IsSet(512))
	assert.Zero(t, state.FeeRate)
}

func TestDecodeAmmConfig(t *testing.T) {
	c, err := DecodeAmmConfig(ammConfigAccount(2500, 60))
	require.NoError(t, err)
	assert.Equal(t, uint32(2500), c.TradeFeeRate)
	assert.Equal(t, uint16(60), c.TickSpacing)
}

func TestDecodeTickArray(t *testing.T) {
	data := tickArrayAccount(testPool, -3600, map[int]int64{0: 1_000_000, 59: -1_000_000})
	ta, err := DecodeTickArray(testPool, data)
	require.NoError(t, err)

	assert.Equal(t, testPool, ta.PoolID)
	assert.Equal(t, int32(-3600), ta.StartTickIndex)
	assert.Equal(t, uint8(2), ta.InitializedTickCount)

	first := ta.Ticks[0]
	assert.Equal(t, int32(-3600), first.Tick)
	assert.Equal(t, uint64(1_000_000), first.LiquidityNet.Uint64())
	assert.True(t, first.IsInitialized())

	last := ta.Ticks[59]
	assert.Equal(t, int32(-60), last.Tick)
	want := new(uint256.Int).Neg(uint256.NewInt(1_000_000))
	assert.True(t, want.Eq(&last.LiquidityNet), "liquidity net %s", last.LiquidityNet.Hex())
	assert.Equal(t, -1, last.LiquidityNet.Sign())
	assert.Equal(t, uint64(1_000_000), last.LiquidityGross.Uint64())

	assert.False(t, ta.Ticks[30].IsInitialized())
}

func TestDecodeRejectsShortAccounts(t *testing.T) {
	_, err := DecodePoolState(testPool, solana.PublicKey{}, make([]byte, PoolStateSize-1))
	assert.Error(t, err)
	_, err = DecodeTickArray(testPool, make([]byte, 100))
	assert.Error(t, err)
	_, err = DecodeAmmConfig(nil)
	assert.Error(t, err)
}
