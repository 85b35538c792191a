package blockchain

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/hxuan190/clmm-engine/internal/domain"
)

// Account sizes including the 8-byte anchor discriminator.
const (
	PoolStateSize = 1544
	AmmConfigSize = 117
	TickArraySize = 10240

	discriminatorSize = 8
	rewardInfoSize    = 169
	tickStatePadding  = 13 * 4
)

// AmmConfig is the fee tier account a pool points at.
type AmmConfig struct {
	Bump            uint8
	Index           uint16
	Owner           solana.PublicKey
	ProtocolFeeRate uint32
	TradeFeeRate    uint32
	TickSpacing     uint16
	FundFeeRate     uint32
	FundOwner       solana.PublicKey
}

// accountReader reads little-endian fields and keeps the first error.
type accountReader struct {
	dec *bin.Decoder
	err error
}

func newAccountReader(data []byte) *accountReader {
	r := &accountReader{dec: bin.NewBinDecoder(data)}
	r.skip(discriminatorSize)
	return r
}

func (r *accountReader) skip(n uint) {
	if r.err == nil {
		r.err = r.dec.SkipBytes(n)
	}
}

func (r *accountReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	r.err = err
	return v
}

func (r *accountReader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(binary.LittleEndian)
	r.err = err
	return v
}

func (r *accountReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint32(binary.LittleEndian)
	r.err = err
	return v
}

func (r *accountReader) i32() int32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadInt32(binary.LittleEndian)
	r.err = err
	return v
}

func (r *accountReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	r.err = err
	return v
}

func (r *accountReader) u128() uint256.Int {
	if r.err != nil {
		return uint256.Int{}
	}
	v, err := r.dec.ReadUint128(binary.LittleEndian)
	r.err = err
	return uint256.Int{v.Lo, v.Hi, 0, 0}
}

// i128 sign-extends into a two's-complement 256-bit value.
func (r *accountReader) i128() uint256.Int {
	if r.err != nil {
		return uint256.Int{}
	}
	v, err := r.dec.ReadInt128(binary.LittleEndian)
	r.err = err
	var ext uint64
	if v.Hi>>63 == 1 {
		ext = ^uint64(0)
	}
	return uint256.Int{v.Lo, v.Hi, ext, ext}
}

func (r *accountReader) pubkey() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	b, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	r.err = err
	if err != nil {
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(b)
}

func checkSize(kind string, data []byte, want int) error {
	if len(data) < want {
		return fmt.Errorf("%s account too short: %d bytes, want %d", kind, len(data), want)
	}
	return nil
}

// DecodePoolState decodes a PoolState account. FeeRate stays zero; it lives in the AmmConfig.
func DecodePoolState(address, programID solana.PublicKey, data []byte) (*domain.PoolState, error) {
	if err := checkSize("pool", data, PoolStateSize); err != nil {
		return nil, err
	}
	r := newAccountReader(data)
	p := &domain.PoolState{Address: address, ProgramID: programID}

	r.skip(1) // bump
	p.AmmConfig = r.pubkey()
	r.skip(solana.PublicKeyLength) // owner
	p.TokenMint0 = r.pubkey()
	p.TokenMint1 = r.pubkey()
	p.TokenVault0 = r.pubkey()
	p.TokenVault1 = r.pubkey()
	p.ObservationKey = r.pubkey()
	p.MintDecimals0 = r.u8()
	p.MintDecimals1 = r.u8()
	p.TickSpacing = r.u16()

	p.Liquidity = r.u128()
	p.SqrtPriceX64 = r.u128()
	p.TickCurrent = r.i32()
	r.skip(2 + 2) // observation index, update duration
	p.FeeGrowthGlobal0X64 = r.u128()
	p.FeeGrowthGlobal1X64 = r.u128()
	p.ProtocolFeesToken0 = r.u64()
	p.ProtocolFeesToken1 = r.u64()
	r.skip(4 * 16) // swap in/out accumulators
	p.Status = domain.PoolStatus(r.u8())
	r.skip(7)
	r.skip(3 * rewardInfoSize)
	for i := range p.TickArrayBitmap {
		p.TickArrayBitmap[i] = r.u64()
	}
	if r.err != nil {
		return nil, fmt.Errorf("decode pool %s: %w", address, r.err)
	}
	return p, nil
}

func DecodeAmmConfig(data []byte) (*AmmConfig, error) {
	if err := checkSize("amm config", data, AmmConfigSize); err != nil {
		return nil, err
	}
	r := newAccountReader(data)
	c := &AmmConfig{
		Bump:            r.u8(),
		Index:           r.u16(),
		Owner:           r.pubkey(),
		ProtocolFeeRate: r.u32(),
		TradeFeeRate:    r.u32(),
		TickSpacing:     r.u16(),
		FundFeeRate:     r.u32(),
	}
	r.skip(4)
	c.FundOwner = r.pubkey()
	if r.err != nil {
		return nil, fmt.Errorf("decode amm config: %w", r.err)
	}
	return c, nil
}

// DecodeTickArray decodes a TickArrayState account.
func DecodeTickArray(address solana.PublicKey, data []byte) (*domain.TickArray, error) {
	if err := checkSize("tick array", data, TickArraySize); err != nil {
		return nil, err
	}
	r := newAccountReader(data)
	ta := &domain.TickArray{Address: address}
	ta.PoolID = r.pubkey()
	ta.StartTickIndex = r.i32()
	for i := range ta.Ticks {
		t := &ta.Ticks[i]
		t.Tick = r.i32()
		t.LiquidityNet = r.i128()
		t.LiquidityGross = r.u128()
		t.FeeGrowthOutside0X64 = r.u128()
		t.FeeGrowthOutside1X64 = r.u128()
		for j := range t.RewardGrowthsOutsideX64 {
			t.RewardGrowthsOutsideX64[j] = r.u128()
		}
		r.skip(tickStatePadding)
	}
	ta.InitializedTickCount = r.u8()
	if r.err != nil {
		return nil, fmt.Errorf("decode tick array %s: %w", address, r.err)
	}
	return ta, nil
}
