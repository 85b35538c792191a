package domain

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

// TickArraySize is the number of tick slots stored in one tick array account.
const TickArraySize = 60

// TickArrayBitmapWords is the size of the pool-embedded bitmap: 1024 bits, one per tick array.
// Words 0-7 hold negative offsets, words 8-15 hold non-negative offsets.
const TickArrayBitmapWords = 16

type PoolStatus uint8

const (
	StatusDisableOpenPosition PoolStatus = 1 << 0
	StatusDisableDecrease     PoolStatus = 1 << 1
	StatusDisableCollectFee   PoolStatus = 1 << 2
	StatusDisableCollectRwd   PoolStatus = 1 << 3
	StatusDisableSwap         PoolStatus = 1 << 4
)

// TickArrayBitmap marks which tick arrays hold at least one initialized tick.
type TickArrayBitmap [TickArrayBitmapWords]uint64

func (b *TickArrayBitmap) IsSet(bit int) bool {
	if bit < 0 || bit >= TickArrayBitmapWords*64 {
		return false
	}
	return b[bit/64]&(1<<uint(bit%64)) != 0
}

func (b *TickArrayBitmap) Set(bit int) {
	if bit < 0 || bit >= TickArrayBitmapWords*64 {
		return
	}
	b[bit/64] |= 1 << uint(bit%64)
}

func (b *TickArrayBitmap) Clear(bit int) {
	if bit < 0 || bit >= TickArrayBitmapWords*64 {
		return
	}
	b[bit/64] &^= 1 << uint(bit%64)
}

// TickState is one tick slot. A slot is initialized when LiquidityGross is non-zero.
type TickState struct {
	Tick int32

	// LiquidityNet is the on-chain i128 sign-extended to a two's-complement 256-bit value.
	LiquidityNet   uint256.Int
	LiquidityGross uint256.Int

	FeeGrowthOutside0X64    uint256.Int
	FeeGrowthOutside1X64    uint256.Int
	RewardGrowthsOutsideX64 [3]uint256.Int
}

func (t *TickState) IsInitialized() bool {
	return !t.LiquidityGross.IsZero()
}

// TickArray is a snapshot of one tick array account.
type TickArray struct {
	Address              solana.PublicKey
	PoolID               solana.PublicKey
	StartTickIndex       int32
	Ticks                [TickArraySize]TickState
	InitializedTickCount uint8
}

// PoolState is a read-only snapshot of a CLMM pool account plus its fee tier.
type PoolState struct {
	Address        solana.PublicKey
	ProgramID      solana.PublicKey
	AmmConfig      solana.PublicKey
	TokenMint0     solana.PublicKey
	TokenMint1     solana.PublicKey
	TokenVault0    solana.PublicKey
	TokenVault1    solana.PublicKey
	ObservationKey solana.PublicKey
	MintDecimals0  uint8
	MintDecimals1  uint8
	TickSpacing    uint16

	// FeeRate is the trade fee in hundredths of a bip (denominator 1_000_000).
	FeeRate uint32

	Liquidity    uint256.Int
	SqrtPriceX64 uint256.Int
	TickCurrent  int32

	FeeGrowthGlobal0X64 uint256.Int
	FeeGrowthGlobal1X64 uint256.Int
	ProtocolFeesToken0  uint64
	ProtocolFeesToken1  uint64

	Status          PoolStatus
	TickArrayBitmap TickArrayBitmap
	LastUpdatedSlot uint64
}

// Clone returns an independent copy; every field is a value type.
func (p *PoolState) Clone() *PoolState {
	c := *p
	return &c
}

func (p *PoolState) SwapEnabled() bool {
	return p.Status&StatusDisableSwap == 0
}

// HasMint reports whether mint is one of the pool's tokens and whether it is token0.
func (p *PoolState) HasMint(mint solana.PublicKey) (ok bool, isToken0 bool) {
	switch {
	case mint.Equals(p.TokenMint0):
		return true, true
	case mint.Equals(p.TokenMint1):
		return true, false
	default:
		return false, false
	}
}

// OtherMint returns the counterpart of mint. It assumes HasMint(mint) is true.
func (p *PoolState) OtherMint(mint solana.PublicKey) solana.PublicKey {
	if mint.Equals(p.TokenMint0) {
		return p.TokenMint1
	}
	return p.TokenMint0
}
