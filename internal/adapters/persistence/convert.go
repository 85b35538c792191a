package persistence

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/hxuan190/clmm-engine/internal/domain"
)

type StoredPool struct {
	Address         string     `json:"address"`
	ProgramID       string     `json:"programId"`
	AmmConfig       string     `json:"ammConfig"`
	TokenMint0      string     `json:"tokenMint0"`
	TokenMint1      string     `json:"tokenMint1"`
	TokenVault0     string     `json:"tokenVault0"`
	TokenVault1     string     `json:"tokenVault1"`
	ObservationKey  string     `json:"observationKey"`
	MintDecimals0   uint8      `json:"mintDecimals0"`
	MintDecimals1   uint8      `json:"mintDecimals1"`
	TickSpacing     uint16     `json:"tickSpacing"`
	FeeRate         uint32     `json:"feeRate"`
	Liquidity       string     `json:"liquidity"`    // u128 as decimal string
	SqrtPriceX64    string     `json:"sqrtPriceX64"` // u128 as decimal string
	TickCurrent     int32      `json:"tickCurrent"`
	FeeGrowth0X64   string     `json:"feeGrowthGlobal0X64"`
	FeeGrowth1X64   string     `json:"feeGrowthGlobal1X64"`
	ProtocolFees0   uint64     `json:"protocolFeesToken0"`
	ProtocolFees1   uint64     `json:"protocolFeesToken1"`
	Status          uint8      `json:"status"`
	TickArrayBitmap [16]uint64 `json:"tickArrayBitmap"`
	LastUpdatedSlot uint64     `json:"lastUpdatedSlot"`
}

// StoredTickArray keeps only initialized slots.
type StoredTickArray struct {
	Address              string       `json:"address"`
	PoolID               string       `json:"poolId"`
	StartTickIndex       int32        `json:"startTickIndex"`
	InitializedTickCount uint8        `json:"initializedTickCount"`
	Ticks                []StoredTick `json:"ticks"`
}

type StoredTick struct {
	Offset               int       `json:"offset"`
	Tick                 int32     `json:"tick"`
	LiquidityNet         string    `json:"liquidityNet"` // signed i128 as decimal string
	LiquidityGross       string    `json:"liquidityGross"`
	FeeGrowthOutside0X64 string    `json:"feeGrowthOutside0X64"`
	FeeGrowthOutside1X64 string    `json:"feeGrowthOutside1X64"`
	RewardGrowthsOutside [3]string `json:"rewardGrowthsOutsideX64"`
}

func poolToStored(p *domain.PoolState) *StoredPool {
	return &StoredPool{
		Address:         p.Address.String(),
		ProgramID:       p.ProgramID.String(),
		AmmConfig:       p.AmmConfig.String(),
		TokenMint0:      p.TokenMint0.String(),
		TokenMint1:      p.TokenMint1.String(),
		TokenVault0:     p.TokenVault0.String(),
		TokenVault1:     p.TokenVault1.String(),
		ObservationKey:  p.ObservationKey.String(),
		MintDecimals0:   p.MintDecimals0,
		MintDecimals1:   p.MintDecimals1,
		TickSpacing:     p.TickSpacing,
		FeeRate:         p.FeeRate,
		Liquidity:       p.Liquidity.Dec(),
		SqrtPriceX64:    p.SqrtPriceX64.Dec(),
		TickCurrent:     p.TickCurrent,
		FeeGrowth0X64:   p.FeeGrowthGlobal0X64.Dec(),
		FeeGrowth1X64:   p.FeeGrowthGlobal1X64.Dec(),
		ProtocolFees0:   p.ProtocolFeesToken0,
		ProtocolFees1:   p.ProtocolFeesToken1,
		Status:          uint8(p.Status),
		TickArrayBitmap: p.TickArrayBitmap,
		LastUpdatedSlot: p.LastUpdatedSlot,
	}
}

// fieldDecoder parses stored strings and keeps the first error.
type fieldDecoder struct {
	err error
}

func (d *fieldDecoder) key(raw string) solana.PublicKey {
	if d.err != nil {
		return solana.PublicKey{}
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		d.err = fmt.Errorf("invalid public key %q: %w", raw, err)
	}
	return key
}

func (d *fieldDecoder) u256(raw string) uint256.Int {
	if d.err != nil {
		return uint256.Int{}
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		d.err = fmt.Errorf("invalid integer %q: %w", raw, err)
		return uint256.Int{}
	}
	return *v
}

func (d *fieldDecoder) i256(raw string) uint256.Int {
	if d.err != nil {
		return uint256.Int{}
	}
	v, err := parseSignedDec(raw)
	if err != nil {
		d.err = err
		return uint256.Int{}
	}
	return *v
}

func storedToPool(s *StoredPool) (*domain.PoolState, error) {
	var d fieldDecoder
	p := &domain.PoolState{
		Address:             d.key(s.Address),
		ProgramID:           d.key(s.ProgramID),
		AmmConfig:           d.key(s.AmmConfig),
		TokenMint0:          d.key(s.TokenMint0),
		TokenMint1:          d.key(s.TokenMint1),
		TokenVault0:         d.key(s.TokenVault0),
		TokenVault1:         d.key(s.TokenVault1),
		ObservationKey:      d.key(s.ObservationKey),
		MintDecimals0:       s.MintDecimals0,
		MintDecimals1:       s.MintDecimals1,
		TickSpacing:         s.TickSpacing,
		FeeRate:             s.FeeRate,
		Liquidity:           d.u256(s.Liquidity),
		SqrtPriceX64:        d.u256(s.SqrtPriceX64),
		TickCurrent:         s.TickCurrent,
		FeeGrowthGlobal0X64: d.u256(s.FeeGrowth0X64),
		FeeGrowthGlobal1X64: d.u256(s.FeeGrowth1X64),
		ProtocolFeesToken0:  s.ProtocolFees0,
		ProtocolFeesToken1:  s.ProtocolFees1,
		Status:              domain.PoolStatus(s.Status),
		TickArrayBitmap:     s.TickArrayBitmap,
		LastUpdatedSlot:     s.LastUpdatedSlot,
	}
	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// signedDec renders a two's-complement value as a signed decimal.
func signedDec(v *uint256.Int) string {
	if v.Sign() < 0 {
		return "-" + new(uint256.Int).Neg(v).Dec()
	}
	return v.Dec()
}

func parseSignedDec(s string) (*uint256.Int, error) {
	abs, neg := strings.CutPrefix(s, "-")
	v, err := uint256.FromDecimal(abs)
	if err != nil {
		return nil, fmt.Errorf("invalid signed integer %q: %w", s, err)
	}
	if neg {
		v.Neg(v)
	}
	return v, nil
}

func tickArrayToStored(ta *domain.TickArray) *StoredTickArray {
	stored := &StoredTickArray{
		Address:              ta.Address.String(),
		PoolID:               ta.PoolID.String(),
		StartTickIndex:       ta.StartTickIndex,
		InitializedTickCount: ta.InitializedTickCount,
	}
	for i := range ta.Ticks {
		t := &ta.Ticks[i]
		if !t.IsInitialized() {
			continue
		}
		st := StoredTick{
			Offset:               i,
			Tick:                 t.Tick,
			LiquidityNet:         signedDec(&t.LiquidityNet),
			LiquidityGross:       t.LiquidityGross.Dec(),
			FeeGrowthOutside0X64: t.FeeGrowthOutside0X64.Dec(),
			FeeGrowthOutside1X64: t.FeeGrowthOutside1X64.Dec(),
		}
		for j := range t.RewardGrowthsOutsideX64 {
			st.RewardGrowthsOutside[j] = t.RewardGrowthsOutsideX64[j].Dec()
		}
		stored.Ticks = append(stored.Ticks, st)
	}
	return stored
}

func storedToTickArray(s *StoredTickArray) (*domain.TickArray, error) {
	var d fieldDecoder
	ta := &domain.TickArray{
		Address:              d.key(s.Address),
		PoolID:               d.key(s.PoolID),
		StartTickIndex:       s.StartTickIndex,
		InitializedTickCount: s.InitializedTickCount,
	}
	for _, st := range s.Ticks {
		if st.Offset < 0 || st.Offset >= domain.TickArraySize {
			return nil, fmt.Errorf("tick offset %d out of range", st.Offset)
		}
		t := &ta.Ticks[st.Offset]
		t.Tick = st.Tick
		t.LiquidityNet = d.i256(st.LiquidityNet)
		t.LiquidityGross = d.u256(st.LiquidityGross)
		t.FeeGrowthOutside0X64 = d.u256(st.FeeGrowthOutside0X64)
		t.FeeGrowthOutside1X64 = d.u256(st.FeeGrowthOutside1X64)
		for j, raw := range st.RewardGrowthsOutside {
			if raw != "" {
				t.RewardGrowthsOutsideX64[j] = d.u256(raw)
			}
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return ta, nil
}
