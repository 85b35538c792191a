// Package tickmath converts between ticks and Q64.64 square-root prices and implements the
// closed-form next-price formulas used by a swap step.
package tickmath

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/common"
)

// Per-bit multipliers: sqrt(1.0001)^(-2^k) in Q64.64 for k = 1..18.
var tickBitRatios = [...]struct {
	mask  uint32
	ratio *uint256.Int
}{
	{0x2, uint256.MustFromDecimal("18444899583751176192")},
	{0x4, uint256.MustFromDecimal("18443055278223355904")},
	{0x8, uint256.MustFromDecimal("18439367220385607680")},
	{0x10, uint256.MustFromDecimal("18431993317065453568")},
	{0x20, uint256.MustFromDecimal("18417254355718170624")},
	{0x40, uint256.MustFromDecimal("18387811781193609216")},
	{0x80, uint256.MustFromDecimal("18329067761203558400")},
	{0x100, uint256.MustFromDecimal("18212142134806163456")},
	{0x200, uint256.MustFromDecimal("17980523815641700352")},
	{0x400, uint256.MustFromDecimal("17526086738831433728")},
	{0x800, uint256.MustFromDecimal("16651378430235570176")},
	{0x1000, uint256.MustFromDecimal("15030750278694412288")},
	{0x2000, uint256.MustFromDecimal("12247334978884435968")},
	{0x4000, uint256.MustFromDecimal("8131365268886854656")},
	{0x8000, uint256.MustFromDecimal("3584323654725218816")},
	{0x10000, uint256.MustFromDecimal("696457651848324352")},
	{0x20000, uint256.MustFromDecimal("26294789957507116")},
	{0x40000, uint256.MustFromDecimal("37481735321082")},
}

var oddTickRatio = uint256.MustFromDecimal("18445821805675395072")

// SqrtPriceFromTick returns sqrt(1.0001^tick) as Q64.64.
func SqrtPriceFromTick(tick int32) (*uint256.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, fmt.Errorf("%w: tick %d outside [%d, %d]", common.ErrInvalidArgument, tick, MinTick, MaxTick)
	}
	return sqrtPriceFromTick(tick), nil
}

func sqrtPriceFromTick(tick int32) *uint256.Int {
	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int)
	if absTick&0x1 != 0 {
		ratio.Set(oddTickRatio)
	} else {
		ratio.Set(fixedpoint.Q64)
	}
	for _, b := range tickBitRatios {
		if absTick&b.mask != 0 {
			ratio.Mul(ratio, b.ratio)
			ratio.Rsh(ratio, fixedpoint.Resolution)
		}
	}

	if tick > 0 {
		ratio.Div(fixedpoint.MaxU128, ratio)
	}
	return ratio
}

// TickFromSqrtPrice returns the greatest tick whose sqrt price does not exceed sqrtPriceX64.
func TickFromSqrtPrice(sqrtPriceX64 *uint256.Int) (int32, error) {
	if sqrtPriceX64.Lt(MinSqrtPriceX64) || sqrtPriceX64.Gt(MaxSqrtPriceX64) {
		return 0, fmt.Errorf("%w: sqrt price %s outside [%s, %s]",
			common.ErrInvalidArgument, sqrtPriceX64.Dec(), MinSqrtPriceX64.Dec(), MaxSqrtPriceX64.Dec())
	}

	msb := sqrtPriceX64.BitLen() - 1
	log2pIntegerX32 := int64(msb-fixedpoint.Resolution) << 32

	r := new(uint256.Int)
	if msb >= 63 {
		r.Rsh(sqrtPriceX64, uint(msb-63))
	} else {
		r.Lsh(sqrtPriceX64, uint(63-msb))
	}

	// Square-and-shift refinement of the fractional part of log2.
	var log2pFractionX64 uint64
	bit := uint64(1) << 63
	top := new(uint256.Int)
	for precision := 0; precision < bitPrecision && bit > 0; precision++ {
		r.Mul(r, r)
		more := top.Rsh(r, 127).Uint64()
		r.Rsh(r, uint(63+more))
		if more == 1 {
			log2pFractionX64 += bit
		}
		bit >>= 1
	}

	log2pX32 := log2pIntegerX32 + int64(log2pFractionX64>>32)
	logbpX64 := new(big.Int).Mul(big.NewInt(log2pX32), big.NewInt(logB2X32))

	low := new(big.Int).Sub(logbpX64, logBPErrMarginLowerX64.ToBig())
	high := new(big.Int).Add(logbpX64, logBPErrMarginUpperX64.ToBig())
	tickLow := int32(low.Rsh(low, fixedpoint.Resolution).Int64())
	tickHigh := int32(high.Rsh(high, fixedpoint.Resolution).Int64())

	if tickLow == tickHigh || tickHigh > MaxTick {
		return tickLow, nil
	}
	if !sqrtPriceFromTick(tickHigh).Gt(sqrtPriceX64) {
		return tickHigh, nil
	}
	return tickLow, nil
}
