package tickmath

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/clmm-engine/internal/common"
)

var q128Decimal = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 128), 0)

// TickCount is the number of ticks spanned by one tick array.
func TickCount(tickSpacing uint16) int32 {
	return int32(tickSpacing) * TickArraySize
}

// TickArrayStartIndex returns the start index of the array that contains tick.
func TickArrayStartIndex(tick int32, tickSpacing uint16) int32 {
	n := TickCount(tickSpacing)
	start := tick / n
	if tick < 0 && tick%n != 0 {
		start--
	}
	return start * n
}

// TickArrayStartIndexBounds returns the lowest and highest array start index the embedded
// bitmap can address for tickSpacing, clamped to the arrays holding MinTick and MaxTick.
func TickArrayStartIndexBounds(tickSpacing uint16) (lower, upper int32) {
	n := TickCount(tickSpacing)
	lower = -TickArrayBitmapSize * n
	upper = TickArrayBitmapSize*n - n
	if first := TickArrayStartIndex(MinTick, tickSpacing); first > lower {
		lower = first
	}
	if last := TickArrayStartIndex(MaxTick, tickSpacing); last < upper {
		upper = last
	}
	return lower, upper
}

// CheckTickAligned fails when tick is out of domain or not a multiple of tickSpacing.
func CheckTickAligned(tick int32, tickSpacing uint16) error {
	if tickSpacing == 0 {
		return fmt.Errorf("%w: tick spacing must be positive", common.ErrInvalidArgument)
	}
	if tick < MinTick || tick > MaxTick {
		return fmt.Errorf("%w: tick %d outside [%d, %d]", common.ErrInvalidArgument, tick, MinTick, MaxTick)
	}
	if tick%int32(tickSpacing) != 0 {
		return fmt.Errorf("%w: tick %d not aligned to spacing %d", common.ErrInvalidArgument, tick, tickSpacing)
	}
	return nil
}

// NearestUsableTick rounds tick to the closest multiple of tickSpacing inside the tick domain.
func NearestUsableTick(tick int32, tickSpacing uint16) int32 {
	s := int32(tickSpacing)
	if s <= 0 {
		return tick
	}
	q := tick / s
	rem := tick % s
	if rem < 0 {
		rem += s
		q--
	}
	if 2*rem >= s {
		q++
	}
	rounded := q * s
	if rounded < MinTick {
		rounded += s
	} else if rounded > MaxTick {
		rounded -= s
	}
	return rounded
}

// PriceFromSqrtPriceX64 returns the decimal-adjusted price of token0 in units of token1.
func PriceFromSqrtPriceX64(sqrtPriceX64 *uint256.Int, decimals0, decimals1 uint8, places int32) decimal.Decimal {
	sq := sqrtPriceX64.ToBig()
	sq.Mul(sq, sq)
	return decimal.NewFromBigInt(sq, 0).
		Shift(int32(decimals0)-int32(decimals1)).
		DivRound(q128Decimal, places)
}

// SqrtPriceX64FromPrice is the inverse of PriceFromSqrtPriceX64, truncated toward zero.
func SqrtPriceX64FromPrice(price decimal.Decimal, decimals0, decimals1 uint8) (*uint256.Int, error) {
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", common.ErrInvalidArgument)
	}
	raw := price.Shift(int32(decimals1) - int32(decimals0)).Mul(q128Decimal).Floor().BigInt()
	root := new(big.Int).Sqrt(raw)
	out, overflow := uint256.FromBig(root)
	if overflow {
		return nil, fmt.Errorf("%w: price %s too large", common.ErrArithmeticBounds, price.String())
	}
	return out, nil
}

// TickFromPrice returns the greatest tick whose price does not exceed price.
func TickFromPrice(price decimal.Decimal, decimals0, decimals1 uint8) (int32, error) {
	sqrtPriceX64, err := SqrtPriceX64FromPrice(price, decimals0, decimals1)
	if err != nil {
		return 0, err
	}
	return TickFromSqrtPrice(sqrtPriceX64)
}

func PriceFromTick(tick int32, decimals0, decimals1 uint8, places int32) (decimal.Decimal, error) {
	sqrtPriceX64, err := SqrtPriceFromTick(tick)
	if err != nil {
		return decimal.Zero, err
	}
	return PriceFromSqrtPriceX64(sqrtPriceX64, decimals0, decimals1, places), nil
}
