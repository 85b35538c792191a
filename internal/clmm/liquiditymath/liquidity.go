// Package liquiditymath converts between liquidity and token amounts over a sqrt-price range.
package liquiditymath

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/common"
)

// Amounts is a token0/token1 pair.
type Amounts struct {
	Amount0 *uint256.Int
	Amount1 *uint256.Int
}

func ordered(a, b *uint256.Int) (*uint256.Int, *uint256.Int) {
	if a.Gt(b) {
		return b, a
	}
	return a, b
}

// Token0AmountForLiquidity returns L * (sqrtB - sqrtA) / (sqrtA * sqrtB).
func Token0AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	sqrtPriceA, sqrtPriceB = ordered(sqrtPriceA, sqrtPriceB)
	if sqrtPriceA.IsZero() {
		return nil, fmt.Errorf("%w: sqrt price must be positive", common.ErrInvalidArgument)
	}

	numerator1 := new(uint256.Int).Lsh(liquidity, fixedpoint.Resolution)
	numerator2 := new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA)

	if roundUp {
		partial, err := fixedpoint.MulDivCeil(numerator1, numerator2, sqrtPriceB)
		if err != nil {
			return nil, err
		}
		return fixedpoint.DivCeil(partial, sqrtPriceA)
	}
	partial, err := fixedpoint.MulDivFloor(numerator1, numerator2, sqrtPriceB)
	if err != nil {
		return nil, err
	}
	return partial.Div(partial, sqrtPriceA), nil
}

// Token1AmountForLiquidity returns L * (sqrtB - sqrtA).
func Token1AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity *uint256.Int, roundUp bool) (*uint256.Int, error) {
	sqrtPriceA, sqrtPriceB = ordered(sqrtPriceA, sqrtPriceB)
	if sqrtPriceA.IsZero() {
		return nil, fmt.Errorf("%w: sqrt price must be positive", common.ErrInvalidArgument)
	}
	diff := new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA)
	if roundUp {
		return fixedpoint.MulDivCeil(liquidity, diff, fixedpoint.Q64)
	}
	return fixedpoint.MulDivFloor(liquidity, diff, fixedpoint.Q64)
}

// LiquidityFromToken0Amount returns amount0 * sqrtA * sqrtB / (sqrtB - sqrtA), rounded down.
func LiquidityFromToken0Amount(sqrtPriceA, sqrtPriceB, amount0 *uint256.Int) (*uint256.Int, error) {
	sqrtPriceA, sqrtPriceB = ordered(sqrtPriceA, sqrtPriceB)
	if sqrtPriceA.Eq(sqrtPriceB) {
		return nil, fmt.Errorf("%w: empty price range", common.ErrInvalidArgument)
	}
	intermediate, err := fixedpoint.MulDivFloor(sqrtPriceA, sqrtPriceB, fixedpoint.Q64)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDivFloor(amount0, intermediate, new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA))
}

// LiquidityFromToken1Amount returns amount1 / (sqrtB - sqrtA), rounded down.
func LiquidityFromToken1Amount(sqrtPriceA, sqrtPriceB, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtPriceA, sqrtPriceB = ordered(sqrtPriceA, sqrtPriceB)
	if sqrtPriceA.Eq(sqrtPriceB) {
		return nil, fmt.Errorf("%w: empty price range", common.ErrInvalidArgument)
	}
	return fixedpoint.MulDivFloor(amount1, fixedpoint.Q64, new(uint256.Int).Sub(sqrtPriceB, sqrtPriceA))
}

// LiquidityFromTokenAmounts returns the largest liquidity both amounts can back
// at the current price for the range [sqrtPriceA, sqrtPriceB].
func LiquidityFromTokenAmounts(sqrtPriceCurrent, sqrtPriceA, sqrtPriceB, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	sqrtPriceA, sqrtPriceB = ordered(sqrtPriceA, sqrtPriceB)

	switch {
	case !sqrtPriceCurrent.Gt(sqrtPriceA):
		return LiquidityFromToken0Amount(sqrtPriceA, sqrtPriceB, amount0)
	case sqrtPriceCurrent.Lt(sqrtPriceB):
		liquidity0, err := LiquidityFromToken0Amount(sqrtPriceCurrent, sqrtPriceB, amount0)
		if err != nil {
			return nil, err
		}
		liquidity1, err := LiquidityFromToken1Amount(sqrtPriceA, sqrtPriceCurrent, amount1)
		if err != nil {
			return nil, err
		}
		return fixedpoint.Min(liquidity0, liquidity1), nil
	default:
		return LiquidityFromToken1Amount(sqrtPriceA, sqrtPriceB, amount1)
	}
}

// AmountsFromLiquidity returns the token amounts represented by liquidity at the current price.
func AmountsFromLiquidity(sqrtPriceCurrent, sqrtPriceA, sqrtPriceB, liquidity *uint256.Int, roundUp bool) (Amounts, error) {
	sqrtPriceA, sqrtPriceB = ordered(sqrtPriceA, sqrtPriceB)
	out := Amounts{Amount0: new(uint256.Int), Amount1: new(uint256.Int)}

	var err error
	switch {
	case !sqrtPriceCurrent.Gt(sqrtPriceA):
		out.Amount0, err = Token0AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity, roundUp)
	case sqrtPriceCurrent.Lt(sqrtPriceB):
		out.Amount0, err = Token0AmountForLiquidity(sqrtPriceCurrent, sqrtPriceB, liquidity, roundUp)
		if err == nil {
			out.Amount1, err = Token1AmountForLiquidity(sqrtPriceA, sqrtPriceCurrent, liquidity, roundUp)
		}
	default:
		out.Amount1, err = Token1AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity, roundUp)
	}
	if err != nil {
		return Amounts{}, err
	}
	return out, nil
}

// SlippageConfig bounds an amount by a relative tolerance.
type SlippageConfig struct {
	// Slippage is the relative tolerance, e.g. 0.005 for 0.5%. Nil means an exact bound.
	Slippage *decimal.Decimal
	// AmountMax selects an upper bound (deposit, rounded up) instead of a lower bound
	// (withdrawal, rounded down). Default false.
	AmountMax bool
}

// AmountsFromLiquidityWithSlippage applies (1 + slippage) for an upper bound or
// (1 - slippage) for a lower bound to both amounts.
func AmountsFromLiquidityWithSlippage(
	sqrtPriceCurrent, sqrtPriceA, sqrtPriceB, liquidity *uint256.Int,
	roundUp bool,
	cfg SlippageConfig,
) (Amounts, error) {
	amounts, err := AmountsFromLiquidity(sqrtPriceCurrent, sqrtPriceA, sqrtPriceB, liquidity, roundUp)
	if err != nil || cfg.Slippage == nil {
		return amounts, err
	}
	if cfg.Slippage.IsNegative() || cfg.Slippage.GreaterThan(decimal.NewFromInt(1)) {
		return Amounts{}, fmt.Errorf("%w: slippage %s outside [0, 1]", common.ErrInvalidArgument, cfg.Slippage.String())
	}

	amount0, err := ApplySlippage(amounts.Amount0, *cfg.Slippage, cfg.AmountMax)
	if err != nil {
		return Amounts{}, err
	}
	amount1, err := ApplySlippage(amounts.Amount1, *cfg.Slippage, cfg.AmountMax)
	if err != nil {
		return Amounts{}, err
	}
	return Amounts{Amount0: amount0, Amount1: amount1}, nil
}

// ApplySlippage returns ceil(amount * (1 + slippage)) when upper, else floor(amount * (1 - slippage)).
func ApplySlippage(amount *uint256.Int, slippage decimal.Decimal, upper bool) (*uint256.Int, error) {
	d := decimal.NewFromBigInt(amount.ToBig(), 0)
	var scaled decimal.Decimal
	if upper {
		scaled = d.Mul(decimal.NewFromInt(1).Add(slippage)).Ceil()
	} else {
		scaled = d.Mul(decimal.NewFromInt(1).Sub(slippage)).Floor()
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: slippage bound exceeds 256 bits", common.ErrArithmeticBounds)
	}
	return out, nil
}

// AddDelta applies a signed liquidity delta held in two's complement, failing on underflow.
func AddDelta(liquidity, delta *uint256.Int) (*uint256.Int, error) {
	if delta.Sign() >= 0 {
		return fixedpoint.CheckedAdd(liquidity, delta, "liquidity")
	}
	return fixedpoint.CheckedSub(liquidity, new(uint256.Int).Neg(delta), "liquidity")
}
