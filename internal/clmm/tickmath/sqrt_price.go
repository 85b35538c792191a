package tickmath

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/common"
)

// NextSqrtPriceFromInput returns the price after adding amountIn of the input token.
// zeroForOne means token0 is the input and the price moves down.
func NextSqrtPriceFromInput(sqrtPriceX64, liquidity, amountIn *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if err := checkPriceAndLiquidity(sqrtPriceX64, liquidity); err != nil {
		return nil, err
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX64, liquidity, amountIn, true)
	}
	return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX64, liquidity, amountIn, true)
}

// NextSqrtPriceFromOutput returns the price after removing amountOut of the output token.
func NextSqrtPriceFromOutput(sqrtPriceX64, liquidity, amountOut *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if err := checkPriceAndLiquidity(sqrtPriceX64, liquidity); err != nil {
		return nil, err
	}
	if zeroForOne {
		return nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX64, liquidity, amountOut, false)
	}
	return nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX64, liquidity, amountOut, false)
}

func checkPriceAndLiquidity(sqrtPriceX64, liquidity *uint256.Int) error {
	if sqrtPriceX64.IsZero() {
		return fmt.Errorf("%w: sqrt price must be positive", common.ErrInvalidArgument)
	}
	if liquidity.IsZero() {
		return fmt.Errorf("%w: liquidity must be positive", common.ErrInvalidArgument)
	}
	return nil
}

// L*P / (L +/- amount*P), rounded up so the pool never under-prices token0.
func nextSqrtPriceFromAmount0RoundingUp(sqrtPriceX64, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	if amount.IsZero() {
		return new(uint256.Int).Set(sqrtPriceX64), nil
	}
	numerator := new(uint256.Int).Lsh(liquidity, fixedpoint.Resolution)
	product := new(uint256.Int).Mul(amount, sqrtPriceX64)

	var denominator *uint256.Int
	if add {
		var err error
		if denominator, err = fixedpoint.CheckedAdd(numerator, product, "token0 price denominator"); err != nil {
			return nil, err
		}
	} else {
		if !numerator.Gt(product) {
			return nil, fmt.Errorf("%w: token0 output exhausts liquidity", common.ErrArithmeticBounds)
		}
		denominator = new(uint256.Int).Sub(numerator, product)
	}
	return fixedpoint.MulDivCeil(numerator, sqrtPriceX64, denominator)
}

// P +/- amount/L, rounded down so the pool never over-prices token1.
func nextSqrtPriceFromAmount1RoundingDown(sqrtPriceX64, liquidity, amount *uint256.Int, add bool) (*uint256.Int, error) {
	deltaY := new(uint256.Int).Lsh(amount, fixedpoint.Resolution)
	if add {
		quotient := new(uint256.Int).Div(deltaY, liquidity)
		return fixedpoint.CheckedAdd(sqrtPriceX64, quotient, "sqrt price")
	}

	quotient, err := fixedpoint.DivCeil(deltaY, liquidity)
	if err != nil {
		return nil, err
	}
	if !sqrtPriceX64.Gt(quotient) {
		return nil, fmt.Errorf("%w: token1 output exhausts price", common.ErrArithmeticBounds)
	}
	return new(uint256.Int).Sub(sqrtPriceX64, quotient), nil
}
