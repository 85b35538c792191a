// Package swapmath simulates a CLMM swap across initialized ticks.
package swapmath

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/clmm/liquiditymath"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/common"
)

var feeDenominator = uint256.NewInt(tickmath.FeeRateDenominator)

// SwapStep is the outcome of moving the price toward one target under constant liquidity.
type SwapStep struct {
	SqrtPriceNextX64 *uint256.Int
	AmountIn         *uint256.Int
	AmountOut        *uint256.Int
	FeeAmount        *uint256.Int
}

// ComputeSwapStep moves the price from current toward target, consuming at most
// amountRemaining. For exact input the fee is taken off the top before the price moves;
// for exact output amountRemaining bounds the output.
func ComputeSwapStep(
	sqrtPriceCurrentX64, sqrtPriceTargetX64, liquidity, amountRemaining *uint256.Int,
	feeRate uint32,
	exactIn, zeroForOne bool,
) (SwapStep, error) {
	if feeRate >= tickmath.FeeRateDenominator {
		return SwapStep{}, fmt.Errorf("%w: fee rate %d must be below %d", common.ErrInvalidArgument, feeRate, tickmath.FeeRateDenominator)
	}
	fee := uint256.NewInt(uint64(feeRate))
	feeComplement := new(uint256.Int).Sub(feeDenominator, fee)

	var (
		step SwapStep
		err  error
	)

	if exactIn {
		remainingLessFee, err := fixedpoint.MulDivFloor(amountRemaining, feeComplement, feeDenominator)
		if err != nil {
			return SwapStep{}, err
		}
		step.AmountIn, err = amountInBetween(sqrtPriceTargetX64, sqrtPriceCurrentX64, liquidity, zeroForOne)
		if err != nil {
			return SwapStep{}, err
		}
		if !remainingLessFee.Lt(step.AmountIn) {
			step.SqrtPriceNextX64 = new(uint256.Int).Set(sqrtPriceTargetX64)
		} else {
			step.SqrtPriceNextX64, err = tickmath.NextSqrtPriceFromInput(sqrtPriceCurrentX64, liquidity, remainingLessFee, zeroForOne)
			if err != nil {
				return SwapStep{}, err
			}
		}
	} else {
		step.AmountOut, err = amountOutBetween(sqrtPriceTargetX64, sqrtPriceCurrentX64, liquidity, zeroForOne)
		if err != nil {
			return SwapStep{}, err
		}
		if !amountRemaining.Lt(step.AmountOut) {
			step.SqrtPriceNextX64 = new(uint256.Int).Set(sqrtPriceTargetX64)
		} else {
			step.SqrtPriceNextX64, err = tickmath.NextSqrtPriceFromOutput(sqrtPriceCurrentX64, liquidity, amountRemaining, zeroForOne)
			if err != nil {
				return SwapStep{}, err
			}
		}
	}

	reachedTarget := step.SqrtPriceNextX64.Eq(sqrtPriceTargetX64)

	if !(reachedTarget && exactIn) {
		step.AmountIn, err = amountInBetween(step.SqrtPriceNextX64, sqrtPriceCurrentX64, liquidity, zeroForOne)
		if err != nil {
			return SwapStep{}, err
		}
	}
	if !(reachedTarget && !exactIn) {
		step.AmountOut, err = amountOutBetween(step.SqrtPriceNextX64, sqrtPriceCurrentX64, liquidity, zeroForOne)
		if err != nil {
			return SwapStep{}, err
		}
	}

	if !exactIn && step.AmountOut.Gt(amountRemaining) {
		step.AmountOut = new(uint256.Int).Set(amountRemaining)
	}

	if exactIn && !reachedTarget {
		// The input did not reach the target, so whatever was not swapped is fee.
		step.FeeAmount, err = fixedpoint.CheckedSub(amountRemaining, step.AmountIn, "step fee")
	} else {
		step.FeeAmount, err = fixedpoint.MulDivCeil(step.AmountIn, fee, feeComplement)
	}
	if err != nil {
		return SwapStep{}, err
	}
	return step, nil
}

// amountInBetween is the rounded-up input needed to move between the two prices.
func amountInBetween(sqrtPriceA, sqrtPriceB, liquidity *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if zeroForOne {
		return liquiditymath.Token0AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity, true)
	}
	return liquiditymath.Token1AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity, true)
}

// amountOutBetween is the rounded-down output released between the two prices.
func amountOutBetween(sqrtPriceA, sqrtPriceB, liquidity *uint256.Int, zeroForOne bool) (*uint256.Int, error) {
	if zeroForOne {
		return liquiditymath.Token1AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity, false)
	}
	return liquiditymath.Token0AmountForLiquidity(sqrtPriceA, sqrtPriceB, liquidity, false)
}
