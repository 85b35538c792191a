package swapmath

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/clmm/liquiditymath"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickarray"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/common"
)

// DefaultMaxTickArrayVisits bounds the number of distinct tick arrays one swap may read.
const DefaultMaxTickArrayVisits = 10

// TickSource finds initialized ticks for one pool. *tickarray.Cache implements it.
type TickSource interface {
	NextInitializedTick(ctx context.Context, tick int32, zeroForOne bool, visit tickarray.VisitFunc) (tickarray.InitializedTick, error)
}

type Termination uint8

const (
	Exhausted Termination = iota + 1
	PriceLimitReached
	TickBoundReached
)

func (t Termination) String() string {
	switch t {
	case Exhausted:
		return "exhausted"
	case PriceLimitReached:
		return "price_limit_reached"
	case TickBoundReached:
		return "tick_bound_reached"
	default:
		return "unknown"
	}
}

// SwapParams is the pool state and order a swap runs against. None of the pointers are modified.
type SwapParams struct {
	ZeroForOne   bool
	ExactIn      bool
	FeeRate      uint32
	Liquidity    *uint256.Int
	TickCurrent  int32
	SqrtPriceX64 *uint256.Int

	// Amount is the exact input (ExactIn) or exact output (ExactOut). Must be positive.
	Amount *uint256.Int
	// SqrtPriceLimitX64 stops the swap at this price. Nil selects MinSqrtPriceX64+1 when
	// ZeroForOne, else MaxSqrtPriceX64-1.
	SqrtPriceLimitX64 *uint256.Int
}

type SwapConfig struct {
	// MaxTickArrayVisits caps the distinct tick arrays read. Zero selects DefaultMaxTickArrayVisits.
	MaxTickArrayVisits int
}

// SwapResult is the simulated end state of a swap.
type SwapResult struct {
	AmountSpecifiedRemaining *uint256.Int
	// AmountCalculated is the signed counter amount: negative output for exact input,
	// positive input including fees for exact output.
	AmountCalculated *big.Int

	// AmountIn includes fees. AmountOut is what the pool releases.
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	FeeAmount *uint256.Int

	SqrtPriceX64 *uint256.Int
	Tick         int32
	Liquidity    *uint256.Int

	// TickArrays lists the arrays read, in visit order, without duplicates.
	TickArrays  []solana.PublicKey
	Steps       int
	Termination Termination
}

func defaultPriceLimit(zeroForOne bool) *uint256.Int {
	if zeroForOne {
		return new(uint256.Int).AddUint64(tickmath.MinSqrtPriceX64, 1)
	}
	return new(uint256.Int).SubUint64(tickmath.MaxSqrtPriceX64, 1)
}

func validate(p SwapParams) (*uint256.Int, error) {
	if p.Amount == nil || p.Amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be non-zero", common.ErrInvalidArgument)
	}
	if p.Liquidity == nil {
		return nil, fmt.Errorf("%w: liquidity is required", common.ErrInvalidArgument)
	}
	if p.SqrtPriceX64 == nil || p.SqrtPriceX64.Lt(tickmath.MinSqrtPriceX64) || p.SqrtPriceX64.Gt(tickmath.MaxSqrtPriceX64) {
		return nil, fmt.Errorf("%w: current sqrt price outside the valid range", common.ErrInvalidArgument)
	}
	if p.FeeRate >= tickmath.FeeRateDenominator {
		return nil, fmt.Errorf("%w: fee rate %d must be below %d", common.ErrInvalidArgument, p.FeeRate, tickmath.FeeRateDenominator)
	}

	if p.SqrtPriceLimitX64 == nil {
		return defaultPriceLimit(p.ZeroForOne), nil
	}
	limit := p.SqrtPriceLimitX64
	if !limit.Gt(tickmath.MinSqrtPriceX64) || !limit.Lt(tickmath.MaxSqrtPriceX64) {
		return nil, fmt.Errorf("%w: sqrt price limit %s outside (%s, %s)", common.ErrInvalidArgument,
			limit.Dec(), tickmath.MinSqrtPriceX64.Dec(), tickmath.MaxSqrtPriceX64.Dec())
	}
	if p.ZeroForOne && !limit.Lt(p.SqrtPriceX64) {
		return nil, fmt.Errorf("%w: sqrt price limit %s must be below current %s", common.ErrInvalidArgument,
			limit.Dec(), p.SqrtPriceX64.Dec())
	}
	if !p.ZeroForOne && !limit.Gt(p.SqrtPriceX64) {
		return nil, fmt.Errorf("%w: sqrt price limit %s must be above current %s", common.ErrInvalidArgument,
			limit.Dec(), p.SqrtPriceX64.Dec())
	}
	return new(uint256.Int).Set(limit), nil
}

// visitTracker records distinct tick arrays and enforces the visit cap.
type visitTracker struct {
	max     int
	seen    map[solana.PublicKey]struct{}
	ordered []solana.PublicKey
}

func (v *visitTracker) visit(startIndex int32, address solana.PublicKey) error {
	if _, ok := v.seen[address]; ok {
		return nil
	}
	if len(v.ordered) >= v.max {
		return fmt.Errorf("%w: swap needs more than %d tick arrays (next %d)", common.ErrResourceExhausted, v.max, startIndex)
	}
	v.seen[address] = struct{}{}
	v.ordered = append(v.ordered, address)
	return nil
}

// SwapCompute walks the price from the current tick across initialized ticks until the
// amount is consumed, the price limit is reached, or the tick domain ends. It either
// returns a complete result or an error; params are never modified.
func SwapCompute(ctx context.Context, ticks TickSource, p SwapParams, cfg SwapConfig) (*SwapResult, error) {
	limit, err := validate(p)
	if err != nil {
		return nil, err
	}
	maxVisits := cfg.MaxTickArrayVisits
	if maxVisits <= 0 {
		maxVisits = DefaultMaxTickArrayVisits
	}
	visits := &visitTracker{max: maxVisits, seen: make(map[solana.PublicKey]struct{})}

	var (
		remaining  = new(uint256.Int).Set(p.Amount)
		calculated = new(big.Int)
		totalIn    = new(uint256.Int)
		totalOut   = new(uint256.Int)
		totalFee   = new(uint256.Int)
		sqrtPrice  = new(uint256.Int).Set(p.SqrtPriceX64)
		liquidity  = new(uint256.Int).Set(p.Liquidity)
		tick       = p.TickCurrent
		steps      int
	)

	for !remaining.IsZero() && !sqrtPrice.Eq(limit) && tick > tickmath.MinTick && tick < tickmath.MaxTick {
		sqrtPriceStart := new(uint256.Int).Set(sqrtPrice)

		next, err := ticks.NextInitializedTick(ctx, tick, p.ZeroForOne, visits.visit)
		if err != nil {
			if errors.Is(err, common.ErrInsufficientData) || errors.Is(err, common.ErrResourceExhausted) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: next initialized tick from %d: %v", common.ErrInsufficientData, tick, err)
		}

		tickNext := next.Tick.Tick
		if tickNext < tickmath.MinTick {
			tickNext = tickmath.MinTick
		} else if tickNext > tickmath.MaxTick {
			tickNext = tickmath.MaxTick
		}
		sqrtPriceNext, err := tickmath.SqrtPriceFromTick(tickNext)
		if err != nil {
			return nil, err
		}

		target := sqrtPriceNext
		if (p.ZeroForOne && sqrtPriceNext.Lt(limit)) || (!p.ZeroForOne && sqrtPriceNext.Gt(limit)) {
			target = limit
		}

		step, err := ComputeSwapStep(sqrtPrice, target, liquidity, remaining, p.FeeRate, p.ExactIn, p.ZeroForOne)
		if err != nil {
			return nil, err
		}
		steps++
		sqrtPrice = step.SqrtPriceNextX64

		inWithFee := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
		if p.ExactIn {
			remaining, err = fixedpoint.CheckedSub(remaining, inWithFee, "amount remaining")
			if err != nil {
				return nil, err
			}
			calculated.Sub(calculated, step.AmountOut.ToBig())
		} else {
			remaining, err = fixedpoint.CheckedSub(remaining, step.AmountOut, "amount remaining")
			if err != nil {
				return nil, err
			}
			calculated.Add(calculated, inWithFee.ToBig())
		}
		totalIn.Add(totalIn, inWithFee)
		totalOut.Add(totalOut, step.AmountOut)
		totalFee.Add(totalFee, step.FeeAmount)

		switch {
		case sqrtPrice.Eq(sqrtPriceNext):
			if next.Tick.IsInitialized() {
				net := new(uint256.Int).Set(&next.Tick.LiquidityNet)
				if p.ZeroForOne {
					net.Neg(net)
				}
				liquidity, err = liquiditymath.AddDelta(liquidity, net)
				if err != nil {
					return nil, err
				}
			}
			if p.ZeroForOne {
				tick = tickNext - 1
			} else {
				tick = tickNext
			}
		case !sqrtPrice.Eq(sqrtPriceStart):
			tick, err = tickmath.TickFromSqrtPrice(sqrtPrice)
			if err != nil {
				return nil, err
			}
		}
	}

	result := &SwapResult{
		AmountSpecifiedRemaining: remaining,
		AmountCalculated:         calculated,
		AmountIn:                 totalIn,
		AmountOut:                totalOut,
		FeeAmount:                totalFee,
		SqrtPriceX64:             sqrtPrice,
		Tick:                     tick,
		Liquidity:                liquidity,
		TickArrays:               visits.ordered,
		Steps:                    steps,
	}
	switch {
	case remaining.IsZero():
		result.Termination = Exhausted
	case sqrtPrice.Eq(limit):
		result.Termination = PriceLimitReached
	default:
		result.Termination = TickBoundReached
	}
	return result, nil
}
