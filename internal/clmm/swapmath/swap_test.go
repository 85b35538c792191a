package swapmath

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickarray"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/domain"
)

var testPool = solana.MustPublicKeyFromBase58("3ucNos4NbumPLZNWztqGHNFFgkHeRMBQAVemeeomsUxv")

// newTicks builds a cache holding the given tick -> liquidityNet map. Ticks with zero net
// are still initialized.
func newTicks(t *testing.T, spacing uint16, nets map[int32]int64) *tickarray.Cache {
	t.Helper()
	arrays := make(map[int32]*domain.TickArray)
	var bitmap domain.TickArrayBitmap
	for tick, net := range nets {
		start := tickmath.TickArrayStartIndex(tick, spacing)
		ta, ok := arrays[start]
		if !ok {
			ta = &domain.TickArray{PoolID: testPool, StartTickIndex: start}
			arrays[start] = ta
			require.NoError(t, tickarray.MarkInitialized(&bitmap, start, spacing, true))
		}
		slot := &ta.Ticks[(tick-start)/int32(spacing)]
		slot.Tick = tick
		gross := uint64(1)
		if net > 0 {
			slot.LiquidityNet.SetUint64(uint64(net))
			gross = uint64(net)
		} else if net < 0 {
			slot.LiquidityNet.Neg(uint256.NewInt(uint64(-net)))
			gross = uint64(-net)
		}
		slot.LiquidityGross.SetUint64(gross)
		ta.InitializedTickCount++
	}

	cache := tickarray.NewCache(common.RaydiumCLMMProgramID, testPool, spacing, bitmap, nil)
	for _, ta := range arrays {
		require.NoError(t, cache.Put(ta))
	}
	return cache
}

func addressOf(t *testing.T, start int32) solana.PublicKey {
	t.Helper()
	a, err := tickarray.Address(common.RaydiumCLMMProgramID, testPool, start)
	require.NoError(t, err)
	return a
}

func params(liquidity uint64, amount uint64, exactIn, zeroForOne bool) SwapParams {
	return SwapParams{
		ZeroForOne:   zeroForOne,
		ExactIn:      exactIn,
		FeeRate:      2500,
		Liquidity:    uint256.NewInt(liquidity),
		TickCurrent:  0,
		SqrtPriceX64: new(uint256.Int).Set(fixedpoint.Q64),
		Amount:       uint256.NewInt(amount),
	}
}

func singleRange(t *testing.T) *tickarray.Cache {
	return newTicks(t, 10, map[int32]int64{-6000: 1_000_000, 6000: -1_000_000})
}

func TestSwapComputeExactInZeroForOne(t *testing.T) {
	p := params(1_000_000, 100_000, true, true)
	res, err := SwapCompute(context.Background(), singleRange(t), p, SwapConfig{})
	require.NoError(t, err)

	assert.Equal(t, int64(-90702), res.AmountCalculated.Int64())
	assert.True(t, res.AmountSpecifiedRemaining.IsZero())
	assert.Equal(t, "16773579516898887580", res.SqrtPriceX64.Dec())
	assert.Equal(t, int32(-1902), res.Tick)
	assert.Equal(t, uint64(1_000_000), res.Liquidity.Uint64(), "no boundary crossed")
	assert.Equal(t, uint64(100_000), res.AmountIn.Uint64())
	assert.Equal(t, uint64(90702), res.AmountOut.Uint64())
	assert.Equal(t, uint64(250), res.FeeAmount.Uint64())
	assert.Equal(t, Exhausted, res.Termination)
	assert.Equal(t, []solana.PublicKey{addressOf(t, -6000)}, res.TickArrays)
	assert.Equal(t, 1, res.Steps)

	// Inputs are untouched.
	assert.Equal(t, fixedpoint.Q64, p.SqrtPriceX64)
	assert.Equal(t, uint64(100_000), p.Amount.Uint64())
}

func TestSwapComputeOtherDirectionsAndModes(t *testing.T) {
	up, err := SwapCompute(context.Background(), singleRange(t), params(1_000_000, 100_000, true, false), SwapConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(-90702), up.AmountCalculated.Int64())
	assert.Equal(t, "20286806795062079389", up.SqrtPriceX64.Dec())
	assert.Equal(t, int32(1901), up.Tick)

	out, err := SwapCompute(context.Background(), singleRange(t), params(1_000_000, 100_000, false, true), SwapConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(111391), out.AmountCalculated.Int64())
	assert.Equal(t, uint64(100_000), out.AmountOut.Uint64())
	assert.Equal(t, uint64(111391), out.AmountIn.Uint64())
	assert.Equal(t, "16602069666338596454", out.SqrtPriceX64.Dec())
	assert.Equal(t, int32(-2108), out.Tick)
}

func TestSwapComputeCrossesInitializedTicks(t *testing.T) {
	nets := map[int32]int64{-6000: 1_000_000, 6000: -1_000_000, -1200: 500_000, 1200: -500_000}

	down, err := SwapCompute(context.Background(), newTicks(t, 10, nets), params(1_500_000, 150_000, true, true), SwapConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(-135225), down.AmountCalculated.Int64())
	assert.Equal(t, "16489352981823772313", down.SqrtPriceX64.Dec())
	assert.Equal(t, int32(-2244), down.Tick)
	assert.Equal(t, uint64(1_000_000), down.Liquidity.Uint64())
	assert.Equal(t, 2, down.Steps)
	assert.Equal(t, []solana.PublicKey{addressOf(t, -1200), addressOf(t, -6000)}, down.TickArrays)

	up, err := SwapCompute(context.Background(), newTicks(t, 10, nets), params(1_500_000, 150_000, false, false), SwapConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(168848), up.AmountCalculated.Int64())
	assert.Equal(t, "20983303148199631820", up.SqrtPriceX64.Dec())
	assert.Equal(t, int32(2576), up.Tick)
	assert.Equal(t, uint64(1_000_000), up.Liquidity.Uint64())
	assert.Equal(t, []solana.PublicKey{addressOf(t, 1200), addressOf(t, 6000)}, up.TickArrays)
}

func TestSwapComputePriceLimit(t *testing.T) {
	limit, err := tickmath.SqrtPriceFromTick(-1000)
	require.NoError(t, err)

	p := params(1_000_000, 1_000_000_000, true, true)
	p.SqrtPriceLimitX64 = limit
	res, err := SwapCompute(context.Background(), singleRange(t), p, SwapConfig{})
	require.NoError(t, err)
	assert.Equal(t, PriceLimitReached, res.Termination)
	assert.Equal(t, limit, res.SqrtPriceX64)
	assert.Equal(t, int32(-1000), res.Tick)
	assert.Equal(t, int64(-48768), res.AmountCalculated.Int64())
	assert.Equal(t, uint64(999_948_602), res.AmountSpecifiedRemaining.Uint64())
}

func TestSwapComputeInvalidArguments(t *testing.T) {
	ticks := singleRange(t)
	above, err := tickmath.SqrtPriceFromTick(100)
	require.NoError(t, err)
	below, err := tickmath.SqrtPriceFromTick(-100)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p *SwapParams)
	}{
		{"zero amount", func(p *SwapParams) { p.Amount = uint256.NewInt(0) }},
		{"limit above price for zero-for-one", func(p *SwapParams) { p.SqrtPriceLimitX64 = above }},
		{"limit equal to price", func(p *SwapParams) { p.SqrtPriceLimitX64 = new(uint256.Int).Set(fixedpoint.Q64) }},
		{"limit at min bound", func(p *SwapParams) { p.SqrtPriceLimitX64 = new(uint256.Int).Set(tickmath.MinSqrtPriceX64) }},
		{"limit below price for one-for-zero", func(p *SwapParams) {
			p.ZeroForOne = false
			p.SqrtPriceLimitX64 = below
		}},
		{"fee rate at denominator", func(p *SwapParams) { p.FeeRate = 1_000_000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params(1_000_000, 100_000, true, true)
			tt.mutate(&p)
			_, err := SwapCompute(context.Background(), ticks, p, SwapConfig{})
			assert.ErrorIs(t, err, common.ErrInvalidArgument)
		})
	}
	assert.Equal(t, uint64(0), ticks.Stats().Hits+ticks.Stats().Misses, "validation runs before any tick lookup")
}

func TestSwapComputeTickArrayCap(t *testing.T) {
	nets := make(map[int32]int64)
	for k := int32(1); k <= 15; k++ {
		nets[-600*k] = 0
	}
	p := params(1_000_000, 180_000, true, true)

	_, err := SwapCompute(context.Background(), newTicks(t, 10, nets), p, SwapConfig{MaxTickArrayVisits: 5})
	assert.ErrorIs(t, err, common.ErrResourceExhausted)

	res, err := SwapCompute(context.Background(), newTicks(t, 10, nets), p, SwapConfig{MaxTickArrayVisits: 6})
	require.NoError(t, err)
	assert.Equal(t, int64(-152213), res.AmountCalculated.Int64())
	assert.Equal(t, int32(-3303), res.Tick)
	assert.Len(t, res.TickArrays, 6)
	assert.Equal(t, 6, res.Steps)
}

func TestSwapComputeFullRangeWideSpacing(t *testing.T) {
	for _, spacing := range []uint16{60, 120} {
		lower := tickmath.NearestUsableTick(tickmath.MinTick, spacing)
		upper := tickmath.NearestUsableTick(tickmath.MaxTick, spacing)
		nets := map[int32]int64{lower: 1_000_000, upper: -1_000_000}

		down, err := SwapCompute(context.Background(), newTicks(t, spacing, nets), params(1_000_000, 1000, true, true), SwapConfig{})
		require.NoError(t, err, "spacing %d", spacing)
		assert.Equal(t, int64(-996), down.AmountCalculated.Int64())
		assert.Equal(t, Exhausted, down.Termination)
		assert.Equal(t, []solana.PublicKey{addressOf(t, tickmath.TickArrayStartIndex(lower, spacing))}, down.TickArrays)

		up, err := SwapCompute(context.Background(), newTicks(t, spacing, nets), params(1_000_000, 1000, true, false), SwapConfig{})
		require.NoError(t, err, "spacing %d", spacing)
		assert.Equal(t, int64(-996), up.AmountCalculated.Int64())
		assert.Equal(t, []solana.PublicKey{addressOf(t, tickmath.TickArrayStartIndex(upper, spacing))}, up.TickArrays)
	}
}

func TestSwapComputeStopsAtTickDomainEdge(t *testing.T) {
	empty := newTicks(t, 10, nil)

	p := params(1_000_000, 1000, true, true)
	p.TickCurrent = tickmath.MinTick
	p.SqrtPriceX64 = new(uint256.Int).AddUint64(tickmath.MinSqrtPriceX64, 100)
	res, err := SwapCompute(context.Background(), empty, p, SwapConfig{})
	require.NoError(t, err)
	assert.Equal(t, TickBoundReached, res.Termination)
	assert.Equal(t, 0, res.Steps)
	assert.Equal(t, uint64(1000), res.AmountSpecifiedRemaining.Uint64())

	p = params(1_000_000, 1000, true, false)
	p.TickCurrent = tickmath.MaxTick
	p.SqrtPriceX64 = new(uint256.Int).SubUint64(tickmath.MaxSqrtPriceX64, 100)
	res, err = SwapCompute(context.Background(), empty, p, SwapConfig{})
	require.NoError(t, err)
	assert.Equal(t, TickBoundReached, res.Termination)
	assert.Empty(t, res.TickArrays)
	assert.Equal(t, uint64(0), empty.Stats().Hits+empty.Stats().Misses)
}

func TestSwapComputeInsufficientLiquidity(t *testing.T) {
	_, err := SwapCompute(context.Background(), singleRange(t), params(1_000_000, 400_000, true, true), SwapConfig{})
	assert.ErrorIs(t, err, common.ErrInsufficientData)
}

func TestComputeSwapStep(t *testing.T) {
	target, err := tickmath.SqrtPriceFromTick(-6000)
	require.NoError(t, err)
	liquidity := uint256.NewInt(1_000_000)

	partial, err := ComputeSwapStep(fixedpoint.Q64, target, liquidity, uint256.NewInt(100_000), 2500, true, true)
	require.NoError(t, err)
	assert.Equal(t, "16773579516898887580", partial.SqrtPriceNextX64.Dec())
	assert.Equal(t, uint64(99750), partial.AmountIn.Uint64())
	assert.Equal(t, uint64(90702), partial.AmountOut.Uint64())
	assert.Equal(t, uint64(250), partial.FeeAmount.Uint64())

	full, err := ComputeSwapStep(fixedpoint.Q64, target, liquidity, uint256.NewInt(1_000_000_000), 2500, true, true)
	require.NoError(t, err)
	assert.Equal(t, target, full.SqrtPriceNextX64)
	assert.Equal(t, uint64(349839), full.AmountIn.Uint64())
	assert.Equal(t, uint64(259170), full.AmountOut.Uint64())
	assert.Equal(t, uint64(877), full.FeeAmount.Uint64())
}

func TestComputeSwapStepFeeBound(t *testing.T) {
	target, err := tickmath.SqrtPriceFromTick(-6000)
	require.NoError(t, err)
	liquidity := uint256.NewInt(1_000_000)
	feeRates := []uint32{0, 100, 2500, 10_000, 999_999}

	for _, fee := range feeRates {
		for _, amount := range []uint64{1, 10, 999, 100_000, 1_000_000_000} {
			remaining := uint256.NewInt(amount)
			step, err := ComputeSwapStep(fixedpoint.Q64, target, liquidity, remaining, fee, true, true)
			require.NoError(t, err)

			spent := new(uint256.Int).Add(step.AmountIn, step.FeeAmount)
			assert.False(t, spent.Gt(remaining), "fee %d amount %d: spent %s", fee, amount, spent.Dec())
			if fee == 0 {
				assert.True(t, step.FeeAmount.IsZero() || !step.SqrtPriceNextX64.Eq(target))
			}
		}
	}
}
