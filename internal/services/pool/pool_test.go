package pool

import (
	"context"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickarray"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/domain"
)

var (
	poolAddress = solana.MustPublicKeyFromBase58("3ucNos4NbumPLZNWztqGHNFFgkHeRMBQAVemeeomsUxv")
	mint0       = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	mint1       = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qDkqN8iVfEYjmRjDmaVgrr8wA3")
)

func setTick(ta *domain.TickArray, tick int32, spacing uint16, net int64) {
	slot := &ta.Ticks[(tick-ta.StartTickIndex)/int32(spacing)]
	slot.Tick = tick
	if net >= 0 {
		slot.LiquidityNet.SetUint64(uint64(net))
		slot.LiquidityGross.SetUint64(uint64(net))
	} else {
		slot.LiquidityNet.Neg(uint256.NewInt(uint64(-net)))
		slot.LiquidityGross.SetUint64(uint64(-net))
	}
	if slot.LiquidityGross.IsZero() {
		slot.LiquidityGross.SetUint64(1)
	}
	ta.InitializedTickCount++
}

// newTestPool builds a pool at tick 0 with liquidity 1e6 over [-6000, 6000) and, when
// ladder is set, empty initialized ticks at every array boundary below zero.
func newTestPool(t *testing.T, cfg Config, ladder bool) *Pool {
	t.Helper()
	state := &domain.PoolState{
		Address:       poolAddress,
		ProgramID:     common.RaydiumCLMMProgramID,
		TokenMint0:    mint0,
		TokenMint1:    mint1,
		MintDecimals0: 9,
		MintDecimals1: 6,
		TickSpacing:   10,
		FeeRate:       2500,
		TickCurrent:   0,
	}
	state.Liquidity.SetUint64(1_000_000)
	state.SqrtPriceX64.Set(fixedpoint.Q64)

	arrays := map[int32]*domain.TickArray{}
	add := func(tick int32, net int64) {
		start := tickmath.TickArrayStartIndex(tick, 10)
		ta, ok := arrays[start]
		if !ok {
			ta = &domain.TickArray{PoolID: poolAddress, StartTickIndex: start}
			arrays[start] = ta
			require.NoError(t, tickarray.MarkInitialized(&state.TickArrayBitmap, start, 10, true))
		}
		setTick(ta, tick, 10, net)
	}
	add(-6000, 1_000_000)
	add(6000, -1_000_000)
	if ladder {
		for k := int32(1); k < 10; k++ {
			add(-600*k, 0)
		}
	}

	p, err := New(state, nil, nil, cfg)
	require.NoError(t, err)
	for _, ta := range arrays {
		require.NoError(t, p.Cache().Put(ta))
	}
	return p
}

func TestQuoteOutputMutatesState(t *testing.T) {
	p := newTestPool(t, Config{}, false)
	ctx := context.Background()

	q, err := p.QuoteOutput(ctx, mint0, 100_000, QuoteOutputConfig{})
	require.NoError(t, err)
	assert.Equal(t, mint0, q.InputMint)
	assert.Equal(t, mint1, q.OutputMint)
	assert.Equal(t, domain.SwapModeExactIn, q.Mode)
	assert.Equal(t, uint64(100_000), q.AmountIn)
	assert.Equal(t, uint64(90702), q.AmountOut)
	assert.Equal(t, uint64(250), q.FeeAmount)
	assert.Equal(t, uint64(90702), q.OtherAmountThreshold)
	assert.Equal(t, int32(0), q.TickBefore)
	assert.Equal(t, int32(-1902), q.TickAfter)
	assert.Len(t, q.TickArrays, 1)
	assert.Equal(t, uint16(907), q.PriceImpactBps)

	state := p.State()
	assert.Equal(t, int32(-1902), state.TickCurrent)
	assert.Equal(t, "16773579516898887580", state.SqrtPriceX64.Dec())

	again, err := p.QuoteOutput(ctx, mint0, 100_000, QuoteOutputConfig{})
	require.NoError(t, err)
	assert.Less(t, again.AmountOut, q.AmountOut, "second quote starts from the simulated price")
	assert.Equal(t, q.SqrtPriceAfterX64, again.SqrtPriceBeforeX64)
}

func TestQuoteOutputSlippage(t *testing.T) {
	p := newTestPool(t, Config{}, false)
	onePercent := decimal.NewFromFloat(0.01)

	q, err := p.QuoteOutput(context.Background(), mint0, 100_000, QuoteOutputConfig{Slippage: &onePercent})
	require.NoError(t, err)
	assert.Equal(t, uint64(89794), q.OtherAmountThreshold)

	bad := decimal.NewFromFloat(1.5)
	_, err = p.QuoteOutput(context.Background(), mint0, 100_000, QuoteOutputConfig{Slippage: &bad})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestQuoteInput(t *testing.T) {
	p := newTestPool(t, Config{}, false)

	q, err := p.QuoteInput(context.Background(), mint1, 100_000, QuoteInputConfig{})
	require.NoError(t, err)
	assert.Equal(t, domain.SwapModeExactOut, q.Mode)
	assert.Equal(t, mint0, q.InputMint)
	assert.Equal(t, mint1, q.OutputMint)
	assert.Equal(t, uint64(100_000), q.AmountOut)
	assert.Equal(t, uint64(111391), q.AmountIn)
	assert.Equal(t, uint64(math.MaxUint64), q.OtherAmountThreshold)
	assert.Equal(t, int32(-2108), p.State().TickCurrent)
}

func TestQuoteInputCeiling(t *testing.T) {
	p := newTestPool(t, Config{AmountInCeiling: 100_000}, false)
	before := p.State()

	_, err := p.QuoteInput(context.Background(), mint1, 100_000, QuoteInputConfig{})
	assert.ErrorIs(t, err, common.ErrArithmeticBounds)
	assert.Equal(t, before, p.State())

	half := decimal.NewFromFloat(0.005)
	q, err := p.QuoteInput(context.Background(), mint1, 10_000, QuoteInputConfig{Slippage: &half})
	require.NoError(t, err)
	assert.Greater(t, q.OtherAmountThreshold, q.AmountIn)
}

func TestQuoteRejectsForeignMint(t *testing.T) {
	p := newTestPool(t, Config{}, false)
	before := p.State()

	_, err := p.QuoteOutput(context.Background(), solana.NewWallet().PublicKey(), 100, QuoteOutputConfig{})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	_, err = p.QuoteOutput(context.Background(), mint0, 0, QuoteOutputConfig{})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	assert.Equal(t, before, p.State())
}

func TestQuoteWrongSidePriceLimit(t *testing.T) {
	p := newTestPool(t, Config{}, false)
	before := p.State()
	above, err := tickmath.SqrtPriceFromTick(100)
	require.NoError(t, err)

	_, err = p.QuoteOutput(context.Background(), mint0, 100_000, QuoteOutputConfig{SqrtPriceLimitX64: above})
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
	assert.Equal(t, before, p.State())
}

func TestQuoteStepCapLeavesStateUntouched(t *testing.T) {
	p := newTestPool(t, Config{MaxTickArrayVisits: 3}, true)
	before := p.State()

	_, err := p.QuoteOutput(context.Background(), mint0, 180_000, QuoteOutputConfig{})
	assert.ErrorIs(t, err, common.ErrResourceExhausted)
	assert.Equal(t, before, p.State())
}

type stubLoader struct {
	state *domain.PoolState
	calls int
}

func (l *stubLoader) LoadPool(_ context.Context, _ solana.PublicKey) (*domain.PoolState, error) {
	l.calls++
	return l.state.Clone(), nil
}

func TestReloadAndFork(t *testing.T) {
	p := newTestPool(t, Config{}, false)
	fork := p.Fork()

	_, err := fork.QuoteOutput(context.Background(), mint0, 100_000, QuoteOutputConfig{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), p.State().TickCurrent, "forks do not write back")

	assert.ErrorIs(t, p.Reload(context.Background()), common.ErrInsufficientData)

	fresh := p.State()
	fresh.TickCurrent = 5
	loader := &stubLoader{state: fresh}
	p.loader = loader

	require.NoError(t, p.Reload(context.Background()))
	assert.Equal(t, int32(5), p.State().TickCurrent)
	assert.Equal(t, 0, p.Cache().Len())

	_, err = p.QuoteOutput(context.Background(), mint0, 10, QuoteOutputConfig{Reload: true})
	assert.ErrorIs(t, err, common.ErrInsufficientData, "cache was dropped and there is no source")
	assert.Equal(t, 2, loader.calls)
}

func TestPriceImpactBps(t *testing.T) {
	assert.Equal(t, uint16(907), PriceImpactBps(100_000, 90702, 250, true, fixedpoint.Q64))
	assert.Equal(t, uint16(0), PriceImpactBps(100, 100, 0, false, fixedpoint.Q64))
	assert.Equal(t, uint16(0), PriceImpactBps(100, 50, 100, true, fixedpoint.Q64))

	// Spot is 4 token1 per token0; receiving 2 for 1 is a 50% impact, selling token1 at 1/4 is none.
	double := new(uint256.Int).Lsh(fixedpoint.Q64, 1)
	assert.Equal(t, uint16(5000), PriceImpactBps(1000, 2000, 0, true, double))
	assert.Equal(t, uint16(0), PriceImpactBps(4000, 1000, 0, false, double))

	assert.Equal(t, SeverityNone, GetPriceImpactSeverity(99))
	assert.Equal(t, SeverityHigh, GetPriceImpactSeverity(907))
	assert.Equal(t, "", GetPriceImpactWarning(50))
	assert.Contains(t, GetPriceImpactWarning(1500), "EXTREME")
	assert.Equal(t, uint16(1900), CombinedPriceImpactBps(1000, 1000))
}
