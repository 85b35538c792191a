// Package pool is the quoting facade over one CLMM pool: it owns the pool snapshot and
// its tick-array cache, runs the swap simulation and keeps the simulated end state.
package pool

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/clmm-engine/internal/clmm/liquiditymath"
	"github.com/hxuan190/clmm-engine/internal/clmm/swapmath"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickarray"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/domain"
	"github.com/hxuan190/clmm-engine/internal/metrics"
)

// StateLoader reads the current pool account.
type StateLoader interface {
	LoadPool(ctx context.Context, address solana.PublicKey) (*domain.PoolState, error)
}

type Config struct {
	// MaxTickArrayVisits caps distinct tick arrays per quote. Zero selects swapmath.DefaultMaxTickArrayVisits.
	MaxTickArrayVisits int
	// AmountInCeiling is the largest input an exact-output quote may require and its
	// threshold when no slippage is given. Zero selects math.MaxUint64.
	AmountInCeiling uint64
	// ReloadOnQuote refreshes the pool before every quote.
	ReloadOnQuote bool
}

func (c Config) ceiling() uint64 {
	if c.AmountInCeiling == 0 {
		return math.MaxUint64
	}
	return c.AmountInCeiling
}

// QuoteOutputConfig tunes an exact-input quote.
type QuoteOutputConfig struct {
	// SqrtPriceLimitX64 stops the swap at this price. Nil: the swap may run to the tick domain edge.
	SqrtPriceLimitX64 *uint256.Int
	// Slippage lowers the minimum output, e.g. 0.005 for 0.5%. Nil: the minimum equals the quoted output.
	Slippage *decimal.Decimal
	// Reload refreshes the pool before quoting. Default false.
	Reload bool
}

// QuoteInputConfig tunes an exact-output quote.
type QuoteInputConfig struct {
	// SqrtPriceLimitX64 stops the swap at this price. Nil: the swap may run to the tick domain edge.
	SqrtPriceLimitX64 *uint256.Int
	// Slippage raises the maximum input. Nil: the maximum is Config.AmountInCeiling.
	Slippage *decimal.Decimal
	// Reload refreshes the pool before quoting. Default false.
	Reload bool
}

// Pool holds one pool snapshot and its tick-array cache. Quotes overwrite the snapshot's
// price, tick and liquidity with the simulated outcome; use Fork to quote without
// touching a shared instance.
type Pool struct {
	mu     sync.Mutex
	state  *domain.PoolState
	cache  *tickarray.Cache
	loader StateLoader
	cfg    Config
}

// New validates state and builds a facade over it. source and loader may be nil.
func New(state *domain.PoolState, source tickarray.Source, loader StateLoader, cfg Config) (*Pool, error) {
	if err := validateState(state); err != nil {
		return nil, err
	}
	s := state.Clone()
	return &Pool{
		state:  s,
		cache:  tickarray.NewCache(s.ProgramID, s.Address, s.TickSpacing, s.TickArrayBitmap, source),
		loader: loader,
		cfg:    cfg,
	}, nil
}

func validateState(state *domain.PoolState) error {
	if state == nil {
		return fmt.Errorf("%w: nil pool state", common.ErrInvalidArgument)
	}
	if state.TickSpacing == 0 {
		return fmt.Errorf("%w: pool %s has zero tick spacing", common.ErrInvalidArgument, state.Address)
	}
	if state.FeeRate >= tickmath.FeeRateDenominator {
		return fmt.Errorf("%w: pool %s fee rate %d", common.ErrInvalidArgument, state.Address, state.FeeRate)
	}
	if state.SqrtPriceX64.Lt(tickmath.MinSqrtPriceX64) || state.SqrtPriceX64.Gt(tickmath.MaxSqrtPriceX64) {
		return fmt.Errorf("%w: pool %s sqrt price %s out of range", common.ErrInvalidArgument, state.Address, state.SqrtPriceX64.Dec())
	}
	if state.TickCurrent < tickmath.MinTick || state.TickCurrent > tickmath.MaxTick {
		return fmt.Errorf("%w: pool %s tick %d out of range", common.ErrInvalidArgument, state.Address, state.TickCurrent)
	}
	return nil
}

func (p *Pool) Address() solana.PublicKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Address
}

// State returns a copy of the current, possibly simulated, snapshot.
func (p *Pool) State() *domain.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Cache exposes the tick-array cache, e.g. for seeding from a snapshot store.
func (p *Pool) Cache() *tickarray.Cache {
	return p.cache
}

// Snapshot returns a copy of the pool state and the tick arrays cached so far.
func (p *Pool) Snapshot() (*domain.PoolState, []*domain.TickArray) {
	p.mu.Lock()
	state := p.state.Clone()
	p.mu.Unlock()
	return state, p.cache.All()
}

// Fork returns an independent facade over a copy of the state that shares the tick cache.
func (p *Pool) Fork() *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &Pool{
		state:  p.state.Clone(),
		cache:  p.cache,
		loader: p.loader,
		cfg:    p.cfg,
	}
}

// Reload replaces the snapshot with the loader's current view and drops cached tick arrays.
func (p *Pool) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloadLocked(ctx)
}

func (p *Pool) reloadLocked(ctx context.Context) error {
	if p.loader == nil {
		return fmt.Errorf("%w: pool %s has no state loader", common.ErrInsufficientData, p.state.Address)
	}
	fresh, err := p.loader.LoadPool(ctx, p.state.Address)
	if err != nil {
		metrics.PoolReloads.WithLabelValues("error").Inc()
		return err
	}
	if err := validateState(fresh); err != nil {
		metrics.PoolReloads.WithLabelValues("error").Inc()
		return err
	}
	if fresh.TickSpacing != p.state.TickSpacing {
		metrics.PoolReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: pool %s tick spacing changed from %d to %d",
			common.ErrInvalidArgument, p.state.Address, p.state.TickSpacing, fresh.TickSpacing)
	}
	p.state = fresh.Clone()
	p.cache.SetBitmap(p.state.TickArrayBitmap)
	p.cache.Reset()
	metrics.PoolReloads.WithLabelValues("ok").Inc()
	log.Debug().Str("pool", p.state.Address.String()).Int32("tick", p.state.TickCurrent).Msg("[poolFacade] reloaded")
	return nil
}

// QuoteOutput quotes how much of the other token an exact amount of inputMint buys.
func (p *Pool) QuoteOutput(ctx context.Context, inputMint solana.PublicKey, amountIn uint64, cfg QuoteOutputConfig) (*domain.Quote, error) {
	return p.quote(ctx, inputMint, true, amountIn, cfg.SqrtPriceLimitX64, cfg.Slippage, cfg.Reload)
}

// QuoteInput quotes how much of the other token is needed to receive exactly amountOut of outputMint.
func (p *Pool) QuoteInput(ctx context.Context, outputMint solana.PublicKey, amountOut uint64, cfg QuoteInputConfig) (*domain.Quote, error) {
	return p.quote(ctx, outputMint, false, amountOut, cfg.SqrtPriceLimitX64, cfg.Slippage, cfg.Reload)
}

func (p *Pool) quote(
	ctx context.Context,
	mint solana.PublicKey,
	exactIn bool,
	amount uint64,
	limit *uint256.Int,
	slippage *decimal.Decimal,
	reload bool,
) (*domain.Quote, error) {
	mode := domain.SwapModeExactIn
	if !exactIn {
		mode = domain.SwapModeExactOut
	}
	start := time.Now()
	var tally tickarray.CacheStats

	q, err := p.quoteLocked(ctx, mint, exactIn, amount, limit, slippage, reload, &tally)

	metrics.TickArrayCacheHits.Add(float64(tally.Hits))
	metrics.TickArrayCacheMisses.Add(float64(tally.Misses))
	metrics.QuoteDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QuoteRequests.WithLabelValues(string(mode), "error").Inc()
		log.Debug().Err(err).Str("mint", mint.String()).Uint64("amount", amount).Str("mode", string(mode)).Msg("[poolFacade] quote failed")
		return nil, err
	}
	metrics.QuoteRequests.WithLabelValues(string(mode), "ok").Inc()
	metrics.SwapSteps.Observe(float64(q.Steps))
	metrics.PriceImpact.Observe(float64(q.PriceImpactBps))
	return q, nil
}

func (p *Pool) quoteLocked(
	ctx context.Context,
	mint solana.PublicKey,
	exactIn bool,
	amount uint64,
	limit *uint256.Int,
	slippage *decimal.Decimal,
	reload bool,
	tally *tickarray.CacheStats,
) (*domain.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", common.ErrInvalidArgument)
	}
	if slippage != nil && (slippage.IsNegative() || slippage.GreaterThan(decimal.NewFromInt(1))) {
		return nil, fmt.Errorf("%w: slippage %s outside [0, 1]", common.ErrInvalidArgument, slippage.String())
	}
	ok, isToken0 := p.state.HasMint(mint)
	if !ok {
		return nil, fmt.Errorf("%w: mint %s is not in pool %s", common.ErrInvalidArgument, mint, p.state.Address)
	}
	if reload || p.cfg.ReloadOnQuote {
		if err := p.reloadLocked(ctx); err != nil {
			return nil, err
		}
	}
	if !p.state.SwapEnabled() {
		return nil, fmt.Errorf("%w: swaps are disabled on pool %s", common.ErrInvalidArgument, p.state.Address)
	}

	// Exact input names the input mint; exact output names the output mint.
	zeroForOne := isToken0 == exactIn
	inputMint, outputMint := mint, p.state.OtherMint(mint)
	if !exactIn {
		inputMint, outputMint = outputMint, mint
	}

	res, err := swapmath.SwapCompute(ctx, p.cache.Counting(tally), swapmath.SwapParams{
		ZeroForOne:        zeroForOne,
		ExactIn:           exactIn,
		FeeRate:           p.state.FeeRate,
		Liquidity:         &p.state.Liquidity,
		TickCurrent:       p.state.TickCurrent,
		SqrtPriceX64:      &p.state.SqrtPriceX64,
		Amount:            uint256.NewInt(amount),
		SqrtPriceLimitX64: limit,
	}, swapmath.SwapConfig{MaxTickArrayVisits: p.cfg.MaxTickArrayVisits})
	if err != nil {
		return nil, err
	}

	filled := amount - res.AmountSpecifiedRemaining.Uint64()
	q := &domain.Quote{
		Pool:               p.state.Address,
		InputMint:          inputMint,
		OutputMint:         outputMint,
		Mode:               domain.SwapModeExactIn,
		SqrtPriceBeforeX64: p.state.SqrtPriceX64,
		SqrtPriceAfterX64:  *res.SqrtPriceX64,
		TickBefore:         p.state.TickCurrent,
		TickAfter:          res.Tick,
		LiquidityAfter:     *res.Liquidity,
		TickArrays:         res.TickArrays,
		Steps:              res.Steps,
	}
	if q.FeeAmount, err = toUint64(res.FeeAmount, "fee amount"); err != nil {
		return nil, err
	}

	if exactIn {
		q.AmountIn = filled
		if q.AmountOut, err = toUint64(res.AmountOut, "amount out"); err != nil {
			return nil, err
		}
		q.OtherAmountThreshold = q.AmountOut
		if slippage != nil {
			minOut, err := liquiditymath.ApplySlippage(uint256.NewInt(q.AmountOut), *slippage, false)
			if err != nil {
				return nil, err
			}
			q.OtherAmountThreshold = minOut.Uint64()
		}
	} else {
		q.Mode = domain.SwapModeExactOut
		q.AmountOut = filled
		if q.AmountIn, err = toUint64(res.AmountIn, "amount in"); err != nil {
			return nil, err
		}
		ceiling := p.cfg.ceiling()
		if q.AmountIn > ceiling {
			return nil, fmt.Errorf("%w: required input %d exceeds ceiling %d", common.ErrArithmeticBounds, q.AmountIn, ceiling)
		}
		q.OtherAmountThreshold = ceiling
		if slippage != nil {
			maxIn, err := liquiditymath.ApplySlippage(uint256.NewInt(q.AmountIn), *slippage, true)
			if err != nil {
				return nil, err
			}
			if q.OtherAmountThreshold, err = toUint64(maxIn, "maximum input"); err != nil {
				return nil, err
			}
		}
	}
	q.PriceImpactBps = PriceImpactBps(q.AmountIn, q.AmountOut, q.FeeAmount, zeroForOne, &p.state.SqrtPriceX64)

	p.state.SqrtPriceX64 = *res.SqrtPriceX64
	p.state.TickCurrent = res.Tick
	p.state.Liquidity = *res.Liquidity
	return q, nil
}

func toUint64(v *uint256.Int, what string) (uint64, error) {
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s %s exceeds u64", common.ErrArithmeticBounds, what, v.Dec())
	}
	return v.Uint64(), nil
}
