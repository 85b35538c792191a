package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/clmm-engine/internal/clmm/liquiditymath"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/config"
	"github.com/hxuan190/clmm-engine/internal/domain"
	"github.com/hxuan190/clmm-engine/internal/metrics"
	"github.com/hxuan190/clmm-engine/internal/services"
	"github.com/hxuan190/clmm-engine/internal/services/market"
	"github.com/hxuan190/clmm-engine/internal/services/pool"
)

const ROUTER_SERVICE = "router-service"

// MaxHops bounds a pre-ordered route.
const MaxHops = 4

var ErrUnknownPool = errors.New("unknown pool")

// PoolProvider hands out facades by pool address.
type PoolProvider interface {
	Pool(address solana.PublicKey) (*pool.Pool, bool)
}

// Router quotes pre-ordered routes. Every route runs against forks of the registered
// facades, so the registry's pools never see simulated state.
type Router struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	pools              PoolProvider
	defaultSlippageBps uint16
}

func NewRouter(pools PoolProvider, defaultSlippageBps uint16) *Router {
	return &Router{pools: pools, defaultSlippageBps: defaultSlippageBps}
}

func (r *Router) ID() string {
	return ROUTER_SERVICE
}

func (r *Router) Configure(c container.IContainer) error {
	r.logger = services.NewServiceLogger(r)
	engineConfig := c.GetConfig(config.ENGINE_CONFIG_KEY).(*config.EngineConfig)
	r.defaultSlippageBps = engineConfig.DefaultSlippageBps
	r.pools = c.Instance(market.ServiceName).(*market.Service)
	return nil
}

func (r *Router) Start() error {
	return nil
}

func (r *Router) Stop() error {
	return nil
}

// SlippageFromBps converts basis points into a fraction.
func SlippageFromBps(bps uint16) decimal.Decimal {
	return decimal.NewFromInt(int64(bps)).Div(decimal.NewFromInt(10_000))
}

// QuoteRoute chains quotes through req.Hops. Exact input walks forward from the first hop;
// exact output walks backward from the last, or searches for the input by forward replay
// when a pool repeats.
func (r *Router) QuoteRoute(ctx context.Context, req domain.RouteRequest) (*domain.RouteQuote, error) {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = domain.SwapModeExactIn
	}
	q, err := r.quoteRoute(ctx, req, mode)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RouteRequests.WithLabelValues(string(mode), status).Inc()
	if r.logger != nil {
		r.logger.Debug().
			Int("hops", len(req.Hops)).
			Uint64("amount", req.Amount).
			Str("mode", string(mode)).
			Dur("took", time.Since(start)).
			Err(err).
			Msg("[router] route quoted")
	}
	return q, err
}

func (r *Router) quoteRoute(ctx context.Context, req domain.RouteRequest, mode domain.SwapMode) (*domain.RouteQuote, error) {
	if len(req.Hops) == 0 || len(req.Hops) > MaxHops {
		return nil, fmt.Errorf("%w: route must have 1 to %d hops, got %d", common.ErrInvalidArgument, MaxHops, len(req.Hops))
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be non-zero", common.ErrInvalidArgument)
	}

	registered := make(map[solana.PublicKey]*pool.Pool, len(req.Hops))
	outputs := make([]solana.PublicKey, len(req.Hops))
	repeated := false
	for i, hop := range req.Hops {
		p, ok := registered[hop.Pool]
		if ok {
			repeated = true
		} else {
			var found bool
			if p, found = r.pools.Pool(hop.Pool); !found {
				return nil, fmt.Errorf("%w: %w %s", common.ErrInsufficientData, ErrUnknownPool, hop.Pool)
			}
			registered[hop.Pool] = p
		}
		state := p.State()
		if ok, _ := state.HasMint(hop.InputMint); !ok {
			return nil, fmt.Errorf("%w: hop %d input mint %s is not in pool %s", common.ErrInvalidArgument, i, hop.InputMint, hop.Pool)
		}
		outputs[i] = state.OtherMint(hop.InputMint)
		if i > 0 && !hop.InputMint.Equals(outputs[i-1]) {
			return nil, fmt.Errorf("%w: hop %d input %s does not follow hop %d output %s",
				common.ErrInvalidArgument, i, hop.InputMint, i-1, outputs[i-1])
		}
	}

	var (
		hops []domain.Quote
		err  error
	)
	switch {
	case mode == domain.SwapModeExactIn:
		hops, err = quoteForward(ctx, req.Hops, forkAll(registered), req.Amount)
	case repeated:
		hops, err = quoteExactOutReplay(ctx, req.Hops, outputs, registered, req.Amount)
	default:
		hops, err = quoteBackward(ctx, req.Hops, outputs, forkAll(registered), req.Amount)
	}
	if err != nil {
		return nil, err
	}

	first, last := hops[0], hops[len(hops)-1]
	route := &domain.RouteQuote{
		InputMint:  first.InputMint,
		OutputMint: last.OutputMint,
		Mode:       mode,
		AmountIn:   first.AmountIn,
		AmountOut:  last.AmountOut,
		Hops:       hops,
	}
	impacts := make([]uint16, len(hops))
	for i := range hops {
		impacts[i] = hops[i].PriceImpactBps
	}
	route.PriceImpactBps = pool.CombinedPriceImpactBps(impacts...)

	slippageBps := r.defaultSlippageBps
	if req.SlippageBps != nil {
		slippageBps = *req.SlippageBps
	}
	slippage := SlippageFromBps(slippageBps)
	if mode == domain.SwapModeExactIn {
		minOut, err := liquiditymath.ApplySlippage(uint256.NewInt(route.AmountOut), slippage, false)
		if err != nil {
			return nil, err
		}
		route.OtherAmountThreshold = minOut.Uint64()
	} else {
		maxIn, err := liquiditymath.ApplySlippage(uint256.NewInt(route.AmountIn), slippage, true)
		if err != nil {
			return nil, err
		}
		if !maxIn.IsUint64() {
			return nil, fmt.Errorf("%w: maximum input exceeds u64", common.ErrArithmeticBounds)
		}
		route.OtherAmountThreshold = maxIn.Uint64()
	}
	return route, nil
}

// forkAll gives every distinct pool of a route one fork, so a pool used twice sees its own
// earlier hop.
func forkAll(registered map[solana.PublicKey]*pool.Pool) map[solana.PublicKey]*pool.Pool {
	forks := make(map[solana.PublicKey]*pool.Pool, len(registered))
	for address, p := range registered {
		forks[address] = p.Fork()
	}
	return forks
}

var errNoOutput = errors.New("produces no output")

// quoteForward chains exact input quotes in hop order.
func quoteForward(ctx context.Context, route []domain.Hop, forks map[solana.PublicKey]*pool.Pool, amount uint64) ([]domain.Quote, error) {
	hops := make([]domain.Quote, len(route))
	for i, hop := range route {
		q, err := forks[hop.Pool].QuoteOutput(ctx, hop.InputMint, amount, pool.QuoteOutputConfig{})
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if q.AmountOut == 0 {
			return nil, fmt.Errorf("%w: hop %d %w", common.ErrInsufficientData, i, errNoOutput)
		}
		hops[i] = *q
		amount = q.AmountOut
	}
	return hops, nil
}

// quoteBackward chains exact output quotes from the last hop. It is exact only when every
// pool appears once, because hops are quoted in reverse of the order they execute.
func quoteBackward(ctx context.Context, route []domain.Hop, outputs []solana.PublicKey, forks map[solana.PublicKey]*pool.Pool, amount uint64) ([]domain.Quote, error) {
	hops := make([]domain.Quote, len(route))
	for i := len(route) - 1; i >= 0; i-- {
		hop := route[i]
		q, err := forks[hop.Pool].QuoteInput(ctx, outputs[i], amount, pool.QuoteInputConfig{})
		if err != nil {
			return nil, fmt.Errorf("hop %d: %w", i, err)
		}
		if q.AmountOut < amount {
			return nil, fmt.Errorf("%w: hop %d can only deliver %d of %d", common.ErrInsufficientData, i, q.AmountOut, amount)
		}
		hops[i] = *q
		amount = q.AmountIn
	}
	return hops, nil
}

// quoteExactOutReplay prices an exact output route that uses a pool more than once. The
// backward walk only seeds the search: the result is the smallest first-hop input whose
// forward replay, on fresh forks, delivers at least amount.
func quoteExactOutReplay(
	ctx context.Context,
	route []domain.Hop,
	outputs []solana.PublicKey,
	registered map[solana.PublicKey]*pool.Pool,
	amount uint64,
) ([]domain.Quote, error) {
	seed, err := quoteBackward(ctx, route, outputs, forkAll(registered), amount)
	if err != nil {
		return nil, err
	}

	// delivers reports whether amountIn is enough; hops is set when it is.
	delivers := func(amountIn uint64) ([]domain.Quote, bool, error) {
		hops, err := quoteForward(ctx, route, forkAll(registered), amountIn)
		if errors.Is(err, errNoOutput) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return hops, hops[len(hops)-1].AmountOut >= amount, nil
	}

	hi := seed[0].AmountIn
	var best []domain.Quote
	for {
		hops, ok, err := delivers(hi)
		if err != nil {
			return nil, err
		}
		if ok {
			best = hops
			break
		}
		if hi > math.MaxUint64/2 {
			return nil, fmt.Errorf("%w: route cannot deliver %d", common.ErrInsufficientData, amount)
		}
		hi *= 2
	}

	// lo never delivers, hi always does.
	lo := uint64(0)
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		hops, ok, err := delivers(mid)
		if err != nil {
			return nil, err
		}
		if ok {
			hi, best = mid, hops
		} else {
			lo = mid
		}
	}
	return best, nil
}
