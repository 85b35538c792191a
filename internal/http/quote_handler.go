package http

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/clmm-engine/internal/domain"
	"github.com/hxuan190/clmm-engine/internal/http/httputil"
	"github.com/hxuan190/clmm-engine/internal/services/market"
	"github.com/hxuan190/clmm-engine/internal/services/pool"
	"github.com/hxuan190/clmm-engine/internal/services/router"
)

const maxSlippageBps = 10_000

type QuoteHandler struct {
	markets            *market.Service
	routes             *router.Router
	defaultSlippageBps uint16
}

func NewQuoteHandler(markets *market.Service, routes *router.Router, defaultSlippageBps uint16) *QuoteHandler {
	return &QuoteHandler{markets: markets, routes: routes, defaultSlippageBps: defaultSlippageBps}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getQuote)
	pub.POST("/route", h.postRoute)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest is the query of a single-pool quote. SlippageBps is read separately so that
// an explicit zero can be told apart from an absent parameter.
type QuoteRequest struct {
	Pool      string `form:"pool" binding:"required"`
	InputMint string `form:"inputMint" binding:"required"`
	Amount    string `form:"amount" binding:"required"`
	SwapMode  string `form:"swapMode"`
}

// QuoteResponse describes one pool hop.
type QuoteResponse struct {
	Pool       string `json:"pool"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	SwapMode   string `json:"swapMode"`

	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
	FeeAmount string `json:"feeAmount"`

	// Minimum output (ExactIn) or maximum input (ExactOut) after slippage
	OtherAmountThreshold string `json:"otherAmountThreshold,omitempty"`

	PriceImpactBps      uint16 `json:"priceImpactBps"`
	PriceImpactSeverity string `json:"priceImpactSeverity"`
	PriceImpactWarning  string `json:"priceImpactWarning,omitempty"`

	TickBefore     int32    `json:"tickBefore"`
	TickAfter      int32    `json:"tickAfter"`
	SqrtPriceAfter string   `json:"sqrtPriceAfterX64"`
	TickArrays     []string `json:"tickArrays"`
	Steps          int      `json:"steps"`
}

type RouteHopRequest struct {
	Pool      string `json:"pool" binding:"required"`
	InputMint string `json:"inputMint" binding:"required"`
}

type RouteRequest struct {
	Hops        []RouteHopRequest `json:"hops" binding:"required"`
	Amount      string            `json:"amount" binding:"required"`
	SwapMode    string            `json:"swapMode"`
	SlippageBps *uint16           `json:"slippageBps"`
}

type RouteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	SwapMode   string `json:"swapMode"`
	AmountIn   string `json:"amountIn"`
	AmountOut  string `json:"amountOut"`

	OtherAmountThreshold string `json:"otherAmountThreshold"`

	PriceImpactBps      uint16 `json:"priceImpactBps"`
	PriceImpactSeverity string `json:"priceImpactSeverity"`
	PriceImpactWarning  string `json:"priceImpactWarning,omitempty"`

	Hops     []QuoteResponse `json:"hops"`
	HopCount int             `json:"hopCount"`
}

func newQuoteResponse(q *domain.Quote, withThreshold bool) QuoteResponse {
	arrays := make([]string, len(q.TickArrays))
	for i, a := range q.TickArrays {
		arrays[i] = a.String()
	}
	resp := QuoteResponse{
		Pool:                q.Pool.String(),
		InputMint:           q.InputMint.String(),
		OutputMint:          q.OutputMint.String(),
		SwapMode:            string(q.Mode),
		AmountIn:            strconv.FormatUint(q.AmountIn, 10),
		AmountOut:           strconv.FormatUint(q.AmountOut, 10),
		FeeAmount:           strconv.FormatUint(q.FeeAmount, 10),
		PriceImpactBps:      q.PriceImpactBps,
		PriceImpactSeverity: string(pool.GetPriceImpactSeverity(q.PriceImpactBps)),
		PriceImpactWarning:  pool.GetPriceImpactWarning(q.PriceImpactBps),
		TickBefore:          q.TickBefore,
		TickAfter:           q.TickAfter,
		SqrtPriceAfter:      q.SqrtPriceAfterX64.Dec(),
		TickArrays:          arrays,
		Steps:               q.Steps,
	}
	if withThreshold {
		resp.OtherAmountThreshold = strconv.FormatUint(q.OtherAmountThreshold, 10)
	}
	return resp
}

func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(s, 10, 64)
	if err != nil || amount == 0 {
		return 0, errors.New("invalid amount: must be a positive integer below 2^64")
	}
	return amount, nil
}

// slippageBps returns the default when the parameter is absent.
func (h *QuoteHandler) slippageBps(c *gin.Context) (uint16, error) {
	raw, ok := c.GetQuery("slippageBps")
	if !ok {
		return h.defaultSlippageBps, nil
	}
	bps, err := strconv.ParseUint(raw, 10, 16)
	if err != nil || bps > maxSlippageBps {
		return 0, fmt.Errorf("invalid slippageBps: must be between 0 and %d", maxSlippageBps)
	}
	return uint16(bps), nil
}

func (h *QuoteHandler) getQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	poolAddress, err := solana.PublicKeyFromBase58(req.Pool)
	if err != nil {
		httputil.HandleBadRequest(c, "invalid pool address")
		return
	}
	inputMint, err := solana.PublicKeyFromBase58(req.InputMint)
	if err != nil {
		httputil.HandleBadRequest(c, "invalid inputMint address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	mode, ok := domain.ParseSwapMode(req.SwapMode)
	if !ok {
		httputil.HandleBadRequest(c, "invalid swapMode: must be ExactIn or ExactOut")
		return
	}
	bps, err := h.slippageBps(c)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}

	registered, found := h.markets.Pool(poolAddress)
	if !found {
		httputil.HandleNotFound(c, "pool not found")
		return
	}
	// Quotes move the facade's price; the registered instance must stay untouched.
	p := registered.Fork()
	slippage := router.SlippageFromBps(bps)

	var q *domain.Quote
	if mode == domain.SwapModeExactIn {
		q, err = p.QuoteOutput(c.Request.Context(), inputMint, amount, pool.QuoteOutputConfig{Slippage: &slippage})
	} else {
		state := p.State()
		if ok, _ := state.HasMint(inputMint); !ok {
			httputil.HandleBadRequest(c, "inputMint is not one of the pool's tokens")
			return
		}
		q, err = p.QuoteInput(c.Request.Context(), state.OtherMint(inputMint), amount, pool.QuoteInputConfig{Slippage: &slippage})
	}
	if err != nil {
		httputil.HandleEngineError(c, err)
		return
	}

	httputil.HandleSuccess(c, newQuoteResponse(q, true))
}

func (h *QuoteHandler) postRoute(c *gin.Context) {
	var body RouteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		httputil.HandleBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	amount, err := parseAmount(body.Amount)
	if err != nil {
		httputil.HandleBadRequest(c, err.Error())
		return
	}
	mode, ok := domain.ParseSwapMode(body.SwapMode)
	if !ok {
		httputil.HandleBadRequest(c, "invalid swapMode: must be ExactIn or ExactOut")
		return
	}

	if body.SlippageBps != nil && *body.SlippageBps > maxSlippageBps {
		httputil.HandleBadRequest(c, fmt.Sprintf("invalid slippageBps: must be between 0 and %d", maxSlippageBps))
		return
	}
	req := domain.RouteRequest{
		Hops:        make([]domain.Hop, len(body.Hops)),
		Amount:      amount,
		Mode:        mode,
		SlippageBps: body.SlippageBps,
	}
	for i, hop := range body.Hops {
		poolAddress, err := solana.PublicKeyFromBase58(hop.Pool)
		if err != nil {
			httputil.HandleBadRequest(c, fmt.Sprintf("hop %d: invalid pool address", i))
			return
		}
		inputMint, err := solana.PublicKeyFromBase58(hop.InputMint)
		if err != nil {
			httputil.HandleBadRequest(c, fmt.Sprintf("hop %d: invalid inputMint address", i))
			return
		}
		req.Hops[i] = domain.Hop{Pool: poolAddress, InputMint: inputMint}
	}

	route, err := h.routes.QuoteRoute(c.Request.Context(), req)
	if err != nil {
		httputil.HandleEngineError(c, err)
		return
	}

	hops := make([]QuoteResponse, len(route.Hops))
	for i := range route.Hops {
		hops[i] = newQuoteResponse(&route.Hops[i], false)
	}
	httputil.HandleSuccess(c, RouteResponse{
		InputMint:            route.InputMint.String(),
		OutputMint:           route.OutputMint.String(),
		SwapMode:             string(route.Mode),
		AmountIn:             strconv.FormatUint(route.AmountIn, 10),
		AmountOut:            strconv.FormatUint(route.AmountOut, 10),
		OtherAmountThreshold: strconv.FormatUint(route.OtherAmountThreshold, 10),
		PriceImpactBps:       route.PriceImpactBps,
		PriceImpactSeverity:  string(pool.GetPriceImpactSeverity(route.PriceImpactBps)),
		PriceImpactWarning:   pool.GetPriceImpactWarning(route.PriceImpactBps),
		Hops:                 hops,
		HopCount:             len(hops),
	})
}
