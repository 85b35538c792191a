package http

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/http/httputil"
	"github.com/hxuan190/clmm-engine/internal/services/market"
	"github.com/hxuan190/clmm-engine/internal/services/pool"
)

// pricePlaces is the number of decimals reported for human-readable prices.
const pricePlaces = 12

type PoolHandler struct {
	markets *market.Service
}

func NewPoolHandler(markets *market.Service) *PoolHandler {
	return &PoolHandler{markets: markets}
}

func (h *PoolHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.listPools)
	pub.GET("/:address", h.getPool)
	admin.POST("/:address/reload", h.reloadPool)
}

func (h *PoolHandler) Root() string {
	return "/pool"
}

// PoolInfo is the summary row returned by the pool list.
type PoolInfo struct {
	Address     string `json:"address"`
	TokenMint0  string `json:"token_mint_0"`
	TokenMint1  string `json:"token_mint_1"`
	TickSpacing uint16 `json:"tick_spacing"`
	FeeRate     uint32 `json:"fee_rate"`
	Ready       bool   `json:"ready"`
}

type PoolListResponse struct {
	Pools []PoolInfo `json:"pools"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
	Pages int        `json:"pages"`
}

func (h *PoolHandler) listPools(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	all := h.markets.Pools()
	total := len(all)

	pages := (total + limit - 1) / limit
	offset := (page - 1) * limit
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}

	pools := make([]PoolInfo, 0, end-offset)
	for _, p := range all[offset:end] {
		state := p.State()
		pools = append(pools, PoolInfo{
			Address:     state.Address.String(),
			TokenMint0:  state.TokenMint0.String(),
			TokenMint1:  state.TokenMint1.String(),
			TickSpacing: state.TickSpacing,
			FeeRate:     state.FeeRate,
			Ready:       market.IsReady(state),
		})
	}

	httputil.HandleSuccess(c, PoolListResponse{
		Pools: pools,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	})
}

// PoolDetailResponse is the full snapshot of one registered pool.
type PoolDetailResponse struct {
	Address     string `json:"address"`
	ProgramID   string `json:"program_id"`
	AmmConfig   string `json:"amm_config"`
	TokenMint0  string `json:"token_mint_0"`
	TokenMint1  string `json:"token_mint_1"`
	TokenVault0 string `json:"token_vault_0"`
	TokenVault1 string `json:"token_vault_1"`

	MintDecimals0 uint8  `json:"mint_decimals_0"`
	MintDecimals1 uint8  `json:"mint_decimals_1"`
	TickSpacing   uint16 `json:"tick_spacing"`

	// FeeRate is in hundredths of a bip
	FeeRate uint32 `json:"fee_rate"`

	Liquidity    string `json:"liquidity"`
	SqrtPriceX64 string `json:"sqrt_price_x64"`
	TickCurrent  int32  `json:"tick_current"`

	// Price is token1 per token0, adjusted for mint decimals
	Price string `json:"price"`

	SwapEnabled      bool   `json:"swap_enabled"`
	Ready            bool   `json:"ready"`
	CachedTickArrays int    `json:"cached_tick_arrays"`
	LastUpdatedSlot  uint64 `json:"last_updated_slot"`
}

func newPoolDetail(p *pool.Pool) PoolDetailResponse {
	state := p.State()
	return PoolDetailResponse{
		Address:          state.Address.String(),
		ProgramID:        state.ProgramID.String(),
		AmmConfig:        state.AmmConfig.String(),
		TokenMint0:       state.TokenMint0.String(),
		TokenMint1:       state.TokenMint1.String(),
		TokenVault0:      state.TokenVault0.String(),
		TokenVault1:      state.TokenVault1.String(),
		MintDecimals0:    state.MintDecimals0,
		MintDecimals1:    state.MintDecimals1,
		TickSpacing:      state.TickSpacing,
		FeeRate:          state.FeeRate,
		Liquidity:        state.Liquidity.Dec(),
		SqrtPriceX64:     state.SqrtPriceX64.Dec(),
		TickCurrent:      state.TickCurrent,
		Price:            tickmath.PriceFromSqrtPriceX64(&state.SqrtPriceX64, state.MintDecimals0, state.MintDecimals1, pricePlaces).String(),
		SwapEnabled:      state.SwapEnabled(),
		Ready:            market.IsReady(state),
		CachedTickArrays: p.Cache().Len(),
		LastUpdatedSlot:  state.LastUpdatedSlot,
	}
}

func (h *PoolHandler) getPool(c *gin.Context) {
	address, ok := parsePoolParam(c)
	if !ok {
		return
	}
	p, found := h.markets.Pool(address)
	if !found {
		httputil.HandleNotFound(c, "pool not found")
		return
	}
	httputil.HandleSuccess(c, newPoolDetail(p))
}

func (h *PoolHandler) reloadPool(c *gin.Context) {
	address, ok := parsePoolParam(c)
	if !ok {
		return
	}
	p, err := h.markets.ReloadPool(c.Request.Context(), address)
	if err != nil {
		httputil.HandleEngineError(c, err)
		return
	}
	httputil.HandleSuccess(c, newPoolDetail(p))
}

func parsePoolParam(c *gin.Context) (solana.PublicKey, bool) {
	address, err := solana.PublicKeyFromBase58(c.Param("address"))
	if err != nil {
		httputil.HandleBadRequest(c, "invalid pool address")
		return solana.PublicKey{}, false
	}
	return address, true
}
