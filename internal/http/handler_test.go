package http

import (
	"bytes"
	"context"
	"fmt"
	gohttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/clmm-engine/internal/clmm/fixedpoint"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickarray"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/config"
	"github.com/hxuan190/clmm-engine/internal/domain"
	"github.com/hxuan190/clmm-engine/internal/services/market"
	"github.com/hxuan190/clmm-engine/internal/services/router"
)

var (
	testPool  = solana.MustPublicKeyFromBase58("3ucNos4NbumPLZNWztqGHNFFgkHeRMBQAVemeeomsUxv")
	testMint0 = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testMint1 = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	otherMint = solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32))
)

// fakeChain serves a single pool at tick 0 with liquidity 1e6 over [-6000, 6000).
type fakeChain struct {
	state  *domain.PoolState
	arrays map[solana.PublicKey]*domain.TickArray
	loads  int
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	state := &domain.PoolState{
		Address:       testPool,
		ProgramID:     common.RaydiumCLMMProgramID,
		TokenMint0:    testMint0,
		TokenMint1:    testMint1,
		MintDecimals0: 6,
		MintDecimals1: 6,
		TickSpacing:   10,
		FeeRate:       2500,
	}
	state.Liquidity.SetUint64(1_000_000)
	state.SqrtPriceX64.Set(fixedpoint.Q64)

	c := &fakeChain{state: state, arrays: map[solana.PublicKey]*domain.TickArray{}}
	add := func(start int32, net *uint256.Int) {
		require.NoError(t, tickarray.MarkInitialized(&state.TickArrayBitmap, start, 10, true))
		address, err := tickarray.Address(common.RaydiumCLMMProgramID, testPool, start)
		require.NoError(t, err)
		ta := &domain.TickArray{Address: address, PoolID: testPool, StartTickIndex: start, InitializedTickCount: 1}
		ta.Ticks[0].LiquidityNet = *net
		ta.Ticks[0].LiquidityGross.SetUint64(1_000_000)
		c.arrays[address] = ta
	}
	add(-6000, uint256.NewInt(1_000_000))
	add(6000, new(uint256.Int).Neg(uint256.NewInt(1_000_000)))
	return c
}

func (c *fakeChain) LoadPool(_ context.Context, address solana.PublicKey) (*domain.PoolState, error) {
	if !address.Equals(c.state.Address) {
		return nil, fmt.Errorf("%w: pool %s", common.ErrInsufficientData, address)
	}
	c.loads++
	return c.state.Clone(), nil
}

func (c *fakeChain) FetchTickArray(_ context.Context, address solana.PublicKey) (*domain.TickArray, error) {
	ta, ok := c.arrays[address]
	if !ok {
		return nil, nil
	}
	cp := *ta
	return &cp, nil
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func newTestEngine(t *testing.T) (*gin.Engine, *market.Service, *fakeChain) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	chain := newFakeChain(t)
	markets := market.NewService(chain, nil, market.Options{Pools: []solana.PublicKey{testPool}})
	require.NoError(t, markets.Start())
	t.Cleanup(func() { _ = markets.Stop() })

	svc := NewHTTPService(&config.GeneralConfig{}, markets, router.NewRouter(markets, 50), 50)
	return svc.Engine(), markets, chain
}

func doRequest[T any](t *testing.T, engine *gin.Engine, method, target string, body []byte) (int, envelope[T]) {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	var out envelope[T]
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func quoteURL(pool, inputMint solana.PublicKey, amount string, extra string) string {
	return fmt.Sprintf("/api/v1/quote?pool=%s&inputMint=%s&amount=%s%s", pool, inputMint, amount, extra)
}

func TestGetQuoteExactIn(t *testing.T) {
	engine, markets, _ := newTestEngine(t)

	status, resp := doRequest[QuoteResponse](t, engine, gohttp.MethodGet, quoteURL(testPool, testMint0, "100000", ""), nil)
	require.Equal(t, gohttp.StatusOK, status, resp.Error)
	assert.True(t, resp.Success)
	assert.Equal(t, "100000", resp.Data.AmountIn)
	assert.Equal(t, "90702", resp.Data.AmountOut)
	assert.Equal(t, "90248", resp.Data.OtherAmountThreshold, "default 50 bps")
	assert.Equal(t, testMint1.String(), resp.Data.OutputMint)
	assert.Equal(t, int32(0), resp.Data.TickBefore)
	assert.Equal(t, int32(-1902), resp.Data.TickAfter)
	assert.NotEmpty(t, resp.Data.TickArrays)

	p, ok := markets.Pool(testPool)
	require.True(t, ok)
	assert.Equal(t, int32(0), p.State().TickCurrent, "registered pool is not moved by a quote")
}

func TestGetQuoteSlippageParam(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	status, resp := doRequest[QuoteResponse](t, engine, gohttp.MethodGet, quoteURL(testPool, testMint0, "100000", "&slippageBps=0"), nil)
	require.Equal(t, gohttp.StatusOK, status, resp.Error)
	assert.Equal(t, "90702", resp.Data.OtherAmountThreshold)

	status, resp = doRequest[QuoteResponse](t, engine, gohttp.MethodGet, quoteURL(testPool, testMint0, "100000", "&slippageBps=100"), nil)
	require.Equal(t, gohttp.StatusOK, status, resp.Error)
	assert.Equal(t, "89794", resp.Data.OtherAmountThreshold)

	status, _ = doRequest[QuoteResponse](t, engine, gohttp.MethodGet, quoteURL(testPool, testMint0, "100000", "&slippageBps=10001"), nil)
	assert.Equal(t, gohttp.StatusBadRequest, status)
}

func TestGetQuoteExactOut(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	status, resp := doRequest[QuoteResponse](t, engine, gohttp.MethodGet,
		quoteURL(testPool, testMint0, "90702", "&swapMode=ExactOut&slippageBps=0"), nil)
	require.Equal(t, gohttp.StatusOK, status, resp.Error)
	assert.Equal(t, "90702", resp.Data.AmountOut)
	assert.Equal(t, testMint0.String(), resp.Data.InputMint)

	assert.Equal(t, "100000", resp.Data.AmountIn)
	assert.Equal(t, "100000", resp.Data.OtherAmountThreshold)
	assert.Equal(t, int32(-1902), resp.Data.TickAfter)
}

func TestGetQuoteErrors(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	unknown := solana.PublicKeyFromBytes(bytes.Repeat([]byte{9}, 32))

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown pool", quoteURL(unknown, testMint0, "100", ""), gohttp.StatusNotFound},
		{"foreign mint exact in", quoteURL(testPool, otherMint, "100", ""), gohttp.StatusBadRequest},
		{"foreign mint exact out", quoteURL(testPool, otherMint, "100", "&swapMode=ExactOut"), gohttp.StatusBadRequest},
		{"zero amount", quoteURL(testPool, testMint0, "0", ""), gohttp.StatusBadRequest},
		{"bad amount", quoteURL(testPool, testMint0, "1.5", ""), gohttp.StatusBadRequest},
		{"bad mode", quoteURL(testPool, testMint0, "100", "&swapMode=Both"), gohttp.StatusBadRequest},
		{"bad pool", "/api/v1/quote?pool=nope&inputMint=" + testMint0.String() + "&amount=1", gohttp.StatusBadRequest},
		{"missing amount", "/api/v1/quote?pool=" + testPool.String() + "&inputMint=" + testMint0.String(), gohttp.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := doRequest[QuoteResponse](t, engine, gohttp.MethodGet, tt.target, nil)
			assert.Equal(t, tt.status, status)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestPostRoute(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	single := fmt.Sprintf(`{"hops":[{"pool":"%s","inputMint":"%s"}],"amount":"100000"}`, testPool, testMint0)
	status, resp := doRequest[RouteResponse](t, engine, gohttp.MethodPost, "/api/v1/quote/route", []byte(single))
	require.Equal(t, gohttp.StatusOK, status, resp.Error)
	assert.Equal(t, "90702", resp.Data.AmountOut)
	assert.Equal(t, "90248", resp.Data.OtherAmountThreshold)
	assert.Equal(t, 1, resp.Data.HopCount)

	roundTrip := fmt.Sprintf(`{"hops":[{"pool":"%[1]s","inputMint":"%[2]s"},{"pool":"%[1]s","inputMint":"%[3]s"}],"amount":"100000"}`,
		testPool, testMint0, testMint1)
	status, resp = doRequest[RouteResponse](t, engine, gohttp.MethodPost, "/api/v1/quote/route", []byte(roundTrip))
	require.Equal(t, gohttp.StatusOK, status, resp.Error)
	assert.Equal(t, 2, resp.Data.HopCount)
	assert.Equal(t, testMint0.String(), resp.Data.OutputMint)

	assert.Equal(t, "99522", resp.Data.AmountOut, "fees are paid on both hops")

	exact := fmt.Sprintf(`{"hops":[{"pool":"%s","inputMint":"%s"}],"amount":"100000","slippageBps":0}`, testPool, testMint0)
	status, resp = doRequest[RouteResponse](t, engine, gohttp.MethodPost, "/api/v1/quote/route", []byte(exact))
	require.Equal(t, gohttp.StatusOK, status, resp.Error)
	assert.Equal(t, "90702", resp.Data.OtherAmountThreshold, "explicit zero slippage is exact")

	tooWide := fmt.Sprintf(`{"hops":[{"pool":"%s","inputMint":"%s"}],"amount":"100000","slippageBps":10001}`, testPool, testMint0)
	status, _ = doRequest[RouteResponse](t, engine, gohttp.MethodPost, "/api/v1/quote/route", []byte(tooWide))
	assert.Equal(t, gohttp.StatusBadRequest, status)

	broken := fmt.Sprintf(`{"hops":[{"pool":"%[1]s","inputMint":"%[2]s"},{"pool":"%[1]s","inputMint":"%[2]s"}],"amount":"100"}`,
		testPool, testMint0)
	status, _ = doRequest[RouteResponse](t, engine, gohttp.MethodPost, "/api/v1/quote/route", []byte(broken))
	assert.Equal(t, gohttp.StatusBadRequest, status)

	status, _ = doRequest[RouteResponse](t, engine, gohttp.MethodPost, "/api/v1/quote/route", []byte(`{"amount":"1"}`))
	assert.Equal(t, gohttp.StatusBadRequest, status)
}

func TestPoolEndpoints(t *testing.T) {
	engine, _, chain := newTestEngine(t)

	status, list := doRequest[PoolListResponse](t, engine, gohttp.MethodGet, "/api/v1/pool", nil)
	require.Equal(t, gohttp.StatusOK, status)
	require.Len(t, list.Data.Pools, 1)
	assert.Equal(t, testPool.String(), list.Data.Pools[0].Address)
	assert.True(t, list.Data.Pools[0].Ready)

	status, detail := doRequest[PoolDetailResponse](t, engine, gohttp.MethodGet, "/api/v1/pool/"+testPool.String(), nil)
	require.Equal(t, gohttp.StatusOK, status)
	assert.Equal(t, "1000000", detail.Data.Liquidity)
	assert.Equal(t, int32(0), detail.Data.TickCurrent)
	assert.Equal(t, uint32(2500), detail.Data.FeeRate)
	assert.Equal(t, 2, detail.Data.CachedTickArrays)
	assert.True(t, detail.Data.SwapEnabled)

	status, _ = doRequest[PoolDetailResponse](t, engine, gohttp.MethodGet, "/api/v1/pool/"+otherMint.String(), nil)
	assert.Equal(t, gohttp.StatusNotFound, status)

	loads := chain.loads
	status, detail = doRequest[PoolDetailResponse](t, engine, gohttp.MethodPost, "/api/v1/admin/pool/"+testPool.String()+"/reload", nil)
	require.Equal(t, gohttp.StatusOK, status)
	assert.Equal(t, loads+1, chain.loads)
	assert.Equal(t, int32(0), detail.Data.TickCurrent)

	status, _ = doRequest[PoolDetailResponse](t, engine, gohttp.MethodPost, "/api/v1/admin/pool/"+otherMint.String()+"/reload", nil)
	assert.Equal(t, gohttp.StatusNotFound, status)
}
