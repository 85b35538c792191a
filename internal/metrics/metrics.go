package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pool metrics
	PoolCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clmm_pool_count",
		Help: "Total number of pools held by the registry",
	})

	PoolReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clmm_pool_reloads_total",
			Help: "Total number of pool state reloads",
		},
		[]string{"status"},
	)

	// Quote metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clmm_quote_requests_total",
			Help: "Total number of quote requests",
		},
		[]string{"mode", "status"},
	)

	QuoteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clmm_quote_duration_seconds",
			Help:    "Quote computation duration in seconds",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"mode"},
	)

	SwapSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clmm_swap_steps",
		Help:    "Number of swap steps per quote",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
	})

	PriceImpact = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clmm_price_impact_bps",
		Help:    "Price impact in basis points",
		Buckets: []float64{0, 10, 50, 100, 300, 500, 1000, 5000, 10000},
	})

	RouteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clmm_route_requests_total",
			Help: "Total number of pre-ordered route quotes",
		},
		[]string{"mode", "status"},
	)

	// Tick array metrics
	TickArrayFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clmm_tick_array_fetches_total",
			Help: "Total number of tick array account fetches",
		},
		[]string{"status"},
	)

	TickArrayCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clmm_tick_array_cache_hits_total",
		Help: "Total number of tick array lookups served from a pool cache",
	})

	TickArrayCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clmm_tick_array_cache_misses_total",
		Help: "Total number of tick array lookups that required a fetch",
	})

	// Account cache metrics
	AccountCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clmm_account_cache_size",
		Help: "Current number of entries in the account cache",
	})

	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clmm_rpc_requests_total",
			Help: "Total number of RPC requests",
		},
		[]string{"method", "status"},
	)

	// Persistence metrics
	SnapshotDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clmm_snapshot_duration_seconds",
		Help: "Duration of the last snapshot flush",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clmm_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clmm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
