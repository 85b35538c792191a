package market

import (
	"github.com/hxuan190/clmm-engine/internal/domain"
)

// IsReady reports whether a pool snapshot can produce a non-trivial quote: swaps are
// enabled, there is active liquidity and at least one tick array is marked.
func IsReady(state *domain.PoolState) bool {
	if state == nil || !state.SwapEnabled() || state.Liquidity.IsZero() {
		return false
	}
	for _, word := range state.TickArrayBitmap {
		if word != 0 {
			return true
		}
	}
	return false
}
