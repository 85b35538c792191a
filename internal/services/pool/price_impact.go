package pool

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Price impact thresholds in basis points (bps)
const (
	PriceImpactLow      uint16 = 100  // 1% - Low impact
	PriceImpactModerate uint16 = 300  // 3% - Moderate impact
	PriceImpactHigh     uint16 = 500  // 5% - High impact
	PriceImpactExtreme  uint16 = 1000 // 10% - Extreme impact
)

// PriceImpactSeverity represents the severity level of price impact
type PriceImpactSeverity string

const (
	SeverityNone     PriceImpactSeverity = "none"     // < 1%
	SeverityLow      PriceImpactSeverity = "low"      // 1-3%
	SeverityModerate PriceImpactSeverity = "moderate" // 3-5%
	SeverityHigh     PriceImpactSeverity = "high"     // 5-10%
	SeverityExtreme  PriceImpactSeverity = "extreme"  // > 10%
)

// GetPriceImpactSeverity returns the severity level based on price impact bps
func GetPriceImpactSeverity(priceImpactBps uint16) PriceImpactSeverity {
	switch {
	case priceImpactBps < PriceImpactLow:
		return SeverityNone
	case priceImpactBps < PriceImpactModerate:
		return SeverityLow
	case priceImpactBps < PriceImpactHigh:
		return SeverityModerate
	case priceImpactBps < PriceImpactExtreme:
		return SeverityHigh
	default:
		return SeverityExtreme
	}
}

func GetPriceImpactWarning(priceImpactBps uint16) string {
	switch GetPriceImpactSeverity(priceImpactBps) {
	case SeverityLow:
		return "Low price impact"
	case SeverityModerate:
		return "Moderate price impact - consider reducing trade size"
	case SeverityHigh:
		return "High price impact - you may receive significantly less tokens"
	case SeverityExtreme:
		return "EXTREME price impact - this trade will severely impact the market price"
	default:
		return ""
	}
}

var (
	bpsScale    = decimal.NewFromInt(10_000)
	q128Decimal = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 128), 0)
)

// PriceImpactBps compares the fee-free execution price with the pre-swap spot price:
// impact = 1 - (amountOut / (amountIn - fee)) / spot, where spot is token1 per token0
// for zeroForOne and its inverse otherwise.
func PriceImpactBps(amountIn, amountOut, feeAmount uint64, zeroForOne bool, sqrtPriceX64 *uint256.Int) uint16 {
	if amountIn <= feeAmount || amountOut == 0 || sqrtPriceX64 == nil || sqrtPriceX64.IsZero() {
		return 0
	}

	sq := decimal.NewFromBigInt(sqrtPriceX64.ToBig(), 0)
	spot := sq.Mul(sq).DivRound(q128Decimal, 40)
	if !zeroForOne {
		spot = decimal.NewFromInt(1).DivRound(spot, 40)
	}

	effective := decimalFromUint64(amountOut).DivRound(decimalFromUint64(amountIn-feeAmount), 40)
	impact := decimal.NewFromInt(1).Sub(effective.DivRound(spot, 40)).Mul(bpsScale).Round(0)

	switch {
	case impact.IsNegative():
		return 0
	case impact.GreaterThan(bpsScale):
		return 10_000
	default:
		return uint16(impact.IntPart())
	}
}

// CombinedPriceImpactBps composes per-hop impacts: 1 - prod(1 - impact_i).
func CombinedPriceImpactBps(hops ...uint16) uint16 {
	remaining := decimal.NewFromInt(1)
	for _, bps := range hops {
		remaining = remaining.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(bps)).Div(bpsScale)))
	}
	impact := decimal.NewFromInt(1).Sub(remaining).Mul(bpsScale).Round(0)
	if impact.GreaterThan(bpsScale) {
		return 10_000
	}
	return uint16(impact.IntPart())
}

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
