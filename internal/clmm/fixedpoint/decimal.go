package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/clmm-engine/internal/common"
)

var q64Decimal = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), Resolution), 0)

// X64ToDecimal converts a Q64.64 value to a decimal rounded to places fractional digits.
// Lossy; for display and integration boundaries only.
func X64ToDecimal(x *uint256.Int, places int32) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x.ToBig(), 0).DivRound(q64Decimal, places)
}

// DecimalToX64 converts a non-negative decimal into Q64.64, truncating extra precision.
func DecimalToX64(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative value %s", common.ErrInvalidArgument, d.String())
	}
	v := d.Mul(q64Decimal).Floor().BigInt()
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s does not fit in Q64.64", common.ErrArithmeticBounds, d.String())
	}
	return out, nil
}
