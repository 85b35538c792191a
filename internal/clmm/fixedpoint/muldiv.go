// Package fixedpoint implements the 256-bit mul-div primitives and Q64.64 conversions
// shared by the CLMM math packages. Intermediate products are carried at 512 bits.
package fixedpoint

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"github.com/hxuan190/clmm-engine/internal/common"
)

// Resolution is the number of fractional bits in a Q64.64 value.
const Resolution = 64

// Shared read-only constants. Never pass them as the receiver of a mutating call.
var (
	Zero    = uint256.NewInt(0)
	One     = uint256.NewInt(1)
	Q64     = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)
	MaxU64  = uint256.NewInt(math.MaxUint64)
	MaxU128 = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)
)

// MulDivFloor returns floor(a*b/denom).
func MulDivFloor(a, b, denom *uint256.Int) (*uint256.Int, error) {
	if denom.IsZero() {
		return nil, fmt.Errorf("%w: mul-div denominator is zero", common.ErrArithmeticBounds)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, denom)
	if overflow {
		return nil, fmt.Errorf("%w: mul-div result exceeds 256 bits", common.ErrArithmeticBounds)
	}
	return z, nil
}

// MulDivCeil returns ceil(a*b/denom).
func MulDivCeil(a, b, denom *uint256.Int) (*uint256.Int, error) {
	z, err := MulDivFloor(a, b, denom)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, denom).IsZero() {
		return z, nil
	}
	if _, overflow := z.AddOverflow(z, One); overflow {
		return nil, fmt.Errorf("%w: mul-div ceiling exceeds 256 bits", common.ErrArithmeticBounds)
	}
	return z, nil
}

// MulDivRoundingUp is floor(a*b/denom) plus one when the division leaves a remainder.
// It agrees with MulDivCeil for every input and exists for callers that mirror the on-chain naming.
func MulDivRoundingUp(a, b, denom *uint256.Int) (*uint256.Int, error) {
	return MulDivCeil(a, b, denom)
}

// DivCeil returns ceil(a/b).
func DivCeil(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDivCeil(a, One, b)
}

// CheckedSub returns a-b or ErrArithmeticBounds when b > a.
func CheckedSub(a, b *uint256.Int, what string) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("%w: %s underflow", common.ErrArithmeticBounds, what)
	}
	return z, nil
}

// CheckedAdd returns a+b or ErrArithmeticBounds on 256-bit overflow.
func CheckedAdd(a, b *uint256.Int, what string) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("%w: %s overflow", common.ErrArithmeticBounds, what)
	}
	return z, nil
}

// Min returns the smaller of a and b without copying.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}
