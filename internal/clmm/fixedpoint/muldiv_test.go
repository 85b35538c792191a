package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/clmm-engine/internal/common"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestMulDivRounding(t *testing.T) {
	tests := []struct {
		name      string
		a, b, d   uint64
		floor     uint64
		ceil      uint64
		roundedUp uint64
	}{
		{"2*2/3", 2, 2, 3, 1, 2, 2},
		{"2*5/3", 2, 5, 3, 3, 4, 4},
		{"exact", 6, 5, 3, 10, 10, 10},
		{"zero numerator", 0, 7, 3, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floor, err := MulDivFloor(u(tt.a), u(tt.b), u(tt.d))
			require.NoError(t, err)
			assert.Equal(t, tt.floor, floor.Uint64())

			ceil, err := MulDivCeil(u(tt.a), u(tt.b), u(tt.d))
			require.NoError(t, err)
			assert.Equal(t, tt.ceil, ceil.Uint64())

			up, err := MulDivRoundingUp(u(tt.a), u(tt.b), u(tt.d))
			require.NoError(t, err)
			assert.Equal(t, tt.roundedUp, up.Uint64())
		})
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	_, err := MulDivFloor(u(1), u(1), u(0))
	assert.ErrorIs(t, err, common.ErrArithmeticBounds)

	_, err = MulDivCeil(u(1), u(1), u(0))
	assert.ErrorIs(t, err, common.ErrArithmeticBounds)

	_, err = MulDivRoundingUp(u(1), u(1), u(0))
	assert.ErrorIs(t, err, common.ErrArithmeticBounds)
}

func TestMulDivWideIntermediate(t *testing.T) {
	// (2^200 * 2^100) / 2^120 = 2^180; the product alone needs 300 bits.
	a := new(uint256.Int).Lsh(u(1), 200)
	b := new(uint256.Int).Lsh(u(1), 100)
	d := new(uint256.Int).Lsh(u(1), 120)

	got, err := MulDivFloor(a, b, d)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Lsh(u(1), 180), got)

	_, err = MulDivFloor(a, b, u(1))
	assert.ErrorIs(t, err, common.ErrArithmeticBounds)
}

func TestCheckedSub(t *testing.T) {
	got, err := CheckedSub(u(10), u(3), "amount")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Uint64())

	_, err = CheckedSub(u(3), u(10), "amount")
	assert.ErrorIs(t, err, common.ErrArithmeticBounds)
}

func TestDecimalX64Conversion(t *testing.T) {
	x, err := DecimalToX64(decimal.NewFromFloat(1.5))
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Add(Q64, new(uint256.Int).Rsh(Q64, 1)), x)

	assert.Equal(t, "1.5", X64ToDecimal(x, 8).String())

	_, err = DecimalToX64(decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, common.ErrInvalidArgument)
}

func BenchmarkMulDivCeil(b *testing.B) {
	x := new(uint256.Int).Lsh(u(1_000_000_000), 64)
	y := uint256.MustFromDecimal("79226673521066979257578248091")
	d := uint256.MustFromDecimal("4295048016")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = MulDivCeil(x, y, d)
	}
}
