package tickmath

import "github.com/holiman/uint256"

// Domain constants of the Raydium CLMM program. These must match on-chain values bit for bit.
const (
	MinTick = -443636
	MaxTick = 443636

	// TickArraySize is the number of tick slots per tick array account.
	TickArraySize = 60

	// TickArrayBitmapSize is the bias added to a signed tick-array offset to address the
	// pool's embedded 1024-bit bitmap. Offsets [-512, 511] map to bits [0, 1023].
	TickArrayBitmapSize = 512

	FeeRateDenominator = 1_000_000
)

const (
	bitPrecision = 14

	logB2X32 = 59543866431248
)

var (
	MinSqrtPriceX64 = uint256.NewInt(4295048016)
	MaxSqrtPriceX64 = uint256.MustFromDecimal("79226673521066979257578248091")

	logBPErrMarginLowerX64 = uint256.MustFromDecimal("184467440737095516")
	logBPErrMarginUpperX64 = uint256.MustFromDecimal("15793534762490258745")
)
