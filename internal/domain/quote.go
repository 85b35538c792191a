package domain

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

// Quote is the outcome of a single-pool quote. The post-swap fields describe the simulated
// state the facade now holds; they are not authoritative.
type Quote struct {
	Pool       solana.PublicKey
	InputMint  solana.PublicKey
	OutputMint solana.PublicKey
	Mode       SwapMode

	AmountIn  uint64
	AmountOut uint64
	FeeAmount uint64

	// OtherAmountThreshold is the minimum output (ExactIn) or maximum input (ExactOut)
	// after slippage.
	OtherAmountThreshold uint64
	PriceImpactBps       uint16

	SqrtPriceBeforeX64 uint256.Int
	SqrtPriceAfterX64  uint256.Int
	TickBefore         int32
	TickAfter          int32
	LiquidityAfter     uint256.Int

	// TickArrays lists, in visit order and without duplicates, the tick arrays the
	// settlement transaction must carry.
	TickArrays []solana.PublicKey
	Steps      int
}

// RouteQuote chains quotes across a pre-ordered sequence of pools.
type RouteQuote struct {
	InputMint  solana.PublicKey
	OutputMint solana.PublicKey
	Mode       SwapMode
	AmountIn   uint64
	AmountOut  uint64

	OtherAmountThreshold uint64
	PriceImpactBps       uint16

	Hops []Quote
}
