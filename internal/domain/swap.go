package domain

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

type SwapMode string

const (
	SwapModeExactIn  SwapMode = "ExactIn"
	SwapModeExactOut SwapMode = "ExactOut"
)

// ParseSwapMode accepts the API spelling case-insensitively.
func ParseSwapMode(s string) (SwapMode, bool) {
	switch strings.ToLower(s) {
	case "exactin", "":
		return SwapModeExactIn, true
	case "exactout":
		return SwapModeExactOut, true
	default:
		return "", false
	}
}

// Hop is one leg of a pre-ordered route: the pool to trade against and the mint sent into it.
type Hop struct {
	Pool      solana.PublicKey
	InputMint solana.PublicKey
}

type RouteRequest struct {
	Hops   []Hop
	Amount uint64
	Mode   SwapMode

	// SlippageBps nil selects the router default; zero makes the threshold exact.
	SlippageBps *uint16
}
