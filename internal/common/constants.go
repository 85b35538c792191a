// Package common contains common constants and variables used across services
package common

import "github.com/gagliardetto/solana-go"

var (
	RaydiumCLMMProgramID = solana.MustPublicKeyFromBase58("CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK")
	TokenProgramID       = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ID          = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	TickArraySeed       = "tick_array"
	PoolSeed            = "pool"
	BitmapExtensionSeed = "pool_tick_array_bitmap_extension"
)
