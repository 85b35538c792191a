package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go"
)

const defaultProgramID = "CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK"

type EngineConfig struct {
	ProgramID solana.PublicKey
	// Pools are loaded at start; quotes against any other pool fail with insufficient data.
	Pools []solana.PublicKey

	MaxTickArrayVisits int
	AmountInCeiling    uint64
	DefaultSlippageBps uint16
	ReloadOnQuote      bool

	// AccountCacheSize bounds the raw account LRU shared by every pool.
	AccountCacheSize  int
	AccountCacheTTLMs int
}

func (c *EngineConfig) Key() string {
	return ENGINE_CONFIG_KEY
}

func (c *EngineConfig) Load() error {
	programID, err := solana.PublicKeyFromBase58(common.GetEnvOrDefault("CLMM_PROGRAM_ID", defaultProgramID))
	if err != nil {
		return fmt.Errorf("invalid CLMM_PROGRAM_ID: %w", err)
	}
	c.ProgramID = programID

	c.Pools, err = parsePublicKeys(common.GetEnvOrDefault("POOLS", ""))
	if err != nil {
		return fmt.Errorf("invalid POOLS: %w", err)
	}

	c.MaxTickArrayVisits = common.GetEnvOrDefaultInt("MAX_TICK_ARRAY_VISITS", 10)
	c.AmountInCeiling, err = strconv.ParseUint(common.GetEnvOrDefault("AMOUNT_IN_CEILING", strconv.FormatUint(math.MaxUint64, 10)), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid AMOUNT_IN_CEILING: %w", err)
	}
	bps := common.GetEnvOrDefaultInt("DEFAULT_SLIPPAGE_BPS", 50)
	if bps < 0 || bps > 10_000 {
		return errors.New("DEFAULT_SLIPPAGE_BPS must be within [0, 10000]")
	}
	c.DefaultSlippageBps = uint16(bps)
	c.ReloadOnQuote = common.GetEnvOrDefault("RELOAD_ON_QUOTE", "false") == "true"
	c.AccountCacheSize = common.GetEnvOrDefaultInt("TICK_ARRAY_CACHE_SIZE", 4096)
	c.AccountCacheTTLMs = common.GetEnvOrDefaultInt("ACCOUNT_CACHE_TTL_MS", 2000)
	return c.Validate()
}

func (c *EngineConfig) Validate() error {
	if c.MaxTickArrayVisits <= 0 {
		return errors.New("MAX_TICK_ARRAY_VISITS must be positive")
	}
	if c.AmountInCeiling == 0 {
		return errors.New("AMOUNT_IN_CEILING must be positive")
	}
	if c.AccountCacheSize <= 0 || c.AccountCacheTTLMs < 0 {
		return errors.New("invalid account cache settings")
	}
	return nil
}

func parsePublicKeys(raw string) ([]solana.PublicKey, error) {
	var keys []solana.PublicKey
	seen := make(map[solana.PublicKey]struct{})
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key, err := solana.PublicKeyFromBase58(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}
