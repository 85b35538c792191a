package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go/rpc"
)

type RPCConfig struct {
	RPCUrl     string
	Commitment rpc.CommitmentType
	Timeout    time.Duration
	// Retries is the number of extra attempts after a failed account fetch.
	Retries int
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = common.GetEnvOrDefault("RPC_URL", "")
	r.Commitment = rpc.CommitmentType(common.GetEnvOrDefault("RPC_COMMITMENT", string(rpc.CommitmentConfirmed)))
	r.Timeout = time.Duration(common.GetEnvOrDefaultInt("RPC_TIMEOUT_MS", 5000)) * time.Millisecond
	r.Retries = common.GetEnvOrDefaultInt("RPC_RETRIES", 3)
	return nil
}

// Validate is called by the blockchain adapter only when it is about to dial; offline runs
// need no RPC endpoint.
func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config: RPC_URL is required")
	}
	switch r.Commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return errors.New("invalid rpc config: unknown commitment " + string(r.Commitment))
	}
	if r.Timeout <= 0 || r.Retries < 0 {
		return errors.New("invalid rpc config: timeout and retries must be positive")
	}
	return nil
}
