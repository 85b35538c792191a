package blockchain

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/clmm-engine/internal/config"
	"github.com/hxuan190/clmm-engine/internal/services"
)

const BLOCKCHAIN_SERVICE = "blockchain-service"

// Service exposes the RPC account source to the rest of the container. In offline mode it
// is configured without a client and Source returns nil.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	source *AccountSource
}

func (svc *Service) ID() string {
	return BLOCKCHAIN_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	svc.logger = services.NewServiceLogger(svc)
	snapshotConfig := c.GetConfig(config.SNAPSHOT_CONFIG_KEY).(*config.SnapshotConfig)
	if snapshotConfig.Offline {
		svc.logger.Info().Msg("[rpcSource] offline mode, RPC disabled")
		return nil
	}

	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	if err := rpcConfig.Validate(); err != nil {
		return err
	}
	engineConfig := c.GetConfig(config.ENGINE_CONFIG_KEY).(*config.EngineConfig)

	svc.source = NewAccountSource(rpc.New(rpcConfig.RPCUrl), SourceConfig{
		ProgramID:  engineConfig.ProgramID,
		Commitment: rpcConfig.Commitment,
		Timeout:    rpcConfig.Timeout,
		Retries:    rpcConfig.Retries,
		CacheSize:  engineConfig.AccountCacheSize,
		CacheTTL:   time.Duration(engineConfig.AccountCacheTTLMs) * time.Millisecond,
	})
	svc.logger.Info().
		Str("commitment", string(rpcConfig.Commitment)).
		Int("retries", rpcConfig.Retries).
		Msg("[rpcSource] configured")
	return nil
}

func (svc *Service) Start() error {
	return nil
}

func (svc *Service) Stop() error {
	return nil
}

// Source returns nil in offline mode.
func (svc *Service) Source() *AccountSource {
	return svc.source
}
