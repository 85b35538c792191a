package market

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/clmm-engine/internal/adapters/blockchain"
	"github.com/hxuan190/clmm-engine/internal/adapters/persistence"
	"github.com/hxuan190/clmm-engine/internal/clmm/tickarray"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/config"
	"github.com/hxuan190/clmm-engine/internal/domain"
	"github.com/hxuan190/clmm-engine/internal/metrics"
	"github.com/hxuan190/clmm-engine/internal/services"
	"github.com/hxuan190/clmm-engine/internal/services/pool"
)

const ServiceName = "market-service"

// prefetchArrays is how many initialized tick arrays per side are warmed after a pool loads.
const prefetchArrays = 2

// PoolSource loads live pool state and tick arrays.
type PoolSource interface {
	tickarray.Source
	pool.StateLoader
}

// SnapshotStore persists facades and can serve them back offline.
type SnapshotStore interface {
	PoolSource
	LoadAllPools() ([]*domain.PoolState, error)
	TickArraysForPool(pool solana.PublicKey) ([]*domain.TickArray, error)
	SaveSnapshots(snapshots []persistence.Snapshot) error
	Close() error
}

type Options struct {
	Pool    pool.Config
	Pools   []solana.PublicKey
	Offline bool
	// PersistInterval is the snapshot period; zero disables the background loop.
	PersistInterval time.Duration
}

// Service owns one facade per configured pool. Registry facades only change on reload;
// quotes run on forks.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	chain  *blockchain.Service
	source PoolSource
	store  SnapshotStore
	opts   Options

	pools *ShardedPoolMap

	// persisted tracks the cached tick array count at the last save, per pool.
	persistedMu sync.Mutex
	persisted   map[solana.PublicKey]int
	dirty       map[solana.PublicKey]struct{}

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewService builds a registry outside the container. source or store may be nil.
func NewService(source PoolSource, store SnapshotStore, opts Options) *Service {
	svc := &Service{}
	svc.init(source, store, opts)
	return svc
}

func (svc *Service) init(source PoolSource, store SnapshotStore, opts Options) {
	svc.logger = services.NewServiceLogger(svc)
	svc.source = source
	svc.store = store
	svc.opts = opts
	svc.pools = NewShardedPoolMap()
	svc.persisted = make(map[solana.PublicKey]int)
	svc.dirty = make(map[solana.PublicKey]struct{})
	svc.done = make(chan struct{})
}

func (svc *Service) ID() string {
	return ServiceName
}

func (svc *Service) Configure(c container.IContainer) error {
	engineConfig := c.GetConfig(config.ENGINE_CONFIG_KEY).(*config.EngineConfig)
	snapshotConfig := c.GetConfig(config.SNAPSHOT_CONFIG_KEY).(*config.SnapshotConfig)

	svc.chain = c.Instance(blockchain.BLOCKCHAIN_SERVICE).(*blockchain.Service)

	var store SnapshotStore
	if snapshotConfig.Enabled {
		storage, err := persistence.NewStorage(snapshotConfig.DBPath)
		if err != nil {
			return err
		}
		store = storage
	}

	svc.init(nil, store, Options{
		Pool: pool.Config{
			MaxTickArrayVisits: engineConfig.MaxTickArrayVisits,
			AmountInCeiling:    engineConfig.AmountInCeiling,
			ReloadOnQuote:      engineConfig.ReloadOnQuote,
		},
		Pools:           engineConfig.Pools,
		Offline:         snapshotConfig.Offline,
		PersistInterval: time.Duration(snapshotConfig.Interval) * time.Second,
	})
	return nil
}

func (svc *Service) Start() error {
	// The chain service may configure after this one; its source is only read here.
	if svc.source == nil && svc.chain != nil {
		if src := svc.chain.Source(); src != nil {
			svc.source = src
		}
	}

	ctx := context.Background()
	if svc.opts.Offline {
		if err := svc.loadFromStore(); err != nil {
			return err
		}
	} else {
		for _, address := range svc.opts.Pools {
			if _, err := svc.AddPool(ctx, address); err != nil {
				svc.logger.Error().Err(err).Str("pool", address.String()).Msg("[MarketService] failed to load pool")
			}
		}
	}

	svc.logger.Info().
		Int("pools", svc.pools.Len()).
		Bool("offline", svc.opts.Offline).
		Msg("[MarketService] startup complete")

	if svc.store != nil && !svc.opts.Offline && svc.opts.PersistInterval > 0 {
		svc.wg.Add(1)
		go svc.processPersistence()
	}
	return nil
}

// Stop persists and closes the store. Calls after the first are no-ops.
func (svc *Service) Stop() error {
	svc.stopOnce.Do(svc.shutdown)
	return nil
}

func (svc *Service) shutdown() {
	close(svc.done)
	svc.wg.Wait()

	if svc.store == nil {
		return
	}
	if !svc.opts.Offline && svc.pools.Len() > 0 {
		svc.logger.Info().Int("count", svc.pools.Len()).Msg("[MarketService] persisting all pools before shutdown")
		if err := svc.persist(true); err != nil {
			svc.logger.Error().Err(err).Msg("[MarketService] failed to persist pools on shutdown")
		}
	}
	if err := svc.store.Close(); err != nil {
		svc.logger.Error().Err(err).Msg("[MarketService] failed to close storage")
	}
}

// Pool returns the registered facade for address.
func (svc *Service) Pool(address solana.PublicKey) (*pool.Pool, bool) {
	return svc.pools.Get(address)
}

// Pools returns the registered facades ordered by address.
func (svc *Service) Pools() []*pool.Pool {
	all := svc.pools.GetAll()
	sort.Slice(all, func(i, j int) bool {
		return bytes.Compare(all[i].Address().Bytes(), all[j].Address().Bytes()) < 0
	})
	return all
}

func (svc *Service) PoolCount() int {
	return svc.pools.Len()
}

// AddPool loads a pool from the chain source and registers its facade, replacing any
// previous one. Tick arrays around the current price are warmed best-effort.
func (svc *Service) AddPool(ctx context.Context, address solana.PublicKey) (*pool.Pool, error) {
	if svc.source == nil {
		return nil, fmt.Errorf("%w: no chain source for pool %s", common.ErrInsufficientData, address)
	}
	state, err := svc.source.LoadPool(ctx, address)
	if err != nil {
		return nil, err
	}
	p, err := pool.New(state, svc.source, svc.source, svc.opts.Pool)
	if err != nil {
		return nil, err
	}
	if !IsReady(state) {
		svc.logger.Warn().Str("pool", address.String()).Msg("[MarketService] pool has no quotable liquidity")
	}
	if err := p.Cache().Prefetch(ctx, state.TickCurrent, prefetchArrays); err != nil {
		svc.logger.Warn().Err(err).Str("pool", address.String()).Msg("[MarketService] tick array prefetch failed")
	}

	svc.register(address, p)
	svc.logger.Info().
		Str("pool", address.String()).
		Int32("tick", state.TickCurrent).
		Int("tick_arrays", p.Cache().Len()).
		Msg("[MarketService] pool loaded")
	return p, nil
}

// ReloadPool refreshes a registered facade from its loader.
func (svc *Service) ReloadPool(ctx context.Context, address solana.PublicKey) (*pool.Pool, error) {
	p, ok := svc.pools.Get(address)
	if !ok {
		return nil, fmt.Errorf("%w: pool %s is not registered", common.ErrInsufficientData, address)
	}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	svc.markDirty(address)
	return p, nil
}

func (svc *Service) register(address solana.PublicKey, p *pool.Pool) {
	svc.pools.Set(address, p)
	svc.markDirty(address)
	metrics.PoolCount.Set(float64(svc.pools.Len()))
}

func (svc *Service) markDirty(address solana.PublicKey) {
	svc.persistedMu.Lock()
	svc.dirty[address] = struct{}{}
	svc.persistedMu.Unlock()
}

func (svc *Service) loadFromStore() error {
	if svc.store == nil {
		return fmt.Errorf("%w: offline mode without a snapshot store", common.ErrInsufficientData)
	}
	states, err := svc.store.LoadAllPools()
	if err != nil {
		return err
	}

	wanted := make(map[solana.PublicKey]struct{}, len(svc.opts.Pools))
	for _, address := range svc.opts.Pools {
		wanted[address] = struct{}{}
	}

	for _, state := range states {
		if _, ok := wanted[state.Address]; len(wanted) > 0 && !ok {
			continue
		}
		p, err := pool.New(state, svc.store, svc.store, svc.opts.Pool)
		if err != nil {
			svc.logger.Error().Err(err).Str("pool", state.Address.String()).Msg("[MarketService] invalid stored pool, skipping")
			continue
		}
		arrays, err := svc.store.TickArraysForPool(state.Address)
		if err != nil {
			return err
		}
		for _, ta := range arrays {
			if err := p.Cache().Put(ta); err != nil {
				svc.logger.Warn().Err(err).Str("tick_array", ta.Address.String()).Msg("[MarketService] skipping stored tick array")
			}
		}
		svc.pools.Set(state.Address, p)
	}
	metrics.PoolCount.Set(float64(svc.pools.Len()))
	return nil
}

func (svc *Service) processPersistence() {
	defer svc.wg.Done()
	ticker := time.NewTicker(svc.opts.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-svc.done:
			return
		case <-ticker.C:
			if err := svc.persist(false); err != nil {
				svc.logger.Error().Err(err).Msg("[MarketService] failed to persist pools")
			}
		}
	}
}

// persist saves pools marked dirty or whose tick array cache grew since the last save.
// all forces every pool out.
func (svc *Service) persist(all bool) error {
	start := time.Now()
	var snapshots []persistence.Snapshot
	counts := make(map[solana.PublicKey]int)

	svc.persistedMu.Lock()
	svc.pools.Range(func(address solana.PublicKey, p *pool.Pool) bool {
		_, dirty := svc.dirty[address]
		if !all && !dirty && p.Cache().Len() == svc.persisted[address] {
			return true
		}
		state, arrays := p.Snapshot()
		snapshots = append(snapshots, persistence.Snapshot{Pool: state, TickArrays: arrays})
		counts[address] = len(arrays)
		return true
	})
	svc.persistedMu.Unlock()

	if len(snapshots) == 0 {
		return nil
	}
	if err := svc.store.SaveSnapshots(snapshots); err != nil {
		return err
	}

	svc.persistedMu.Lock()
	for address, n := range counts {
		svc.persisted[address] = n
		delete(svc.dirty, address)
	}
	svc.persistedMu.Unlock()

	metrics.SnapshotDuration.Set(time.Since(start).Seconds())
	svc.logger.Debug().Int("count", len(snapshots)).Msg("[MarketService] persisted pools to storage")
	return nil
}
