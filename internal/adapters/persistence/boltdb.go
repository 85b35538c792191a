package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/domain"
)

const (
	PoolsBucket      = "pools"
	TickArraysBucket = "tick_arrays"

	DefaultDBPath = "./data/clmm-engine.db"
)

// Snapshot is one pool together with the tick arrays cached for it.
type Snapshot struct {
	Pool       *domain.PoolState
	TickArrays []*domain.TickArray
}

// Storage persists pool and tick array snapshots. It also serves them back as a pool loader
// and tick array source for offline quoting.
type Storage struct {
	db     *boltdb.BoltDatabase
	dbPath string

	// Lazily loaded read index; kept in step with every write.
	mu         sync.RWMutex
	indexed    bool
	pools      map[solana.PublicKey]*domain.PoolState
	tickArrays map[solana.PublicKey]*domain.TickArray
}

func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("[snapshotStorage] opened database")

	return &Storage{
		db:         db,
		dbPath:     dbPath,
		pools:      make(map[solana.PublicKey]*domain.PoolState),
		tickArrays: make(map[solana.PublicKey]*domain.TickArray),
	}, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Storage) SavePool(p *domain.PoolState) error {
	data, err := sonic.Marshal(poolToStored(p))
	if err != nil {
		return fmt.Errorf("failed to marshal pool: %w", err)
	}
	if err := s.db.Set(PoolsBucket, []byte(p.Address.String()), data); err != nil {
		return err
	}
	s.mu.Lock()
	s.pools[p.Address] = p.Clone()
	s.mu.Unlock()
	return nil
}

// SaveSnapshots writes every pool and tick array in one batch.
func (s *Storage) SaveSnapshots(snapshots []Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := s.db.NewBatch()
	add := func(bucket, key string, v any) error {
		data, err := sonic.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s %s: %w", bucket, key, err)
		}
		op := &boltdb.WriteOperation{
			Bucket: []byte(bucket),
			Key:    []byte(key),
			Value:  &data,
			Op:     boltdb.OpSet,
		}
		if err := batch.Add(op); err != nil {
			return fmt.Errorf("failed to add %s %s to batch: %w", bucket, key, err)
		}
		return nil
	}

	arrays := 0
	for _, snap := range snapshots {
		if err := add(PoolsBucket, snap.Pool.Address.String(), poolToStored(snap.Pool)); err != nil {
			return err
		}
		for _, ta := range snap.TickArrays {
			if err := add(TickArraysBucket, ta.Address.String(), tickArrayToStored(ta)); err != nil {
				return err
			}
			arrays++
		}
	}

	if err := batch.Execute(); err != nil {
		log.Error().Err(err).Int("pools", len(snapshots)).Msg("[snapshotStorage] FAILED to execute batch")
		return err
	}

	s.mu.Lock()
	for _, snap := range snapshots {
		s.pools[snap.Pool.Address] = snap.Pool.Clone()
		for _, ta := range snap.TickArrays {
			cp := *ta
			s.tickArrays[ta.Address] = &cp
		}
	}
	s.mu.Unlock()

	log.Debug().Int("pools", len(snapshots)).Int("tick_arrays", arrays).Msg("[snapshotStorage] saved snapshot batch")
	return nil
}

// LoadAllPools returns every stored pool, skipping records that fail to decode.
func (s *Storage) LoadAllPools() ([]*domain.PoolState, error) {
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.PoolState, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p.Clone())
	}
	return out, nil
}

// TickArraysForPool returns the stored tick arrays belonging to pool.
func (s *Storage) TickArraysForPool(pool solana.PublicKey) ([]*domain.TickArray, error) {
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.TickArray
	for _, ta := range s.tickArrays {
		if ta.PoolID.Equals(pool) {
			cp := *ta
			out = append(out, &cp)
		}
	}
	return out, nil
}

// LoadPool serves a stored pool as the latest known state.
func (s *Storage) LoadPool(_ context.Context, address solana.PublicKey) (*domain.PoolState, error) {
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[address]
	if !ok {
		return nil, fmt.Errorf("%w: pool %s not in snapshot store", common.ErrInsufficientData, address)
	}
	return p.Clone(), nil
}

// FetchTickArray returns nil without error when the array was never stored.
func (s *Storage) FetchTickArray(_ context.Context, address solana.PublicKey) (*domain.TickArray, error) {
	if err := s.ensureIndex(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ta, ok := s.tickArrays[address]
	if !ok {
		return nil, nil
	}
	cp := *ta
	return &cp, nil
}

func (s *Storage) GetPoolCount() (int, error) {
	if err := s.ensureIndex(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pools), nil
}

func (s *Storage) ensureIndex() error {
	s.mu.RLock()
	indexed := s.indexed
	s.mu.RUnlock()
	if indexed {
		return nil
	}

	pools, err := s.listPools()
	if err != nil {
		return err
	}
	arrays, err := s.listTickArrays()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexed {
		return nil
	}
	// Writes made before the index was built are newer than what was listed.
	for k, v := range pools {
		if _, ok := s.pools[k]; !ok {
			s.pools[k] = v
		}
	}
	for k, v := range arrays {
		if _, ok := s.tickArrays[k]; !ok {
			s.tickArrays[k] = v
		}
	}
	s.indexed = true
	return nil
}

func (s *Storage) listPools() (map[solana.PublicKey]*domain.PoolState, error) {
	data, err := s.db.List(PoolsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}

	pools := make(map[solana.PublicKey]*domain.PoolState, len(data))
	failed := 0
	for address, value := range data {
		var stored StoredPool
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Error().Str("address", address).Err(err).Msg("[snapshotStorage] failed to unmarshal pool, skipping")
			failed++
			continue
		}
		p, err := storedToPool(&stored)
		if err != nil {
			log.Error().Str("address", address).Err(err).Msg("[snapshotStorage] failed to convert stored pool, skipping")
			failed++
			continue
		}
		pools[p.Address] = p
	}

	log.Info().
		Int("total_in_db", len(data)).
		Int("loaded", len(pools)).
		Int("failed", failed).
		Msg("[snapshotStorage] pool loading completed")
	return pools, nil
}

func (s *Storage) listTickArrays() (map[solana.PublicKey]*domain.TickArray, error) {
	data, err := s.db.List(TickArraysBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list tick arrays: %w", err)
	}

	arrays := make(map[solana.PublicKey]*domain.TickArray, len(data))
	for address, value := range data {
		var stored StoredTickArray
		if err := sonic.Unmarshal(value, &stored); err != nil {
			log.Warn().Str("address", address).Err(err).Msg("[snapshotStorage] failed to unmarshal tick array, skipping")
			continue
		}
		ta, err := storedToTickArray(&stored)
		if err != nil {
			log.Warn().Str("address", address).Err(err).Msg("[snapshotStorage] failed to convert tick array, skipping")
			continue
		}
		arrays[ta.Address] = ta
	}
	return arrays, nil
}
