package market

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/clmm-engine/internal/services/pool"
)

const numShards = 16

// ShardedPoolMap is a sharded map of pool facades to reduce lock contention
type ShardedPoolMap struct {
	shards [numShards]poolShard
}

type poolShard struct {
	mu    sync.RWMutex
	pools map[solana.PublicKey]*pool.Pool
}

func NewShardedPoolMap() *ShardedPoolMap {
	m := &ShardedPoolMap{}
	for i := 0; i < numShards; i++ {
		m.shards[i].pools = make(map[solana.PublicKey]*pool.Pool)
	}
	return m
}

// getShard uses the first byte of the key; pool addresses are uniformly distributed.
func (m *ShardedPoolMap) getShard(key solana.PublicKey) *poolShard {
	return &m.shards[key[0]%numShards]
}

func (m *ShardedPoolMap) Get(key solana.PublicKey) (*pool.Pool, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	p, ok := shard.pools[key]
	shard.mu.RUnlock()
	return p, ok
}

func (m *ShardedPoolMap) Set(key solana.PublicKey, p *pool.Pool) {
	shard := m.getShard(key)
	shard.mu.Lock()
	shard.pools[key] = p
	shard.mu.Unlock()
}

func (m *ShardedPoolMap) Delete(key solana.PublicKey) {
	shard := m.getShard(key)
	shard.mu.Lock()
	delete(shard.pools, key)
	shard.mu.Unlock()
}

// Len returns total count across all shards
func (m *ShardedPoolMap) Len() int {
	total := 0
	for i := 0; i < numShards; i++ {
		m.shards[i].mu.RLock()
		total += len(m.shards[i].pools)
		m.shards[i].mu.RUnlock()
	}
	return total
}

// Range iterates over all pools (acquires locks per shard). f must not write to the map.
func (m *ShardedPoolMap) Range(f func(key solana.PublicKey, p *pool.Pool) bool) {
	for i := 0; i < numShards; i++ {
		m.shards[i].mu.RLock()
		for k, v := range m.shards[i].pools {
			if !f(k, v) {
				m.shards[i].mu.RUnlock()
				return
			}
		}
		m.shards[i].mu.RUnlock()
	}
}

func (m *ShardedPoolMap) GetAll() []*pool.Pool {
	result := make([]*pool.Pool, 0, m.Len())
	m.Range(func(_ solana.PublicKey, p *pool.Pool) bool {
		result = append(result, p)
		return true
	})
	return result
}
