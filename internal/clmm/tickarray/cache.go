package tickarray

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/domain"
)

// Source loads tick array accounts that are not cached yet.
type Source interface {
	FetchTickArray(ctx context.Context, address solana.PublicKey) (*domain.TickArray, error)
}

// VisitFunc is invoked before a tick array is read. Returning an error aborts the search
// before the array is fetched.
type VisitFunc func(startIndex int32, address solana.PublicKey) error

// InitializedTick is the result of a directional tick search.
type InitializedTick struct {
	Tick       domain.TickState
	StartIndex int32
	Address    solana.PublicKey
}

type CacheStats struct {
	Hits        uint64
	Misses      uint64
	FetchErrors uint64
}

// Cache holds the tick arrays of one pool keyed by start index.
type Cache struct {
	programID   solana.PublicKey
	poolID      solana.PublicKey
	tickSpacing uint16
	source      Source

	mu        sync.RWMutex
	bitmap    domain.TickArrayBitmap
	arrays    map[int32]*domain.TickArray
	addresses map[int32]solana.PublicKey

	hits        atomic.Uint64
	misses      atomic.Uint64
	fetchErrors atomic.Uint64
}

// NewCache creates an empty cache. source may be nil, in which case only arrays added
// with Put are visible.
func NewCache(programID, poolID solana.PublicKey, tickSpacing uint16, bitmap domain.TickArrayBitmap, source Source) *Cache {
	return &Cache{
		programID:   programID,
		poolID:      poolID,
		tickSpacing: tickSpacing,
		source:      source,
		bitmap:      bitmap,
		arrays:      make(map[int32]*domain.TickArray),
		addresses:   make(map[int32]solana.PublicKey),
	}
}

func (c *Cache) TickSpacing() uint16 {
	return c.tickSpacing
}

// SetBitmap replaces the bitmap after a pool reload.
func (c *Cache) SetBitmap(bitmap domain.TickArrayBitmap) {
	c.mu.Lock()
	c.bitmap = bitmap
	c.mu.Unlock()
}

func (c *Cache) Bitmap() domain.TickArrayBitmap {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bitmap
}

// Put stores a tick array, replacing any previous copy with the same start index.
func (c *Cache) Put(ta *domain.TickArray) error {
	if ta == nil {
		return fmt.Errorf("%w: nil tick array", common.ErrInvalidArgument)
	}
	if ta.StartTickIndex%tickmath.TickCount(c.tickSpacing) != 0 {
		return fmt.Errorf("%w: tick array start %d not aligned to spacing %d",
			common.ErrInvalidArgument, ta.StartTickIndex, c.tickSpacing)
	}
	if !ta.PoolID.IsZero() && !ta.PoolID.Equals(c.poolID) {
		return fmt.Errorf("%w: tick array %s belongs to pool %s", common.ErrInvalidArgument, ta.Address, ta.PoolID)
	}
	c.mu.Lock()
	c.arrays[ta.StartTickIndex] = ta
	c.mu.Unlock()
	return nil
}

func (c *Cache) Get(startIndex int32) (*domain.TickArray, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ta, ok := c.arrays[startIndex]
	return ta, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.arrays)
}

// All returns the cached arrays in no particular order.
func (c *Cache) All() []*domain.TickArray {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*domain.TickArray, 0, len(c.arrays))
	for _, ta := range c.arrays {
		out = append(out, ta)
	}
	return out
}

// Reset drops every cached array.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.arrays = make(map[int32]*domain.TickArray)
	c.mu.Unlock()
}

func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		FetchErrors: c.fetchErrors.Load(),
	}
}

// Address returns the PDA of the array at startIndex, memoized per cache.
func (c *Cache) Address(startIndex int32) (solana.PublicKey, error) {
	c.mu.RLock()
	if cached, ok := c.addresses[startIndex]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	pda, err := Address(c.programID, c.poolID, startIndex)
	if err != nil {
		return solana.PublicKey{}, err
	}

	c.mu.Lock()
	c.addresses[startIndex] = pda
	c.mu.Unlock()
	return pda, nil
}

func (c *Cache) load(ctx context.Context, startIndex int32, address solana.PublicKey, tally *CacheStats) (*domain.TickArray, error) {
	if ta, ok := c.Get(startIndex); ok {
		c.hits.Add(1)
		if tally != nil {
			tally.Hits++
		}
		return ta, nil
	}
	c.misses.Add(1)
	if tally != nil {
		tally.Misses++
	}
	if c.source == nil {
		return nil, fmt.Errorf("%w: tick array %d (%s) not loaded", common.ErrInsufficientData, startIndex, address)
	}

	ta, err := c.source.FetchTickArray(ctx, address)
	if err != nil {
		c.fetchErrors.Add(1)
		return nil, fmt.Errorf("%w: fetch tick array %d (%s): %v", common.ErrInsufficientData, startIndex, address, err)
	}
	if ta == nil {
		c.fetchErrors.Add(1)
		return nil, fmt.Errorf("%w: tick array %d (%s) does not exist", common.ErrInsufficientData, startIndex, address)
	}
	if ta.StartTickIndex != startIndex {
		c.fetchErrors.Add(1)
		return nil, fmt.Errorf("%w: account %s holds tick array %d, want %d",
			common.ErrInsufficientData, address, ta.StartTickIndex, startIndex)
	}
	if ta.Address.IsZero() {
		ta.Address = address
	}
	if err := c.Put(ta); err != nil {
		return nil, err
	}
	return ta, nil
}

// Prefetch loads up to count initialized arrays on each side of the array holding tick.
func (c *Cache) Prefetch(ctx context.Context, tick int32, count int) error {
	bitmap := c.Bitmap()
	start := tickmath.TickArrayStartIndex(tick, c.tickSpacing)
	lower, upper, err := RangeScan(&bitmap, start, c.tickSpacing, count)
	if err != nil {
		return err
	}
	for _, idx := range append(upper, lower...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		address, err := c.Address(idx)
		if err != nil {
			return err
		}
		if _, err := c.load(ctx, idx, address, nil); err != nil {
			return err
		}
	}
	return nil
}

// NextInitializedTick finds the nearest initialized tick from tick in the swap direction.
// zeroForOne searches at or below tick; otherwise strictly above it. Arrays the bitmap
// does not mark are never read. visit, when non-nil, sees every array before it is read.
func (c *Cache) NextInitializedTick(ctx context.Context, tick int32, zeroForOne bool, visit VisitFunc) (InitializedTick, error) {
	return c.nextInitializedTick(ctx, tick, zeroForOne, visit, nil)
}

// CountingCache is a view of a Cache that also counts the hits and misses of its own
// lookups. The shared counters of the underlying cache still advance.
type CountingCache struct {
	*Cache
	tally *CacheStats
}

// Counting returns a view whose NextInitializedTick adds to tally. tally is not
// synchronized; use one per caller.
func (c *Cache) Counting(tally *CacheStats) *CountingCache {
	return &CountingCache{Cache: c, tally: tally}
}

func (v *CountingCache) NextInitializedTick(ctx context.Context, tick int32, zeroForOne bool, visit VisitFunc) (InitializedTick, error) {
	return v.Cache.nextInitializedTick(ctx, tick, zeroForOne, visit, v.tally)
}

func (c *Cache) nextInitializedTick(ctx context.Context, tick int32, zeroForOne bool, visit VisitFunc, tally *CacheStats) (InitializedTick, error) {
	bitmap := c.Bitmap()
	spacing := c.tickSpacing

	read := func(startIndex int32) (*domain.TickArray, solana.PublicKey, error) {
		address, err := c.Address(startIndex)
		if err != nil {
			return nil, solana.PublicKey{}, err
		}
		if visit != nil {
			if err := visit(startIndex, address); err != nil {
				return nil, address, err
			}
		}
		ta, err := c.load(ctx, startIndex, address, tally)
		return ta, address, err
	}

	start := tickmath.TickArrayStartIndex(tick, spacing)
	if IsInitialized(&bitmap, start, spacing) && inSearchRange(start, spacing) {
		ta, address, err := read(start)
		if err != nil {
			return InitializedTick{}, err
		}
		if ts, ok := nextInArray(ta, tick, spacing, zeroForOne); ok {
			return InitializedTick{Tick: ts, StartIndex: start, Address: address}, nil
		}
	}

	last := start
	for {
		if err := ctx.Err(); err != nil {
			return InitializedTick{}, err
		}
		next, ok := NextInitializedStartIndex(&bitmap, last, spacing, zeroForOne)
		if !ok {
			return InitializedTick{}, fmt.Errorf("%w: liquidity insufficient beyond tick %d", common.ErrInsufficientData, tick)
		}
		ta, address, err := read(next)
		if err != nil {
			return InitializedTick{}, err
		}
		if ts, ok := firstInArray(ta, spacing, zeroForOne); ok {
			return InitializedTick{Tick: ts, StartIndex: next, Address: address}, nil
		}
		// Marked but empty: the bitmap is stale for this array, keep walking.
		last = next
	}
}

func tickAt(ta *domain.TickArray, i int, spacing uint16) domain.TickState {
	ts := ta.Ticks[i]
	ts.Tick = ta.StartTickIndex + int32(i)*int32(spacing)
	return ts
}

func nextInArray(ta *domain.TickArray, tick int32, spacing uint16, zeroForOne bool) (domain.TickState, bool) {
	offset := int((tick - ta.StartTickIndex) / int32(spacing))
	if zeroForOne {
		for i := offset; i >= 0; i-- {
			if ta.Ticks[i].IsInitialized() {
				return tickAt(ta, i, spacing), true
			}
		}
		return domain.TickState{}, false
	}
	for i := offset + 1; i < domain.TickArraySize; i++ {
		if ta.Ticks[i].IsInitialized() {
			return tickAt(ta, i, spacing), true
		}
	}
	return domain.TickState{}, false
}

func firstInArray(ta *domain.TickArray, spacing uint16, zeroForOne bool) (domain.TickState, bool) {
	if zeroForOne {
		return nextInArray(ta, ta.StartTickIndex+int32(domain.TickArraySize-1)*int32(spacing), spacing, true)
	}
	return nextInArray(ta, ta.StartTickIndex-int32(spacing), spacing, false)
}
