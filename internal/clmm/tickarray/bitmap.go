// Package tickarray locates initialized ticks across a pool's tick arrays using the
// pool-embedded bitmap, and caches the arrays a quote reads.
package tickarray

import (
	"fmt"
	"math/bits"

	"github.com/hxuan190/clmm-engine/internal/clmm/tickmath"
	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/domain"
)

const bitmapBits = domain.TickArrayBitmapWords * 64

// BitForStartIndex maps an array start index to its bitmap bit. ok is false when the
// array lies outside the window the embedded bitmap covers.
func BitForStartIndex(startIndex int32, tickSpacing uint16) (bit int, ok bool) {
	n := tickmath.TickCount(tickSpacing)
	offset := startIndex / n
	if startIndex < 0 && startIndex%n != 0 {
		offset--
	}
	bit = int(offset) + tickmath.TickArrayBitmapSize
	return bit, bit >= 0 && bit < bitmapBits
}

// StartIndexForBit is the inverse of BitForStartIndex.
func StartIndexForBit(bit int, tickSpacing uint16) int32 {
	return int32(bit-tickmath.TickArrayBitmapSize) * tickmath.TickCount(tickSpacing)
}

func inSearchRange(startIndex int32, tickSpacing uint16) bool {
	lower, upper := tickmath.TickArrayStartIndexBounds(tickSpacing)
	return startIndex >= lower && startIndex <= upper
}

// IsInitialized reports whether the bitmap marks the array at startIndex.
func IsInitialized(bitmap *domain.TickArrayBitmap, startIndex int32, tickSpacing uint16) bool {
	bit, ok := BitForStartIndex(startIndex, tickSpacing)
	return ok && bitmap.IsSet(bit)
}

// MarkInitialized sets or clears the bit of the array at startIndex.
func MarkInitialized(bitmap *domain.TickArrayBitmap, startIndex int32, tickSpacing uint16, initialized bool) error {
	bit, ok := BitForStartIndex(startIndex, tickSpacing)
	if !ok {
		return fmt.Errorf("%w: tick array %d outside bitmap window", common.ErrInvalidArgument, startIndex)
	}
	if initialized {
		bitmap.Set(bit)
	} else {
		bitmap.Clear(bit)
	}
	return nil
}

// highestSetBitBelow returns the highest set bit strictly below bit, or -1.
func highestSetBitBelow(bitmap *domain.TickArrayBitmap, bit int) int {
	if bit <= 0 {
		return -1
	}
	if bit > bitmapBits {
		bit = bitmapBits
	}
	pos := bit - 1
	w := pos / 64
	word := bitmap[w] & (^uint64(0) >> uint(63-pos%64))
	for {
		if word != 0 {
			return w*64 + 63 - bits.LeadingZeros64(word)
		}
		w--
		if w < 0 {
			return -1
		}
		word = bitmap[w]
	}
}

// lowestSetBitAbove returns the lowest set bit strictly above bit, or -1.
func lowestSetBitAbove(bitmap *domain.TickArrayBitmap, bit int) int {
	pos := bit + 1
	if pos < 0 {
		pos = 0
	}
	if pos >= bitmapBits {
		return -1
	}
	w := pos / 64
	word := bitmap[w] & (^uint64(0) << uint(pos%64))
	for {
		if word != 0 {
			return w*64 + bits.TrailingZeros64(word)
		}
		w++
		if w >= domain.TickArrayBitmapWords {
			return -1
		}
		word = bitmap[w]
	}
}

// NextInitializedStartIndex returns the nearest initialized array strictly beyond
// lastStartIndex in the swap direction: lower for zeroForOne, higher otherwise.
// Results are confined to tickmath.TickArrayStartIndexBounds.
func NextInitializedStartIndex(bitmap *domain.TickArrayBitmap, lastStartIndex int32, tickSpacing uint16, zeroForOne bool) (int32, bool) {
	lower, upper := tickmath.TickArrayStartIndexBounds(tickSpacing)
	bit, _ := BitForStartIndex(lastStartIndex, tickSpacing)
	for {
		if zeroForOne {
			bit = highestSetBitBelow(bitmap, bit)
		} else {
			bit = lowestSetBitAbove(bitmap, bit)
		}
		if bit < 0 {
			return 0, false
		}
		start := StartIndexForBit(bit, tickSpacing)
		if start >= lower && start <= upper {
			return start, true
		}
		// Only the side we are moving away from can still hold in-range arrays.
		if zeroForOne && start < lower {
			return 0, false
		}
		if !zeroForOne && start > upper {
			return 0, false
		}
	}
}

// FirstInitializedStartIndex returns the array a swap starting at tick reads first: the
// array containing tick when it is initialized, otherwise the next one in direction.
func FirstInitializedStartIndex(bitmap *domain.TickArrayBitmap, tick int32, tickSpacing uint16, zeroForOne bool) (int32, bool) {
	start := tickmath.TickArrayStartIndex(tick, tickSpacing)
	if IsInitialized(bitmap, start, tickSpacing) && inSearchRange(start, tickSpacing) {
		return start, true
	}
	return NextInitializedStartIndex(bitmap, start, tickSpacing, zeroForOne)
}

// RangeScan lists up to count initialized arrays on each side of fromStartIndex, nearest
// first. The lower side excludes fromStartIndex, the upper side includes it.
func RangeScan(bitmap *domain.TickArrayBitmap, fromStartIndex int32, tickSpacing uint16, count int) (lower, upper []int32, err error) {
	if tickSpacing == 0 {
		return nil, nil, fmt.Errorf("%w: tick spacing must be positive", common.ErrInvalidArgument)
	}
	if fromStartIndex%tickmath.TickCount(tickSpacing) != 0 {
		return nil, nil, fmt.Errorf("%w: %d is not a tick array start index", common.ErrInvalidArgument, fromStartIndex)
	}
	if count <= 0 {
		return nil, nil, nil
	}

	lowerBound, upperBound := tickmath.TickArrayStartIndexBounds(tickSpacing)
	pivot, _ := BitForStartIndex(fromStartIndex, tickSpacing)
	for bit := highestSetBitBelow(bitmap, pivot); bit >= 0 && len(lower) < count; bit = highestSetBitBelow(bitmap, bit) {
		start := StartIndexForBit(bit, tickSpacing)
		if start < lowerBound {
			break
		}
		if start <= upperBound {
			lower = append(lower, start)
		}
	}
	for bit := lowestSetBitAbove(bitmap, pivot-1); bit >= 0 && len(upper) < count; bit = lowestSetBitAbove(bitmap, bit) {
		start := StartIndexForBit(bit, tickSpacing)
		if start > upperBound {
			break
		}
		if start >= lowerBound {
			upper = append(upper, start)
		}
	}
	return lower, upper, nil
}
