// In-process backends.
//
// Both keep one slot per position in process memory, allocated up front
// and discarded with the Filter. A read-write mutex lets a single Filter
// be shared across goroutines; Add takes the write lock for the whole
// test-and-set so concurrent Adds of one value report true exactly once.
package sieve

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

type bitVector struct {
	mu   sync.RWMutex
	bits *bitset.BitSet
}

// newBitVector returns a zeroed vector of m bits.
func newBitVector(m uint64) *bitVector {
	return &bitVector{bits: bitset.New(uint(m))}
}

func (b *bitVector) set(_ context.Context, _ string, offsets []uint64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	changed := false
	for _, off := range offsets {
		if !b.bits.Test(uint(off)) {
			b.bits.Set(uint(off))
			changed = true
		}
	}
	return changed, nil
}

func (b *bitVector) test(_ context.Context, _ string, offsets []uint64) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, off := range offsets {
		if !b.bits.Test(uint(off)) {
			return false, nil
		}
	}
	return true, nil
}

func (b *bitVector) remove(context.Context, string, []uint64) (bool, error) {
	return false, ErrUnsupported
}

func (b *bitVector) clear(context.Context) error {
	b.mu.Lock()
	b.bits.ClearAll()
	b.mu.Unlock()
	return nil
}

func (b *bitVector) empty(context.Context) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.bits.Any(), nil
}

func (b *bitVector) kind() string { return "memory" }

// counter is the set of widths a counting vector can use.
type counter interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// counterVector holds one reference count per position. Increments past
// the width's maximum wrap to zero and decrements below zero wrap to the
// maximum; neither is checked.
type counterVector[T counter] struct {
	mu     sync.RWMutex
	counts []T
}

func newCounterVector(width int, m uint64) (storage, error) {
	switch width {
	case 8:
		return &counterVector[uint8]{counts: make([]uint8, m)}, nil
	case 16:
		return &counterVector[uint16]{counts: make([]uint16, m)}, nil
	case 32:
		return &counterVector[uint32]{counts: make([]uint32, m)}, nil
	case 64:
		return &counterVector[uint64]{counts: make([]uint64, m)}, nil
	default:
		return nil, ErrInvalidCounterWidth
	}
}

// positive reports whether every offset has a non-zero count. Callers
// hold mu.
func (c *counterVector[T]) positive(offsets []uint64) bool {
	for _, off := range offsets {
		if c.counts[off] == 0 {
			return false
		}
	}
	return true
}

func (c *counterVector[T]) set(_ context.Context, _ string, offsets []uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.positive(offsets) {
		return false, nil
	}
	for _, off := range offsets {
		c.counts[off]++
	}
	return true, nil
}

func (c *counterVector[T]) test(_ context.Context, _ string, offsets []uint64) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positive(offsets), nil
}

func (c *counterVector[T]) remove(_ context.Context, _ string, offsets []uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.positive(offsets) {
		return false, nil
	}
	for _, off := range offsets {
		c.counts[off]--
	}
	return true, nil
}

func (c *counterVector[T]) clear(context.Context) error {
	c.mu.Lock()
	clear(c.counts)
	c.mu.Unlock()
	return nil
}

func (c *counterVector[T]) empty(context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, n := range c.counts {
		if n != 0 {
			return false, nil
		}
	}
	return true, nil
}

func (c *counterVector[T]) kind() string { return "counting" }
