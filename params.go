// Capacity planning.
//
// The bit length and hash count follow the standard optimal-k formulas.
// Both are rounded up, so a filter never has fewer hash functions than the
// closed form asks for. The memory and shard figures describe how many
// 512 MB store values the bit array would need.
package sieve

import (
	"fmt"
	"math"
)

// Planning constants.
const (
	// MaxKeyBits is the largest bitmap a single store key can hold
	// (512 MB, the Redis string ceiling).
	MaxKeyBits = uint64(1) << 32

	// ShardMB is the size of one backing unit in megabytes.
	ShardMB = 512

	// MaxShards is the number of shard keys the chunk router can address.
	MaxShards = 4096
)

// Params are the dimensions derived from a capacity and error rate. They
// are computed once when a filter is built and never change afterwards.
type Params struct {
	Capacity  int     `json:"capacity"`
	ErrorRate float64 `json:"error_rate"`
	Bits      uint64  `json:"bits"`      // m, length of the bit or counter array
	Hashes    int     `json:"hashes"`    // k, positions per value
	MemoryMB  uint64  `json:"memory_mb"` // ceil(m / 8 / 2^20)
	Shards    int     `json:"shards"`    // ceil(MemoryMB / 512)
}

// Plan computes filter dimensions for capacity expected values at the
// given false-positive rate.
func Plan(capacity int, errorRate float64) (Params, error) {
	if capacity <= 0 {
		return Params{}, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if !(errorRate > 0 && errorRate < 1) {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidErrorRate, errorRate)
	}

	n := float64(capacity)
	m := -n * math.Log(errorRate) / (math.Ln2 * math.Ln2)
	k := m / n * math.Ln2
	mem := math.Ceil(m / 8 / 1024 / 1024)
	shards := math.Ceil(mem / ShardMB)

	// uint64(m) is undefined once m leaves the uint64 range.
	if m >= 1<<64 {
		return Params{}, fmt.Errorf("%w: %.4g bits", ErrTooLarge, m)
	}

	p := Params{
		Capacity:  capacity,
		ErrorRate: errorRate,
		Bits:      uint64(math.Ceil(m)),
		Hashes:    int(math.Ceil(k)),
		MemoryMB:  uint64(mem),
		Shards:    int(shards),
	}
	// Rates close to 1 can round either figure down to zero.
	p.Bits = max(p.Bits, 1)
	p.Hashes = max(p.Hashes, 1)
	p.Shards = max(p.Shards, 1)

	if p.Hashes > len(seeds) {
		return Params{}, fmt.Errorf("%w: need %d, have %d", ErrTooManyHashes, p.Hashes, len(seeds))
	}
	return p, nil
}

// Clamp returns a copy of p whose bit length is at most limit. Collisions
// rise accordingly, so the effective error rate exceeds ErrorRate.
func (p Params) Clamp(limit uint64) Params {
	if p.Bits > limit {
		p.Bits = limit
	}
	return p
}

// EstimateFalsePositiveRate returns the expected false-positive rate after
// items distinct insertions: (1 - e^(-k*items/m))^k.
func (p Params) EstimateFalsePositiveRate(items int) float64 {
	if items <= 0 || p.Bits == 0 {
		return 0
	}
	k := float64(p.Hashes)
	return math.Pow(1-math.Exp(-k*float64(items)/float64(p.Bits)), k)
}
