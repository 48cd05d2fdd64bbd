// Hash strategies.
//
// A strategy maps a value to a bit position in [0, m) for one seed. A
// filter holds one seed per hash function and asks the same strategy for
// each, so the strategy itself is stateless and safe for concurrent use.
// Offsets must not change between releases: remote filters depend on
// every client computing the same positions.
package sieve

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/spaolacci/murmur3"
)

// Strategy derives one bit position from a value and a seed.
type Strategy interface {
	Hash(value string, seed uint32, m uint64) uint64
}

// Built-in strategies.
var (
	// Accumulator folds code points with acc = seed*acc + code. Portable
	// and dependency free, but poorly distributed for large m.
	Accumulator Strategy = accumulator{}

	// Murmur3 uses 32-bit MurmurHash3 seeded with the seed. Default.
	Murmur3 Strategy = murmur{}

	// SHA256 hashes value||seed with SHA-256. Slowest, but resistant to
	// inputs crafted to collide.
	SHA256 Strategy = sha{}
)

// StrategyByName resolves "accumulator", "murmur3" or "sha256".
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "accumulator":
		return Accumulator, nil
	case "murmur3", "":
		return Murmur3, nil
	case "sha256":
		return SHA256, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

type accumulator struct{}

// Hash keeps the accumulator reduced mod m after every step. The result is
// identical to reducing the unbounded sum once at the end.
func (accumulator) Hash(value string, seed uint32, m uint64) uint64 {
	var acc uint64
	for _, r := range value {
		hi, lo := bits.Mul64(uint64(seed), acc)
		_, acc = bits.Div64(hi, lo, m) // hi < m because acc < m
		acc = addMod(acc, uint64(r)%m, m)
	}
	return acc % m
}

// addMod returns (a + b) mod m for a, b < m without overflowing.
func addMod(a, b, m uint64) uint64 {
	if a >= m-b {
		return a - (m - b)
	}
	return a + b
}

func (accumulator) String() string { return "accumulator" }

type murmur struct{}

func (murmur) Hash(value string, seed uint32, m uint64) uint64 {
	return uint64(murmur3.Sum32WithSeed([]byte(value), seed)) % m
}

func (murmur) String() string { return "murmur3" }

type sha struct{}

func (sha) Hash(value string, seed uint32, m uint64) uint64 {
	h := sha256.New()
	h.Write([]byte(value))
	var s [4]byte
	binary.LittleEndian.PutUint32(s[:], seed)
	h.Write(s[:])
	sum := h.Sum(nil)
	return uint64(binary.BigEndian.Uint32(sum[:4])) % m
}

func (sha) String() string { return "sha256" }
