// Hash strategy tests.
//
// Offsets are persisted implicitly: a remote filter written today is read
// by clients started next year. Two properties are essential:
//  1. Determinism - the same (value, seed, m) always yields the same
//     offset, pinned here against reference values.
//  2. Range - every offset falls in [0, m), for tiny and huge m alike.
package sieve

import (
	"errors"
	"strconv"
	"testing"
)

var strategies = []Strategy{Accumulator, Murmur3, SHA256}

func TestStrategyReferenceValues(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		value    string
		seed     uint32
		m        uint64
		want     uint64
	}{
		{"accumulator", Accumulator, "ab", 2, 1000, 292}, // 2*97+98
		{"accumulator empty", Accumulator, "", 543, 1000, 0},
		{"accumulator unicode", Accumulator, "é", 10, 1 << 20, 233},
		{"murmur3", Murmur3, "hello", 0, 1 << 32, 613153351},
		{"sha256", SHA256, "hello", 543, 1 << 32, 1135609062},
		{"sha256 mod", SHA256, "hello", 543, 1000003, 605657},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.strategy.Hash(tt.value, tt.seed, tt.m); got != tt.want {
				t.Errorf("Hash(%q, %d, %d) = %d, want %d", tt.value, tt.seed, tt.m, got, tt.want)
			}
		})
	}
}

// TestAccumulatorMatchesBigArithmetic checks that reducing at every step
// gives the same answer as the unbounded fold for a value long enough to
// overflow 64 bits many times over.
func TestAccumulatorMatchesBigArithmetic(t *testing.T) {
	value := "the quick brown fox jumps over the lazy dog"
	const seed, m = 979, 1_000_000_007

	var want uint64
	for _, r := range value {
		want = (seed*want + uint64(r)) % m // seed*want < 2^40, no overflow
	}
	if got := Accumulator.Hash(value, seed, m); got != want {
		t.Errorf("Hash = %d, want %d", got, want)
	}
}

func TestStrategyRange(t *testing.T) {
	moduli := []uint64{1, 2, 7, 1000, 239627, 1 << 32, 1<<63 + 5}
	for _, s := range strategies {
		for _, m := range moduli {
			for i := range 200 {
				v := "value-" + strconv.Itoa(i)
				if got := s.Hash(v, seeds[i%len(seeds)], m); got >= m {
					t.Fatalf("%v.Hash(%q, m=%d) = %d, out of range", s, v, m, got)
				}
			}
		}
	}
}

func TestStrategyDeterministic(t *testing.T) {
	for _, s := range strategies {
		a := s.Hash("repeatable", 81, 1<<20)
		b := s.Hash("repeatable", 81, 1<<20)
		if a != b {
			t.Errorf("%v: %d != %d", s, a, b)
		}
	}
}

// TestStrategySeedsDiffer checks that different seeds give a different
// position for at least most values; otherwise the k hash functions
// would collapse into one.
func TestStrategySeedsDiffer(t *testing.T) {
	for _, s := range strategies {
		same := 0
		for i := range 100 {
			v := strconv.Itoa(i)
			if s.Hash(v, seeds[0], 1<<20) == s.Hash(v, seeds[1], 1<<20) {
				same++
			}
		}
		if same > 5 {
			t.Errorf("%v: seeds agreed on %d of 100 values", s, same)
		}
	}
}

func TestStrategyByName(t *testing.T) {
	for _, s := range strategies {
		name := s.(interface{ String() string }).String()
		got, err := StrategyByName(name)
		if err != nil || got != s {
			t.Errorf("StrategyByName(%q) = %v, %v", name, got, err)
		}
	}
	if got, _ := StrategyByName(""); got != Murmur3 {
		t.Errorf("StrategyByName(\"\") = %v, want murmur3", got)
	}
	if _, err := StrategyByName("crc32"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("StrategyByName(crc32): got %v", err)
	}
}
