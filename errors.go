// Package sieve provides Bloom filters that answer "have I seen this
// before?" with no false negatives and a tunable false-positive rate.
//
// A filter is sized once from an expected capacity and a target error
// rate, hashes every value through k seeded hash functions, and keeps its
// bits either in process memory or in a key-value store shared between
// processes. Counting variants replace bits with reference counts so that
// values can be removed again. Large remote filters are split across
// several store keys (shards) so that no single key exceeds the store's
// size ceiling.
package sieve

import "errors"

// Sentinel errors for programmatic handling. Callers can use errors.Is to
// distinguish configuration mistakes (ErrInvalidCapacity, ErrInvalidErrorRate)
// from misuse of a backend (ErrUnsupported). Errors returned by a Store are
// passed through unchanged.
var (
	ErrInvalidCapacity     = errors.New("capacity must be greater than zero")
	ErrInvalidErrorRate    = errors.New("error rate must be between 0 and 1")
	ErrTooManyHashes       = errors.New("hash count exceeds seed table")
	ErrTooLarge            = errors.New("filter size exceeds addressable range")
	ErrInvalidCounterWidth = errors.New("counter width must be 8, 16, 32 or 64")
	ErrInvalidDigest       = errors.New("unknown shard digest")
	ErrUnknownStrategy     = errors.New("unknown hash strategy")
	ErrNilStore            = errors.New("store is nil")
	ErrEmptyKey            = errors.New("key cannot be empty")
	ErrUnsupported         = errors.New("operation not supported by this filter")
)
