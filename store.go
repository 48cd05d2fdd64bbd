// Backing store contract.
//
// Remote filters never touch a store directly; they issue one of the
// primitives below, each of which must run as a single atomic transaction
// in the store. Either every offset of the call is applied or none is, and
// no concurrent caller can observe a partial write. Implementations live
// in the redisstore, boltstore, badgerstore and pebblestore packages.
package sieve

import "context"

// Store is the minimal command surface a key-value store must provide.
//
// Bitmap keys number bits the way Redis SETBIT does: offset/8 selects the
// byte and the most significant bit of each byte is offset 0. Counting keys
// are maps from offset to a signed reference count. A key holds either a
// bitmap or a counting map, never both.
type Store interface {
	// SetBits sets every offset in key and reports whether at least one
	// of them was previously clear.
	SetBits(ctx context.Context, key string, offsets []uint64) (bool, error)

	// TestBits reports whether every offset in key is set. A missing key
	// has no bits set.
	TestBits(ctx context.Context, key string, offsets []uint64) (bool, error)

	// AddCounts increments every field by one unless all of them are
	// already positive, and reports whether it incremented. A field listed
	// twice is incremented twice.
	AddCounts(ctx context.Context, key string, fields []uint64) (bool, error)

	// RemoveCounts decrements every field by one if all of them are
	// positive, and reports whether it decremented.
	RemoveCounts(ctx context.Context, key string, fields []uint64) (bool, error)

	// TestCounts reports whether key exists and every field is positive.
	// Missing fields count as zero.
	TestCounts(ctx context.Context, key string, fields []uint64) (bool, error)

	// Exists reports whether key holds any data.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// storage is the backend a Filter delegates to. value is the stringified
// item, passed through so sharded storage can route on it; offsets are
// the k positions already derived from it.
type storage interface {
	set(ctx context.Context, value string, offsets []uint64) (bool, error)
	test(ctx context.Context, value string, offsets []uint64) (bool, error)
	remove(ctx context.Context, value string, offsets []uint64) (bool, error)
	clear(ctx context.Context) error
	empty(ctx context.Context) (bool, error)
	kind() string
}
