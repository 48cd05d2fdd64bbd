// Package storetest is the conformance suite every sieve.Store
// implementation runs from its own tests.
package storetest

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jpl-au/sieve"
)

// Factory returns an empty store. It is called once per subtest; cleanup
// is registered on t.
type Factory func(t *testing.T) sieve.Store

// Run exercises the primitives and the remote filters over stores made by
// newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(*testing.T, sieve.Store)
	}{
		{"SetBitsReportsChange", testSetBitsReportsChange},
		{"TestBitsMissingKey", testTestBitsMissingKey},
		{"BitsAcrossPages", testBitsAcrossPages},
		{"CountsRoundTrip", testCountsRoundTrip},
		{"CountsDuplicateFields", testCountsDuplicateFields},
		{"CountsShared", testCountsShared},
		{"TestCountsMissingKey", testTestCountsMissingKey},
		{"ExistsAndDelete", testExistsAndDelete},
		{"KeysIsolated", testKeysIsolated},
		{"RemoteFilter", testRemoteFilter},
		{"ShardedFilter", testShardedFilter},
		{"RemoteCountingFilter", testRemoteCountingFilter},
		{"SharedKeyCountsDiverge", testSharedKeyCountsDiverge},
		{"AsyncParity", testAsyncParity},
		{"CapacityScenario", testCapacityScenario},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testSetBitsReportsChange(t *testing.T, s sieve.Store) {
	ctx := context.Background()

	changed, err := s.SetBits(ctx, "bits", []uint64{1, 9, 100})
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.SetBits(ctx, "bits", []uint64{100, 9, 1})
	require.NoError(t, err)
	require.False(t, changed, "all bits already set")

	changed, err = s.SetBits(ctx, "bits", []uint64{1, 2})
	require.NoError(t, err)
	require.True(t, changed, "bit 2 was clear")

	ok, err := s.TestBits(ctx, "bits", []uint64{1, 2, 9, 100})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.TestBits(ctx, "bits", []uint64{1, 3})
	require.NoError(t, err)
	require.False(t, ok)
}

func testTestBitsMissingKey(t *testing.T, s sieve.Store) {
	ok, err := s.TestBits(context.Background(), "nothing-here", []uint64{0})
	require.NoError(t, err)
	require.False(t, ok)
}

func testBitsAcrossPages(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	// Far enough apart to span several 4 KiB pages in the embedded stores.
	offsets := []uint64{0, 32767, 32768, 65536 + 7, 1_000_003}

	changed, err := s.SetBits(ctx, "wide", offsets)
	require.NoError(t, err)
	require.True(t, changed)

	for _, off := range offsets {
		ok, err := s.TestBits(ctx, "wide", []uint64{off})
		require.NoError(t, err)
		require.True(t, ok, "offset %d", off)
	}
	for _, off := range []uint64{1, 32766, 32769, 999_999} {
		ok, err := s.TestBits(ctx, "wide", []uint64{off})
		require.NoError(t, err)
		require.False(t, ok, "offset %d", off)
	}
}

func testCountsRoundTrip(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	fields := []uint64{3, 17, 250}

	added, err := s.AddCounts(ctx, "counts", fields)
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.AddCounts(ctx, "counts", fields)
	require.NoError(t, err)
	require.False(t, added, "already a member")

	ok, err := s.TestCounts(ctx, "counts", fields)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := s.RemoveCounts(ctx, "counts", fields)
	require.NoError(t, err)
	require.True(t, removed)

	ok, err = s.TestCounts(ctx, "counts", fields)
	require.NoError(t, err)
	require.False(t, ok)

	removed, err = s.RemoveCounts(ctx, "counts", fields)
	require.NoError(t, err)
	require.False(t, removed, "not a member")
}

func testCountsDuplicateFields(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	// Two hash functions landing on one position count twice, and a remove
	// takes both back.
	fields := []uint64{5, 5, 6}

	added, err := s.AddCounts(ctx, "dup", fields)
	require.NoError(t, err)
	require.True(t, added)

	removed, err := s.RemoveCounts(ctx, "dup", fields)
	require.NoError(t, err)
	require.True(t, removed)

	ok, err := s.TestCounts(ctx, "dup", []uint64{5})
	require.NoError(t, err)
	require.False(t, ok)
}

func testCountsShared(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	a := []uint64{1, 2}
	b := []uint64{2, 3}

	_, err := s.AddCounts(ctx, "shared", a)
	require.NoError(t, err)
	_, err = s.AddCounts(ctx, "shared", b)
	require.NoError(t, err)

	removed, err := s.RemoveCounts(ctx, "shared", a)
	require.NoError(t, err)
	require.True(t, removed)

	ok, err := s.TestCounts(ctx, "shared", b)
	require.NoError(t, err)
	require.True(t, ok, "b keeps position 2")

	ok, err = s.TestCounts(ctx, "shared", a)
	require.NoError(t, err)
	require.False(t, ok)
}

func testTestCountsMissingKey(t *testing.T, s sieve.Store) {
	ok, err := s.TestCounts(context.Background(), "nothing-here", []uint64{1})
	require.NoError(t, err)
	require.False(t, ok)
}

func testExistsAndDelete(t *testing.T, s sieve.Store) {
	ctx := context.Background()

	ok, err := s.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.SetBits(ctx, "k", []uint64{42})
	require.NoError(t, err)
	_, err = s.AddCounts(ctx, "h", []uint64{42})
	require.NoError(t, err)

	ok, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Delete(ctx, "k", "h", "never-written"))

	for _, key := range []string{"k", "h"} {
		ok, err = s.Exists(ctx, key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}
	require.NoError(t, s.Delete(ctx))
}

func testKeysIsolated(t *testing.T, s sieve.Store) {
	ctx := context.Background()

	_, err := s.SetBits(ctx, "a", []uint64{7})
	require.NoError(t, err)

	ok, err := s.TestBits(ctx, "ab", []uint64{7})
	require.NoError(t, err)
	require.False(t, ok, "key a must not leak into key ab")

	require.NoError(t, s.Delete(ctx, "ab"))
	ok, err = s.TestBits(ctx, "a", []uint64{7})
	require.NoError(t, err)
	require.True(t, ok, "deleting ab must not touch a")

	// A key that extends another with a zero byte is still its own key.
	_, err = s.SetBits(ctx, "a\x00x", []uint64{9})
	require.NoError(t, err)
	_, err = s.AddCounts(ctx, "h\x00x", []uint64{9})
	require.NoError(t, err)

	ok, err = s.Exists(ctx, "h")
	require.NoError(t, err)
	require.False(t, ok, "h has no data of its own")
	require.NoError(t, s.Delete(ctx, "a", "h"))

	ok, err = s.TestBits(ctx, "a\x00x", []uint64{9})
	require.NoError(t, err)
	require.True(t, ok, "deleting a must not touch a\\x00x")
	ok, err = s.TestCounts(ctx, "h\x00x", []uint64{9})
	require.NoError(t, err)
	require.True(t, ok, "deleting h must not touch h\\x00x")
}

func config() sieve.Config {
	return sieve.Config{Capacity: 2000, ErrorRate: 0.001}
}

// exercise inserts 0..999, checks every one is a member, then clears.
func exercise(t *testing.T, f *sieve.Filter) {
	ctx := context.Background()

	inserted := 0
	for i := range 1000 {
		added, err := f.Add(ctx, i)
		require.NoError(t, err)
		if added {
			inserted++
		}
	}
	// An insert that collides with earlier values counts as a duplicate.
	require.Equal(t, inserted, f.Len())
	require.Greater(t, inserted, 990)

	added, err := f.Add(ctx, "0")
	require.NoError(t, err)
	require.False(t, added, "second add of 0")
	require.Equal(t, inserted, f.Len())

	for i := range 1000 {
		ok, err := f.Contains(ctx, strconv.Itoa(i))
		require.NoError(t, err)
		require.True(t, ok, "value %d", i)
	}

	empty, err := f.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)

	require.NoError(t, f.Clear(ctx))
	require.Equal(t, 0, f.Len())
	for i := range 1000 {
		ok, err := f.Contains(ctx, i)
		require.NoError(t, err)
		require.False(t, ok, "value %d after clear", i)
	}

	empty, err = f.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)
}

func testRemoteFilter(t *testing.T, s sieve.Store) {
	f, err := sieve.NewRemote(s, "remote", config())
	require.NoError(t, err)
	exercise(t, f)

	_, err = f.Remove(context.Background(), 1)
	require.ErrorIs(t, err, sieve.ErrUnsupported)
}

func testShardedFilter(t *testing.T, s sieve.Store) {
	f, err := sieve.NewSharded(s, "sharded", config())
	require.NoError(t, err)
	require.Equal(t, []string{"sharded:0"}, f.Shards())
	exercise(t, f)
}

func testRemoteCountingFilter(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	f, err := sieve.NewRemoteCounting(s, "counting", config())
	require.NoError(t, err)
	exercise(t, f)

	for i := range 100 {
		_, err := f.Add(ctx, i)
		require.NoError(t, err)
	}
	before := f.Len()
	removed, err := f.Remove(ctx, 42)
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, before-1, f.Len())

	ok, err := f.Contains(ctx, 42)
	require.NoError(t, err)
	require.False(t, ok)

	removed, err = f.Remove(ctx, 42)
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, before-1, f.Len())
}

// testSharedKeyCountsDiverge pins down the documented limitation: two
// filters on one key agree on membership but each counts only its own
// insertions.
func testSharedKeyCountsDiverge(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	a, err := sieve.NewRemote(s, "together", config())
	require.NoError(t, err)
	b, err := sieve.NewRemote(s, "together", config())
	require.NoError(t, err)

	_, err = a.Add(ctx, "x")
	require.NoError(t, err)
	added, err := b.Add(ctx, "x")
	require.NoError(t, err)
	require.False(t, added, "b sees a's insertion")

	ok, err := b.Contains(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = b.Add(ctx, "y")
	require.NoError(t, err)
	require.Equal(t, 1, a.Len())
	require.Equal(t, 1, b.Len())
}

func testAsyncParity(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	f, err := sieve.NewRemoteCounting(s, "async", config())
	require.NoError(t, err)

	added, err := f.AddAsync(ctx, "v").Wait(ctx)
	require.NoError(t, err)
	require.True(t, added)

	ok, err := f.ContainsAsync(ctx, "v").Wait(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := f.RemoveAsync(ctx, "v").Wait(ctx)
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, 0, f.Len())

	done, err := f.ClearAsync(ctx).Wait(ctx)
	require.NoError(t, err)
	require.True(t, done)
}

// testCapacityScenario sizes for 10000 values at 1e-5, inserts "0".."999"
// and checks they are all members and "1001" is not, for every strategy
// over the remote bitmap and remote counting filters.
func testCapacityScenario(t *testing.T, s sieve.Store) {
	ctx := context.Background()
	ctors := map[string]func(sieve.Store, string, sieve.Config) (*sieve.Filter, error){
		"remote":   sieve.NewRemote,
		"counting": sieve.NewRemoteCounting,
	}
	for name, ctor := range ctors {
		for _, strategy := range []string{"accumulator", "murmur3", "sha256"} {
			st, err := sieve.StrategyByName(strategy)
			require.NoError(t, err)
			f, err := ctor(s, name+"-"+strategy, sieve.Config{Capacity: 10000, ErrorRate: 0.00001, Strategy: st})
			require.NoError(t, err)
			require.Equal(t, uint64(239627), f.Params().Bits)

			for i := range 1000 {
				_, err := f.Add(ctx, strconv.Itoa(i))
				require.NoError(t, err)
			}
			for i := range 1000 {
				ok, err := f.Contains(ctx, strconv.Itoa(i))
				require.NoError(t, err)
				require.True(t, ok, "%s/%s: %d", name, strategy, i)
			}
			ok, err := f.Contains(ctx, "1001")
			require.NoError(t, err)
			require.False(t, ok, "%s/%s: 1001", name, strategy)
		}
	}
}
