// Filter front-end tests over a Store.
//
// The store packages run the full conformance suite against real
// backends. Here a map-backed store stands in so the front-end can be
// tested on its own: clamping, routing, count bookkeeping and error
// propagation when the backend fails.
package sieve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mapStore keeps bitmaps and counters in maps under one mutex.
type mapStore struct {
	mu     sync.Mutex
	bits   map[string]map[uint64]bool
	counts map[string]map[uint64]int
	calls  []string // keys touched by SetBits, in order
}

func newMapStore() *mapStore {
	return &mapStore{
		bits:   make(map[string]map[uint64]bool),
		counts: make(map[string]map[uint64]int),
	}
}

func (s *mapStore) SetBits(_ context.Context, key string, offsets []uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	b := s.bits[key]
	if b == nil {
		b = make(map[uint64]bool)
		s.bits[key] = b
	}
	changed := false
	for _, off := range offsets {
		if !b[off] {
			b[off] = true
			changed = true
		}
	}
	return changed, nil
}

func (s *mapStore) TestBits(_ context.Context, key string, offsets []uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, off := range offsets {
		if !s.bits[key][off] {
			return false, nil
		}
	}
	return true, nil
}

func (s *mapStore) member(key string, fields []uint64) bool {
	c, ok := s.counts[key]
	if !ok {
		return false
	}
	for _, f := range fields {
		if c[f] <= 0 {
			return false
		}
	}
	return true
}

func (s *mapStore) AddCounts(_ context.Context, key string, fields []uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.member(key, fields) {
		return false, nil
	}
	c := s.counts[key]
	if c == nil {
		c = make(map[uint64]int)
		s.counts[key] = c
	}
	for _, f := range fields {
		c[f]++
	}
	return true, nil
}

func (s *mapStore) RemoveCounts(_ context.Context, key string, fields []uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.member(key, fields) {
		return false, nil
	}
	c := s.counts[key]
	for _, f := range fields {
		if c[f]--; c[f] == 0 {
			delete(c, f)
		}
	}
	if len(c) == 0 {
		delete(s.counts, key)
	}
	return true, nil
}

func (s *mapStore) TestCounts(_ context.Context, key string, fields []uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.member(key, fields), nil
}

func (s *mapStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bits[key]) > 0 || len(s.counts[key]) > 0, nil
}

func (s *mapStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.bits, k)
		delete(s.counts, k)
	}
	return nil
}

// failStore fails every call with err.
type failStore struct{ err error }

func (f failStore) SetBits(context.Context, string, []uint64) (bool, error)      { return false, f.err }
func (f failStore) TestBits(context.Context, string, []uint64) (bool, error)     { return false, f.err }
func (f failStore) AddCounts(context.Context, string, []uint64) (bool, error)    { return false, f.err }
func (f failStore) RemoveCounts(context.Context, string, []uint64) (bool, error) { return false, f.err }
func (f failStore) TestCounts(context.Context, string, []uint64) (bool, error)   { return false, f.err }
func (f failStore) Exists(context.Context, string) (bool, error)                 { return false, f.err }
func (f failStore) Delete(context.Context, ...string) error                      { return f.err }

var testConfig = Config{Capacity: 1000, ErrorRate: 0.01}

func TestRemoteArguments(t *testing.T) {
	s := newMapStore()
	constructors := map[string]func(Store, string, Config) (*Filter, error){
		"remote":   NewRemote,
		"sharded":  NewSharded,
		"counting": NewRemoteCounting,
	}
	for name, ctor := range constructors {
		if _, err := ctor(nil, "k", testConfig); !errors.Is(err, ErrNilStore) {
			t.Errorf("%s nil store: %v", name, err)
		}
		if _, err := ctor(s, "", testConfig); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("%s empty key: %v", name, err)
		}
		if _, err := ctor(s, "k", Config{Capacity: -1, ErrorRate: 0.1}); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("%s bad capacity: %v", name, err)
		}
	}

	bad := testConfig
	bad.ShardDigest = 9
	if _, err := NewSharded(s, "k", bad); !errors.Is(err, ErrInvalidDigest) {
		t.Errorf("bad digest: %v", err)
	}
}

// TestRemoteClampsBits checks that a remote filter hashes with the clamped
// bit length, so every offset it sends fits in one store value.
func TestRemoteClampsBits(t *testing.T) {
	ctx := context.Background()
	s := newMapStore()
	big := Config{Capacity: 1_000_000_000, ErrorRate: 0.0001}

	f, err := NewRemote(s, "big", big)
	if err != nil {
		t.Fatal(err)
	}
	if f.Params().Bits != MaxKeyBits {
		t.Fatalf("Bits = %d, want %d", f.Params().Bits, MaxKeyBits)
	}
	planned, _ := Plan(big.Capacity, big.ErrorRate)
	if planned.Bits <= MaxKeyBits {
		t.Fatalf("test plan too small: %d bits", planned.Bits)
	}

	for i := range 200 {
		f.Add(ctx, i)
	}
	for off := range s.bits["big"] {
		if off >= MaxKeyBits {
			t.Fatalf("offset %d beyond MaxKeyBits", off)
		}
	}
}

func TestRemoteFilterFrontEnd(t *testing.T) {
	ctx := context.Background()
	s := newMapStore()
	f, err := NewRemote(s, "users", testConfig)
	if err != nil {
		t.Fatal(err)
	}
	if f.Key() != "users" || f.Shards() != nil {
		t.Errorf("Key = %q, Shards = %v", f.Key(), f.Shards())
	}

	if empty, _ := f.IsEmpty(ctx); !empty {
		t.Error("new filter not empty")
	}
	f.Add(ctx, "alice")
	if ok, _ := f.Contains(ctx, "alice"); !ok {
		t.Error("alice missing")
	}
	if _, err := f.Remove(ctx, "alice"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Remove: %v", err)
	}
	if err := f.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.bits["users"]; ok {
		t.Error("Clear left the key behind")
	}
}

// TestShardedRouting checks that each value's bits go to the shard the
// router picks and that Clear deletes every shard.
func TestShardedRouting(t *testing.T) {
	ctx := context.Background()
	s := newMapStore()
	c := Config{Capacity: 3_000_000_000, ErrorRate: 0.01, ShardDigest: DigestMD5}

	f, err := NewSharded(s, "f", c)
	if err != nil {
		t.Fatal(err)
	}
	if f.Params().Shards != 7 {
		t.Fatalf("Shards = %d, want 7", f.Params().Shards)
	}
	want := []string{"f:0", "f:1", "f:2", "f:3", "f:4", "f:5", "f:6"}
	if got := f.Shards(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Shards() = %v", got)
	}

	f.Add(ctx, "a")
	f.Add(ctx, "hello")
	if got := strings.Join(s.calls, ","); got != "f:5,f:2" {
		t.Errorf("SetBits keys = %s, want f:5,f:2", got)
	}
	if ok, _ := f.Contains(ctx, "hello"); !ok {
		t.Error("hello missing")
	}

	f.Clear(ctx)
	if len(s.bits) != 0 {
		t.Errorf("Clear left %d keys", len(s.bits))
	}
	if empty, _ := f.IsEmpty(ctx); !empty {
		t.Error("IsEmpty after Clear = false")
	}
}

// TestShardCeiling plans past MaxShards and checks the filter is still
// built, warns once and reports the shards it can never reach.
func TestShardCeiling(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	c := Config{
		Capacity:  2_000_000_000_000,
		ErrorRate: 0.01,
		Logger:    zap.New(core),
	}
	planned, err := Plan(c.Capacity, c.ErrorRate)
	if err != nil {
		t.Fatal(err)
	}
	if planned.Shards <= MaxShards {
		t.Fatalf("test plan has only %d shards", planned.Shards)
	}

	f, err := NewSharded(newMapStore(), "huge", c)
	if err != nil {
		t.Fatal(err)
	}
	if f.Params().Shards != planned.Shards {
		t.Errorf("Params().Shards = %d, want %d", f.Params().Shards, planned.Shards)
	}
	if got := len(f.Shards()); got != MaxShards {
		t.Errorf("len(Shards()) = %d, want %d", got, MaxShards)
	}
	if got := f.Unreachable(); got != planned.Shards-MaxShards {
		t.Errorf("Unreachable = %d, want %d", got, planned.Shards-MaxShards)
	}
	if logs.Len() != 1 {
		t.Errorf("logged %d warnings, want 1", logs.Len())
	}
}

func TestRemoteCountingFrontEnd(t *testing.T) {
	ctx := context.Background()
	s := newMapStore()
	f, err := NewRemoteCounting(s, "c", testConfig)
	if err != nil {
		t.Fatal(err)
	}

	f.Add(ctx, "x")
	if added, _ := f.Add(ctx, "x"); added {
		t.Error("second Add(x) = true")
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
	removed, err := f.Remove(ctx, "x")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d, want 0", f.Len())
	}
	if empty, _ := f.IsEmpty(ctx); !empty {
		t.Error("IsEmpty after removing the only member = false")
	}
}

// TestBackendFailure checks that store errors reach the caller unchanged
// and leave Len alone.
func TestBackendFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	f, err := NewRemoteCounting(failStore{boom}, "k", testConfig)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Add(ctx, "x"); err != boom {
		t.Errorf("Add: %v", err)
	}
	if _, err := f.Contains(ctx, "x"); err != boom {
		t.Errorf("Contains: %v", err)
	}
	if _, err := f.Remove(ctx, "x"); err != boom {
		t.Errorf("Remove: %v", err)
	}
	if err := f.Clear(ctx); err != boom {
		t.Errorf("Clear: %v", err)
	}
	if _, err := f.IsEmpty(ctx); err != boom {
		t.Errorf("IsEmpty: %v", err)
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d after failures", f.Len())
	}
}

// TestSharedKeyLen shows that two filters on one key agree on membership
// but keep separate counts.
func TestSharedKeyLen(t *testing.T) {
	ctx := context.Background()
	s := newMapStore()
	a, _ := NewRemote(s, "shared", testConfig)
	b, _ := NewRemote(s, "shared", testConfig)

	a.Add(ctx, "x")
	if ok, _ := b.Contains(ctx, "x"); !ok {
		t.Error("b does not see a's value")
	}
	if added, _ := b.Add(ctx, "x"); added {
		t.Error("b re-added a's value")
	}
	if a.Len() != 1 || b.Len() != 0 {
		t.Errorf("Len a=%d b=%d, want 1 and 0", a.Len(), b.Len())
	}
}

func TestDebugLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	c := testConfig
	c.Logger = zap.New(core)

	f, err := NewRemote(failStore{errors.New("down")}, "k", c)
	if err != nil {
		t.Fatal(err)
	}
	f.Add(context.Background(), "x")

	if n := logs.FilterMessage("filter created").Len(); n != 1 {
		t.Errorf("filter created logged %d times", n)
	}
	if n := logs.FilterMessage("add failed").Len(); n != 1 {
		t.Errorf("add failed logged %d times", n)
	}
}
