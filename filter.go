// Filter front-end and construction.
//
// Every Filter is a planner result, k seeded hash functions and one storage
// backend. The constructors differ only in the backend they attach; Add,
// Contains, Remove and Clear derive the k offsets once and hand them to
// the backend, which applies them in one step.
package sieve

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config holds filter configuration options.
type Config struct {
	Capacity     int         // Expected number of distinct values (n)
	ErrorRate    float64     // Target false-positive rate (p), 0 < p < 1
	Strategy     Strategy    // Hash strategy (default Murmur3)
	CounterWidth int         // Counter bits for NewCounting: 8, 16, 32 or 64 (default 32)
	ShardDigest  int         // Shard router digest for NewSharded (default DigestXXHash3)
	Logger       *zap.Logger // Default no-op
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.Strategy == nil {
		c.Strategy = Murmur3
	}
	if c.CounterWidth == 0 {
		c.CounterWidth = 32
	}
	if c.ShardDigest == 0 {
		c.ShardDigest = DigestXXHash3
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Filter is a Bloom filter over one storage backend.
//
// Len is tracked per Filter value. Several filters, possibly in different
// processes, may share a remote key for membership, but each keeps its own
// count: the counts do not add up to the shared cardinality.
type Filter struct {
	params   Params
	strategy Strategy
	seeds    []uint32
	key      string
	store    storage
	count    atomic.Int64
	log      *zap.Logger
}

// build plans the filter and draws its seeds. A non-zero limit clamps the
// bit length before any offset is computed.
func build(cfg Config, limit uint64) (*Filter, error) {
	params, err := Plan(cfg.Capacity, cfg.ErrorRate)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		params = params.Clamp(limit)
	}
	s, err := Seeds(params.Hashes)
	if err != nil {
		return nil, err
	}
	return &Filter{
		params:   params,
		strategy: cfg.Strategy,
		seeds:    s,
		log:      cfg.Logger,
	}, nil
}

// New returns an in-process filter backed by a bit vector. It cannot
// remove values; use NewCounting for that.
func New(config Config) (*Filter, error) {
	config = config.withDefaults()
	f, err := build(config, 0)
	if err != nil {
		return nil, err
	}
	if err := f.checkLocal(); err != nil {
		return nil, err
	}
	f.store = newBitVector(f.params.Bits)
	f.logCreated()
	return f, nil
}

// NewCounting returns an in-process filter backed by a counter per
// position, which supports Remove at CounterWidth times the memory of
// New. Counters wrap on overflow.
func NewCounting(config Config) (*Filter, error) {
	config = config.withDefaults()
	f, err := build(config, 0)
	if err != nil {
		return nil, err
	}
	if err := f.checkLocal(); err != nil {
		return nil, err
	}
	f.store, err = newCounterVector(config.CounterWidth, f.params.Bits)
	if err != nil {
		return nil, err
	}
	f.logCreated(zap.Int("counter_width", config.CounterWidth))
	return f, nil
}

// NewRemote returns a filter whose bits live in a single store key. The
// bit length is clamped to MaxKeyBits; past that the false-positive rate
// exceeds config.ErrorRate.
func NewRemote(store Store, key string, config Config) (*Filter, error) {
	config = config.withDefaults()
	if err := checkRemote(store, key); err != nil {
		return nil, err
	}
	f, err := build(config, MaxKeyBits)
	if err != nil {
		return nil, err
	}
	f.key = key
	f.store = &remoteBitmap{store: store, key: key}
	f.logCreated()
	return f, nil
}

// NewSharded returns a filter whose bits are spread over Params().Shards
// keys named "key:0", "key:1", ... Each value's k bits land in one shard
// chosen from a digest of the value.
//
// Only the first MaxShards shards are addressable. A plan that asks for
// more is still built, but values only ever reach MaxShards keys; see
// Unreachable.
func NewSharded(store Store, key string, config Config) (*Filter, error) {
	config = config.withDefaults()
	if err := checkRemote(store, key); err != nil {
		return nil, err
	}
	if !validDigest(config.ShardDigest) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDigest, config.ShardDigest)
	}
	f, err := build(config, MaxKeyBits)
	if err != nil {
		return nil, err
	}
	f.key = key
	r := newRouter(key, f.params.Shards, config.ShardDigest)
	f.store = &shardedBitmap{store: store, router: r}
	f.logCreated(zap.Int("digest", config.ShardDigest))
	if n := f.Unreachable(); n > 0 {
		f.log.Warn("shard plan exceeds router ceiling",
			zap.String("key", key),
			zap.Int("planned", f.params.Shards),
			zap.Int("unreachable", n))
	}
	return f, nil
}

// NewRemoteCounting returns a filter that keeps a reference count per
// position in one store hash, so values can be removed.
func NewRemoteCounting(store Store, key string, config Config) (*Filter, error) {
	config = config.withDefaults()
	if err := checkRemote(store, key); err != nil {
		return nil, err
	}
	f, err := build(config, MaxKeyBits)
	if err != nil {
		return nil, err
	}
	f.key = key
	f.store = &remoteCounting{store: store, key: key}
	f.logCreated()
	return f, nil
}

// checkLocal rejects plans too long to index in memory.
func (f *Filter) checkLocal() error {
	if f.params.Bits > math.MaxInt {
		return fmt.Errorf("%w: %d bits in memory", ErrTooLarge, f.params.Bits)
	}
	return nil
}

func checkRemote(store Store, key string) error {
	if store == nil {
		return ErrNilStore
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

func (f *Filter) logCreated(fields ...zap.Field) {
	f.log.Debug("filter created", append([]zap.Field{
		zap.String("backend", f.store.kind()),
		zap.String("key", f.key),
		zap.Uint64("bits", f.params.Bits),
		zap.Int("hashes", f.params.Hashes),
		zap.Int("shards", f.params.Shards),
	}, fields...)...)
}

// offsets derives the k positions for value.
func (f *Filter) offsets(value string) []uint64 {
	out := make([]uint64, len(f.seeds))
	for i, seed := range f.seeds {
		out[i] = f.strategy.Hash(value, seed, f.params.Bits)
	}
	return out
}

// Add inserts item and reports whether it was new. Adding a probable
// member again returns false and leaves Len unchanged.
func (f *Filter) Add(ctx context.Context, item any) (bool, error) {
	v := Key(item)
	return f.add(ctx, v, f.offsets(v))
}

func (f *Filter) add(ctx context.Context, v string, offsets []uint64) (bool, error) {
	added, err := f.store.set(ctx, v, offsets)
	if err != nil {
		f.log.Debug("add failed", zap.String("key", f.key), zap.Error(err))
		return false, err
	}
	if added {
		f.count.Add(1)
	}
	return added, nil
}

// Contains reports whether item is probably a member. False is definite.
func (f *Filter) Contains(ctx context.Context, item any) (bool, error) {
	v := Key(item)
	return f.contains(ctx, v, f.offsets(v))
}

func (f *Filter) contains(ctx context.Context, v string, offsets []uint64) (bool, error) {
	ok, err := f.store.test(ctx, v, offsets)
	if err != nil {
		f.log.Debug("contains failed", zap.String("key", f.key), zap.Error(err))
		return false, err
	}
	return ok, nil
}

// Remove deletes item from a counting filter and reports whether it was a
// member. Other filters return ErrUnsupported.
//
// Removing a value that was never added, but whose positions all happen to
// be held by other members, succeeds and weakens those members.
func (f *Filter) Remove(ctx context.Context, item any) (bool, error) {
	v := Key(item)
	return f.remove(ctx, v, f.offsets(v))
}

func (f *Filter) remove(ctx context.Context, v string, offsets []uint64) (bool, error) {
	removed, err := f.store.remove(ctx, v, offsets)
	if err != nil {
		if err != ErrUnsupported {
			f.log.Debug("remove failed", zap.String("key", f.key), zap.Error(err))
		}
		return false, err
	}
	if removed {
		f.count.Add(-1)
	}
	return removed, nil
}

// Clear empties the filter and resets Len. Remote filters delete their
// keys.
func (f *Filter) Clear(ctx context.Context) error {
	if err := f.store.clear(ctx); err != nil {
		f.log.Debug("clear failed", zap.String("key", f.key), zap.Error(err))
		return err
	}
	f.count.Store(0)
	f.log.Debug("filter cleared", zap.String("key", f.key))
	return nil
}

// IsEmpty reports whether the backing storage holds no data. For a remote
// filter this reflects every client sharing the key, unlike Len.
func (f *Filter) IsEmpty(ctx context.Context) (bool, error) {
	return f.store.empty(ctx)
}

// Len returns the number of values this Filter has added minus those it
// has removed.
func (f *Filter) Len() int {
	return int(f.count.Load())
}

// Params returns the filter's dimensions after any clamping.
func (f *Filter) Params() Params {
	return f.params
}

// Key returns the base store key, or "" for in-process filters.
func (f *Filter) Key() string {
	return f.key
}

// Shards returns the store keys a sharded filter can write to, in order.
// Other filters return nil.
func (f *Filter) Shards() []string {
	s, ok := f.store.(*shardedBitmap)
	if !ok {
		return nil
	}
	keys := make([]string, s.router.reachable())
	for i := range keys {
		keys[i] = s.router.key(i)
	}
	return keys
}

// Unreachable returns how many planned shards the router can never
// address. Non-zero only for sharded filters planned beyond MaxShards.
func (f *Filter) Unreachable() int {
	s, ok := f.store.(*shardedBitmap)
	if !ok {
		return 0
	}
	return s.router.shards - s.router.reachable()
}
