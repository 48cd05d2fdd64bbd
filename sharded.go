package sieve

import "context"

// shardedBitmap spreads a filter over several bitmap keys. A value's k
// bits always share one shard, so each operation is still a single
// primitive against a single key.
type shardedBitmap struct {
	store  Store
	router router
}

func (s *shardedBitmap) set(ctx context.Context, value string, offsets []uint64) (bool, error) {
	return s.store.SetBits(ctx, s.router.route(value), offsets)
}

func (s *shardedBitmap) test(ctx context.Context, value string, offsets []uint64) (bool, error) {
	return s.store.TestBits(ctx, s.router.route(value), offsets)
}

func (s *shardedBitmap) remove(context.Context, string, []uint64) (bool, error) {
	return false, ErrUnsupported
}

// clear deletes every reachable shard in one call. Shards past MaxShards
// are never written, so there is nothing to delete there.
func (s *shardedBitmap) clear(ctx context.Context) error {
	keys := make([]string, s.router.reachable())
	for i := range keys {
		keys[i] = s.router.key(i)
	}
	return s.store.Delete(ctx, keys...)
}

func (s *shardedBitmap) empty(ctx context.Context) (bool, error) {
	for i := range s.router.reachable() {
		ok, err := s.store.Exists(ctx, s.router.key(i))
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}

func (s *shardedBitmap) kind() string { return "sharded" }
