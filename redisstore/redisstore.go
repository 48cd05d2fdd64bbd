// Package redisstore implements sieve.Store on Redis.
//
// Every primitive is a Lua script, so Redis runs all k bit or field
// updates of one call without interleaving another client's commands.
// Scripts are sent with EVALSHA and fall back to EVAL the first time a
// server sees them. Offsets travel in ARGV and only the filter key in
// KEYS, which keeps every script on a single cluster slot.
package redisstore

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/jpl-au/sieve"
)

var _ sieve.Store = (*Store)(nil)

var (
	setBits = redis.NewScript(`
local changed = 0
for i = 1, #ARGV do
	if redis.call('SETBIT', KEYS[1], ARGV[i], 1) == 0 then
		changed = 1
	end
end
return changed
`)

	testBits = redis.NewScript(`
for i = 1, #ARGV do
	if redis.call('GETBIT', KEYS[1], ARGV[i]) == 0 then
		return 0
	end
end
return 1
`)

	addCounts = redis.NewScript(`
local member = 1
for i = 1, #ARGV do
	if tonumber(redis.call('HGET', KEYS[1], ARGV[i]) or '0') <= 0 then
		member = 0
		break
	end
end
if member == 1 then
	return 0
end
for i = 1, #ARGV do
	redis.call('HINCRBY', KEYS[1], ARGV[i], 1)
end
return 1
`)

	removeCounts = redis.NewScript(`
for i = 1, #ARGV do
	if tonumber(redis.call('HGET', KEYS[1], ARGV[i]) or '0') <= 0 then
		return 0
	end
end
for i = 1, #ARGV do
	redis.call('HINCRBY', KEYS[1], ARGV[i], -1)
end
return 1
`)

	testCounts = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
for i = 1, #ARGV do
	if tonumber(redis.call('HGET', KEYS[1], ARGV[i]) or '0') <= 0 then
		return 0
	end
end
return 1
`)
)

// Store is a sieve.Store over a Redis client, cluster client or ring.
type Store struct {
	client redis.UniversalClient
}

// New wraps client. The caller owns the client and closes it.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Load preloads every script so the first filter call does not pay for an
// EVAL round trip. Optional.
func (s *Store) Load(ctx context.Context) error {
	for _, sc := range []*redis.Script{setBits, testBits, addCounts, removeCounts, testCounts} {
		if err := sc.Load(ctx, s.client).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SetBits(ctx context.Context, key string, offsets []uint64) (bool, error) {
	return run(ctx, s.client, setBits, key, offsets)
}

func (s *Store) TestBits(ctx context.Context, key string, offsets []uint64) (bool, error) {
	return run(ctx, s.client, testBits, key, offsets)
}

func (s *Store) AddCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return run(ctx, s.client, addCounts, key, fields)
}

func (s *Store) RemoveCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return run(ctx, s.client, removeCounts, key, fields)
}

func (s *Store) TestCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return run(ctx, s.client, testCounts, key, fields)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Delete removes keys with one DEL per key in a single pipeline, which a
// cluster client splits by slot.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Del(ctx, k)
		}
		return nil
	})
	return err
}

func run(ctx context.Context, c redis.Scripter, sc *redis.Script, key string, offsets []uint64) (bool, error) {
	args := make([]any, len(offsets))
	for i, off := range offsets {
		args[i] = strconv.FormatUint(off, 10)
	}
	n, err := sc.Run(ctx, c, []string{key}, args...).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
