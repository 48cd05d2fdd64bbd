// Package pebblestore implements sieve.Store on Pebble.
//
// Pebble has no transactions, so each mutating primitive reads through an
// indexed batch, stages its writes in the same batch and commits it
// atomically. A mutex serializes writers so no two batches read the same
// page before either commits. Reads use the database directly; a single
// committed batch is never half visible.
package pebblestore

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/jpl-au/sieve"
	"github.com/jpl-au/sieve/internal/bitpage"
)

var _ sieve.Store = (*Store)(nil)

// Options configures Open.
type Options struct {
	Compress bool        // zstd-compress bitmap pages
	NoSync   bool        // Skip fsync on commit
	Logger   *zap.Logger // Default no-op
}

// Store is a sieve.Store over Pebble.
type Store struct {
	db    *pebble.DB
	codec bitpage.Codec
	write *pebble.WriteOptions
	mu    sync.Mutex // serializes writers
	log   *zap.Logger
}

// Open opens or creates a Pebble database in dir.
func Open(dir string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	db, err := pebble.Open(dir, &pebble.Options{Logger: logger{opts.Logger.Sugar()}})
	if err != nil {
		return nil, err
	}
	write := pebble.Sync
	if opts.NoSync {
		write = pebble.NoSync
	}
	return &Store{db: db, codec: bitpage.Codec{Compress: opts.Compress}, write: write, log: opts.Logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// logger adapts zap to pebble.Logger.
type logger struct {
	s *zap.SugaredLogger
}

func (l logger) Infof(f string, v ...any)  { l.s.Infof(f, v...) }
func (l logger) Errorf(f string, v ...any) { l.s.Errorf(f, v...) }
func (l logger) Fatalf(f string, v ...any) { l.s.Fatalf(f, v...) }

type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

// reader adapts pebble.DB or an indexed batch to bitpage.Reader.
type reader struct {
	g getter
}

func (r reader) Get(key []byte) ([]byte, error) {
	v, closer, err := r.g.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// batch adapts an indexed batch to bitpage.Writer.
type batch struct {
	reader
	b *pebble.Batch
}

func (b batch) Put(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

func (b batch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

func (s *Store) update(ctx context.Context, fn func(bitpage.Writer) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewIndexedBatch()
	defer b.Close()
	result, err := fn(batch{reader{b}, b})
	if err != nil {
		return false, err
	}
	if b.Empty() {
		return result, nil
	}
	if err := b.Commit(s.write); err != nil {
		return false, err
	}
	return result, nil
}

func (s *Store) view(ctx context.Context, fn func(bitpage.Reader) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	snap := s.db.NewSnapshot()
	defer snap.Close()
	return fn(reader{snap})
}

func (s *Store) SetBits(ctx context.Context, key string, offsets []uint64) (bool, error) {
	return s.update(ctx, func(w bitpage.Writer) (bool, error) {
		return bitpage.SetBits(w, s.codec, bitpage.Prefix(key), offsets)
	})
}

func (s *Store) TestBits(ctx context.Context, key string, offsets []uint64) (bool, error) {
	return s.view(ctx, func(r bitpage.Reader) (bool, error) {
		return bitpage.TestBits(r, s.codec, bitpage.Prefix(key), offsets)
	})
}

func (s *Store) AddCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return s.update(ctx, func(w bitpage.Writer) (bool, error) {
		return bitpage.AddCounts(w, bitpage.Prefix(key), fields)
	})
}

func (s *Store) RemoveCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return s.update(ctx, func(w bitpage.Writer) (bool, error) {
		return bitpage.RemoveCounts(w, bitpage.Prefix(key), fields)
	})
}

func (s *Store) TestCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return s.view(ctx, func(r bitpage.Reader) (bool, error) {
		return bitpage.TestCounts(r, bitpage.Prefix(key), fields)
	})
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	prefix := bitpage.Prefix(key)
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: bitpage.PrefixEnd(prefix),
	})
	if err != nil {
		return false, err
	}
	ok := it.First()
	return ok, it.Close()
}

// Delete removes every key's namespace with range tombstones in one batch.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.db.NewBatch()
	defer b.Close()
	for _, k := range keys {
		prefix := bitpage.Prefix(k)
		if err := b.DeleteRange(prefix, bitpage.PrefixEnd(prefix), nil); err != nil {
			return err
		}
	}
	s.log.Debug("pebble delete", zap.Int("keys", len(keys)))
	return b.Commit(s.write)
}
