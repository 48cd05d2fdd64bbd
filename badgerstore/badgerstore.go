// Package badgerstore implements sieve.Store on Badger.
//
// Filter keys share one flat keyspace, each namespaced by
// bitpage.Prefix. Badger transactions are optimistic and would fail with
// ErrConflict when two writers touch the same page, so writers are
// serialized with a mutex; readers run concurrently against snapshots.
package badgerstore

import (
	"context"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/jpl-au/sieve"
	"github.com/jpl-au/sieve/internal/bitpage"
)

var _ sieve.Store = (*Store)(nil)

// Options configures Open.
type Options struct {
	Dir      string      // Data directory; ignored when InMemory
	InMemory bool        // Keep everything in memory
	Compress bool        // zstd-compress bitmap pages
	Logger   *zap.Logger // Receives Badger's own log output; default no-op
}

// Store is a sieve.Store over Badger.
type Store struct {
	db    *badger.DB
	codec bitpage.Codec
	mu    sync.Mutex // serializes writers
}

// Open opens or creates a Badger database.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	bo := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithLogger(logger{opts.Logger.Sugar()})
	db, err := badger.Open(bo)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, codec: bitpage.Codec{Compress: opts.Compress}}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// logger adapts zap to badger.Logger.
type logger struct {
	s *zap.SugaredLogger
}

func (l logger) Errorf(f string, v ...any)   { l.s.Errorf(f, v...) }
func (l logger) Warningf(f string, v ...any) { l.s.Warnf(f, v...) }
func (l logger) Infof(f string, v ...any)    { l.s.Infof(f, v...) }
func (l logger) Debugf(f string, v ...any)   { l.s.Debugf(f, v...) }

// txn adapts badger.Txn to bitpage.Writer.
type txn struct {
	t *badger.Txn
}

func (t txn) Get(key []byte) ([]byte, error) {
	item, err := t.t.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t txn) Put(key, value []byte) error {
	return t.t.Set(key, value)
}

func (t txn) Delete(key []byte) error {
	return t.t.Delete(key)
}

func (s *Store) update(ctx context.Context, fn func(bitpage.Writer) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var result bool
	err := s.db.Update(func(t *badger.Txn) error {
		var err error
		result, err = fn(txn{t})
		return err
	})
	return result, err
}

func (s *Store) view(ctx context.Context, fn func(bitpage.Reader) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var result bool
	err := s.db.View(func(t *badger.Txn) error {
		var err error
		result, err = fn(txn{t})
		return err
	})
	return result, err
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
	var ok bool
	err := s.db.View(func(t *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := t.NewIterator(opts)
		defer it.Close()
		it.Seek(prefix)
		ok = it.ValidForPrefix(prefix)
		return nil
	})
	return ok, err
}

// Delete drops every key's namespace.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	prefixes := make([][]byte, len(keys))
	for i, k := range keys {
		prefixes[i] = bitpage.Prefix(k)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.DropPrefix(prefixes...)
}
