// Package boltstore implements sieve.Store on a bbolt database file.
//
// Each filter key is a top-level bucket holding bitmap pages or counters
// in the internal/bitpage layout. Every primitive runs in one bbolt
// transaction; bbolt allows a single writer at a time, so primitives are
// atomic with respect to each other in this process and, through bbolt's
// file lock, across processes.
package boltstore

import (
	"context"
	"errors"
	"os"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/jpl-au/sieve"
	"github.com/jpl-au/sieve/internal/bitpage"
)

var _ sieve.Store = (*Store)(nil)

// Options configures Open.
type Options struct {
	Compress bool          // zstd-compress bitmap pages
	Timeout  time.Duration // wait for the file lock (default 1s)
	Mode     os.FileMode   // file mode when creating (default 0600)
	Logger   *zap.Logger   // Default no-op
}

// Store is a sieve.Store over bbolt.
type Store struct {
	db    *bbolt.DB
	codec bitpage.Codec
	log   *zap.Logger
}

// Open opens or creates the database at path.
func Open(path string, opts Options) (*Store, error) {
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	if opts.Mode == 0 {
		opts.Mode = 0600
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	db, err := bbolt.Open(path, opts.Mode, &bbolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("bolt store opened", zap.String("path", path), zap.Bool("compress", opts.Compress))
	return &Store{db: db, codec: bitpage.Codec{Compress: opts.Compress}, log: opts.Logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// bucketTxn adapts a bucket to bitpage.Writer. A nil bucket reads as
// empty.
type bucketTxn struct {
	b *bbolt.Bucket
}

func (t bucketTxn) Get(key []byte) ([]byte, error) {
	if t.b == nil {
		return nil, nil
	}
	return t.b.Get(key), nil
}

func (t bucketTxn) Put(key, value []byte) error {
	return t.b.Put(key, value)
}

func (t bucketTxn) Delete(key []byte) error {
	return t.b.Delete(key)
}

func (s *Store) update(ctx context.Context, key string, fn func(bitpage.Writer) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var result bool
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		result, err = fn(bucketTxn{b})
		return err
	})
	return result, err
}

func (s *Store) view(ctx context.Context, key string, fn func(bitpage.Reader) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var result bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		result, err = fn(bucketTxn{tx.Bucket([]byte(key))})
		return err
	})
	return result, err
}

func (s *Store) SetBits(ctx context.Context, key string, offsets []uint64) (bool, error) {
	return s.update(ctx, key, func(w bitpage.Writer) (bool, error) {
		return bitpage.SetBits(w, s.codec, nil, offsets)
	})
}

func (s *Store) TestBits(ctx context.Context, key string, offsets []uint64) (bool, error) {
	return s.view(ctx, key, func(r bitpage.Reader) (bool, error) {
		return bitpage.TestBits(r, s.codec, nil, offsets)
	})
}

func (s *Store) AddCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return s.update(ctx, key, func(w bitpage.Writer) (bool, error) {
		return bitpage.AddCounts(w, nil, fields)
	})
}

func (s *Store) RemoveCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return s.update(ctx, key, func(w bitpage.Writer) (bool, error) {
		return bitpage.RemoveCounts(w, nil, fields)
	})
}

func (s *Store) TestCounts(ctx context.Context, key string, fields []uint64) (bool, error) {
	return s.view(ctx, key, func(r bitpage.Reader) (bool, error) {
		return bitpage.TestCounts(r, nil, fields)
	})
}

// Exists reports whether the key's bucket holds at least one entry.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(key)); b != nil {
			k, _ := b.Cursor().First()
			ok = k != nil
		}
		return nil
	})
	return ok, err
}

// Delete drops the buckets of keys in one transaction.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, k := range keys {
			err := tx.DeleteBucket([]byte(k))
			if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
}
