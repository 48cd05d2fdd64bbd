// Remote backends.
//
// Each operation is exactly one Store primitive, so atomicity is whatever
// the store guarantees for that primitive. No local state is touched here;
// the Filter updates its count only after the store call returns.
package sieve

import "context"

// remoteBitmap keeps all bits in one store key.
type remoteBitmap struct {
	store Store
	key   string
}

func (r *remoteBitmap) set(ctx context.Context, _ string, offsets []uint64) (bool, error) {
	return r.store.SetBits(ctx, r.key, offsets)
}

func (r *remoteBitmap) test(ctx context.Context, _ string, offsets []uint64) (bool, error) {
	return r.store.TestBits(ctx, r.key, offsets)
}

func (r *remoteBitmap) remove(context.Context, string, []uint64) (bool, error) {
	return false, ErrUnsupported
}

func (r *remoteBitmap) clear(ctx context.Context) error {
	return r.store.Delete(ctx, r.key)
}

func (r *remoteBitmap) empty(ctx context.Context) (bool, error) {
	ok, err := r.store.Exists(ctx, r.key)
	return !ok, err
}

func (r *remoteBitmap) kind() string { return "remote" }

// remoteCounting keeps a reference count per offset in one store hash.
type remoteCounting struct {
	store Store
	key   string
}

func (r *remoteCounting) set(ctx context.Context, _ string, offsets []uint64) (bool, error) {
	return r.store.AddCounts(ctx, r.key, offsets)
}

func (r *remoteCounting) test(ctx context.Context, _ string, offsets []uint64) (bool, error) {
	return r.store.TestCounts(ctx, r.key, offsets)
}

func (r *remoteCounting) remove(ctx context.Context, _ string, offsets []uint64) (bool, error) {
	return r.store.RemoveCounts(ctx, r.key, offsets)
}

func (r *remoteCounting) clear(ctx context.Context) error {
	return r.store.Delete(ctx, r.key)
}

func (r *remoteCounting) empty(ctx context.Context) (bool, error) {
	ok, err := r.store.Exists(ctx, r.key)
	return !ok, err
}

func (r *remoteCounting) kind() string { return "remote-counting" }
