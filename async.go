// Asynchronous front-end.
//
// The *Async methods share all logic with their blocking counterparts.
// Stringifying and hashing run on the caller's goroutine before the
// method returns; only the backend call is handed to a new goroutine.
// A Pending is therefore cheap to create and never observes a
// half-computed offset set.
package sieve

import "context"

// Pending is the eventual result of an asynchronous filter operation.
type Pending struct {
	done chan struct{}
	ok   bool
	err  error
}

func start(fn func() (bool, error)) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.ok, p.err = fn()
	}()
	return p
}

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation finishes or ctx is done. Giving up on
// ctx does not cancel the backend call; cancel the context passed to the
// *Async method for that.
func (p *Pending) Wait(ctx context.Context) (bool, error) {
	select {
	case <-p.done:
		return p.ok, p.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// AddAsync is the asynchronous form of Add.
func (f *Filter) AddAsync(ctx context.Context, item any) *Pending {
	v := Key(item)
	offsets := f.offsets(v)
	return start(func() (bool, error) { return f.add(ctx, v, offsets) })
}

// ContainsAsync is the asynchronous form of Contains.
func (f *Filter) ContainsAsync(ctx context.Context, item any) *Pending {
	v := Key(item)
	offsets := f.offsets(v)
	return start(func() (bool, error) { return f.contains(ctx, v, offsets) })
}

// RemoveAsync is the asynchronous form of Remove.
func (f *Filter) RemoveAsync(ctx context.Context, item any) *Pending {
	v := Key(item)
	offsets := f.offsets(v)
	return start(func() (bool, error) { return f.remove(ctx, v, offsets) })
}

// ClearAsync is the asynchronous form of Clear. Its result is true once
// the filter has been cleared.
func (f *Filter) ClearAsync(ctx context.Context) *Pending {
	return start(func() (bool, error) {
		if err := f.Clear(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}
