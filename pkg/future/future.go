// Package future provides a single-assignment deferred result.
//
// A Promise is the write side and a Future the read side. The first call to
// Complete or Fail wins; every later call is discarded and reports false.
package future

import (
	"context"
	"sync"
)

// Future is the read side of a deferred result.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Promise resolves exactly one Future.
type Promise[T any] struct {
	once   sync.Once
	future *Future[T]
}

// NewPromise returns an unresolved promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{future: &Future[T]{done: make(chan struct{})}}
}

// Completed returns a future already resolved with v.
func Completed[T any](v T) *Future[T] {
	p := NewPromise[T]()
	p.Complete(v)
	return p.Future()
}

// Failed returns a future already rejected with err.
func Failed[T any](err error) *Future[T] {
	p := NewPromise[T]()
	p.Fail(err)
	return p.Future()
}

// Future returns the read side of the promise.
func (p *Promise[T]) Future() *Future[T] {
	return p.future
}

// Complete resolves the future with v. It returns false if the future was
// already resolved.
func (p *Promise[T]) Complete(v T) bool {
	return p.resolve(v, nil)
}

// Fail rejects the future with err. It returns false if the future was
// already resolved.
func (p *Promise[T]) Fail(err error) bool {
	var zero T
	return p.resolve(zero, err)
}

func (p *Promise[T]) resolve(v T, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.future.value = v
		p.future.err = err
		close(p.future.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has been resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future resolves or ctx is done. Abandoning the wait
// does not affect the underlying operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
