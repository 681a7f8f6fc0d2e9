package common

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyFulfilled is returned when a Future is fulfilled a second time.
var ErrAlreadyFulfilled = errors.New("future already fulfilled")

// Future is a single-fulfillment completion handoff. It starts empty, is fulfilled exactly once
// by its producer (with either a value or an error), and can be awaited by any number of readers.
// The value is never observable before fulfillment.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates an empty Future.
//
// Returns:
//   - *Future[T]: the empty future
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Fulfill stores the result and wakes all waiters. Only the first call has an effect.
//
// Parameters:
//   - value: the produced value
//   - err: the producer error, if any
//
// Returns:
//   - error: ErrAlreadyFulfilled if the future was already fulfilled
func (f *Future[T]) Fulfill(value T, err error) error {
	fulfilled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		fulfilled = true
	})
	if !fulfilled {
		return ErrAlreadyFulfilled
	}
	return nil
}

// Done returns a channel that is closed once the future is fulfilled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future has been fulfilled.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future is fulfilled or ctx is done.
//
// Parameters:
//   - ctx: context used to abandon the wait
//
// Returns:
//   - T: the fulfilled value (zero value on error)
//   - error: the producer error, or ctx.Err() if the wait was abandoned
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
