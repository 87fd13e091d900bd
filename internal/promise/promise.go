// Package promise provides a one-shot, cross-goroutine future/promise.
//
// The producer and the consumer may live on different goroutines (in this
// module: a fallback runner on one worker and a queued waiter on another).
// Publishing the value happens-before close(done), so a consumer that
// returns from Wait observes the final value.
package promise

import (
	"context"
	"sync"
)

// Promise holds a value that will be produced at most once.
// The zero value is not usable; call New.
type Promise[T any] struct {
	done chan struct{} // closed when val is published

	mu  sync.Mutex
	set bool
	val T
}

// New returns an unfulfilled promise.
func New[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Fulfill publishes v and wakes all waiters. Only the first call has any
// effect; later calls are ignored.
func (p *Promise[T]) Fulfill(v T) {
	p.mu.Lock()
	if p.set {
		p.mu.Unlock()
		return
	}
	p.val = v
	p.set = true
	p.mu.Unlock()
	close(p.done)
}

// Wait blocks until the promise is fulfilled or ctx is done.
// Cancelling ctx unblocks only this waiter; the producer is unaffected.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the promise is fulfilled.
func (p *Promise[T]) Done() <-chan struct{} { return p.done }
