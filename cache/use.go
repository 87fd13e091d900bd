package cache

import (
	"context"
	"sync/atomic"
	"time"
)

// Use is a scoped consumer binding to a SharedCache. Creating it (via
// SharedCache.Use) contributes the consumer's limits to the engine;
// closing it withdraws them, which may shrink the cache. Close must be
// paired with Use on every exit path.
//
// A Use is safe for concurrent use. After Close, reads miss and Read
// returns ErrUseClosed.
type Use struct {
	cache  *SharedCache
	limits Limits
	closed atomic.Bool
}

// Limits returns the limits this handle contributes.
func (u *Use) Limits() Limits { return u.limits }

// Cache returns the engine this handle is bound to.
func (u *Use) Cache() *SharedCache { return u.cache }

// Close withdraws the handle's limit contribution. Idempotent.
func (u *Use) Close() error {
	if u.closed.CompareAndSwap(false, true) {
		u.cache.unsuggest(u.limits)
	}
	return nil
}

// GetWithoutFallback returns the cached value for key if one exists and
// has not expired. It never triggers a computation, regardless of any
// in-progress fill for the key.
func (u *Use) GetWithoutFallback(key string) (*Value, bool) {
	if u.closed.Load() {
		return nil, false
	}
	return u.cache.get(key)
}

// GetWithFallback returns the cached value immediately when present.
// Otherwise it returns a Pending that resolves to either the value
// produced by a concurrent caller's fallback or a FillToken instructing
// this caller to run the fallback and report back. Exactly one of the
// return values is non-nil, except on a closed handle, where both are nil.
//
// Most callers should use Read, which drives this protocol.
func (u *Use) GetWithFallback(key string) (*Value, *Pending) {
	if u.closed.Load() {
		return nil, nil
	}
	return u.cache.getWithFallback(key)
}

// Set inserts or replaces the value for key with no expiration.
// Values that do not fit the effective limits are silently dropped.
func (u *Use) Set(key string, value []byte) {
	u.SetWithExpiration(key, value, time.Time{})
}

// SetWithExpiration inserts or replaces the value for key with an absolute
// expiration time. A zero time means the value never expires. Replacing a
// key never invalidates a previously obtained *Value handle.
func (u *Use) SetWithExpiration(key string, value []byte, expiresAt time.Time) {
	if u.closed.Load() || len(key) > MaxKeySize {
		return
	}
	u.cache.set(key, newValue(value), expiresAtNanos(expiresAt))
}

// Remove deletes the row for key if present and returns true on success.
func (u *Use) Remove(key string) bool {
	if u.closed.Load() {
		return false
	}
	return u.cache.remove(key)
}

// Read returns the value for key, running fallback on a miss. Concurrent
// reads for the same key share a single fallback execution: late arrivals
// wait for the in-flight computation instead of starting their own, and a
// failed computation is retried by exactly one of them.
//
// With a nil fallback, Read is a pure lookup and returns ErrNoFallback on
// a miss. Cancelling ctx abandons this caller's wait but never aborts an
// in-flight fallback owned by another caller.
func (u *Use) Read(ctx context.Context, key string, fallback Fallback) ([]byte, error) {
	if len(key) > MaxKeySize {
		return nil, ErrKeyTooLarge
	}
	if u.closed.Load() {
		return nil, ErrUseClosed
	}
	if fallback == nil {
		if v, ok := u.GetWithoutFallback(key); ok {
			return v.Bytes(), nil
		}
		return nil, ErrNoFallback
	}

	v, pending := u.GetWithFallback(key)
	if v != nil {
		return v.Bytes(), nil
	}
	if pending == nil {
		// The handle was closed between the check above and the lookup.
		return nil, ErrUseClosed
	}

	out, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if out.Value != nil {
		return out.Value.Bytes(), nil
	}
	return runFallback(ctx, key, fallback, out.Token)
}

// runFallback executes the fallback as the runner for key and settles the
// token. The deferred Fail guards the panic path: an abandoned token must
// fail the wave so the next waiter can be promoted. It is a no-op once the
// token has been settled by Complete or the error path.
func runFallback(ctx context.Context, key string, fallback Fallback, token *FillToken) ([]byte, error) {
	defer token.Fail()

	res, err := fallback(ctx, key)
	if err != nil {
		token.Fail()
		return nil, err
	}
	token.Complete(res.Value, res.ExpiresAt)
	return res.Value, nil
}
