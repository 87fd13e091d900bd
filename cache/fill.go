package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/sharedcache/internal/promise"
)

// fill tracks one outstanding backing computation for a key. At most one
// fill exists per key at a time, and at most one unsettled FillToken points
// at it. The row lives in SharedCache.fills while the computation (or a
// retry wave) is outstanding.
type fill struct {
	key string

	// waiting is the FIFO of callers that arrived while a runner was
	// active. On success all of them are woken with the value; on failure
	// exactly the first still-waiting one is promoted to runner.
	// Guarded by the engine lock.
	waiting []*waiter
}

// Waiter states. Promotion and abandonment race on the same waiter, so the
// transition out of waiterWaiting is a CAS: whoever wins decides whether
// the waiter receives the runner token or is skipped.
const (
	waiterWaiting  int32 = iota
	waiterAbandoned      // the caller gave up its wait
	waiterPromoted       // a failed wave handed this caller the runner token
)

// waiter is one queued caller.
type waiter struct {
	p     *promise.Promise[Outcome]
	state atomic.Int32
}

// Pending is the deferred result of a GetWithFallback miss. It resolves to
// either the value produced by another caller, or a FillToken promoting
// this caller to run the fallback. The holder must call Wait, even with an
// already-cancelled ctx: Wait fails any token the holder would have
// received, so the next waiter can take over. A Pending that is dropped
// without any Wait call strands that token and wedges the key's fill;
// Use.Read drives the protocol correctly and is what most callers want.
type Pending struct {
	w *waiter
}

// Wait blocks until the pending result resolves or ctx is done.
//
// Cancelling ctx abandons only this caller's wait: an in-flight fallback
// keeps running and will still populate the cache for other waiters. If the
// cancellation races with a promotion that already handed this caller the
// runner token, the token is failed on its behalf so the next waiter takes
// over instead of the wave stalling.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.w.p.Done():
		// The result is settled; read it without the caller's ctx so a
		// simultaneous cancellation cannot drop it on the floor. A caller
		// that is already gone must not walk away with the runner token.
		out, _ := p.w.p.Wait(context.Background())
		if err := ctx.Err(); err != nil && out.Token != nil {
			out.Token.Fail()
			return Outcome{}, err
		}
		return out, nil
	case <-ctx.Done():
	}

	if !p.w.state.CompareAndSwap(waiterWaiting, waiterAbandoned) {
		// Promotion won the race; the token is already on its way.
		// The fulfilling side performs the CAS before Fulfill, so this
		// wait is short and guaranteed to end.
		if out, err := p.w.p.Wait(context.Background()); err == nil && out.Token != nil {
			out.Token.Fail()
		}
		return Outcome{}, ctx.Err()
	}

	// The promise may have settled before the caller ever waited (the
	// first miss resolves to a token immediately). Pass such a token on.
	select {
	case <-p.w.p.Done():
		if out, err := p.w.p.Wait(context.Background()); err == nil && out.Token != nil {
			out.Token.Fail()
		}
	default:
	}
	return Outcome{}, ctx.Err()
}

// Done returns a channel that is closed once the result is available.
func (p *Pending) Done() <-chan struct{} { return p.w.p.Done() }

// FillToken is the report-back handle held by the caller that runs the
// fallback for a key. The holder must eventually call Complete or Fail;
// only the first call has any effect.
type FillToken struct {
	c       *SharedCache
	f       *fill
	settled atomic.Bool
}

// Complete stores the produced value, wakes every queued waiter with it,
// and retires the fill. A zero expiration time means the value never
// expires. The value is fanned out to waiters even if it expired while
// being produced; admission rules may still keep it out of the store.
func (t *FillToken) Complete(value []byte, expiresAt time.Time) {
	if !t.settled.CompareAndSwap(false, true) {
		return
	}
	t.c.completeFill(t.f, value, expiresAtNanos(expiresAt))
}

// Fail reports that the fallback failed (an error, a panic, or the runner
// going away before producing a value). The next still-waiting caller, if
// any, is promoted to runner with a fresh token; otherwise the fill is
// retired.
func (t *FillToken) Fail() {
	if !t.settled.CompareAndSwap(false, true) {
		return
	}
	t.c.failFill(t.f)
}

// getWithFallback is the engine miss-coalescing read path. It returns the
// cached value immediately when present; otherwise it returns a Pending
// that either joins the fill already in flight or, when this caller is
// first, resolves at once to a runner token.
func (c *SharedCache) getWithFallback(key string) (*Value, *Pending) {
	c.mu.Lock()
	if v := c.getLocked(key); v != nil {
		c.mu.Unlock()
		c.hits.Add(1)
		c.opt.Metrics.Hit()
		return v, nil
	}

	if f, ok := c.fills[key]; ok {
		// A runner is already active; queue behind it.
		w := &waiter{p: promise.New[Outcome]()}
		f.waiting = append(f.waiting, w)
		c.mu.Unlock()
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return nil, &Pending{w: w}
	}

	f := &fill{key: key}
	c.fills[key] = f
	c.mu.Unlock()
	c.misses.Add(1)
	c.opt.Metrics.Miss()
	c.opt.Metrics.FillStarted()

	w := &waiter{p: promise.New[Outcome]()}
	w.p.Fulfill(Outcome{Token: &FillToken{c: c, f: f}})
	return nil, &Pending{w: w}
}

// completeFill runs on fallback success: store the value, retire the fill
// row, then wake all waiters with the same value handle outside the lock.
func (c *SharedCache) completeFill(f *fill, value []byte, expiresAt int64) {
	v := newValue(value)

	c.mu.Lock()
	c.putLocked(f.key, v, expiresAt)
	waiters := f.waiting
	f.waiting = nil
	delete(c.fills, f.key)
	c.mu.Unlock()

	for _, w := range waiters {
		w.p.Fulfill(Outcome{Value: v})
	}
}

// failFill runs on fallback failure: promote the next still-waiting caller
// to runner, or retire the fill if nobody is left. The promotion is
// fulfilled outside the lock.
func (c *SharedCache) failFill(f *fill) {
	var next *waiter

	c.mu.Lock()
	for len(f.waiting) > 0 {
		w := f.waiting[0]
		f.waiting = f.waiting[1:]
		if w.state.CompareAndSwap(waiterWaiting, waiterPromoted) {
			next = w
			break
		}
		// Lost the race to the waiter's own cancellation; skip it.
	}
	if next == nil {
		delete(c.fills, f.key)
	}
	c.mu.Unlock()

	if next != nil {
		c.opt.Metrics.FillRetried()
		next.p.Fulfill(Outcome{Token: &FillToken{c: c, f: f}})
	}
}
