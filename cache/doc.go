// Package cache implements a shared, concurrent, memory-bounded in-process
// cache for opaque byte values keyed by strings. A single engine instance is
// intended to be shared by many consumers running on different goroutines.
//
// Design
//
//   - Concurrency: all mutable engine state (rows, indices, suggested limits,
//     in-progress fills) is guarded by one exclusive mutex. Operations never
//     perform blocking work while holding it; the only blocking points are
//     caller-supplied fallbacks (run outside the lock) and waiting on a
//     per-key fill result.
//
//   - Storage: a primary map[string]*entry for point lookups plus three
//     ordered indices (balanced trees) over the same rows: liveliness
//     ascending (LRU order), value size descending (largest-first eviction),
//     and expiration ascending with "never expires" last (cheap expiry
//     sweep). All four structures are mutated through a single internal
//     path, so they cannot diverge.
//
//   - Limits: each consumer acquires a Use handle bound to a Limits triple
//     {MaxKeys, MaxValueSize, MaxTotalValueSize}. The engine enforces the
//     field-wise maximum over all live handles, so it always serves the most
//     generous limit currently requested and shrinks promptly when that
//     consumer goes away. Any zero field disables the cache for that
//     consumer.
//
//   - Eviction: when the effective limits shrink or an insert would exceed
//     them, the engine first drops rows whose values no longer fit
//     MaxValueSize (largest first), then expired rows, then strict LRU.
//
//   - Fallbacks: Use.GetWithFallback guarantees at most one backing
//     computation per key at a time. The first miss becomes the runner and
//     receives a FillToken it must settle; concurrent misses queue FIFO and
//     are woken with the produced value. If a runner fails or abandons its
//     token, exactly the next waiter is promoted to runner.
//
//   - Values: cached bytes are exposed through *Value handles. A reader that
//     obtained a handle keeps the bytes alive even after the row is evicted;
//     eviction removes the row, not the buffer.
//
// Basic usage
//
//	c := cache.New("sessions", cache.Options{})
//	u := c.Use(cache.Limits{MaxKeys: 1000, MaxValueSize: 1 << 20, MaxTotalValueSize: 64 << 20})
//	defer u.Close()
//
//	data, err := u.Read(ctx, "user:42", func(ctx context.Context, key string) (cache.FallbackResult, error) {
//	    b, err := loadFromBackend(ctx, key)
//	    return cache.FallbackResult{Value: b}, err
//	})
//
// Engines can be shared across packages through the process-wide registry:
//
//	c := cache.Get("sessions") // same instance for every caller of Get("sessions")
package cache
