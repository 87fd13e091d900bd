package cache

import "time"

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// systemClock is the default wall-clock source.
type systemClock struct{}

func (systemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// Options configures an engine. Zero values are safe; defaults are applied
// in New():
//   - nil Clock   => system wall clock
//   - nil Metrics => NoopMetrics
type Options struct {
	// Clock is the time source used for expiration checks. Expiration
	// comparisons are best effort: a value slightly past its deadline may
	// be served if read concurrently with a sweep.
	Clock Clock

	// Metrics receives hit/miss/evict/size/fill signals.
	Metrics Metrics

	// OnEvict is called for every evicted row, under the engine lock;
	// keep callbacks lightweight. It is not called for explicit removals,
	// replacements, or the wholesale clear when the cache is disabled.
	OnEvict func(key string, value *Value, reason EvictReason)
}
