package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IvanBrykalov/sharedcache/internal/util"
)

// SharedCache is one cache engine instance. It is safe for concurrent use
// by any number of goroutines; all mutable state is guarded by a single
// exclusive lock, and nothing blocking runs while it is held.
//
// A SharedCache holds no rows until at least one Use handle with non-zero
// limits is attached. Consumers interact through Use handles; see Use.
type SharedCache struct {
	// id is the consumer-chosen cache namespace; instanceID is random per
	// engine instance and distinguishes process restarts in diagnostics.
	id         string
	instanceID string

	opt Options

	// ---- guarded by mu ----
	mu        sync.Mutex
	limits    *limitSet
	effective Limits
	store     *store
	fills     map[string]*fill

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

// New constructs an engine with the provided namespace id and Options.
// Defaults:
//   - nil Clock   -> system wall clock
//   - nil Metrics -> NoopMetrics
func New(id string, opt Options) *SharedCache {
	if opt.Clock == nil {
		opt.Clock = systemClock{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	return &SharedCache{
		id:         id,
		instanceID: uuid.NewString(),
		opt:        opt,
		limits:     newLimitSet(),
		store:      newStore(),
		fills:      make(map[string]*fill),
	}
}

// ID returns the consumer-chosen cache namespace.
func (c *SharedCache) ID() string { return c.id }

// InstanceID returns the random per-instance identifier.
func (c *SharedCache) InstanceID() string { return c.instanceID }

// Use attaches a consumer with the given limits and returns the scoped
// handle. The suggestion may raise the effective limits but never requires
// an eviction. The caller must Close the handle on every exit path; until
// then its limits keep contributing to the effective limits.
func (c *SharedCache) Use(limits Limits) *Use {
	c.suggest(limits)
	return &Use{cache: c, limits: limits}
}

// Len returns the number of resident rows.
func (c *SharedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// TotalValueSize returns the sum of all resident value sizes in bytes.
func (c *SharedCache) TotalValueSize() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.totalValueSize
}

// EffectiveLimits returns the limits currently enforced: the field-wise
// maximum over all live handles' suggestions.
func (c *SharedCache) EffectiveLimits() Limits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effective
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions uint64
	Entries   int
	TotalSize uint64
}

// Stats returns a snapshot of the engine counters.
func (c *SharedCache) Stats() Stats {
	c.mu.Lock()
	entries := c.store.len()
	total := c.store.totalValueSize
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Entries:   entries,
		TotalSize: total,
	}
}

// ---- limit negotiation ----

func (c *SharedCache) suggest(limits Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A limit value that is already present cannot move the field-wise
	// maximum, so the resize can be skipped.
	if known := c.limits.add(limits); !known {
		c.resizeLocked()
	}
}

func (c *SharedCache) unsuggest(limits Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits.remove(limits)
	c.resizeLocked()
}

// resizeLocked recomputes the effective limits and shrinks the store until
// it satisfies them. Must also run when capacity grows, since the limits
// have to be recomputed either way.
func (c *SharedCache) resizeLocked() {
	c.effective = c.limits.effective()

	// Fast path for clearing the cache.
	if c.effective.MaxKeys == 0 {
		c.store.clear()
		c.opt.Metrics.Size(0, 0)
		return
	}

	// First, remove any values that are too large for the new bound.
	for {
		e := c.store.largest()
		if e == nil || e.size() <= uint64(c.effective.MaxValueSize) {
			break
		}
		c.dropLocked(e, EvictOversize)
	}

	// Then keep evicting until count and total size are within limits.
	for c.store.totalValueSize > c.effective.MaxTotalValueSize ||
		uint64(c.store.len()) > uint64(c.effective.MaxKeys) {
		c.evictNextLocked()
	}
	c.opt.Metrics.Size(c.store.len(), c.store.totalValueSize)
}

// ---- reads and writes ----

func (c *SharedCache) now() int64 { return c.opt.Clock.NowUnixNano() }

func (c *SharedCache) hasExpired(expiresAt int64) bool {
	return expiresAt != 0 && expiresAt < c.now()
}

// get is the engine read path shared by both Use getters.
func (c *SharedCache) get(key string) (*Value, bool) {
	c.mu.Lock()
	v := c.getLocked(key)
	c.mu.Unlock()

	if v == nil {
		c.misses.Add(1)
		c.opt.Metrics.Miss()
		return nil, false
	}
	c.hits.Add(1)
	c.opt.Metrics.Hit()
	return v, true
}

// getLocked returns the value for key if present and not expired, and
// refreshes the row's liveliness. An expired row is dropped on sight.
func (c *SharedCache) getLocked(key string) *Value {
	e, ok := c.store.lookup(key)
	if !ok {
		return nil
	}
	if c.hasExpired(e.expiresAt) {
		c.dropLocked(e, EvictTTL)
		return nil
	}
	c.store.touch(e)
	return e.value
}

// set is the engine write path behind Use.Set and fill completion.
func (c *SharedCache) set(key string, value *Value, expiresAt int64) {
	c.mu.Lock()
	c.putLocked(key, value, expiresAt)
	c.mu.Unlock()
}

// putLocked inserts or replaces the row for key, refreshing liveliness and
// evicting as needed to honor the effective limits.
func (c *SharedCache) putLocked(key string, value *Value, expiresAt int64) {
	size := uint64(value.Size())

	if c.effective.MaxKeys == 0 || size > uint64(c.effective.MaxValueSize) {
		// The value cannot be admitted. For consistency, drop any previous
		// value under the key too, so a later read will not observe an
		// outdated entry.
		c.removeLocked(key)
		return
	}
	if c.hasExpired(expiresAt) {
		c.removeLocked(key)
		return
	}

	if old, ok := c.store.lookup(key); ok {
		// Release the old row first: the key being replaced must never be
		// chosen by the evictions below.
		c.store.delete(old)
		for c.store.totalValueSize+size > c.effective.MaxTotalValueSize {
			c.evictNextLocked()
		}
	} else {
		// Ensure that adding a new key won't push us over the limit.
		if uint64(c.store.len()) >= uint64(c.effective.MaxKeys) {
			c.evictNextLocked()
		}
		for c.store.totalValueSize+size > c.effective.MaxTotalValueSize {
			c.evictNextLocked()
		}
	}
	c.store.insert(&entry{
		key:        key,
		value:      value,
		liveliness: c.store.stepLiveliness(),
		expiresAt:  expiresAt,
	})
	c.opt.Metrics.Size(c.store.len(), c.store.totalValueSize)
}

// remove deletes the row for key if present.
func (c *SharedCache) remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.removeLocked(key)
	if ok {
		c.opt.Metrics.Size(c.store.len(), c.store.totalValueSize)
	}
	return ok
}

// removeLocked deletes the row without counting an eviction: it also runs
// while an existing row is replaced, and it is up to the caller to count
// that if desired.
func (c *SharedCache) removeLocked(key string) bool {
	e, ok := c.store.lookup(key)
	if !ok {
		return false
	}
	c.store.delete(e)
	return true
}

// evictNextLocked removes exactly one row: an already-expired row if one
// exists (a "free" eviction), otherwise the least recently used row.
// The store must not be empty.
func (c *SharedCache) evictNextLocked() {
	if e := c.store.soonest(); e != nil && c.hasExpired(e.expiresAt) {
		c.dropLocked(e, EvictTTL)
		return
	}
	e := c.store.oldest()
	if e == nil {
		panic("cache: eviction from empty store")
	}
	c.dropLocked(e, EvictLRU)
}

// dropLocked removes the row and records the eviction.
func (c *SharedCache) dropLocked(e *entry, reason EvictReason) {
	c.store.delete(e)
	c.evicts.Add(1)
	c.opt.Metrics.Evict(reason)
	if cb := c.opt.OnEvict; cb != nil {
		cb(e.key, e.value, reason)
	}
}

// expiresAtNanos converts the public time.Time representation to the
// store's UnixNano encoding (0 = never expires).
func expiresAtNanos(at time.Time) int64 {
	if at.IsZero() {
		return 0
	}
	return at.UnixNano()
}
