package cache

// EvictReason explains why a row was removed.
type EvictReason int

const (
	// EvictLRU: least recently used, removed under capacity pressure.
	EvictLRU EvictReason = iota
	// EvictTTL: the row's expiration time has passed. These evictions are
	// "free": they would have happened regardless of capacity pressure.
	EvictTTL
	// EvictOversize: the value no longer fits the effective MaxValueSize
	// (typically after a consumer with generous limits went away).
	EvictOversize
)

// Metrics exposes engine-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Implementations must be safe for concurrent use.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, totalBytes uint64)
	// FillStarted is called when a miss starts a new backing computation.
	FillStarted()
	// FillRetried is called when a failed fill promotes the next waiter.
	FillRetried()
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int, uint64)  {}
func (NoopMetrics) FillStarted()      {}
func (NoopMetrics) FillRetried()      {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
