package cache

import "sync"

// Provider is a process-wide registry of engines keyed by their namespace
// id. Engines are created lazily on first use of an id and live until
// process exit; the registry lock is distinct from each engine's internal
// lock.
type Provider struct {
	opt Options

	mu     sync.Mutex
	caches map[string]*SharedCache
}

// NewProvider returns a registry whose engines are created with opt.
func NewProvider(opt Options) *Provider {
	return &Provider{
		opt:    opt,
		caches: make(map[string]*SharedCache),
	}
}

// Get returns the engine for id, creating it on first use. Every caller
// asking for the same id observes the same instance.
func (p *Provider) Get(id string) *SharedCache {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.caches[id]; ok {
		return c
	}
	c := New(id, p.opt)
	p.caches[id] = c
	return c
}

// defaultProvider backs the package-level Get.
var defaultProvider = NewProvider(Options{})

// Get returns the engine for id from the default process-wide registry.
func Get(id string) *SharedCache { return defaultProvider.Get(id) }
