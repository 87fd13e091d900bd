package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_SameIDSameInstance(t *testing.T) {
	t.Parallel()

	p := NewProvider(Options{})

	a := p.Get("ns")
	b := p.Get("ns")
	require.Same(t, a, b, "one id must map to one engine")
	assert.Equal(t, a.InstanceID(), b.InstanceID())

	other := p.Get("other")
	assert.NotSame(t, a, other)
}

// Concurrent first-use of the same id must still converge on one instance.
func TestProvider_ConcurrentFirstUse(t *testing.T) {
	t.Parallel()

	p := NewProvider(Options{})

	const goroutines = 32
	got := make([]*SharedCache, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			got[i] = p.Get("shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		require.Same(t, got[0], got[i])
	}
}

// Two providers are isolated namespaces even for identical ids.
func TestProvider_Isolation(t *testing.T) {
	t.Parallel()

	p1 := NewProvider(Options{})
	p2 := NewProvider(Options{})

	u1 := p1.Get("ns").Use(wideOpen)
	defer u1.Close()
	u2 := p2.Get("ns").Use(wideOpen)
	defer u2.Close()

	u1.Set("k", []byte("v"))
	_, ok := u2.GetWithoutFallback("k")
	assert.False(t, ok, "providers must not share storage")
}

func TestGet_DefaultProvider(t *testing.T) {
	t.Parallel()

	a := Get("registry-test-default")
	b := Get("registry-test-default")
	require.Same(t, a, b)
}
