package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Set/Get/SetWithExpiration/Remove/Read on
// random keys, plus handles churning limits. Should pass under `-race`
// without detector reports.
func TestRace_Basic(t *testing.T) {
	c := New("race", Options{})
	base := c.Use(Limits{MaxKeys: 8_192, MaxValueSize: 1 << 12, MaxTotalValueSize: 1 << 24})
	t.Cleanup(func() { _ = base.Close() })

	fallback := func(_ context.Context, key string) (FallbackResult, error) {
		return FallbackResult{Value: []byte("f:" + key)}, nil
	}

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 50_000
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Remove
					base.Remove(k)
				case 5, 6, 7, 8, 9: // ~5% — SetWithExpiration
					base.SetWithExpiration(k, []byte("x"), time.Now().Add(time.Duration(10+r.Intn(20))*time.Millisecond))
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% — Set
					base.Set(k, []byte("x"))
				case 20, 21, 22, 23, 24: // ~5% — read-through
					_, _ = base.Read(context.Background(), k, fallback)
				default: // ~75% — Get
					base.GetWithoutFallback(k)
				}
			}
		}(w)
	}

	// Handles come and go while the workload runs, resizing limits.
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := rand.New(rand.NewSource(1))
		for time.Now().Before(deadline) {
			u := c.Use(Limits{
				MaxKeys:           uint32(1_024 + r.Intn(8_192)),
				MaxValueSize:      1 << 12,
				MaxTotalValueSize: 1 << 24,
			})
			time.Sleep(time.Duration(1+r.Intn(5)) * time.Millisecond)
			_ = u.Close()
		}
	}()

	wg.Wait()
}

// Many goroutines read the same cold key through distinct handles.
// The fallback runs exactly once (waiters coalesce on one fill).
func TestRace_ReadAcrossHandles(t *testing.T) {
	c := New("race-handles", Options{})

	const goroutines = 100
	key := "same-key"

	var calls int64
	fallback := func(_ context.Context, k string) (FallbackResult, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return FallbackResult{Value: []byte("v:" + k)}, nil
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()

			// Every caller holds its own handle, like separate tenants
			// sharing one engine.
			u := c.Use(wideOpen)
			defer u.Close()

			<-start
			v, err := u.Read(context.Background(), key, fallback)
			if err != nil {
				t.Errorf("Read error: %v", err)
				return
			}
			if string(v) != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("fallback should run exactly once, got %d", got)
	}
}

// Closing a handle while Reads are in flight must never panic: a Read that
// loses the race to Close reports ErrUseClosed.
func TestRace_CloseDuringRead(t *testing.T) {
	c := New("race-close", Options{})

	fallback := func(_ context.Context, key string) (FallbackResult, error) {
		return FallbackResult{Value: []byte("v:" + key)}, nil
	}

	for i := 0; i < 200; i++ {
		u := c.Use(wideOpen)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			v, err := u.Read(context.Background(), "k:"+strconv.Itoa(i), fallback)
			if err != nil && err != ErrUseClosed {
				t.Errorf("Read error: %v", err)
				return
			}
			if err == nil && string(v) != "v:k:"+strconv.Itoa(i) {
				t.Errorf("unexpected value: %q", v)
			}
		}()
		go func() {
			defer wg.Done()
			<-start
			_ = u.Close()
		}()

		close(start)
		wg.Wait()
	}
}
