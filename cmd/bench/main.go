// Command bench runs a synthetic workload against the engine and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/sharedcache/cache"
	pmet "github.com/IvanBrykalov/sharedcache/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		maxKeys   = flag.Uint("max_keys", 100_000, "limit: maximum resident entries")
		maxValue  = flag.Uint("max_value", 1<<16, "limit: maximum value size (bytes)")
		maxTotal  = flag.Uint64("max_total", 1<<30, "limit: maximum total value size (bytes)")
		valueSize = flag.Int("value_size", 128, "written value size (bytes)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		fillPct  = flag.Int("fills", 0, "portion of reads using a fallback [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = max_keys/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "sharedcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build engine ----
	c := cache.New("bench", cache.Options{Metrics: metrics})
	limits := cache.Limits{
		MaxKeys:           uint32(*maxKeys),
		MaxValueSize:      uint32(*maxValue),
		MaxTotalValueSize: *maxTotal,
	}
	u := c.Use(limits)
	defer u.Close()

	payload := make([]byte, *valueSize)
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	// ---- Preload half the key budget to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = int(*maxKeys) / 2
	}
	for i := 0; i < pl; i++ {
		u.Set("k:"+strconv.Itoa(i), payload)
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	fillPctVal := *fillPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	fallback := func(_ context.Context, _ string) (cache.FallbackResult, error) {
		return cache.FallbackResult{Value: payload}, nil
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if int(localR.Int31n(100)) < fillPctVal {
						// Read-through path: a miss runs the fallback.
						if _, err := u.Read(ctx, keyByZipf(), fallback); err == nil {
							atomic.AddUint64(&hits, 1)
						}
						continue
					}
					if _, ok := u.GetWithoutFallback(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					u.Set(keyByZipf(), payload)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("limits=%+v workers=%d keys=%d dur=%v seed=%d\n",
		limits, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("stats=%+v\n", c.Stats())
}
