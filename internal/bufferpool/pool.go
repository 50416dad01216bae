// ABOUTME: Bucketed, size-classed buffer pool with idle eviction
// ABOUTME: Grounded in the original DynamicBufferPool; guarded by one mutex, stats read via atomics
package bufferpool

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	minBucketSize  = 1024
	maxPoolPerSize = 128
	cleanupEvery   = 30 * time.Second
)

type entry struct {
	buf      []byte
	lastUsed time.Time
}

// Stats is an acceptable-slightly-stale snapshot of pool activity,
// readable without taking the pool's mutex.
type Stats struct {
	Total             int64
	Available         int64
	BytesAllocated    int64
	BuffersCreated    int64
	BuffersReused     int64
	CleanupOperations int64
}

// Pool is a process-wide bucketed buffer pool. The zero value is not
// usable; construct with New.
type Pool struct {
	mu       sync.Mutex
	buckets  map[int][]entry
	maxIdle  time.Duration
	lastScan time.Time

	total          atomic.Int64
	available      atomic.Int64
	bytesAllocated atomic.Int64
	created        atomic.Int64
	reused         atomic.Int64
	cleanups       atomic.Int64
}

// New constructs an empty pool with lazy first allocation. maxIdle of 0
// uses the spec default of 300s.
func New(maxIdle time.Duration) *Pool {
	if maxIdle <= 0 {
		maxIdle = 300 * time.Second
	}
	return &Pool{
		buckets: make(map[int][]entry),
		maxIdle: maxIdle,
	}
}

func nextPow2(n int) int {
	if n < minBucketSize {
		n = minBucketSize
	}
	p := minBucketSize
	for p < n {
		p <<= 1
	}
	return p
}

// Guard is an RAII-style handle: call Release when done, or defer it
// immediately after Acquire.
type Guard struct {
	pool   *Pool
	bucket int
	Buf    []byte
}

// Acquire returns a buffer of at least minSize bytes, from the smallest
// bucket that fits. It opportunistically runs cleanup at most once every
// 30s.
func (p *Pool) Acquire(minSize int) *Guard {
	bucket := nextPow2(minSize)

	p.mu.Lock()
	p.maybeCleanupLocked()

	var buf []byte
	found := 0
	for size, list := range p.buckets {
		if size >= bucket && len(list) > 0 && (found == 0 || size < found) {
			found = size
		}
	}
	if found != 0 {
		list := p.buckets[found]
		last := list[len(list)-1]
		p.buckets[found] = list[:len(list)-1]
		buf = last.buf
		bucket = found
		p.available.Add(-1)
		p.reused.Add(1)
	}
	p.mu.Unlock()

	if buf == nil {
		buf = make([]byte, bucket)
		p.total.Add(1)
		p.created.Add(1)
		p.bytesAllocated.Add(int64(bucket))
	}

	return &Guard{pool: p, bucket: bucket, Buf: buf[:minSize]}
}

// Release returns the buffer to its bucket, unless that bucket already
// holds maxPoolPerSize entries (in which case it is dropped and GC'd).
func (g *Guard) Release() {
	if g == nil || g.pool == nil {
		return
	}
	p := g.pool
	g.pool = nil

	p.mu.Lock()
	defer p.mu.Unlock()
	p.maybeCleanupLocked()

	list := p.buckets[g.bucket]
	if len(list) >= maxPoolPerSize {
		p.total.Add(-1)
		p.bytesAllocated.Add(-int64(g.bucket))
		return
	}
	p.buckets[g.bucket] = append(list, entry{buf: g.Buf[:cap(g.Buf)], lastUsed: time.Now()})
	p.available.Add(1)
}

// maybeCleanupLocked runs Cleanup at most once every 30s; caller holds mu.
func (p *Pool) maybeCleanupLocked() {
	now := time.Now()
	if now.Sub(p.lastScan) < cleanupEvery {
		return
	}
	p.lastScan = now
	p.evictLocked(now)
}

// Cleanup removes entries idle longer than the pool's configured max
// idle time. Safe to call directly (e.g. from a diagnostics timer); also
// invoked opportunistically from Acquire/Release.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evictLocked(time.Now())
}

func (p *Pool) evictLocked(now time.Time) {
	removed := 0
	var freedBytes int64
	for size, list := range p.buckets {
		kept := list[:0]
		for _, e := range list {
			if now.Sub(e.lastUsed) > p.maxIdle {
				removed++
				freedBytes += int64(size)
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(p.buckets, size)
		} else {
			p.buckets[size] = kept
		}
	}
	if removed > 0 {
		p.available.Add(-int64(removed))
		p.total.Add(-int64(removed))
		p.bytesAllocated.Add(-freedBytes)
		p.cleanups.Add(1)
	}
}

// Snapshot returns the current, possibly-slightly-stale statistics.
func (p *Pool) Snapshot() Stats {
	return Stats{
		Total:             p.total.Load(),
		Available:         p.available.Load(),
		BytesAllocated:    p.bytesAllocated.Load(),
		BuffersCreated:    p.created.Load(),
		BuffersReused:     p.reused.Load(),
		CleanupOperations: p.cleanups.Load(),
	}
}
