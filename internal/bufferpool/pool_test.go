// ABOUTME: Tests for bucket rounding, reuse accounting, and idle eviction
package bufferpool

import (
	"testing"
	"time"
)

func TestNextPow2(t *testing.T) {
	cases := map[int]int{0: minBucketSize, 1: minBucketSize, 1024: 1024, 1025: 2048, 4096: 4096, 5000: 8192}
	for in, want := range cases {
		if got := nextPow2(in); got != want {
			t.Errorf("nextPow2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAcquireReleaseReuses(t *testing.T) {
	p := New(time.Minute)

	g1 := p.Acquire(100)
	if len(g1.Buf) != 100 {
		t.Fatalf("Acquire(100) len = %d, want 100", len(g1.Buf))
	}
	g1.Release()

	stats := p.Snapshot()
	if stats.BuffersCreated != 1 || stats.Available != 1 {
		t.Fatalf("after first release: %+v", stats)
	}

	g2 := p.Acquire(50)
	stats = p.Snapshot()
	if stats.BuffersReused != 1 {
		t.Errorf("expected reuse, got %+v", stats)
	}
	g2.Release()
}

func TestReleaseDropsWhenBucketFull(t *testing.T) {
	p := New(time.Minute)

	guards := make([]*Guard, maxPoolPerSize+5)
	for i := range guards {
		guards[i] = p.Acquire(minBucketSize)
	}
	for _, g := range guards {
		g.Release()
	}

	stats := p.Snapshot()
	if stats.Available != maxPoolPerSize {
		t.Errorf("Available = %d, want %d", stats.Available, maxPoolPerSize)
	}
}

func TestCleanupEvictsIdleEntries(t *testing.T) {
	p := New(10 * time.Millisecond)
	p.Acquire(1024).Release()

	time.Sleep(20 * time.Millisecond)
	p.Cleanup()

	stats := p.Snapshot()
	if stats.Available != 0 {
		t.Errorf("expected eviction, Available = %d", stats.Available)
	}
	if stats.CleanupOperations != 1 {
		t.Errorf("CleanupOperations = %d, want 1", stats.CleanupOperations)
	}
	if stats.BytesAllocated != 0 {
		t.Errorf("BytesAllocated = %d, want 0 after eviction", stats.BytesAllocated)
	}
}
