package source

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

var errBoom = errors.New("boom")

type recordingListener struct {
	mu      sync.Mutex
	chunks  []audio.Chunk
	states  []State
	resyncs int
}

func (l *recordingListener) OnChunk(c audio.Chunk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = append(l.chunks, c)
}

func (l *recordingListener) OnStateChange(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

func (l *recordingListener) OnResync(time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resyncs++
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chunks)
}

func TestLoopTransitionsIdleToPlaying(t *testing.T) {
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	clock := wire.NewSteadyClock()
	listener := &recordingListener{}
	stop := make(chan struct{})

	fill := func(buf []byte) (int, error) {
		for i := range buf {
			buf[i] = 1
		}
		return len(buf), nil
	}

	go Loop(clock, Config{Format: format, ChunkMs: 10}, fill, listener, stop)

	deadline := time.After(2 * time.Second)
	for listener.count() < 3 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for chunks")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(stop)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.states) == 0 || listener.states[0] != StatePlaying {
		t.Fatalf("expected first state transition to be playing, got %v", listener.states)
	}
}

func TestLoopChunkTimestampsAdvanceByExactDuration(t *testing.T) {
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	clock := wire.NewSteadyClock()
	listener := &recordingListener{}
	stop := make(chan struct{})

	fill := func(buf []byte) (int, error) {
		for i := range buf {
			buf[i] = 1
		}
		return len(buf), nil
	}

	go Loop(clock, Config{Format: format, ChunkMs: 10}, fill, listener, stop)

	deadline := time.After(2 * time.Second)
	for listener.count() < 6 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for chunks")
		case <-time.After(5 * time.Millisecond):
		}
	}
	close(stop)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if listener.resyncs != 0 {
		t.Skipf("loop resynced during the test run, timestamps aren't required to be contiguous (%d resyncs)", listener.resyncs)
	}
	want := audio.FromDuration(10 * time.Millisecond)
	for i := 1; i < len(listener.chunks); i++ {
		got := listener.chunks[i].Timestamp.Sub(listener.chunks[i-1].Timestamp)
		if got != want {
			t.Fatalf("chunk %d: timestamp delta = %+v, want exactly %+v", i, got, want)
		}
	}
}

func TestLoopStopsWhenStopClosed(t *testing.T) {
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	clock := wire.NewSteadyClock()
	listener := &recordingListener{}
	stop := make(chan struct{})
	close(stop)

	done := make(chan struct{})
	go func() {
		Loop(clock, Config{Format: format, ChunkMs: 10}, func(buf []byte) (int, error) { return len(buf), nil }, listener, stop)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after stop was closed")
	}
}

func TestLoopEndsOnFillError(t *testing.T) {
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2, BytesPerSample: 2}
	clock := wire.NewSteadyClock()
	listener := &recordingListener{}
	stop := make(chan struct{})

	done := make(chan struct{})
	go func() {
		Loop(clock, Config{Format: format, ChunkMs: 10}, func(buf []byte) (int, error) {
			return 0, errBoom
		}, listener, stop)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return on fill error")
	}
}
