// ABOUTME: Timestamp-scheduled audio output: queues decoded chunks by play_at, drops late ones, writes on time to a persistent oto player
// ABOUTME: Grounded on the teacher's internal/player.Scheduler (heap-based play_at queue) and pkg/audio/output.Oto (io.Pipe persistent player), merged into one renderer
package renderer

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/relaycast/relaycast/internal/timesync"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

const (
	tickInterval = 10 * time.Millisecond
	dropWindow   = 50 * time.Millisecond
)

// Stats tracks renderer-level playback counters.
type Stats struct {
	Received int64
	Played   int64
	Dropped  int64
}

// item is one queued chunk, ordered by its locally-resolved play time.
type item struct {
	chunk  audio.Chunk
	playAt time.Time
}

type chunkQueue []item

func (q chunkQueue) Len() int            { return len(q) }
func (q chunkQueue) Less(i, j int) bool  { return q[i].playAt.Before(q[j].playAt) }
func (q chunkQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *chunkQueue) Push(x interface{}) { *q = append(*q, x.(item)) }
func (q *chunkQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Renderer schedules decoded PCM chunks by their wire timestamp,
// resolved to local time via a ClockSync, and writes them to a
// persistent oto player at the right moment. oto only supports one
// context per process and only 16-bit output, so the format is fixed
// by the first Open and any later format mismatch is rejected.
type Renderer struct {
	clock     wire.Clock
	clockSync *timesync.ClockSync

	mu     sync.Mutex
	queue  chunkQueue
	volume int
	muted  bool
	stats  Stats

	format     audio.Format
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter

	stop chan struct{}
	done chan struct{}
}

// New constructs a renderer that resolves wire timestamps through
// clockSync, relative to clock's own local steady-clock frame. Call
// Open once the stream's sample format is known.
func New(clock wire.Clock, clockSync *timesync.ClockSync) *Renderer {
	return &Renderer{
		clock:     clock,
		clockSync: clockSync,
		volume:    100,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Open initializes the oto context and starts the scheduling loop.
// oto supports only one context per process; calling Open a second
// time with a different format is rejected rather than silently
// ignored, since a live renderer can't actually honor it.
func (r *Renderer) Open(format audio.Format) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.otoCtx != nil {
		if format != r.format {
			return fmt.Errorf("renderer: already open at %+v, cannot reopen at %+v", r.format, format)
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.Rate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("renderer: oto context: %w", err)
	}
	<-ready

	r.otoCtx = ctx
	r.format = format
	r.pipeReader, r.pipeWriter = io.Pipe()
	r.player = ctx.NewPlayer(r.pipeReader)
	r.player.Play()

	go r.run()
	log.Printf("renderer: output open at %dHz %dch", format.Rate, format.Channels)
	return nil
}

// Enqueue schedules chunk for playback at its wire timestamp resolved
// to local time.
func (r *Renderer) Enqueue(chunk audio.Chunk) {
	localStamp := r.clockSync.ToLocal(chunk.Timestamp)
	delta := localStamp.Sub(r.clock.Now()).Duration()
	playAt := time.Now().Add(delta)

	r.mu.Lock()
	heap.Push(&r.queue, item{chunk: chunk, playAt: playAt})
	r.stats.Received++
	r.mu.Unlock()
}

func (r *Renderer) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.processQueue()
		}
	}
}

func (r *Renderer) processQueue() {
	now := time.Now()
	for {
		r.mu.Lock()
		if r.queue.Len() == 0 {
			r.mu.Unlock()
			return
		}
		next := r.queue[0]
		delay := next.playAt.Sub(now)

		if delay > dropWindow {
			r.mu.Unlock()
			return
		}
		heap.Pop(&r.queue)
		if delay < -dropWindow {
			r.stats.Dropped++
			r.mu.Unlock()
			log.Printf("renderer: dropped chunk %v late", -delay)
			continue
		}
		r.stats.Played++
		r.mu.Unlock()

		r.write(next.chunk)
	}
}

// write applies volume/mute and blocks writing the chunk's samples to
// the persistent player's pipe.
func (r *Renderer) write(chunk audio.Chunk) {
	samples := decodeInt16LE(chunk.Payload)
	samples = applyVolume(samples, r.Volume(), r.Muted())

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}

	if _, err := r.pipeWriter.Write(out); err != nil {
		log.Printf("renderer: pipe write failed: %v", err)
	}
}

func decodeInt16LE(payload []byte) []int16 {
	samples := make([]int16, len(payload)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return samples
}

func applyVolume(samples []int16, volume int, muted bool) []int16 {
	multiplier := 0.0
	if !muted {
		multiplier = float64(volume) / 100.0
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(float64(s) * multiplier)
	}
	return out
}

// SetVolume clamps and sets the playback volume, 0-100.
func (r *Renderer) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	r.mu.Lock()
	r.volume = volume
	r.mu.Unlock()
}

func (r *Renderer) Volume() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

func (r *Renderer) SetMuted(muted bool) {
	r.mu.Lock()
	r.muted = muted
	r.mu.Unlock()
}

func (r *Renderer) Muted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted
}

func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close stops the scheduling loop and releases the oto player.
func (r *Renderer) Close() error {
	close(r.stop)
	r.mu.Lock()
	opened := r.otoCtx != nil
	r.mu.Unlock()
	if opened {
		<-r.done
		r.pipeWriter.Close()
		r.player.Close()
		r.pipeReader.Close()
		r.otoCtx.Suspend()
	}
	return nil
}
