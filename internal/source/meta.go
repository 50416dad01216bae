// ABOUTME: Composes several child readers into one logical stream, following whichever child is playing
// ABOUTME: Grounded on spec 4.C's meta-reader selection rule; resampling uses internal/source/resample, adapted from the teacher's sample-rate converter
package source

import (
	"sync"
	"time"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"

	"github.com/relaycast/relaycast/internal/source/resample"
)

// MetaReader holds an ordered list of child readers and forwards the
// active one's chunks, resampling when the child's format differs from
// the meta stream's own format. Property changes of the children are not
// mirrored by this type; only chunks and resync notices are forwarded.
type MetaReader struct {
	Children []Reader
	Clock    wire.Clock
	Format_  audio.Format

	mu         sync.Mutex
	states     []State
	active     int
	resamplers map[int]*resample.Resampler
	listener   Listener
	stop       chan struct{}
}

func NewMetaReader(clock wire.Clock, format audio.Format, children []Reader) *MetaReader {
	return &MetaReader{
		Children:   children,
		Clock:      clock,
		Format_:    format,
		states:     make([]State, len(children)),
		resamplers: make(map[int]*resample.Resampler),
		stop:       make(chan struct{}),
	}
}

func (r *MetaReader) Format() audio.Format { return r.Format_ }

// Start runs every child reader concurrently and forwards chunks from
// whichever is currently selected, per the spec's "first playing, else
// first" rule.
func (r *MetaReader) Start(listener Listener) error {
	r.listener = listener
	var wg sync.WaitGroup
	for i, child := range r.Children {
		i, child := i, child
		wg.Add(1)
		go func() {
			defer wg.Done()
			child.Start(&childListener{meta: r, index: i})
		}()
	}
	<-r.stop
	for _, child := range r.Children {
		child.Stop()
	}
	wg.Wait()
	return nil
}

func (r *MetaReader) Stop() { close(r.stop) }

func (r *MetaReader) selectActiveLocked() int {
	for i, s := range r.states {
		if s == StatePlaying {
			return i
		}
	}
	return 0
}

type childListener struct {
	meta  *MetaReader
	index int
}

func (c *childListener) OnStateChange(s State) {
	c.meta.mu.Lock()
	defer c.meta.mu.Unlock()
	c.meta.states[c.index] = s
	c.meta.active = c.meta.selectActiveLocked()
}

func (c *childListener) OnResync(lag time.Duration) {
	c.meta.mu.Lock()
	isActive := c.index == c.meta.active
	c.meta.mu.Unlock()
	if isActive {
		c.meta.listener.OnResync(lag)
	}
}

func (c *childListener) OnChunk(chunk audio.Chunk) {
	m := c.meta
	m.mu.Lock()
	isActive := c.index == m.active
	m.mu.Unlock()
	if !isActive {
		return
	}

	if chunk.Format.Rate == m.Format_.Rate && chunk.Format.Bits == m.Format_.Bits && chunk.Format.Channels == m.Format_.Channels {
		m.listener.OnChunk(audio.Chunk{Format: m.Format_, Timestamp: chunk.Timestamp, Payload: chunk.Payload})
		return
	}

	m.mu.Lock()
	rs, ok := m.resamplers[c.index]
	if !ok {
		rs = resample.New(chunk.Format.Rate, m.Format_.Rate, m.Format_.Channels)
		m.resamplers[c.index] = rs
	}
	m.mu.Unlock()

	in := bytesToInt32(chunk.Payload, chunk.Format.Bits)
	out := make([]int32, rs.OutputSamplesNeeded(len(in))+m.Format_.Channels)
	n := rs.Resample(in, out)
	payload := int32ToBytes(out[:n], m.Format_.Bits)
	m.listener.OnChunk(audio.Chunk{Format: m.Format_, Timestamp: chunk.Timestamp, Payload: payload})
}

func bytesToInt32(payload []byte, bits int) []int32 {
	bps := (bits + 7) / 8
	if bits == 24 {
		bps = 4
	}
	if bps == 0 {
		return nil
	}
	out := make([]int32, len(payload)/bps)
	for i := range out {
		off := i * bps
		var v int32
		for b := bps - 1; b >= 0; b-- {
			v = (v << 8) | int32(payload[off+b])
		}
		shift := uint(32 - bits)
		if bits == 24 {
			shift = 8
		}
		out[i] = (v << shift) >> shift
	}
	return out
}

func int32ToBytes(samples []int32, bits int) []byte {
	bps := (bits + 7) / 8
	if bits == 24 {
		bps = 4
	}
	out := make([]byte, len(samples)*bps)
	for i, v := range samples {
		off := i * bps
		for b := 0; b < bps; b++ {
			out[off+b] = byte(v)
			v >>= 8
		}
	}
	return out
}
