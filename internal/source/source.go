// ABOUTME: Common read-loop contract shared by every source reader variant
// ABOUTME: Grounded on the teacher's internal/server/audio_source.go ticking loop, generalized to wall-clock pacing against a wire.Clock
package source

import (
	"log"
	"time"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// State is the silence-derived playback state a reader reports to its
// listener.
type State int

const (
	StateIdle State = iota
	StatePlaying
)

func (s State) String() string {
	if s == StatePlaying {
		return "playing"
	}
	return "idle"
}

// Listener receives chunks, resync notifications and state transitions.
// Every callback runs on the reader's own loop goroutine.
type Listener interface {
	OnChunk(c audio.Chunk)
	OnResync(lag time.Duration)
	OnStateChange(s State)
}

// resyncTolerance is the maximum acceptable lateness before a tick resets
// its anchor instead of continuing to chase it.
const resyncTolerance = 50 * time.Millisecond

// Fill produces one tick's worth of payload into buf, returning the
// number of bytes actually filled. A short fill (n < len(buf)) is padded
// with silence by Loop, not treated as an error; err is reserved for
// unrecoverable source failures that should end the reader.
type Fill func(buf []byte) (n int, err error)

// Config parameterizes Loop. Zero values are normalized to spec defaults.
type Config struct {
	Format          audio.Format
	ChunkMs         int // default 20, minimum 10
	DryoutMs        int // default 2000: continuous silence before further silent chunks are dropped
	IdleThresholdMs int // default = DryoutMs: cumulative silence before state -> idle
}

func (c *Config) normalize() {
	if c.ChunkMs < 10 {
		c.ChunkMs = 20
	}
	if c.DryoutMs <= 0 {
		c.DryoutMs = 2000
	}
	if c.IdleThresholdMs <= 0 {
		c.IdleThresholdMs = c.DryoutMs
	}
}

// Loop runs the read loop common to every variant until stop is closed:
// wall-clock-paced ticks, drift/resync, starvation-to-silence and
// idle/playing state tracking. fill supplies each tick's raw payload.
func Loop(clock wire.Clock, cfg Config, fill Fill, listener Listener, stop <-chan struct{}) {
	cfg.normalize()
	chunkDuration := time.Duration(cfg.ChunkMs) * time.Millisecond
	chunkDurationTv := audio.FromDuration(chunkDuration)
	bufSize := cfg.Format.BytesForDuration(cfg.ChunkMs)

	state := StateIdle
	var silentMs int
	var nextTick time.Time
	var nextTimestamp audio.Timeval
	var haveTimestamp bool
	var droppedSilence bool

	for {
		select {
		case <-stop:
			return
		default:
		}

		buf := make([]byte, bufSize)
		n, err := fill(buf)
		if err != nil {
			log.Printf("source: read error: %v", err)
			return
		}
		silent := n < bufSize
		if silent {
			for i := n; i < bufSize; i++ {
				buf[i] = 0
			}
		}

		if nextTick.IsZero() {
			nextTick = time.Now()
		}
		if !haveTimestamp {
			nextTimestamp = clock.Now().Sub(chunkDurationTv)
			haveTimestamp = true
		}

		if silent {
			silentMs += cfg.ChunkMs
		} else {
			silentMs = 0
			droppedSilence = false
		}

		// Beyond dryout, keep ticking (so pacing/resync stays correct) but
		// stop handing further silent chunks to the listener.
		emit := !silent || silentMs <= cfg.DryoutMs
		if silent && !emit && !droppedSilence {
			droppedSilence = true
		}
		if emit {
			listener.OnChunk(audio.Chunk{Format: cfg.Format, Timestamp: nextTimestamp, Payload: buf})
		}

		switch state {
		case StateIdle:
			if !silent {
				state = StatePlaying
				listener.OnStateChange(state)
			}
		case StatePlaying:
			if silentMs >= cfg.IdleThresholdMs {
				state = StateIdle
				listener.OnStateChange(state)
			}
		}

		nextTick = nextTick.Add(chunkDuration)
		nextTimestamp = nextTimestamp.Add(chunkDurationTv)
		lag := time.Since(nextTick)
		if lag > resyncTolerance {
			listener.OnResync(lag)
			nextTick = time.Now()
			haveTimestamp = false
			continue
		}

		if sleepFor := time.Until(nextTick); sleepFor > 0 {
			select {
			case <-stop:
				return
			case <-time.After(sleepFor):
			}
		}
	}
}

// Reader is the contract every source variant satisfies. Start blocks
// until Stop is called or the source fails unrecoverably.
type Reader interface {
	Start(listener Listener) error
	Stop()
	Format() audio.Format
}
