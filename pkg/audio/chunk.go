// ABOUTME: Owned PCM chunk buffer with duration arithmetic and silence detection
// ABOUTME: Mirrors the teacher's audio.Buffer but owns raw frame-aligned payload bytes, not decoded int32 samples
package audio

import "time"

// Chunk is an owned, frame-aligned slice of PCM (or, once encoded,
// codec-specific) audio. Timestamp is the monotonic start time of the
// first frame.
type Chunk struct {
	Format    Format
	Timestamp Timeval
	Payload   []byte
}

// New allocates a chunk of durationMs worth of silence in the given
// format.
func New(format Format, durationMs int) Chunk {
	return Chunk{
		Format:  format,
		Payload: make([]byte, format.BytesForDuration(durationMs)),
	}
}

// WithFrames allocates a chunk sized to hold exactly n frames.
func WithFrames(format Format, n int) Chunk {
	return Chunk{
		Format:  format,
		Payload: make([]byte, n*format.FrameSize()),
	}
}

// SetFrames reallocates the payload to hold exactly n frames, preserving
// no data (callers fill after resizing).
func (c *Chunk) SetFrames(n int) {
	c.Payload = make([]byte, n*c.Format.FrameSize())
}

// Frames returns the number of whole frames in the payload.
func (c Chunk) Frames() int {
	n, _ := c.Format.Frames(len(c.Payload))
	return n
}

// Duration returns the chunk's playback duration.
func (c Chunk) Duration() time.Duration {
	if c.Format.Rate == 0 {
		return 0
	}
	frames := c.Frames()
	return time.Duration(frames) * time.Second / time.Duration(c.Format.Rate)
}

// DurationTimeval returns the chunk's duration as a Timeval delta, for
// advancing a reader/encoder anchor.
func (c Chunk) DurationTimeval() Timeval {
	return FromDuration(c.Duration())
}

// StartTime is an alias for Timestamp, matching the spec's start_time().
func (c Chunk) StartTime() Timeval {
	return c.Timestamp
}

// EndTime returns Timestamp + Duration.
func (c Chunk) EndTime() Timeval {
	return c.Timestamp.Add(c.DurationTimeval())
}

// IsSilent reports whether every sample's absolute value is <= threshold.
// With threshold 0 this degrades to a byte-equality-with-zero check, per
// spec 4.B.
func (c Chunk) IsSilent(threshold int64) bool {
	if threshold == 0 {
		for _, b := range c.Payload {
			if b != 0 {
				return false
			}
		}
		return true
	}

	bps := c.Format.BytesPerSample
	if bps == 0 || bps > 4 {
		return false
	}
	for off := 0; off+bps <= len(c.Payload); off += bps {
		v := signedSample(c.Payload[off:off+bps], c.Format.Bits)
		if abs64(v) > threshold {
			return false
		}
	}
	return true
}

// signedSample reads a little-endian signed sample of the given bit
// width from a bps-byte (bps = ceil(bits/8), 24-bit packed into 4) slice.
func signedSample(b []byte, bits int) int64 {
	var raw int64
	for i := len(b) - 1; i >= 0; i-- {
		raw = (raw << 8) | int64(b[i])
	}
	// Sign-extend from `bits` significant bits (24-bit samples occupy the
	// low 24 bits of their 4-byte slot).
	shift := 64 - bits
	if bits == 24 {
		shift = 64 - 24
	}
	return (raw << shift) >> shift
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
