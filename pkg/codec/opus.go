// ABOUTME: Opus codec: 48kHz-only encoder/decoder pair over gopkg.in/hraban/opus.v2
// ABOUTME: Adapted from the teacher's pkg/audio/encode.OpusEncoder and pkg/audio/decode.OpusDecoder
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/relaycast/relaycast/pkg/audio"
	opus "gopkg.in/hraban/opus.v2"
)

// opusSampleRate is the only sample rate the spec allows for Opus.
const opusSampleRate = 48000

// opusValidFrameMs are the allowed Opus frame durations.
var opusValidFrameMs = map[float64]bool{2.5: true, 5: true, 10: true, 20: true, 40: true, 60: true}

func init() {
	Register("opus", func(options map[string]string) (Encoder, error) {
		return &opusEncoder{frameMs: 20}, nil
	})
	RegisterDecoder("opus", func() (Decoder, error) {
		return NewOpusDecoder(), nil
	})
}

type opusEncoder struct {
	enc       *opus.Encoder
	format    audio.Format
	onEncoded OnEncoded
	frameMs   float64
}

func (e *opusEncoder) Init(format audio.Format, onEncoded OnEncoded) error {
	if format.Rate != opusSampleRate {
		return fmt.Errorf("codec: opus requires sample rate %d, got %d", opusSampleRate, format.Rate)
	}
	if !opusValidFrameMs[e.frameMs] {
		return fmt.Errorf("codec: opus frame size %gms not in {2.5,5,10,20,40,60}", e.frameMs)
	}
	enc, err := opus.NewEncoder(format.Rate, format.Channels, opus.AppAudio)
	if err != nil {
		return fmt.Errorf("codec: opus encoder: %w", err)
	}
	e.enc = enc
	e.format = format
	e.onEncoded = onEncoded
	return nil
}

func (e *opusEncoder) Header() ([]byte, error) {
	// OpusHead-style minimal header: sample rate and channel count, the
	// only fields the corresponding decoder needs to reconstruct Format.
	header := make([]byte, 8)
	binary.BigEndian.PutUint32(header[0:4], uint32(e.format.Rate))
	binary.BigEndian.PutUint32(header[4:8], uint32(e.format.Channels))
	return header, nil
}

// Encode converts one raw PCM16LE chunk into a single Opus packet. Opus
// does not buffer across calls in this codec (each call is exactly one
// frame), so one callback fires per Encode.
func (e *opusEncoder) Encode(payload []byte) error {
	frames, exact := e.format.Frames(len(payload))
	if !exact {
		return fmt.Errorf("codec: opus payload not frame-aligned")
	}
	pcm := make([]int16, frames*e.format.Channels)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}

	out := make([]byte, 4000)
	n, err := e.enc.Encode(pcm, out)
	if err != nil {
		return fmt.Errorf("codec: opus encode: %w", err)
	}

	durationMs := float64(frames) * 1000 / float64(e.format.Rate)
	e.onEncoded(out[:n], durationMs)
	return nil
}

func (e *opusEncoder) Name() string { return "opus" }
func (e *opusEncoder) AvailableOptions() []string {
	return []string{"bitrate", "frame_ms"}
}
func (e *opusEncoder) DefaultOptions() map[string]string {
	return map[string]string{"bitrate": "192000", "frame_ms": "20"}
}

// OpusDecoder decodes Opus packets back to PCM16LE, client-side.
type OpusDecoder struct {
	dec    *opus.Decoder
	format audio.Format
}

func NewOpusDecoder() *OpusDecoder { return &OpusDecoder{} }

func (d *OpusDecoder) SetHeader(header []byte) (audio.Format, error) {
	if len(header) != 8 {
		return audio.Format{}, fmt.Errorf("codec: malformed opus header")
	}
	rate := int(binary.BigEndian.Uint32(header[0:4]))
	channels := int(binary.BigEndian.Uint32(header[4:8]))
	if rate != opusSampleRate {
		return audio.Format{}, fmt.Errorf("codec: opus requires sample rate %d, got %d", opusSampleRate, rate)
	}
	dec, err := opus.NewDecoder(rate, channels)
	if err != nil {
		return audio.Format{}, fmt.Errorf("codec: opus decoder: %w", err)
	}
	d.dec = dec
	d.format = audio.Format{Rate: rate, Bits: 16, Channels: channels, BytesPerSample: 2}
	return d.format, nil
}

func (d *OpusDecoder) Decode(payload []byte) ([]byte, bool) {
	pcm := make([]int16, 5760*d.format.Channels)
	n, err := d.dec.Decode(payload, pcm)
	if err != nil {
		return nil, false
	}
	samples := n * d.format.Channels
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(pcm[i]))
	}
	return out, true
}
