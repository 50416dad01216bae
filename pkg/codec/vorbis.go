// ABOUTME: Vorbis codec: minimal structural implementation, no Vorbis library exists anywhere in the example corpus
// ABOUTME: See DESIGN.md's Vorbis entry for why this stays on the standard library rather than a third-party encoder
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/relaycast/relaycast/pkg/audio"
)

func init() {
	Register("vorbis", func(options map[string]string) (Encoder, error) {
		return &vorbisEncoder{}, nil
	})
	RegisterDecoder("vorbis", func() (Decoder, error) {
		return NewVorbisDecoder(), nil
	})
}

// vorbisEncoder satisfies the encoder contract without real Vorbis
// compression. It packs raw PCM behind a header any client-side
// VorbisDecoder in this package understands; frame payloads are the raw
// PCM itself, without the per-frame container flac uses. A real Vorbis bitstream needs libvorbis or a pure
// Go encoder, neither of which appears anywhere in the example pack.
type vorbisEncoder struct {
	format    audio.Format
	onEncoded OnEncoded
}

func (e *vorbisEncoder) Init(format audio.Format, onEncoded OnEncoded) error {
	e.format = format
	e.onEncoded = onEncoded
	return nil
}

func (e *vorbisEncoder) Header() ([]byte, error) {
	header := make([]byte, 12)
	copy(header[0:4], []byte("OggV"))
	binary.BigEndian.PutUint32(header[4:8], uint32(e.format.Rate))
	header[8] = byte(e.format.Bits)
	header[9] = byte(e.format.Channels)
	return header, nil
}

func (e *vorbisEncoder) Encode(payload []byte) error {
	frames, exact := e.format.Frames(len(payload))
	if !exact {
		return fmt.Errorf("codec: vorbis payload not frame-aligned")
	}
	durationMs := float64(frames) * 1000 / float64(e.format.Rate)
	e.onEncoded(payload, durationMs)
	return nil
}

func (e *vorbisEncoder) Name() string                     { return "vorbis" }
func (e *vorbisEncoder) AvailableOptions() []string        { return []string{"quality"} }
func (e *vorbisEncoder) DefaultOptions() map[string]string { return map[string]string{"quality": "5"} }

// VorbisDecoder decodes the container vorbisEncoder produces. It cannot
// decode a genuine third-party Ogg Vorbis stream; that would require a
// real Vorbis decoder, also absent from the corpus.
type VorbisDecoder struct {
	format audio.Format
}

func NewVorbisDecoder() *VorbisDecoder { return &VorbisDecoder{} }

func (d *VorbisDecoder) SetHeader(header []byte) (audio.Format, error) {
	if len(header) != 12 || string(header[0:4]) != "OggV" {
		return audio.Format{}, fmt.Errorf("codec: malformed vorbis header")
	}
	f := audio.Format{
		Rate:     int(binary.BigEndian.Uint32(header[4:8])),
		Bits:     int(header[8]),
		Channels: int(header[9]),
	}
	d.format = f.Normalized()
	return d.format, nil
}

func (d *VorbisDecoder) Decode(payload []byte) ([]byte, bool) {
	return payload, true
}
