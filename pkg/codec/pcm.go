// ABOUTME: PCM codec: identity encode/decode, header is a magic plus the sample-format triple big-endian
// ABOUTME: Adapted from the teacher's pkg/audio/encode.PCMEncoder and pkg/audio/decode.PCMDecoder
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/relaycast/relaycast/pkg/audio"
)

// pcmMagic identifies a PCM codec header on the wire.
var pcmMagic = [4]byte{'P', 'C', 'M', 0}

func init() {
	Register("pcm", func(options map[string]string) (Encoder, error) {
		return &pcmEncoder{}, nil
	})
	RegisterDecoder("pcm", func() (Decoder, error) {
		return NewPCMDecoder(), nil
	})
}

type pcmEncoder struct {
	format    audio.Format
	onEncoded OnEncoded
}

func (e *pcmEncoder) Init(format audio.Format, onEncoded OnEncoded) error {
	e.format = format
	e.onEncoded = onEncoded
	return nil
}

func (e *pcmEncoder) Header() ([]byte, error) {
	header := make([]byte, 16)
	copy(header[0:4], pcmMagic[:])
	binary.BigEndian.PutUint32(header[4:8], uint32(e.format.Rate))
	binary.BigEndian.PutUint32(header[8:12], uint32(e.format.Bits))
	binary.BigEndian.PutUint32(header[12:16], uint32(e.format.Channels))
	return header, nil
}

// Encode is the identity transform: PCM in, PCM out, one callback per
// call with the raw chunk's own duration.
func (e *pcmEncoder) Encode(payload []byte) error {
	frames, _ := e.format.Frames(len(payload))
	durationMs := float64(frames) * 1000 / float64(e.format.Rate)
	e.onEncoded(payload, durationMs)
	return nil
}

func (e *pcmEncoder) Name() string                     { return "pcm" }
func (e *pcmEncoder) AvailableOptions() []string        { return nil }
func (e *pcmEncoder) DefaultOptions() map[string]string { return map[string]string{} }

// PCMDecoder is the identity decoder, parsing the header PCMEncoder emits.
type PCMDecoder struct{}

func NewPCMDecoder() *PCMDecoder { return &PCMDecoder{} }

func (d *PCMDecoder) SetHeader(header []byte) (audio.Format, error) {
	if len(header) != 16 || string(header[0:3]) != "PCM" {
		return audio.Format{}, fmt.Errorf("codec: malformed pcm header")
	}
	f := audio.Format{
		Rate:     int(binary.BigEndian.Uint32(header[4:8])),
		Bits:     int(binary.BigEndian.Uint32(header[8:12])),
		Channels: int(binary.BigEndian.Uint32(header[12:16])),
	}
	return f.Normalized(), nil
}

func (d *PCMDecoder) Decode(payload []byte) ([]byte, bool) {
	return payload, true
}
