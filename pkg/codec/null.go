// ABOUTME: The null codec: marks a stream as never sent stand-alone, only usable as a meta-stream input
package codec

import (
	"fmt"

	"github.com/relaycast/relaycast/pkg/audio"
)

func init() {
	Register("null", func(options map[string]string) (Encoder, error) {
		return &nullEncoder{}, nil
	})
}

type nullEncoder struct {
	format    audio.Format
	onEncoded OnEncoded
}

func (e *nullEncoder) Init(format audio.Format, onEncoded OnEncoded) error {
	e.format = format
	e.onEncoded = onEncoded
	return nil
}

func (e *nullEncoder) Header() ([]byte, error) {
	return nil, fmt.Errorf("codec: null codec has no header, stream must not be sent stand-alone")
}

func (e *nullEncoder) Encode(payload []byte) error {
	frames, _ := e.format.Frames(len(payload))
	durationMs := float64(frames) * 1000 / float64(e.format.Rate)
	e.onEncoded(payload, durationMs)
	return nil
}

func (e *nullEncoder) Name() string                     { return "null" }
func (e *nullEncoder) AvailableOptions() []string        { return nil }
func (e *nullEncoder) DefaultOptions() map[string]string { return map[string]string{} }
