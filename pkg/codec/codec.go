// ABOUTME: Encoder/decoder contracts shared by the stream's encoder pipeline and the client controller
// ABOUTME: Adapted from the teacher's pkg/audio/encode.Encoder and pkg/audio/decode.Decoder, generalized to chunk-in/chunk-out with a header exchange
package codec

import (
	"fmt"

	"github.com/relaycast/relaycast/pkg/audio"
)

// OnEncoded is invoked zero or more times per Encode call; durationMs
// reflects the encoded payload's own duration, which may differ from the
// raw chunk's duration for encoders that buffer across calls.
type OnEncoded func(payload []byte, durationMs float64)

// Encoder converts raw PCM chunks into codec chunks. Implementations may
// buffer across Encode calls; none of the built-in codecs does, each
// emits one encoded unit per Encode call.
type Encoder interface {
	// Init binds the encoder to a sample format and registers the
	// callback invoked for each encoded unit.
	Init(format audio.Format, onEncoded OnEncoded) error

	// Header returns the codec header sent once to every new session
	// bound to this stream.
	Header() ([]byte, error)

	// Encode submits one raw chunk's payload.
	Encode(payload []byte) error

	Name() string
	AvailableOptions() []string
	DefaultOptions() map[string]string
}

// Decoder converts codec chunks back into raw PCM, used client-side.
type Decoder interface {
	// SetHeader parses the codec header and returns the sample format it
	// describes. May return an error on a malformed header (fails the
	// whole stream per spec 7).
	SetHeader(header []byte) (audio.Format, error)

	// Decode returns the decoded PCM for payload (which may share
	// payload's backing array) and false on corrupt input.
	Decode(payload []byte) ([]byte, bool)
}

// Factory constructs an encoder for a codec name with the given
// options (from the stream URI's query string).
type Factory func(options map[string]string) (Encoder, error)

var registry = map[string]Factory{}

// Register adds a codec factory under name; built-in codecs self-register
// via init().
func Register(name string, f Factory) {
	registry[name] = f
}

// New constructs the named codec's encoder.
func New(name string, options map[string]string) (Encoder, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return f(options)
}

// DecoderFactory constructs a fresh decoder for a codec name.
type DecoderFactory func() (Decoder, error)

var decoderRegistry = map[string]DecoderFactory{}

// RegisterDecoder adds a decoder factory under name; built-in codecs
// self-register via init() alongside their encoder.
func RegisterDecoder(name string, f DecoderFactory) {
	decoderRegistry[name] = f
}

// NewDecoder constructs the named codec's decoder, used client-side once
// a CodecHeader names which codec the stream is using.
func NewDecoder(name string) (Decoder, error) {
	f, ok := decoderRegistry[name]
	if !ok {
		return nil, fmt.Errorf("codec: no decoder registered for %q", name)
	}
	return f()
}

// Available lists every registered codec name.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
