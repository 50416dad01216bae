// ABOUTME: Reads MP3 from a file, decoding to PCM via go-mp3, looping back to the start at EOF
// ABOUTME: Grounded on the teacher's internal/server.MP3Source, adapted from its int32-sample engine to relaycast's raw-byte Fill contract
package source

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hajimehoshi/go-mp3"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// MP3FileReader decodes an MP3 file to PCM, looping back to the start at
// EOF when Loop is set. go-mp3 always decodes to 16-bit little-endian
// stereo at the stream's native sample rate, so unlike FileReader the
// sample format isn't a caller input: it's probed from the file itself.
type MP3FileReader struct {
	Path    string
	Loop    bool
	Clock   wire.Clock
	ChunkMs int

	mu      sync.Mutex
	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
	stop    chan struct{}
}

// NewMP3FileReader opens path and decodes its MP3 header far enough to
// learn the stream's sample rate, so Format is accurate before Start is
// ever called.
func NewMP3FileReader(clock wire.Clock, path string, loop bool, chunkMs int) (*MP3FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open mp3 %s: %w", path, err)
	}
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("source: decode mp3 %s: %w", path, err)
	}

	format := audio.Format{Rate: decoder.SampleRate(), Bits: 16, Channels: 2}.Normalized()

	return &MP3FileReader{
		Path:    path,
		Loop:    loop,
		Clock:   clock,
		ChunkMs: chunkMs,
		file:    f,
		decoder: decoder,
		format:  format,
		stop:    make(chan struct{}),
	}, nil
}

func (r *MP3FileReader) Format() audio.Format { return r.format }

func (r *MP3FileReader) Start(listener Listener) error {
	defer r.file.Close()
	Loop(r.Clock, Config{Format: r.format, ChunkMs: r.ChunkMs}, r.fill, listener, r.stop)
	return nil
}

func (r *MP3FileReader) Stop() { close(r.stop) }

// fill reads decoded PCM bytes straight off the mp3.Decoder, which
// itself implements io.Reader; on EOF it either reopens a fresh decoder
// at the start of the file (Loop) or reports silence for the rest of the
// tick, same as FileReader.
func (r *MP3FileReader) fill(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := io.ReadFull(r.decoder, buf)
	switch err {
	case nil:
		return n, nil
	case io.ErrUnexpectedEOF, io.EOF:
		if !r.Loop {
			return n, nil
		}
		if _, serr := r.file.Seek(0, io.SeekStart); serr != nil {
			return n, serr
		}
		decoder, derr := mp3.NewDecoder(r.file)
		if derr != nil {
			return n, derr
		}
		r.decoder = decoder
		return n, nil
	default:
		return n, err
	}
}
