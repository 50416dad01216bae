// ABOUTME: Reads raw PCM from a regular file, optionally looping back to the start at EOF
package source

import (
	"io"
	"os"
	"sync"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// FileReader reads PCM frames sequentially from a file. With Loop unset,
// EOF starves the stream (silence, then idle, per the common dryout
// policy); with Loop set, EOF seeks back to offset 0.
type FileReader struct {
	Path   string
	Loop   bool
	Clock  wire.Clock
	Config Config

	mu   sync.Mutex
	file *os.File
	stop chan struct{}
}

func NewFileReader(clock wire.Clock, path string, loop bool, format audio.Format, chunkMs int) *FileReader {
	return &FileReader{
		Path:   path,
		Loop:   loop,
		Clock:  clock,
		Config: Config{Format: format, ChunkMs: chunkMs},
		stop:   make(chan struct{}),
	}
}

func (r *FileReader) Format() audio.Format { return r.Config.Format }

func (r *FileReader) Start(listener Listener) error {
	f, err := os.Open(r.Path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.file = f
	r.mu.Unlock()
	defer f.Close()

	Loop(r.Clock, r.Config, r.fill, listener, r.stop)
	return nil
}

func (r *FileReader) Stop() { close(r.stop) }

func (r *FileReader) fill(buf []byte) (int, error) {
	r.mu.Lock()
	f := r.file
	r.mu.Unlock()

	n, err := io.ReadFull(f, buf)
	switch err {
	case nil:
		return n, nil
	case io.ErrUnexpectedEOF:
		if r.Loop {
			f.Seek(0, io.SeekStart)
		}
		return n, nil
	case io.EOF:
		if r.Loop {
			if _, serr := f.Seek(0, io.SeekStart); serr != nil {
				return 0, serr
			}
			return 0, nil
		}
		return 0, nil
	default:
		return n, nil
	}
}
