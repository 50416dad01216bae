// ABOUTME: Reads raw PCM from a named pipe (FIFO), re-opening on EOF
// ABOUTME: Grounded on the teacher's file-backed AudioEngine reader, generalized to a reopen-on-EOF FIFO contract
package source

import (
	"io"
	"os"
	"sync"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// PipeReader reads PCM frames from a named pipe at Path. A FIFO writer
// closing its end produces EOF, not a fatal error: the reader re-opens
// and keeps going, filling silence in the gap.
type PipeReader struct {
	Path   string
	Clock  wire.Clock
	Config Config

	mu   sync.Mutex
	file *os.File
	stop chan struct{}
}

func NewPipeReader(clock wire.Clock, path string, format audio.Format, chunkMs int) *PipeReader {
	return &PipeReader{
		Path:   path,
		Clock:  clock,
		Config: Config{Format: format, ChunkMs: chunkMs},
		stop:   make(chan struct{}),
	}
}

func (r *PipeReader) Format() audio.Format { return r.Config.Format }

func (r *PipeReader) Start(listener Listener) error {
	Loop(r.Clock, r.Config, r.fill, listener, r.stop)
	return nil
}

func (r *PipeReader) Stop() {
	close(r.stop)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		r.file.Close()
	}
}

func (r *PipeReader) fill(buf []byte) (int, error) {
	r.mu.Lock()
	f := r.file
	r.mu.Unlock()

	if f == nil {
		opened, err := os.OpenFile(r.Path, os.O_RDONLY, 0)
		if err != nil {
			return 0, nil // not yet available: treat as starvation, not fatal
		}
		r.mu.Lock()
		r.file = opened
		r.mu.Unlock()
		f = opened
	}

	n, err := io.ReadFull(f, buf)
	if err == io.ErrUnexpectedEOF {
		return n, nil
	}
	if err == io.EOF {
		r.mu.Lock()
		f.Close()
		r.file = nil
		r.mu.Unlock()
		return 0, nil
	}
	if err != nil {
		return n, nil
	}
	return n, nil
}
