// ABOUTME: Reads raw PCM over TCP, either dialing out (client mode) or accepting one inbound connection (server mode)
package source

import (
	"io"
	"net"
	"sync"

	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

// TCPReader reads PCM frames from a TCP connection. In server mode it
// listens on Addr and accepts (and re-accepts, on disconnect) a single
// producer; in client mode it dials Addr and redials on disconnect.
type TCPReader struct {
	Addr   string
	Server bool
	Clock  wire.Clock
	Config Config

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
	stop     chan struct{}
}

func NewTCPReader(clock wire.Clock, addr string, server bool, format audio.Format, chunkMs int) *TCPReader {
	return &TCPReader{
		Addr:   addr,
		Server: server,
		Clock:  clock,
		Config: Config{Format: format, ChunkMs: chunkMs},
		stop:   make(chan struct{}),
	}
}

func (r *TCPReader) Format() audio.Format { return r.Config.Format }

func (r *TCPReader) Start(listener Listener) error {
	if r.Server {
		l, err := net.Listen("tcp", r.Addr)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.listener = l
		r.mu.Unlock()
		defer l.Close()
	}

	Loop(r.Clock, r.Config, r.fill, listener, r.stop)
	return nil
}

func (r *TCPReader) Stop() {
	close(r.stop)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
	}
	if r.listener != nil {
		r.listener.Close()
	}
}

func (r *TCPReader) conn_() net.Conn {
	r.mu.Lock()
	c := r.conn
	r.mu.Unlock()
	return c
}

func (r *TCPReader) connect() net.Conn {
	var c net.Conn
	var err error
	if r.Server {
		r.mu.Lock()
		l := r.listener
		r.mu.Unlock()
		if l == nil {
			return nil
		}
		c, err = l.Accept()
	} else {
		c, err = net.Dial("tcp", r.Addr)
	}
	if err != nil {
		return nil
	}
	r.mu.Lock()
	r.conn = c
	r.mu.Unlock()
	return c
}

func (r *TCPReader) fill(buf []byte) (int, error) {
	c := r.conn_()
	if c == nil {
		c = r.connect()
		if c == nil {
			return 0, nil
		}
	}

	n, err := io.ReadFull(c, buf)
	if err == io.ErrUnexpectedEOF {
		return n, nil
	}
	if err != nil {
		c.Close()
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		return 0, nil
	}
	return n, nil
}
