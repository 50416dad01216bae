//go:build !linux

// ABOUTME: Non-Linux fallback: MSG_ZEROCOPY is Linux-only, so this Session always sends via the regular path
package zerocopy

import (
	"net"

	"github.com/relaycast/relaycast/internal/bufferpool"
)

// Stats mirrors the Linux build's counters; only RegularSends/BytesRegular
// are ever nonzero here.
type Stats struct {
	Attempts             int64
	Successful           int64
	RegularSends         int64
	CoordinationFallback int64
	BytesZeroCopy        int64
	BytesRegular         int64
}

// Session is a no-op zerocopy coordinator on platforms without
// MSG_ZEROCOPY; Send always writes through conn directly.
type Session struct {
	conn  *net.TCPConn
	stats Stats
}

// New always returns a Session with Available() == false on this
// platform; pool is accepted for signature parity with the Linux build
// but unused since every send takes the synchronous regular path.
func New(conn *net.TCPConn, pool *bufferpool.Pool) (*Session, error) {
	return &Session{conn: conn}, nil
}

func (s *Session) Available() bool { return false }

func (s *Session) Stats() Stats { return s.stats }

func (s *Session) Send(buf []byte) error {
	s.stats.RegularSends++
	s.stats.BytesRegular += int64(len(buf))
	_, err := s.conn.Write(buf)
	return err
}

func (s *Session) Close() {}
