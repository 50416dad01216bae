// ABOUTME: Server-side per-client session: owns a Conn, answers Time requests, routes Hello/ClientInfo to the fan-out
// ABOUTME: Grounded on the teacher's internal/server.Client/handleConnection, generalized from websocket+JSON to the binary wire protocol
package session

import (
	"log"
	"net"

	"github.com/relaycast/relaycast/internal/bufferpool"
	"github.com/relaycast/relaycast/pkg/wire"
)

// Registry receives session lifecycle and client-state events. The
// fan-out server implements this to bind sessions to streams and track
// mute/volume state without this package depending on it directly.
type Registry interface {
	OnClientHello(s *Session, hello wire.Hello)
	OnClientInfo(s *Session, info wire.ClientInfo)
	OnSessionClosed(s *Session)
}

// Session is one connected client: its framed Conn plus the
// stream/mute/volume state the fan-out and control layer mutate.
type Session struct {
	conn     *Conn
	registry Registry

	ID         string
	StreamID   string // pcm_stream binding; empty means "the default stream"
	Muted      bool
	Volume     int
	CodecName  string
	ClientInfo wire.Hello
}

// NewSession wraps netConn (already accepted and NO_DELAY-configured by
// the fan-out) in a Session. Call Start to begin its receive/send loops.
func NewSession(netConn net.Conn, clock wire.Clock, registry Registry) *Session {
	s := &Session{registry: registry, Volume: 100}
	s.conn = New(netConn, clock, s)
	return s
}

// Start begins the session's receive/send loops. Blocks until closed.
func (s *Session) Start() { s.conn.Start() }

// Close terminates the session's connection.
func (s *Session) Close() error { return s.conn.Close() }

// Send enqueues an unsolicited message to this client (CodecHeader,
// WireChunk, ServerSettings).
func (s *Session) Send(body wire.Body) error { return s.conn.Send(body) }

// EnableZeroCopy routes this session's outbound writes through sender
// instead of the raw connection. Call before Start.
func (s *Session) EnableZeroCopy(sender ZeroCopySender) { s.conn.SetZeroCopy(sender) }

// SetPool routes this session's inbound receive-buffer allocation
// through pool. Call before Start.
func (s *Session) SetPool(pool *bufferpool.Pool) { s.conn.SetPool(pool) }

// Info is a read-only snapshot of a session's identity and state, for
// display by internal/tui.
type Info struct {
	ID         string
	ClientName string
	StreamID   string
	Codec      string
	Muted      bool
	Volume     int
}

// Snapshot returns the session's current Info.
func (s *Session) Snapshot() Info {
	return Info{
		ID:         s.ID,
		ClientName: s.ClientInfo.ClientName,
		StreamID:   s.StreamID,
		Codec:      s.CodecName,
		Muted:      s.Muted,
		Volume:     s.Volume,
	}
}

func (s *Session) OnHello(_ *Conn, hello wire.Hello) error {
	s.ClientInfo = hello
	s.ID = hello.ID
	if s.ID == "" {
		s.ID = hello.Mac
	}
	log.Printf("session: hello from %s (%s), instance %d", hello.ClientName, s.ID, hello.Instance)
	s.registry.OnClientHello(s, hello)
	return nil
}

func (s *Session) OnMessage(_ *Conn, msg wire.Message) error {
	if info, ok := msg.Body.(wire.ClientInfo); ok {
		s.registry.OnClientInfo(s, info)
		return nil
	}
	log.Printf("session: unsolicited message type %s from %s ignored", msg.Header.Type, s.ID)
	return nil
}

// OnTime answers a client's time request synchronously: the response's
// Latency is the server's own processing delta for this request
// (header-provided receive minus send timestamps), per spec 6; the
// header's Sent/Received fields are restamped by EncodeMessage/
// DecodeBody as usual.
func (s *Session) OnTime(_ *Conn, header wire.Header, incoming wire.Time) wire.Time {
	latency := header.Received.Sub(header.Sent)
	return wire.Time{
		Latency: latency,
		Version: incoming.Version,
	}
}

func (s *Session) OnClosed(_ *Conn, err error) {
	if err != nil {
		log.Printf("session: %s closed: %v", s.ID, err)
	} else {
		log.Printf("session: %s closed", s.ID)
	}
	s.registry.OnSessionClosed(s)
}
