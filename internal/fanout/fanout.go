// ABOUTME: Binds accepted sessions to streams and fans each stream's encoded chunks out to its bound sessions
// ABOUTME: Grounded on the teacher's internal/server.Server accept loop and broadcastToClients pattern, generalized from one audio engine to many named streams
package fanout

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/relaycast/relaycast/internal/bufferpool"
	"github.com/relaycast/relaycast/internal/session"
	"github.com/relaycast/relaycast/internal/stream"
	"github.com/relaycast/relaycast/internal/zerocopy"
	"github.com/relaycast/relaycast/pkg/wire"
)

const (
	acceptDeadline = 5 * time.Second
	diagInterval   = 30 * time.Second
)

// Server accepts client connections, wraps each in a session, and binds
// it to a stream. Streams register themselves and are tried in
// registration order when a session requests the default stream.
type Server struct {
	clock       wire.Clock
	pool        *bufferpool.Pool
	sendToMuted bool
	zeroCopy    bool

	listener    net.Listener
	httpServers []*http.Server

	mu          sync.Mutex
	streamOrder []string
	streams     map[string]*stream.Stream
	sessions    map[*session.Session]net.Conn
	zcSessions  map[*session.Session]*zerocopy.Session

	stop chan struct{}
	bg   errgroup.Group // background goroutines (diagnosticsLoop) joined by Stop
}

// New constructs a fan-out server. pool backs every session's receive
// buffers and zerocopy sends and is read by the periodic diagnostics
// snapshot; sendToMuted, if true, disables the default
// behavior of skipping muted sessions on fan-out. zeroCopy, if true,
// attempts a kernel zerocopy send path on every plain TCP session
// (per spec §4.H); it has no effect on WebSocket sessions, which have
// no raw socket to coordinate against.
func New(clock wire.Clock, pool *bufferpool.Pool, sendToMuted, zeroCopy bool) *Server {
	return &Server{
		clock:       clock,
		pool:        pool,
		sendToMuted: sendToMuted,
		zeroCopy:    zeroCopy,
		streams:     make(map[string]*stream.Stream),
		sessions:    make(map[*session.Session]net.Conn),
		zcSessions:  make(map[*session.Session]*zerocopy.Session),
		stop:        make(chan struct{}),
	}
}

// AddStream registers st, available to sessions under its own ID and as
// a default-stream candidate in registration order.
func (s *Server) AddStream(st *stream.Stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[st.ID] = st
	s.streamOrder = append(s.streamOrder, st.ID)
}

// defaultStreamLocked returns the first registered stream whose codec
// isn't "null"; null streams exist only to feed a meta stream and are
// never a session's implicit default.
func (s *Server) defaultStreamLocked() *stream.Stream {
	for _, id := range s.streamOrder {
		if st := s.streams[id]; st != nil && !st.IsNull() {
			return st
		}
	}
	return nil
}

func (s *Server) streamForLocked(id string) *stream.Stream {
	if id == "" {
		return s.defaultStreamLocked()
	}
	return s.streams[id]
}

// Serve listens on addr and accepts connections until Stop is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.bg.Go(func() error {
		s.diagnosticsLoop()
		return nil
	})

	log.Printf("fanout: listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
				log.Printf("fanout: accept error: %v", err)
				continue
			}
		}
		s.handleAccept(conn)
	}
}

func (s *Server) handleAccept(conn net.Conn) {
	sess := session.NewSession(conn, s.clock, s)
	sess.SetPool(s.pool)

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetDeadline(time.Now().Add(acceptDeadline))

		if s.zeroCopy {
			zc, err := zerocopy.New(tcp, s.pool)
			if err != nil {
				log.Printf("fanout: zerocopy setup failed for %s: %v", conn.RemoteAddr(), err)
			} else {
				sess.EnableZeroCopy(zc)
				s.mu.Lock()
				s.zcSessions[sess] = zc
				s.mu.Unlock()
			}
		}
	}

	s.mu.Lock()
	s.sessions[sess] = conn
	s.mu.Unlock()

	log.Printf("fanout: accepted connection from %s", conn.RemoteAddr())
	go sess.Start()
}

// Stop closes the listener, then fans the shutdown of every WebSocket
// HTTP server and every active session out across its own errgroup so
// a slow client's Close can't hold up the rest, joins on the result,
// and finally waits for background loops (diagnosticsLoop) to exit.
func (s *Server) Stop() {
	close(s.stop)
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	httpServers := append([]*http.Server(nil), s.httpServers...)
	sessions := make([]*session.Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var shutdown errgroup.Group
	for _, hs := range httpServers {
		hs := hs
		shutdown.Go(hs.Close)
	}
	for _, sess := range sessions {
		sess := sess
		shutdown.Go(sess.Close)
	}
	if err := shutdown.Wait(); err != nil {
		log.Printf("fanout: error closing down: %v", err)
	}

	s.bg.Wait()
}

// OnClientHello binds a newly introduced session to the stream it asked
// for (ServerSettings/CodecHeader follow via Stream.AddListener), or the
// default stream if it didn't name one.
func (s *Server) OnClientHello(sess *session.Session, hello wire.Hello) {
	s.mu.Lock()
	st := s.streamForLocked(sess.StreamID)
	if conn, ok := s.sessions[sess]; ok {
		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetDeadline(time.Time{})
		}
	}
	s.mu.Unlock()

	if st == nil {
		log.Printf("fanout: session %s: no stream available to bind", sess.ID)
		return
	}

	st.AddListener(sess.ID, &sessionListener{server: s, session: sess})
	sess.Send(wire.ServerSettings{BufferMs: 1000, Latency: 0, Volume: sess.Volume, Muted: sess.Muted})
}

// OnClientInfo logs the arrival of a ClientInfo update. The wire
// protocol carries ClientInfo as an opaque JSON blob (per-client schema
// varies); its fields are not parsed here, and the session's
// volume/mute state is left unchanged.
func (s *Server) OnClientInfo(sess *session.Session, info wire.ClientInfo) {
	log.Printf("fanout: client info from %s (%d bytes)", sess.ID, len(info.Raw))
}

// OnSessionClosed unbinds sess from every stream and drops it from the
// active set.
func (s *Server) OnSessionClosed(sess *session.Session) {
	s.mu.Lock()
	for _, st := range s.streams {
		st.RemoveListener(sess.ID)
	}
	delete(s.sessions, sess)
	zc, hadZC := s.zcSessions[sess]
	delete(s.zcSessions, sess)
	s.mu.Unlock()
	if hadZC {
		zc.Close()
	}
	log.Printf("fanout: session %s removed", sess.ID)
}

// Snapshot is a read-only view of the fan-out's live state, for
// internal/tui; building it never touches anything that playback
// timing depends on.
type Snapshot struct {
	Sessions     []session.Info
	Streams      []stream.Info
	ZeroCopy     bool
	ZCAttempts   int64
	ZCSuccessful int64
}

// Snapshot assembles the server's current sessions, streams, and
// zero-copy aggregate counters.
func (s *Server) Snapshot() Snapshot {
	s.mu.Lock()
	sessions := make([]session.Info, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess.Snapshot())
	}
	streamIDs := append([]string(nil), s.streamOrder...)
	streams := s.streams
	var zcAttempts, zcSuccessful int64
	for _, zc := range s.zcSessions {
		st := zc.Stats()
		zcAttempts += st.Attempts
		zcSuccessful += st.Successful
	}
	s.mu.Unlock()

	streamInfos := make([]stream.Info, 0, len(streamIDs))
	for _, id := range streamIDs {
		if st := streams[id]; st != nil {
			streamInfos = append(streamInfos, st.Snapshot())
		}
	}

	return Snapshot{
		Sessions:     sessions,
		Streams:      streamInfos,
		ZeroCopy:     s.zeroCopy,
		ZCAttempts:   zcAttempts,
		ZCSuccessful: zcSuccessful,
	}
}

// diagnosticsLoop logs buffer pool occupancy every 30s, matching the
// teacher's periodic engine-health log.
func (s *Server) diagnosticsLoop() {
	ticker := time.NewTicker(diagInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			sessionCount := len(s.sessions)
			var zcAttempts, zcSuccessful int64
			for _, zc := range s.zcSessions {
				st := zc.Stats()
				zcAttempts += st.Attempts
				zcSuccessful += st.Successful
			}
			s.mu.Unlock()

			if s.pool != nil {
				stats := s.pool.Snapshot()
				log.Printf("fanout: diagnostics sessions=%d pool_total=%d pool_available=%d bytes=%d reused=%d",
					sessionCount, stats.Total, stats.Available, stats.BytesAllocated, stats.BuffersReused)
			}
			if s.zeroCopy {
				log.Printf("fanout: diagnostics zerocopy_attempts=%d zerocopy_successful=%d", zcAttempts, zcSuccessful)
			}
		case <-s.stop:
			return
		}
	}
}

// sessionListener adapts a bound session into a stream.Listener,
// applying the mute filter at send time.
type sessionListener struct {
	server  *Server
	session *session.Session
}

func (l *sessionListener) OnCodecHeader(name string, header []byte) {
	if err := l.session.Send(wire.CodecHeader{CodecName: name, Header: header}); err != nil {
		log.Printf("fanout: session %s: send codec header: %v", l.session.ID, err)
	}
}

func (l *sessionListener) OnWireChunk(chunk wire.WireChunk) {
	if l.session.Muted && !l.server.sendToMuted {
		return
	}
	if err := l.session.Send(chunk); err != nil {
		log.Printf("fanout: session %s: send chunk: %v", l.session.ID, err)
	}
}
