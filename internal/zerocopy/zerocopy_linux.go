// ABOUTME: Linux MSG_ZEROCOPY send path for a TCP session: CAS-reserved zerocopy attempt, async-write fallback, completion reaper
// ABOUTME: Grounded on original_source/server/stream_session_tcp_coordinated.cpp, translated from asio-strand coordination to an atomic counter plus a dedicated reaper goroutine
package zerocopy

import (
	"fmt"
	"log"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/relaycast/relaycast/internal/bufferpool"
)

// zeroCopyThreshold is the minimum buffer size worth the zerocopy
// attempt; smaller sends go straight to the regular path.
const zeroCopyThreshold = 1024

const reaperInterval = 100 * time.Millisecond

// Stats mirrors the original's per-session zerocopy counters.
type Stats struct {
	Attempts            int64
	Successful          int64
	RegularSends        int64
	CoordinationFallback int64
	BytesZeroCopy       int64
	BytesRegular        int64
}

// pendingSend tracks one outstanding zerocopy write awaiting its
// completion notification. guard is non-nil when the send buffer came
// from a pool and must be returned to it, rather than just dropped.
type pendingSend struct {
	guard *bufferpool.Guard
	buf   []byte
}

// Session coordinates zerocopy and regular sends on one TCP connection's
// file descriptor so in-order delivery is preserved: only one kind of
// async operation may be outstanding at a time.
type Session struct {
	fd        int
	available bool
	conn      *net.TCPConn
	pool      *bufferpool.Pool

	pendingAsyncOps int32 // CAS-guarded: 0 idle, 1 an operation owns the socket
	nextBufferID    uint32

	mu      sync.Mutex
	pending map[uint32]pendingSend

	stats Stats

	stopReaper chan struct{}
	doneReaper chan struct{}
}

// New enables SO_ZEROCOPY on conn's socket and returns a Session that
// prefers zerocopy sends when available, falling back to plain Write
// otherwise. The returned Session is always usable; Available reports
// whether zerocopy sends will actually be attempted. pool, if non-nil,
// backs every outstanding zerocopy send buffer so it can be returned
// once the kernel's completion notification arrives instead of just
// being dropped for GC.
func New(conn *net.TCPConn, pool *bufferpool.Pool) (*Session, error) {
	s := &Session{conn: conn, pool: pool, pending: make(map[uint32]pendingSend)}

	sc, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("zerocopy: syscall conn: %w", err)
	}

	var fd int
	if err := sc.Control(func(rawFd uintptr) { fd = int(rawFd) }); err != nil {
		return nil, fmt.Errorf("zerocopy: control: %w", err)
	}
	s.fd = fd

	err = sc.Control(func(rawFd uintptr) {
		err = unix.SetsockoptInt(int(rawFd), unix.SOL_SOCKET, unix.SO_ZEROCOPY, 1)
	})
	if err != nil {
		log.Printf("zerocopy: SO_ZEROCOPY unavailable, falling back to regular sends: %v", err)
		return s, nil
	}

	s.available = true
	s.stopReaper = make(chan struct{})
	s.doneReaper = make(chan struct{})
	go s.reaperLoop()
	return s, nil
}

// Available reports whether this session negotiated real kernel
// zerocopy support.
func (s *Session) Available() bool { return s.available }

// Stats returns a snapshot of this session's send counters.
func (s *Session) Stats() Stats {
	return Stats{
		Attempts:             atomic.LoadInt64(&s.stats.Attempts),
		Successful:           atomic.LoadInt64(&s.stats.Successful),
		RegularSends:         atomic.LoadInt64(&s.stats.RegularSends),
		CoordinationFallback: atomic.LoadInt64(&s.stats.CoordinationFallback),
		BytesZeroCopy:        atomic.LoadInt64(&s.stats.BytesZeroCopy),
		BytesRegular:         atomic.LoadInt64(&s.stats.BytesRegular),
	}
}

// tryReserve attempts the 0->1 CAS that grants exclusive use of the
// socket to one async operation at a time.
func (s *Session) tryReserve() bool {
	return atomic.CompareAndSwapInt32(&s.pendingAsyncOps, 0, 1)
}

func (s *Session) release() {
	atomic.AddInt32(&s.pendingAsyncOps, -1)
}

// Send writes buf to the connection, attempting a zerocopy send when
// available, large enough, and the socket isn't already mid-operation.
// It always returns once the bytes are either fully zero-copied into
// the kernel or fully written via the regular path.
func (s *Session) Send(buf []byte) error {
	if !s.available || len(buf) < zeroCopyThreshold {
		return s.sendRegular(buf)
	}
	if !s.tryReserve() {
		atomic.AddInt64(&s.stats.CoordinationFallback, 1)
		return s.sendRegular(buf)
	}
	return s.sendZeroCopy(buf)
}

func (s *Session) sendRegular(buf []byte) error {
	atomic.AddInt64(&s.stats.RegularSends, 1)
	atomic.AddInt64(&s.stats.BytesRegular, int64(len(buf)))
	_, err := s.conn.Write(buf)
	return err
}

func (s *Session) sendZeroCopy(buf []byte) error {
	defer s.release()
	atomic.AddInt64(&s.stats.Attempts, 1)

	sendBuf := buf
	var guard *bufferpool.Guard
	if s.pool != nil {
		guard = s.pool.Acquire(len(buf))
		copy(guard.Buf, buf)
		sendBuf = guard.Buf
	}

	n, err := unix.SendmsgN(s.fd, sendBuf, nil, nil, unix.MSG_ZEROCOPY|unix.MSG_DONTWAIT)
	if err != nil {
		guard.Release()
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.ENOBUFS {
			log.Printf("zerocopy: send would block, falling back to regular send")
			return s.sendRegular(buf)
		}
		return fmt.Errorf("zerocopy: sendmsg: %w", err)
	}

	id := atomic.AddUint32(&s.nextBufferID, 1) - 1
	atomic.AddInt64(&s.stats.Successful, 1)
	atomic.AddInt64(&s.stats.BytesZeroCopy, int64(n))

	s.mu.Lock()
	s.pending[id] = pendingSend{guard: guard, buf: sendBuf} // retained until the completion notification frees it
	s.mu.Unlock()

	if n < len(sendBuf) {
		log.Printf("zerocopy: partial send %d/%d bytes, tail via regular path", n, len(sendBuf))
		return s.sendRegular(sendBuf[n:])
	}
	return nil
}

// reaperLoop is the completion reaper: a dedicated goroutine pinned to
// one OS thread, draining MSG_ERRQUEUE every 100ms until Close.
func (s *Session) reaperLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.doneReaper)

	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopReaper:
			return
		case <-ticker.C:
			s.drainErrorQueue()
		}
	}
}

func (s *Session) drainErrorQueue() {
	control := make([]byte, 512)
	for {
		_, oobn, _, _, err := unix.Recvmsg(s.fd, nil, control, unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				log.Printf("zerocopy: error queue recv: %v", err)
			}
			return
		}
		s.handleErrorQueueMessage(control[:oobn])
	}
}

// handleErrorQueueMessage parses the cmsgs in an MSG_ERRQUEUE read for
// a SO_EE_ORIGIN_ZEROCOPY completion range and releases those buffers.
func (s *Session) handleErrorQueueMessage(control []byte) {
	messages, err := unix.ParseSocketControlMessage(control)
	if err != nil {
		log.Printf("zerocopy: parse control message: %v", err)
		return
	}
	for _, msg := range messages {
		if msg.Header.Level != unix.SOL_IP || msg.Header.Type != unix.IP_RECVERR {
			continue
		}
		if len(msg.Data) < int(unsafe.Sizeof(unix.SockExtendedErr{})) {
			continue
		}
		ee := (*unix.SockExtendedErr)(unsafe.Pointer(&msg.Data[0]))
		if ee.Origin != unix.SO_EE_ORIGIN_ZEROCOPY {
			continue
		}
		lo, hi := ee.Info, ee.Data
		s.releaseRange(lo, hi)
	}
}

func (s *Session) releaseRange(lo, hi uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := lo; id <= hi; id++ {
		if pending, ok := s.pending[id]; ok {
			pending.guard.Release()
			delete(s.pending, id)
		}
		if id == ^uint32(0) {
			break // guard against wraparound when hi is math.MaxUint32
		}
	}
}

// Close stops the completion reaper and releases any buffers still
// marked outstanding; it does not close the underlying connection.
func (s *Session) Close() {
	if !s.available {
		return
	}
	close(s.stopReaper)
	<-s.doneReaper
	s.mu.Lock()
	for _, pending := range s.pending {
		pending.guard.Release()
	}
	s.pending = make(map[uint32]pendingSend)
	s.mu.Unlock()
}
