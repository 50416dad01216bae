// ABOUTME: Generic message-framed connection: single-writer send queue, pending-request map, receive loop
// ABOUTME: Shared by the server's per-client Session (§4.F) and the client's Conn (§4.I); they mirror each other on the wire
package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/relaycast/relaycast/internal/bufferpool"
	"github.com/relaycast/relaycast/pkg/wire"
)

// ErrClosed is returned by Send/SendRequest once the connection has shut
// down, and delivered to any pending handler still outstanding at close.
var ErrClosed = errors.New("session: connection closed")

// ErrTimedOut is delivered to a SendRequest handler whose deadline elapsed
// before a matching response arrived.
var ErrTimedOut = errors.New("session: request timed out")

// Handler receives events off a Conn's receive loop. Hello is delivered
// once, at most, as the first message; OnMessage receives every other
// unsolicited (refers_to == 0, not Time) message; OnTime is asked to
// answer a peer-initiated Time request synchronously; OnClosed fires
// exactly once when the receive loop exits, for any reason.
type Handler interface {
	OnHello(c *Conn, hello wire.Hello) error
	OnMessage(c *Conn, msg wire.Message) error
	OnTime(c *Conn, header wire.Header, incoming wire.Time) wire.Time
	OnClosed(c *Conn, err error)
}

type outgoing struct {
	payload []byte
	done    func(error)
}

type pendingEntry struct {
	handler func(wire.Message, error)
	timer   *time.Timer
}

// ZeroCopySender is the write path a Conn delegates to when zerocopy is
// enabled for this connection, instead of conn.Write directly.
type ZeroCopySender interface {
	Send(buf []byte) error
}

// Conn wraps one TCP connection with the framing, queued-write and
// pending-request machinery common to both session sides.
type Conn struct {
	conn    net.Conn
	clock   wire.Clock
	handler Handler
	zc      ZeroCopySender
	pool    *bufferpool.Pool

	sendCh chan outgoing

	mu      sync.Mutex
	pending map[uint16]*pendingEntry
	nextID  uint16

	closeOnce sync.Once
	closed    chan struct{}
	helloSeen bool
}

// New wraps conn; call Start to begin its receive/send loops.
func New(conn net.Conn, clock wire.Clock, handler Handler) *Conn {
	return &Conn{
		conn:    conn,
		clock:   clock,
		handler: handler,
		sendCh:  make(chan outgoing, 256),
		pending: make(map[uint16]*pendingEntry),
		nextID:  1,
		closed:  make(chan struct{}),
	}
}

// Start launches the write loop and runs the receive loop on the
// calling goroutine until the connection closes.
func (c *Conn) Start() {
	go c.writeLoop()
	c.receiveLoop()
}

func (c *Conn) receiveLoop() {
	var closeErr error
	for {
		header, err := wire.ReadHeader(c.conn)
		if err != nil {
			if err != io.EOF {
				closeErr = fmt.Errorf("session: read header: %w", err)
			}
			break
		}
		if !header.Type.Valid() {
			closeErr = fmt.Errorf("%w: type %d", wire.ErrUnknownType, uint16(header.Type))
			break
		}
		if header.PayloadSize > wire.MaxPayloadSize {
			closeErr = fmt.Errorf("%w: payload_size %d exceeds %d", wire.ErrInvalidArgument, header.PayloadSize, wire.MaxPayloadSize)
			break
		}

		var guard *bufferpool.Guard
		var payload []byte
		if c.pool != nil {
			guard = c.pool.Acquire(int(header.PayloadSize))
			payload = guard.Buf
		} else {
			payload = make([]byte, header.PayloadSize)
		}
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			guard.Release()
			closeErr = fmt.Errorf("session: read payload: %w", err)
			break
		}

		// DecodeBody's type-specific decoders each copy the bytes they
		// need into their own body struct, so the pool buffer is free to
		// return as soon as decoding returns.
		body, err := wire.DecodeBody(c.clock, &header, payload)
		guard.Release()
		if err != nil {
			closeErr = err
			break
		}

		if err := c.dispatch(header, body); err != nil {
			closeErr = err
			break
		}
	}

	c.shutdown(closeErr)
}

func (c *Conn) dispatch(header wire.Header, body wire.Body) error {
	msg := wire.Message{Header: header, Body: body}

	if header.RefersTo != 0 {
		c.resolvePending(header.RefersTo, msg, nil)
		return nil
	}

	switch t := body.(type) {
	case wire.Hello:
		if c.helloSeen {
			return fmt.Errorf("%w: duplicate Hello", wire.ErrInvalidArgument)
		}
		c.helloSeen = true
		return c.handler.OnHello(c, t)
	case wire.Time:
		response := c.handler.OnTime(c, header, t)
		return c.sendResponse(header.ID, response)
	default:
		return c.handler.OnMessage(c, msg)
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case out := <-c.sendCh:
			var err error
			if c.zc != nil {
				err = c.zc.Send(out.payload)
			} else {
				_, err = c.conn.Write(out.payload)
			}
			if out.done != nil {
				out.done(err)
			}
			if err != nil {
				c.shutdown(fmt.Errorf("session: write: %w", err))
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Send enqueues an unsolicited message (id 0, refers_to 0).
func (c *Conn) Send(body wire.Body) error {
	payload, err := wire.EncodeMessage(c.clock, 0, 0, body)
	if err != nil {
		return err
	}
	return c.enqueue(payload, nil)
}

func (c *Conn) sendResponse(refersTo uint16, body wire.Body) error {
	payload, err := wire.EncodeMessage(c.clock, 0, refersTo, body)
	if err != nil {
		return err
	}
	return c.enqueue(payload, nil)
}

// SendRequest sends body with a freshly-allocated id and arms a timeout.
// handler is invoked exactly once: with the matching response, with
// ErrTimedOut, or with ErrClosed if the connection shuts down first.
func (c *Conn) SendRequest(body wire.Body, timeout time.Duration, handler func(wire.Message, error)) error {
	c.mu.Lock()
	id := c.allocateIDLocked()
	entry := &pendingEntry{handler: handler}
	entry.timer = time.AfterFunc(timeout, func() {
		c.resolvePending(id, wire.Message{}, ErrTimedOut)
	})
	c.pending[id] = entry
	c.mu.Unlock()

	payload, err := wire.EncodeMessage(c.clock, id, 0, body)
	if err != nil {
		c.resolvePending(id, wire.Message{}, err)
		return err
	}
	return c.enqueue(payload, nil)
}

// allocateIDLocked returns the next id in the rolling 1..10000 range,
// skipping ids currently pending.
func (c *Conn) allocateIDLocked() uint16 {
	const maxID = 10000
	for {
		id := c.nextID
		c.nextID++
		if c.nextID > maxID {
			c.nextID = 1
		}
		if _, busy := c.pending[id]; !busy {
			return id
		}
	}
}

func (c *Conn) resolvePending(id uint16, msg wire.Message, err error) {
	c.mu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	entry.timer.Stop()
	entry.handler(msg, err)
}

func (c *Conn) enqueue(payload []byte, done func(error)) error {
	select {
	case c.sendCh <- outgoing{payload: payload, done: done}:
		return nil
	case <-c.closed:
		return ErrClosed
	}
}

// Close terminates the connection and releases all pending handlers
// with ErrClosed.
func (c *Conn) Close() error {
	c.shutdown(nil)
	return c.conn.Close()
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()

		c.mu.Lock()
		pending := c.pending
		c.pending = make(map[uint16]*pendingEntry)
		c.mu.Unlock()
		for _, entry := range pending {
			entry.timer.Stop()
			entry.handler(wire.Message{}, ErrClosed)
		}

		c.handler.OnClosed(c, err)
	})
}

// RemoteAddr exposes the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// SetZeroCopy switches the write loop onto sender instead of writing to
// the underlying net.Conn directly. Call before Start; not safe to
// change concurrently with an active writeLoop.
func (c *Conn) SetZeroCopy(sender ZeroCopySender) { c.zc = sender }

// SetPool makes the receive loop acquire each message's payload buffer
// from pool instead of allocating fresh, returning it immediately after
// decoding. Call before Start; nil (the default) falls back to make().
func (c *Conn) SetPool(pool *bufferpool.Pool) { c.pool = pool }
