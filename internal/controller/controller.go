// ABOUTME: Client-side playback controller: drives the Hello/CodecHeader/WireChunk/Time exchange over one session.Conn into a Renderer
// ABOUTME: Grounded on the teacher's internal/client.Player message loop, generalized from its single WS+JSON codec path to the shared binary session.Conn and pluggable codec.Decoder
package controller

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/relaycast/relaycast/internal/renderer"
	"github.com/relaycast/relaycast/internal/session"
	"github.com/relaycast/relaycast/internal/timesync"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/codec"
	"github.com/relaycast/relaycast/pkg/wire"
)

const (
	timeRequestInterval = time.Second
	timeRequestTimeout  = 2 * time.Second
)

// Controller owns one client connection's decode-and-render pipeline: it
// answers to a session.Conn as its Handler, builds a decoder from the
// first CodecHeader it sees, and feeds every following WireChunk to the
// Renderer after resolving its play time through ClockSync.
type Controller struct {
	clock     wire.Clock
	clockSync *timesync.ClockSync
	render    *renderer.Renderer

	mu      sync.Mutex
	conn    *session.Conn
	decoder codec.Decoder
	format  audio.Format
	bufMs   int
	started bool

	stop chan struct{}
	done chan struct{}
}

// New constructs a controller around render, which must not yet be
// opened; the controller opens it once the stream's format is known
// from the first CodecHeader. clockSync must be the same instance
// render was constructed with: the controller is what feeds it
// samples via the Time request loop, and render is what consumes its
// offset when scheduling playback, so the two must share one tracker.
func New(clock wire.Clock, clockSync *timesync.ClockSync, render *renderer.Renderer) *Controller {
	return &Controller{
		clock:     clock,
		clockSync: clockSync,
		render:    render,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Attach binds the controller to conn and starts its periodic Time
// request loop. Call once, after the conn has sent its Hello.
func (c *Controller) Attach(conn *session.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.started = true
	c.mu.Unlock()
	go c.timeLoop()
}

// ClockSync exposes the offset/rtt/quality tracker for diagnostics.
func (c *Controller) ClockSync() *timesync.ClockSync { return c.clockSync }

func (c *Controller) OnHello(_ *session.Conn, _ wire.Hello) error {
	return fmt.Errorf("controller: unexpected Hello from server")
}

func (c *Controller) OnMessage(_ *session.Conn, msg wire.Message) error {
	switch body := msg.Body.(type) {
	case wire.CodecHeader:
		return c.onCodecHeader(body)
	case wire.WireChunk:
		c.onWireChunk(body)
		return nil
	case wire.ServerSettings:
		c.onServerSettings(body)
		return nil
	default:
		log.Printf("controller: unhandled message type %s", msg.Header.Type)
		return nil
	}
}

func (c *Controller) onCodecHeader(h wire.CodecHeader) error {
	decoder, err := codec.NewDecoder(h.CodecName)
	if err != nil {
		return fmt.Errorf("controller: unsupported codec %q: %w", h.CodecName, err)
	}
	format, err := decoder.SetHeader(h.Header)
	if err != nil {
		return fmt.Errorf("controller: codec header: %w", err)
	}

	c.mu.Lock()
	c.decoder = decoder
	c.format = format
	c.mu.Unlock()

	if err := c.render.Open(format); err != nil {
		return fmt.Errorf("controller: open renderer: %w", err)
	}
	log.Printf("controller: codec %q header received, format %dHz %db %dch", h.CodecName, format.Rate, format.Bits, format.Channels)
	return nil
}

func (c *Controller) onWireChunk(chunk wire.WireChunk) {
	c.mu.Lock()
	decoder := c.decoder
	format := c.format
	c.mu.Unlock()
	if decoder == nil {
		return
	}

	payload, ok := decoder.Decode(chunk.Payload)
	if !ok {
		log.Printf("controller: dropped corrupt chunk at %v", chunk.Timestamp)
		return
	}
	c.render.Enqueue(audio.Chunk{Format: format, Timestamp: chunk.Timestamp, Payload: payload})
}

func (c *Controller) onServerSettings(s wire.ServerSettings) {
	c.mu.Lock()
	c.bufMs = s.BufferMs
	c.mu.Unlock()
	c.render.SetVolume(s.Volume)
	c.render.SetMuted(s.Muted)
	log.Printf("controller: server settings buffer=%dms volume=%d muted=%v", s.BufferMs, s.Volume, s.Muted)
}

// OnTime answers a server-initiated time probe; relaycast servers never
// send one today, but the session.Handler contract requires an answer.
func (c *Controller) OnTime(_ *session.Conn, header wire.Header, incoming wire.Time) wire.Time {
	return wire.Time{Latency: header.Received.Sub(header.Sent), Version: incoming.Version}
}

func (c *Controller) OnClosed(_ *session.Conn, err error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if started {
		close(c.stop)
		<-c.done
	}
	if err != nil {
		log.Printf("controller: connection closed: %v", err)
	}
}

// timeLoop periodically exchanges a Time message and feeds the result
// into ClockSync, following the four-timestamp NTP-style exchange: t1
// is stamped here before sending, t4 on receipt; t2 is derived from the
// response's Latency (the server's own receive-minus-send delta for
// this request), t3 is the response's own Sent timestamp.
func (c *Controller) timeLoop() {
	defer close(c.done)
	ticker := time.NewTicker(timeRequestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sendTimeRequest()
		}
	}
}

func (c *Controller) sendTimeRequest() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	t1 := c.clock.Now()
	err := conn.SendRequest(wire.Time{}, timeRequestTimeout, func(msg wire.Message, err error) {
		if err != nil {
			log.Printf("controller: time request failed: %v", err)
			return
		}
		resp, ok := msg.Body.(wire.Time)
		if !ok {
			return
		}
		t2 := t1.Add(resp.Latency)
		t3 := msg.Header.Sent
		t4 := msg.Header.Received
		c.clockSync.ProcessSample(t1, t2, t3, t4)
	})
	if err != nil {
		log.Printf("controller: send time request: %v", err)
	}
}
