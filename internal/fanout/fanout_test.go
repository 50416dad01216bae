package fanout

import (
	"net"
	"testing"
	"time"

	"github.com/relaycast/relaycast/internal/config"
	"github.com/relaycast/relaycast/internal/session"
	"github.com/relaycast/relaycast/internal/source"
	"github.com/relaycast/relaycast/internal/stream"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/codec"
	"github.com/relaycast/relaycast/pkg/wire"
)

type fakeReader struct{ format audio.Format }

func (r *fakeReader) Start(listener source.Listener) error { return nil }
func (r *fakeReader) Stop()                                 {}
func (r *fakeReader) Format() audio.Format                  { return r.format }

func newTestStream(t *testing.T, id string, codecName string) *stream.Stream {
	t.Helper()
	format := audio.Format{Rate: 48000, Bits: 16, Channels: 2}
	enc, err := codec.New(codecName, nil)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	s, err := stream.New(wire.NewSteadyClock(), &config.StreamURI{Name: id}, format, &fakeReader{format: format}, enc, nil)
	if err != nil {
		t.Fatalf("stream.New: %v", err)
	}
	return s
}

func TestDefaultStreamSkipsNullCodec(t *testing.T) {
	srv := New(wire.NewSteadyClock(), nil, false, false)
	null := newTestStream(t, "silence", "null")
	real := newTestStream(t, "radio", "pcm")
	srv.AddStream(null)
	srv.AddStream(real)

	srv.mu.Lock()
	got := srv.defaultStreamLocked()
	srv.mu.Unlock()

	if got != real {
		t.Fatalf("expected default stream to skip the null codec, got %v", got)
	}
}

func TestOnClientHelloBindsSessionToDefaultStream(t *testing.T) {
	srv := New(wire.NewSteadyClock(), nil, false, false)
	st := newTestStream(t, "radio", "pcm")
	srv.AddStream(st)

	clientNet, serverNet := net.Pipe()
	defer clientNet.Close()
	clock := wire.NewSteadyClock()
	sess := session.NewSession(serverNet, clock, srv)
	srv.mu.Lock()
	srv.sessions[sess] = serverNet
	srv.mu.Unlock()
	go sess.Start()

	srv.OnClientHello(sess, wire.Hello{ID: "client-1"})

	done := make(chan struct{})
	go func() {
		client := session.New(clientNet, clock, &settingsWaiter{done: done})
		client.Start()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ServerSettings after hello binding")
	}
}

func TestOnSessionClosedUnbindsFromAllStreams(t *testing.T) {
	srv := New(wire.NewSteadyClock(), nil, false, false)
	st := newTestStream(t, "radio", "pcm")
	srv.AddStream(st)

	_, serverNet := net.Pipe()
	clock := wire.NewSteadyClock()
	sess := session.NewSession(serverNet, clock, srv)
	sess.ID = "client-1"

	removed := &captureListener{}
	st.AddListener(sess.ID, removed)
	srv.OnSessionClosed(sess)

	stillBound := &captureListener{}
	st.AddListener("client-2", stillBound)

	st.OnChunk(audio.Chunk{Format: st.Format, Payload: make([]byte, st.Format.BytesForDuration(20))})

	if len(stillBound.chunks) == 0 {
		t.Fatalf("expected the still-bound listener to receive the chunk")
	}
	if len(removed.chunks) != 0 {
		t.Fatalf("expected the removed listener to receive nothing, got %d chunks", len(removed.chunks))
	}
}

type captureListener struct {
	chunks []wire.WireChunk
}

func (c *captureListener) OnCodecHeader(name string, header []byte) {}
func (c *captureListener) OnWireChunk(chunk wire.WireChunk)          { c.chunks = append(c.chunks, chunk) }

// settingsWaiter is a minimal client-side session.Handler that closes
// done once it observes a ServerSettings message.
type settingsWaiter struct {
	done chan struct{}
	once bool
}

func (w *settingsWaiter) OnHello(c *session.Conn, hello wire.Hello) error { return nil }

func (w *settingsWaiter) OnMessage(c *session.Conn, msg wire.Message) error {
	if _, ok := msg.Body.(wire.ServerSettings); ok && !w.once {
		w.once = true
		close(w.done)
	}
	return nil
}

func (w *settingsWaiter) OnTime(c *session.Conn, header wire.Header, incoming wire.Time) wire.Time {
	return wire.Time{Version: wire.TimeV2}
}

func (w *settingsWaiter) OnClosed(c *session.Conn, err error) {}
