package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/relaycast/relaycast/pkg/wire"
)

type stubRegistry struct {
	mu       sync.Mutex
	hellos   []wire.Hello
	infos    []wire.ClientInfo
	closedCh chan *Session
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{closedCh: make(chan *Session, 1)}
}

func (r *stubRegistry) OnClientHello(_ *Session, hello wire.Hello) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hellos = append(r.hellos, hello)
}

func (r *stubRegistry) OnClientInfo(_ *Session, info wire.ClientInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, info)
}

func (r *stubRegistry) OnSessionClosed(s *Session) {
	r.closedCh <- s
}

func TestSessionRoutesHelloToRegistry(t *testing.T) {
	serverNet, clientNet := net.Pipe()
	clock := wire.NewSteadyClock()
	registry := newStubRegistry()

	sess := NewSession(serverNet, clock, registry)
	go sess.Start()
	defer sess.Close()

	client := New(clientNet, clock, newStubHandler())
	go client.Start()
	defer client.Close()

	hello := wire.Hello{ClientName: "kitchen", ID: "c1", Instance: 1}
	if err := client.Send(hello); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		registry.mu.Lock()
		n := len(registry.hellos)
		registry.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for hello")
		case <-time.After(10 * time.Millisecond):
		}
	}

	registry.mu.Lock()
	got := registry.hellos[0]
	registry.mu.Unlock()
	if got.ClientName != "kitchen" || got.ID != "c1" {
		t.Errorf("unexpected hello delivered to registry: %+v", got)
	}
	if sess.ID != "c1" {
		t.Errorf("expected session ID to be set from hello, got %q", sess.ID)
	}
}

func TestSessionFallsBackToMacWhenIDMissing(t *testing.T) {
	serverNet, clientNet := net.Pipe()
	clock := wire.NewSteadyClock()
	registry := newStubRegistry()

	sess := NewSession(serverNet, clock, registry)
	go sess.Start()
	defer sess.Close()

	client := New(clientNet, clock, newStubHandler())
	go client.Start()
	defer client.Close()

	hello := wire.Hello{HostName: "h", Mac: "aa:bb:cc:dd:ee:ff", Instance: 1, Version: "0"}
	if err := client.Send(hello); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		registry.mu.Lock()
		n := len(registry.hellos)
		registry.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for hello")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if sess.ID != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("expected session ID to fall back to mac, got %q", sess.ID)
	}
}

func TestSessionRoutesClientInfoToRegistry(t *testing.T) {
	serverNet, clientNet := net.Pipe()
	clock := wire.NewSteadyClock()
	registry := newStubRegistry()

	sess := NewSession(serverNet, clock, registry)
	go sess.Start()
	defer sess.Close()

	client := New(clientNet, clock, newStubHandler())
	go client.Start()
	defer client.Close()

	if err := client.Send(wire.ClientInfo{Raw: []byte(`{"volume":42}`)}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		registry.mu.Lock()
		n := len(registry.infos)
		registry.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for ClientInfo")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionAnswersTimeWithProcessingLatency(t *testing.T) {
	serverNet, clientNet := net.Pipe()
	clock := wire.NewSteadyClock()
	registry := newStubRegistry()

	sess := NewSession(serverNet, clock, registry)
	go sess.Start()
	defer sess.Close()

	clientH := newStubHandler()
	client := New(clientNet, clock, clientH)
	go client.Start()
	defer client.Close()

	done := make(chan wire.Message, 1)
	err := client.SendRequest(wire.Time{Version: wire.TimeV2}, time.Second, func(msg wire.Message, err error) {
		if err == nil {
			done <- msg
		}
	})
	if err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	select {
	case msg := <-done:
		resp, ok := msg.Body.(wire.Time)
		if !ok {
			t.Fatalf("expected Time body, got %T", msg.Body)
		}
		if resp.Version != wire.TimeV2 {
			t.Errorf("expected TimeV2 response, got %v", resp.Version)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for time response")
	}
}

func TestSessionNotifiesRegistryOnClose(t *testing.T) {
	serverNet, clientNet := net.Pipe()
	clock := wire.NewSteadyClock()
	registry := newStubRegistry()

	sess := NewSession(serverNet, clock, registry)
	go sess.Start()

	client := New(clientNet, clock, newStubHandler())
	go client.Start()
	defer client.Close()

	sess.Close()

	select {
	case closed := <-registry.closedCh:
		if closed != sess {
			t.Error("expected OnSessionClosed to receive this session")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnSessionClosed")
	}
}
