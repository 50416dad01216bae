package clientconn

import (
	"net"
	"testing"
	"time"

	"github.com/relaycast/relaycast/internal/session"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/wire"
)

type fakeClock struct{ now audio.Timeval }

func (c *fakeClock) Now() audio.Timeval { return c.now }

type noopHandler struct{}

func (noopHandler) OnHello(*session.Conn, wire.Hello) error                      { return nil }
func (noopHandler) OnMessage(*session.Conn, wire.Message) error                  { return nil }
func (noopHandler) OnTime(*session.Conn, wire.Header, wire.Time) wire.Time       { return wire.Time{} }
func (noopHandler) OnClosed(*session.Conn, error)                                {}

func TestDialSendsHelloHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan wire.Hello, 1)
	serverClock := &fakeClock{now: audio.Timeval{Sec: 2}}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		header, err := wire.ReadHeader(conn)
		if err != nil {
			return
		}
		payload := make([]byte, header.PayloadSize)
		if _, err := readFull(conn, payload); err != nil {
			return
		}
		body, err := wire.DecodeBody(serverClock, &header, payload)
		if err != nil {
			return
		}
		hello, ok := body.(wire.Hello)
		if !ok {
			return
		}
		received <- hello
	}()

	clock := &fakeClock{now: audio.Timeval{Sec: 1}}
	conn, err := Dial(ln.Addr().String(), clock, Identity{ClientName: "test-client"}, noopHandler{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case hello := <-received:
		if hello.ClientName != "test-client" {
			t.Fatalf("expected client name test-client, got %q", hello.ClientName)
		}
		if hello.ID == "" {
			t.Fatal("expected a generated ID when Identity.ID is empty")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hello")
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
