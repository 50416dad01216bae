package zerocopy

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/relaycast/relaycast/internal/bufferpool"
)

func loopbackPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverCh := make(chan *net.TCPConn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			serverCh <- nil
			return
		}
		serverCh <- conn.(*net.TCPConn)
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	serverConn := <-serverCh
	if serverConn == nil {
		t.Fatal("accept failed")
	}
	return clientConn.(*net.TCPConn), serverConn
}

func TestSendDeliversBytesRegardlessOfZeroCopySupport(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	sess, err := New(client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sess.Close()

	const largePayload = 2048 // above the Linux build's 1024-byte zerocopy threshold
	payload := bytes.Repeat([]byte("x"), largePayload)
	if err := sess.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := make([]byte, len(payload))
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("received payload does not match sent payload")
	}
}

func TestSendBelowThresholdUsesRegularPath(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	sess, err := New(client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sess.Close()

	payload := []byte("short")
	if err := sess.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := make([]byte, len(payload))
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if sess.Stats().RegularSends == 0 {
		t.Fatal("expected a below-threshold send to go through the regular path")
	}
}

func TestSendFallsBackAndCountsCoordinationFallbackOnContention(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	sess, err := New(client, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sess.Close()

	if !sess.tryReserve() {
		t.Fatal("expected to reserve the socket for this test's simulated in-flight operation")
	}
	defer sess.release()

	payload := bytes.Repeat([]byte("y"), 2048)
	go func() {
		got := make([]byte, len(payload))
		server.SetReadDeadline(time.Now().Add(2 * time.Second))
		io.ReadFull(server, got)
	}()

	if err := sess.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sess.Stats().CoordinationFallback == 0 {
		t.Fatal("expected Send to bump CoordinationFallback when the socket was already reserved")
	}
}

func TestSendZeroCopyReturnsBufferToPoolOnClose(t *testing.T) {
	client, server := loopbackPair(t)
	defer server.Close()

	pool := bufferpool.New(time.Minute)
	sess, err := New(client, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !sess.Available() {
		t.Skip("SO_ZEROCOPY unavailable on this kernel")
	}

	payload := bytes.Repeat([]byte("z"), 4096)
	done := make(chan struct{})
	go func() {
		got := make([]byte, len(payload))
		server.SetReadDeadline(time.Now().Add(2 * time.Second))
		io.ReadFull(server, got)
		close(done)
	}()
	if err := sess.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}
	<-done

	before := pool.Snapshot()
	sess.Close()
	after := pool.Snapshot()
	if after.Available <= before.Available {
		t.Fatalf("expected Close to return the outstanding zerocopy buffer to the pool: before=%+v after=%+v", before, after)
	}
}
