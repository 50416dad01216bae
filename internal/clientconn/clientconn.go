// ABOUTME: Client-side connection setup: resolves a server, dials it, and performs the Hello handshake over a shared session.Conn
// ABOUTME: Grounded on the teacher's internal/client/websocket.go Connect flow, adapted from JSON-over-WS to the binary session.Conn both sides already share
package clientconn

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/relaycast/relaycast/internal/discovery"
	"github.com/relaycast/relaycast/internal/session"
	"github.com/relaycast/relaycast/pkg/wire"
)

const dialTimeout = 5 * time.Second

// Identity describes this client for the Hello handshake.
type Identity struct {
	HostName   string
	ClientName string
	ID         string // stable per-install id; generated if empty
	Instance   int
	Version    string
	OS         string
	Arch       string
}

// Dial connects to addr, upgrades the raw TCP connection into a
// session.Conn driven by handler, and sends the Hello handshake. The
// caller owns calling Start (blocking) on the returned Conn; handler's
// OnHello is never invoked on the client side since only clients send
// Hello, but it must still satisfy session.Handler.
func Dial(addr string, clock wire.Clock, identity Identity, handler session.Handler) (*session.Conn, error) {
	netConn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("clientconn: dial %s: %w", addr, err)
	}
	if tcp, ok := netConn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}

	conn := session.New(netConn, clock, handler)
	hello := wire.Hello{
		HostName:                  identity.HostName,
		ID:                        identity.ID,
		Instance:                  identity.Instance,
		Version:                   identity.Version,
		ClientName:                identity.ClientName,
		OS:                        identity.OS,
		Arch:                      identity.Arch,
		SnapStreamProtocolVersion: 2,
	}
	if err := conn.Send(hello); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("clientconn: send hello: %w", err)
	}
	return conn, nil
}

// Resolve browses mDNS for the first advertised server and returns its
// "host:port" address, or an error if none answers within timeout.
func Resolve(timeout time.Duration) (string, error) {
	mgr := discovery.NewManager(discovery.Config{ServiceName: "relaycast-browse"})
	defer mgr.Stop()
	if err := mgr.Browse(); err != nil {
		return "", fmt.Errorf("clientconn: browse: %w", err)
	}

	select {
	case info := <-mgr.Servers():
		return fmt.Sprintf("%s:%d", info.Host, info.Port), nil
	case <-time.After(timeout):
		return "", fmt.Errorf("clientconn: no server found after %v", timeout)
	}
}
