// ABOUTME: Optional WebSocket transport for the fan-out server, upgrading an HTTP connection to a framed net.Conn
// ABOUTME: Grounded on the teacher's internal/server.Server websocket.Upgrader usage, adapted to feed the same binary wire codec as the plain TCP acceptor
package fanout

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS listens on addr and upgrades every incoming HTTP request at
// path to a WebSocket, wrapped as a net.Conn via websocket.NetConn so it
// can be handed to the same session machinery as a plain TCP accept.
// If tlsConfig is non-nil, the listener terminates TLS first.
func (s *Server) ServeWS(addr, path string, tlsConfig *tls.Config) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("fanout: websocket upgrade error: %v", err)
			return
		}
		netConn := websocket.NetConn(context.Background(), conn, websocket.BinaryMessage)
		s.handleAccept(netConn)
	})

	httpServer := &http.Server{Addr: addr, Handler: mux, TLSConfig: tlsConfig}
	s.mu.Lock()
	s.httpServers = append(s.httpServers, httpServer)
	s.mu.Unlock()

	log.Printf("fanout: websocket listener on %s%s (tls=%v)", addr, path, tlsConfig != nil)
	if tlsConfig != nil {
		return httpServer.ListenAndServeTLS("", "")
	}
	return httpServer.ListenAndServe()
}
