// ABOUTME: Entry point for the relaycast client player
// ABOUTME: Resolves or dials a server, then drives decode+playback via a Controller
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/relaycast/relaycast/internal/clientconn"
	"github.com/relaycast/relaycast/internal/controller"
	"github.com/relaycast/relaycast/internal/renderer"
	"github.com/relaycast/relaycast/internal/timesync"
	"github.com/relaycast/relaycast/pkg/wire"
)

var (
	serverAddr = flag.String("server", "", "Server address host:port; if empty, resolves one via mDNS")
	clientName = flag.String("name", "", "Client friendly name (default: hostname)")
	logFile    = flag.String("log-file", "relaycast-client.log", "Log file path")
	resolveFor = flag.Duration("resolve-timeout", 5*time.Second, "How long to wait for an mDNS server when -server is unset")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	addr := *serverAddr
	if addr == "" {
		log.Printf("no -server given, resolving via mDNS (timeout %v)", *resolveFor)
		addr, err = clientconn.Resolve(*resolveFor)
		if err != nil {
			log.Fatalf("resolve: %v", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	identity := clientconn.Identity{
		HostName:   hostname,
		ClientName: *clientName,
		Version:    "relaycast-client",
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
	}
	if identity.ClientName == "" {
		identity.ClientName = hostname
	}

	clock := wire.NewSteadyClock()
	clockSync := timesync.NewClockSync()
	render := renderer.New(clock, clockSync)
	ctrl := controller.New(clock, clockSync, render)

	log.Printf("connecting to %s as %q", addr, identity.ClientName)
	conn, err := clientconn.Dial(addr, clock, identity, ctrl)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	ctrl.Attach(conn)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("received %v, shutting down", sig)
		conn.Close()
		render.Close()
	}()

	conn.Start()
	log.Printf("client stopped")
}
