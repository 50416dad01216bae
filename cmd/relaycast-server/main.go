// ABOUTME: Entry point for the relaycast server
// ABOUTME: Parses CLI flags, wires streams/fanout/discovery together, and starts serving
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaycast/relaycast/internal/artwork"
	"github.com/relaycast/relaycast/internal/bufferpool"
	"github.com/relaycast/relaycast/internal/config"
	"github.com/relaycast/relaycast/internal/discovery"
	"github.com/relaycast/relaycast/internal/fanout"
	"github.com/relaycast/relaycast/internal/source"
	"github.com/relaycast/relaycast/internal/stream"
	"github.com/relaycast/relaycast/internal/timediag"
	"github.com/relaycast/relaycast/internal/tui"
	"github.com/relaycast/relaycast/pkg/audio"
	"github.com/relaycast/relaycast/pkg/codec"
	"github.com/relaycast/relaycast/pkg/wire"
)

// defaultFormat is the fallback sample format for streams whose URI
// leaves sampleformat unset or wildcarded.
var defaultFormat = audio.Format{Rate: 48000, Bits: 16, Channels: 2}

type streamFlags []string

func (f *streamFlags) String() string { return fmt.Sprint([]string(*f)) }
func (f *streamFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

var (
	addr        = flag.String("addr", ":1704", "TCP listen address for the wire protocol")
	wsAddr      = flag.String("ws-addr", "", "HTTP/WebSocket listen address; empty disables the WebSocket transport")
	name        = flag.String("name", "", "Server friendly name (default: hostname-relaycast)")
	logFile     = flag.String("log-file", "relaycast-server.log", "Log file path")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	configPath  = flag.String("config", "server.json", "Path to persisted group/client config")
	sendToMuted = flag.Bool("send-to-muted", false, "Keep sending chunks to muted sessions instead of skipping them")
	zeroCopy    = flag.Bool("zero-copy", false, "Attempt MSG_ZEROCOPY sends on TCP sessions (Linux only)")
	showTUI     = flag.Bool("tui", false, "Show a live terminal dashboard instead of plain log output")
	chronyPoll  = flag.Duration("chrony-poll", 10*time.Second, "How often to poll chronyc for the TUI's clock diagnostics")
	streams     streamFlags
)

func main() {
	flag.Var(&streams, "stream", "Stream source URI (scheme://...); may be repeated")
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()
	log.SetOutput(io.MultiWriter(os.Stdout, f))

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-relaycast", hostname)
	}

	log.Printf("starting relaycast server: %s on %s", serverName, *addr)

	clock := wire.NewSteadyClock()

	cfgStore, err := config.LoadStore(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	artCache, err := artwork.NewDownloader()
	if err != nil {
		log.Fatalf("artwork: %v", err)
	}

	pool := bufferpool.New(300 * time.Second)
	fanoutServer := fanout.New(clock, pool, *sendToMuted, *zeroCopy)

	streamURIs := streams
	if len(streamURIs) == 0 {
		streamURIs = cfgStore.Snapshot().Streams
	}
	if len(streamURIs) == 0 {
		log.Fatalf("no streams configured: pass -stream scheme://... at least once")
	}

	for _, raw := range streamURIs {
		st, err := buildStream(clock, raw, artCache)
		if err != nil {
			log.Fatalf("stream %q: %v", raw, err)
		}
		fanoutServer.AddStream(st)
		go func() {
			if err := st.Start(); err != nil {
				log.Printf("stream %s: stopped: %v", st.ID, err)
			}
		}()
	}

	var mdnsMgr *discovery.Manager
	if !*noMDNS {
		mdnsMgr = discovery.NewManager(discovery.Config{ServiceName: serverName, Port: wirePort(*addr), ServerMode: true})
		if err := mdnsMgr.Advertise(); err != nil {
			log.Printf("mdns: advertise failed: %v", err)
		}
	}

	var dashboard *tui.ServerTUI
	var diag *timediag.Collector
	if *showTUI {
		diag = timediag.NewCollector(*chronyPoll, 2*time.Second)
		dashboard = tui.New(serverName, *addr)
		go runDashboard(dashboard, fanoutServer, diag, serverName, *addr)
		go func() {
			if err := dashboard.Run(serverName, *addr); err != nil {
				log.Printf("tui: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Printf("received %v, shutting down", sig)
		case <-dashboardQuit(dashboard):
			log.Printf("quit requested from dashboard")
		}
		if diag != nil {
			diag.Close()
		}
		if dashboard != nil {
			dashboard.Stop()
		}
		if mdnsMgr != nil {
			mdnsMgr.Stop()
		}
		fanoutServer.Stop()
	}()

	if *wsAddr != "" {
		go func() {
			if err := fanoutServer.ServeWS(*wsAddr, "/relaycast", nil); err != nil {
				log.Printf("fanout: websocket server stopped: %v", err)
			}
		}()
	}

	if err := fanoutServer.Serve(*addr); err != nil {
		log.Fatalf("fanout: %v", err)
	}
	log.Printf("server stopped")
}

func dashboardQuit(d *tui.ServerTUI) <-chan struct{} {
	if d == nil {
		return nil
	}
	return d.QuitChan()
}

func runDashboard(d *tui.ServerTUI, srv *fanout.Server, diag *timediag.Collector, name, addr string) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		snap := srv.Snapshot()

		status := tui.Status{Name: name, Addr: addr}
		for _, st := range snap.Streams {
			nowPlaying := ""
			if st.Artist != "" {
				nowPlaying = st.Artist + " - " + st.Title
			} else {
				nowPlaying = st.Title
			}
			status.Streams = append(status.Streams, tui.StreamInfo{
				ID: st.ID, Codec: st.Codec, State: st.State.String(),
				ListenerCount: st.ListenerCount, NowPlaying: nowPlaying,
			})
		}
		for _, sess := range snap.Sessions {
			status.Sessions = append(status.Sessions, tui.SessionInfo{
				ID: sess.ID, ClientName: sess.ClientName, StreamID: sess.StreamID,
				Codec: sess.Codec, Muted: sess.Muted, Volume: sess.Volume,
			})
		}
		if diag != nil {
			if info, err := diag.Latest(); err == nil {
				status.Clock = tui.ClockInfo{
					Available: true, Stratum: info.Stratum,
					LastOffsetMs: info.LastOffsetMs, SkewPPM: info.SkewPPM,
				}
			}
		}
		d.Update(status)
	}
}

// buildStream parses a source URI, resolves its sample format, and
// assembles the reader/encoder pair behind a Stream.
func buildStream(clock wire.Clock, raw string, artCache stream.ArtCache) (*stream.Stream, error) {
	uri, err := config.ParseStreamURI(raw)
	if err != nil {
		return nil, err
	}
	if uri.Name == "" {
		return nil, fmt.Errorf("stream uri missing required name= parameter")
	}

	format := defaultFormat
	if uri.SampleFormat != "" {
		parsed, err := audio.ParseFormat(uri.SampleFormat)
		if err != nil {
			return nil, err
		}
		format = parsed.ResolveWildcards(defaultFormat)
	}

	reader, err := source.New(clock, uri, format)
	if err != nil {
		return nil, err
	}

	codecName := uri.Codec
	if codecName == "" {
		codecName = "pcm"
	}
	enc, err := codec.New(codecName, uri.Extra)
	if err != nil {
		return nil, err
	}

	return stream.New(clock, uri, format, reader, enc, artCache)
}

// wirePort extracts the numeric port from a "host:port" listen address
// for the mDNS TXT record; addr is always our own flag-controlled
// value, so a malformed port is a startup-time configuration error.
func wirePort(addr string) int {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			port := 0
			fmt.Sscanf(addr[i+1:], "%d", &port)
			return port
		}
	}
	return 0
}
