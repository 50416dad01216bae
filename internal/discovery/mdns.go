// ABOUTME: mDNS advertisement and browsing, thinned to the resolved host:port tuple the core actually consumes
// ABOUTME: Servers advertise _relaycast-server._tcp; clients browse for it and take the first answer
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// Config holds discovery configuration.
type Config struct {
	ServiceName string
	Port        int
	ServerMode  bool // If true, advertise as _relaycast-server._tcp, otherwise _relaycast._tcp
}

const (
	clientServiceType = "_relaycast._tcp"
	serverServiceType = "_relaycast-server._tcp"
	browseTimeoutSecs = 3
)

// Manager is either an advertiser (server) or a browser (client); never
// both. The core only ever reads the resolved host/port off Servers().
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo is the resolved tuple a browsing client acts on.
type ServerInfo struct {
	Host string
	Port int
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise publishes this server's service record via mDNS until Stop
// is called.
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	serviceType := clientServiceType
	if m.config.ServerMode {
		serviceType = serverServiceType
	}

	service, err := mdns.NewMDNSService(m.config.ServiceName, serviceType, "", "", m.config.Port, ips, nil)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("mdns: advertising %s on port %d (%s)", m.config.ServiceName, m.config.Port, serviceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Browse starts querying for relaycast servers in the background;
// results arrive on Servers() until Stop is called.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop repeats a bounded mDNS query, forwarding every answer with
// a usable IPv4 address to Servers().
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				info := &ServerInfo{Host: entry.AddrV4.String(), Port: entry.Port}
				log.Printf("mdns: discovered server at %s:%d", info.Host, info.Port)
				select {
				case m.servers <- info:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		mdns.Query(&mdns.QueryParam{
			Service: serverServiceType,
			Domain:  "local",
			Timeout: browseTimeoutSecs * time.Second,
			Entries: entries,
		})
		close(entries)
		<-drained
	}
}

// Servers returns the channel of discovered servers.
func (m *Manager) Servers() <-chan *ServerInfo { return m.servers }

// Stop tears down advertisement or browsing.
func (m *Manager) Stop() { m.cancel() }

// getLocalIPs returns this host's non-loopback IPv4 addresses, for the
// advertised service record.
func getLocalIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
