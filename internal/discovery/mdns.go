// ABOUTME: mDNS service discovery for pcmcast servers
// ABOUTME: Advertises the stream format in TXT records and browses for servers
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/version"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD type advertised by servers
const ServiceType = "_pcmcast._tcp"

const browseTimeout = 3 * time.Second

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Format      audio.Format
	Mode        string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo

	mu     sync.Mutex
	server *mdns.Server
}

// ServerInfo describes a discovered server
type ServerInfo struct {
	Name    string
	Host    string
	Port    int
	Format  audio.Format
	Mode    string
	Version string
}

// Addr returns host:port for dialing
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// TXTRecords describes the stream so listeners can configure playback
func (m *Manager) TXTRecords() []string {
	f := m.config.Format
	return []string{
		"rate=" + strconv.Itoa(f.SampleRate),
		"channels=" + strconv.Itoa(f.Channels),
		"bits=" + strconv.Itoa(f.BitDepth),
		"mode=" + m.config.Mode,
		"version=" + version.Version,
	}
}

// Advertise advertises this server via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.TXTRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.mu.Lock()
	m.server = server
	m.mu.Unlock()

	log.Printf("Advertising mDNS service: %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)
	return nil
}

// Browse searches for pcmcast servers until Stop
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

// browseLoop continuously browses for servers
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := entryToServer(entry)
				if server == nil {
					continue
				}

				log.Printf("Discovered server: %s at %s (%s)", server.Name, server.Addr(), server.Format)

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = browseTimeout
		params.Entries = entries

		if err := mdns.Query(params); err != nil {
			log.Printf("mDNS query failed: %v", err)
		}
		close(entries)
		<-done

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// entryToServer returns nil for entries without an IPv4 address
func entryToServer(entry *mdns.ServiceEntry) *ServerInfo {
	if entry.AddrV4 == nil {
		return nil
	}

	info := &ServerInfo{
		Name: instanceName(entry.Name),
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
	applyTXT(info, entry.InfoFields)
	return info
}

// applyTXT fills format fields from key=value records; unknown keys are ignored
func applyTXT(info *ServerInfo, fields []string) {
	for _, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		n, _ := strconv.Atoi(value)
		switch key {
		case "rate":
			info.Format.SampleRate = n
		case "channels":
			info.Format.Channels = n
		case "bits":
			info.Format.BitDepth = n
		case "mode":
			info.Mode = value
		case "version":
			info.Version = value
		}
	}
}

// instanceName strips the service type and domain from a full entry name
func instanceName(full string) string {
	if i := strings.Index(full, "."+ServiceType); i > 0 {
		full = full[:i]
	}
	return strings.ReplaceAll(full, `\ `, " ")
}

// Servers returns the channel of discovered servers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop ends advertisement and browsing
func (m *Manager) Stop() {
	m.cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		if err := m.server.Shutdown(); err != nil {
			log.Printf("mDNS shutdown error: %v", err)
		}
		m.server = nil
	}
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
