// ABOUTME: Tests for mDNS discovery
// ABOUTME: Covers TXT record encoding and parsing of discovered entries
package discovery

import (
	"net"
	"testing"

	"github.com/Resonate-Protocol/pcmcast/internal/version"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{ServiceName: "Test Server", Port: 1234})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}
	// Stop without Advertise must not panic
	mgr.Stop()
}

func TestTXTRecords(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "kitchen",
		Port:        1234,
		Format:      audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16},
		Mode:        "sync",
	})

	got := mgr.TXTRecords()
	want := []string{"rate=16000", "channels=1", "bits=16", "mode=sync", "version=" + version.Version}
	if len(got) != len(want) {
		t.Fatalf("TXTRecords() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTXTRoundTrip(t *testing.T) {
	format := audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 24}
	mgr := NewManager(Config{Format: format, Mode: "replay"})

	var info ServerInfo
	applyTXT(&info, mgr.TXTRecords())

	if info.Format != format {
		t.Errorf("Format = %v, want %v", info.Format, format)
	}
	if info.Mode != "replay" || info.Version != version.Version {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestEntryToServer(t *testing.T) {
	tests := []struct {
		name     string
		entry    *mdns.ServiceEntry
		wantNil  bool
		wantName string
		wantAddr string
	}{
		{
			name: "ipv4 entry",
			entry: &mdns.ServiceEntry{
				Name:       `living\ room._pcmcast._tcp.local.`,
				AddrV4:     net.IPv4(192, 168, 1, 20),
				Port:       1234,
				InfoFields: []string{"rate=16000", "channels=1", "bits=16", "garbage", "extra=1"},
			},
			wantName: "living room",
			wantAddr: "192.168.1.20:1234",
		},
		{
			name:    "no ipv4 address",
			entry:   &mdns.ServiceEntry{Name: "x._pcmcast._tcp.local.", Port: 1234},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := entryToServer(tt.entry)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", got.Name, tt.wantName)
			}
			if got.Addr() != tt.wantAddr {
				t.Errorf("Addr() = %q, want %q", got.Addr(), tt.wantAddr)
			}
			if got.Format.SampleRate != 16000 || got.Format.BitDepth != 16 {
				t.Errorf("Format = %v", got.Format)
			}
		})
	}
}
