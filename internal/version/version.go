// ABOUTME: Version constants for pcmcast binaries
// ABOUTME: Reported in mDNS TXT records and as the metrics service version
package version

// Version is set at build time with -ldflags "-X .../internal/version.Version=..."
var Version = "0.3.0"

const (
	// Product names the server in discovery records
	Product = "pcmcast"

	// Manufacturer is advertised next to Product
	Manufacturer = "Resonate Protocol"
)
