// ABOUTME: Server configuration with defaults, YAML file loading and flag overrides
// ABOUTME: Precedence is defaults, then the YAML file, then explicitly set flags
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"gopkg.in/yaml.v3"
)

// Distribution modes and lag policies accepted by Validate
const (
	ModeSync   = "sync"
	ModeReplay = "replay"

	LagResync     = "resync"
	LagDisconnect = "disconnect"
)

// Config is the full server configuration
type Config struct {
	AudioDir      string `yaml:"audio_dir"`
	SampleRate    int    `yaml:"sample_rate"`
	Channels      int    `yaml:"channels"`
	BitsPerSample int    `yaml:"bits_per_sample"`
	Port          int    `yaml:"port"`
	ListenHost    string `yaml:"listen_host"`
	ChunkSize     int    `yaml:"chunk_size"`
	Mode          string `yaml:"mode"`
	Loop          bool   `yaml:"loop"`
	LagPolicy     string `yaml:"lag_policy"`
	QueueCapacity int    `yaml:"queue_capacity"`
	AdminAddr     string `yaml:"admin_addr"`
	MDNS          bool   `yaml:"mdns"`
	Name          string `yaml:"name"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
		Port:          1234,
		ListenHost:    "0.0.0.0",
		ChunkSize:     128,
		Mode:          ModeSync,
		LagPolicy:     LagResync,
		QueueCapacity: 10,
		AdminAddr:     "127.0.0.1:8080",
		MDNS:          true,
	}
}

// Format returns the expected audio format
func (c *Config) Format() audio.Format {
	return audio.Format{
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		BitDepth:   c.BitsPerSample,
	}
}

// ListenAddr returns the host:port the stream listener binds to
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.ListenHost, strconv.Itoa(c.Port))
}

// ServerName returns Name, or "<hostname>-pcmcast" when unset
func (c *Config) ServerName() string {
	if c.Name != "" {
		return c.Name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return hostname + "-pcmcast"
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error

	if c.AudioDir == "" {
		errs = append(errs, errors.New("audio_dir is required"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d must be positive", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("channels %d must be positive", c.Channels))
	}
	switch c.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("bits_per_sample %d is invalid; valid values: 8, 16, 24, 32", c.BitsPerSample))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range [1, 65535]", c.Port))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size %d must be positive", c.ChunkSize))
	}
	if c.Mode != ModeSync && c.Mode != ModeReplay {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: sync, replay", c.Mode))
	}
	if c.LagPolicy != LagResync && c.LagPolicy != LagDisconnect {
		errs = append(errs, fmt.Errorf("lag_policy %q is invalid; valid values: resync, disconnect", c.LagPolicy))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity %d must be at least 1", c.QueueCapacity))
	}

	return errors.Join(errs...)
}

// Load reads the YAML file at path over the defaults and validates the result
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults. Unknown keys are an
// error. The result is not validated.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// binding ties a flag name to the Config field it overrides
type binding struct {
	name  string
	apply func(dst, src *Config)
}

var bindings = []binding{
	{"audio-dir", func(d, s *Config) { d.AudioDir = s.AudioDir }},
	{"sample-rate", func(d, s *Config) { d.SampleRate = s.SampleRate }},
	{"channels", func(d, s *Config) { d.Channels = s.Channels }},
	{"bits-per-sample", func(d, s *Config) { d.BitsPerSample = s.BitsPerSample }},
	{"port", func(d, s *Config) { d.Port = s.Port }},
	{"host", func(d, s *Config) { d.ListenHost = s.ListenHost }},
	{"chunk-size", func(d, s *Config) { d.ChunkSize = s.ChunkSize }},
	{"mode", func(d, s *Config) { d.Mode = s.Mode }},
	{"loop", func(d, s *Config) { d.Loop = s.Loop }},
	{"lag-policy", func(d, s *Config) { d.LagPolicy = s.LagPolicy }},
	{"queue-capacity", func(d, s *Config) { d.QueueCapacity = s.QueueCapacity }},
	{"admin-addr", func(d, s *Config) { d.AdminAddr = s.AdminAddr }},
	{"no-mdns", func(d, s *Config) { d.MDNS = s.MDNS }},
	{"name", func(d, s *Config) { d.Name = s.Name }},
}

// Parse registers the server flags on fs, parses args and returns the merged,
// validated configuration. Callers may define their own flags on fs first.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	flags := Default()
	path := fs.String("config", "", "YAML configuration file")
	fs.StringVar(&flags.AudioDir, "audio-dir", flags.AudioDir, "Directory of WAV files to stream")
	fs.IntVar(&flags.SampleRate, "sample-rate", flags.SampleRate, "Expected sample rate in Hz")
	fs.IntVar(&flags.Channels, "channels", flags.Channels, "Expected channel count")
	fs.IntVar(&flags.BitsPerSample, "bits-per-sample", flags.BitsPerSample, "Expected bits per sample (8, 16, 24, 32)")
	fs.IntVar(&flags.Port, "port", flags.Port, "TCP port for raw PCM clients")
	fs.StringVar(&flags.ListenHost, "host", flags.ListenHost, "Interface to bind")
	fs.IntVar(&flags.ChunkSize, "chunk-size", flags.ChunkSize, "Frames per chunk")
	fs.StringVar(&flags.Mode, "mode", flags.Mode, "Distribution mode: sync or replay")
	fs.BoolVar(&flags.Loop, "loop", flags.Loop, "Restart the playlist at the end (replay mode)")
	fs.StringVar(&flags.LagPolicy, "lag-policy", flags.LagPolicy, "What to do with lagging clients in sync mode: resync or disconnect")
	fs.IntVar(&flags.QueueCapacity, "queue-capacity", flags.QueueCapacity, "Chunks buffered per sync subscriber")
	fs.StringVar(&flags.AdminAddr, "admin-addr", flags.AdminAddr, "Admin HTTP address (empty disables)")
	noMDNS := fs.Bool("no-mdns", false, "Disable mDNS advertisement")
	fs.StringVar(&flags.Name, "name", flags.Name, "Server friendly name (default: hostname-pcmcast)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	flags.MDNS = !*noMDNS

	cfg := Default()
	if *path != "" {
		loaded, err := loadFile(*path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, b := range bindings {
		if set[b.name] {
			b.apply(cfg, flags)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
