// ABOUTME: Entry point for the pcmcast server
// ABOUTME: Loads the WAV directory and streams it to TCP clients in sync or replay mode
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/config"
	"github.com/Resonate-Protocol/pcmcast/internal/discovery"
	"github.com/Resonate-Protocol/pcmcast/internal/distribute"
	"github.com/Resonate-Protocol/pcmcast/internal/observe"
	"github.com/Resonate-Protocol/pcmcast/internal/playlist"
	"github.com/Resonate-Protocol/pcmcast/internal/server"
	"github.com/Resonate-Protocol/pcmcast/internal/version"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

var (
	logFile = flag.String("log-file", "", "Also write logs to this file (required with -tui, default pcmcast.log)")
	debug   = flag.Bool("debug", false, "Enable debug logging")
	useTUI  = flag.Bool("tui", false, "Show the status TUI instead of streaming logs")
)

func main() {
	cfg, err := config.Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	closeLog := setupLogging()
	defer closeLog()

	name := cfg.ServerName()
	log.Printf("Starting pcmcast %s: %s", version.Version, name)
	if *debug {
		log.Printf("Debug logging enabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    version.Product,
		ServiceVersion: version.Version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize metrics: %v", err)
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	pl, err := playlist.Load(cfg.AudioDir, playlist.Options{
		Format:      cfg.Format(),
		ChunkFrames: cfg.ChunkSize,
		Separators:  cfg.Mode == config.ModeSync,
		Logger:      log.Default(),
	})
	if err != nil {
		log.Fatalf("Failed to load %s: %v", cfg.AudioDir, err)
	}

	var (
		policy      distribute.Policy
		broadcaster *distribute.Broadcaster
	)
	switch cfg.Mode {
	case config.ModeSync:
		if pl.Len() == 0 {
			log.Fatalf("Cannot broadcast: %v", distribute.ErrEmptyPlaylist)
		}
		broadcaster = distribute.NewBroadcaster(pl, distribute.BroadcastOptions{
			QueueCapacity: cfg.QueueCapacity,
			LagPolicy:     distribute.LagPolicy(cfg.LagPolicy),
			Metrics:       metrics,
			Debug:         *debug,
		})
		policy = broadcaster
	default:
		if pl.Len() == 0 {
			log.Printf("Warning: playlist is empty; clients will be closed immediately")
		}
		policy = distribute.NewReplayer(pl, cfg.Loop)
	}
	log.Printf("Mode: %s (%s, %d-frame chunks)", cfg.Mode, cfg.Format(), cfg.ChunkSize)

	srv := server.New(server.Config{
		ListenAddr:      cfg.ListenAddr(),
		Name:            name,
		Format:          cfg.Format(),
		ProgramDuration: pl.Duration(),
		Metrics:         metrics,
		Debug:           *debug,
	}, policy)
	if err := srv.Listen(); err != nil {
		log.Fatalf("Failed to bind: %v", err)
	}

	var mdnsManager *discovery.Manager
	if cfg.MDNS {
		mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: name,
			Port:        cfg.Port,
			Format:      cfg.Format(),
			Mode:        cfg.Mode,
		})
		if err := mdnsManager.Advertise(); err != nil {
			log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			log.Printf("mDNS advertisement started")
		}
	}

	if !*useTUI {
		log.Printf("Press Ctrl-C to stop")
	}

	g, gctx := errgroup.WithContext(ctx)
	if broadcaster != nil {
		g.Go(func() error { return broadcaster.Run(gctx) })
	}
	g.Go(func() error { return srv.Serve(gctx) })
	if cfg.AdminAddr != "" {
		g.Go(func() error { return srv.ServeAdmin(gctx, cfg.AdminAddr) })
	}
	if *useTUI {
		g.Go(func() error {
			defer stop()
			return server.RunTUI(gctx, srv)
		})
	}

	err = g.Wait()
	log.Printf("Shutting down...")

	if mdnsManager != nil {
		mdnsManager.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownMetrics(shutdownCtx); err != nil {
		log.Printf("Metrics shutdown error: %v", err)
	}

	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Server stopped cleanly")
}

// setupLogging sends logs to stdout and the log file, or to the file only
// when the TUI owns the terminal.
func setupLogging() func() {
	path := *logFile
	if *useTUI && path == "" {
		path = "pcmcast.log"
	}
	if path == "" {
		return func() {}
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}

	if *useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	log.Printf("Logging to: %s", path)
	return func() { f.Close() }
}
