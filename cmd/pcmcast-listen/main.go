// ABOUTME: Entry point for the pcmcast listener
// ABOUTME: Connects to a server over TCP and plays or records the raw PCM stream
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/discovery"
	"github.com/Resonate-Protocol/pcmcast/internal/player"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio/encode"
)

var (
	serverAddr = flag.String("server", "", "Server address host:port (default: discover via mDNS)")
	rate       = flag.Int("rate", 16000, "Stream sample rate in Hz")
	channels   = flag.Int("channels", 1, "Stream channel count")
	bits       = flag.Int("bits", 16, "Stream bits per sample (8 or 16 for playback, up to 32 for -record)")
	volume     = flag.Int("volume", 100, "Playback volume 0-100")
	record     = flag.String("record", "", "Write the stream to this WAV file instead of playing it")
	logFile    = flag.String("log-file", "", "Also write logs to this file")
)

const discoverTimeout = 10 * time.Second

func main() {
	flag.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	format := audio.Format{SampleRate: *rate, Channels: *channels, BitDepth: *bits}
	address := *serverAddr

	if address == "" {
		server, err := discover(ctx)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		address = server.Addr()
		format = mergeFormat(format, server.Format, explicitFlags())
	}

	// Formats are checked before dialing
	var out *player.Output
	if *record == "" {
		var err error
		if out, err = player.NewOutput(format, *volume); err != nil {
			log.Fatalf("Cannot play %s: %v", format, err)
		}
	} else if err := format.Validate(); err != nil {
		log.Fatalf("Cannot record %s: %v", format, err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer conn.Close()
	context.AfterFunc(ctx, func() { conn.Close() })

	if *record != "" {
		log.Printf("Connected to %s, recording %s to %s", address, format, *record)
		frames, err := recordWAV(conn, *record, format)
		if err != nil && ctx.Err() == nil {
			log.Fatalf("Recording failed: %v", err)
		}
		log.Printf("Recorded %d frames (%v)", frames, format.FramesDuration(frames))
		return
	}

	log.Printf("Connected to %s, playing %s", address, format)

	if err := out.Play(ctx, conn); err != nil && ctx.Err() == nil {
		log.Fatalf("Playback failed: %v", err)
	}
	log.Printf("Stream ended")
}

// recordWAV copies r into a WAV file until r ends. The file is finalized
// even when the copy stops on an error.
func recordWAV(r io.Reader, path string, format audio.Format) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := encode.NewWAV(f, format)
	if err != nil {
		return 0, err
	}

	_, copyErr := io.Copy(w, r)
	if err := w.Close(); err != nil {
		return w.Frames(), err
	}
	return w.Frames(), copyErr
}

// discover waits for the first server advertised on the local network
func discover(ctx context.Context) (*discovery.ServerInfo, error) {
	log.Printf("Starting server discovery...")
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	if err := disc.Browse(); err != nil {
		return nil, err
	}

	select {
	case server := <-disc.Servers():
		log.Printf("Discovered server %s at %s", server.Name, server.Addr())
		return server, nil
	case <-time.After(discoverTimeout):
		return nil, fmt.Errorf("no server found after %v", discoverTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func explicitFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// mergeFormat takes advertised values for every format flag left unset
func mergeFormat(flags, advertised audio.Format, set map[string]bool) audio.Format {
	f := flags
	if !set["rate"] && advertised.SampleRate > 0 {
		f.SampleRate = advertised.SampleRate
	}
	if !set["channels"] && advertised.Channels > 0 {
		f.Channels = advertised.Channels
	}
	if !set["bits"] && advertised.BitDepth > 0 {
		f.BitDepth = advertised.BitDepth
	}
	return f
}
