// ABOUTME: Synchronized broadcaster replaying the playlist at real-time pace
// ABOUTME: Publishes chunks into a lossy queue so every subscriber hears the same live position
package distribute

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/pcmcast/internal/fanout"
	"github.com/Resonate-Protocol/pcmcast/internal/observe"
	"github.com/Resonate-Protocol/pcmcast/internal/playlist"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
)

// DefaultQueueCapacity buffers roughly ten chunks per subscriber
const DefaultQueueCapacity = 10

// maxBehind is how late the emission loop may run before it re-anchors its
// clock instead of bursting to catch up.
const maxBehind = time.Second

// LagPolicy decides what happens to a subscriber that fell behind
type LagPolicy string

const (
	// LagResync skips to the oldest buffered chunk and keeps streaming
	LagResync LagPolicy = "resync"
	// LagDisconnect ends the connection with ErrLagged
	LagDisconnect LagPolicy = "disconnect"
)

// BroadcastOptions configures a Broadcaster
type BroadcastOptions struct {
	QueueCapacity int
	LagPolicy     LagPolicy
	Metrics       *observe.Metrics
	Debug         bool
}

// Broadcaster loops over the playlist forever, publishing one chunk per
// chunk duration. Connections subscribe through Deliver.
type Broadcaster struct {
	playlist *playlist.Playlist
	queue    *fanout.Queue[audio.Chunk]
	opts     BroadcastOptions

	running  atomic.Bool
	position atomic.Int64
	loops    atomic.Uint64
}

// NewBroadcaster creates a broadcaster over pl. Call Run to start emission.
func NewBroadcaster(pl *playlist.Playlist, opts BroadcastOptions) *Broadcaster {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.LagPolicy == "" {
		opts.LagPolicy = LagResync
	}

	b := &Broadcaster{
		playlist: pl,
		queue:    fanout.New[audio.Chunk](opts.QueueCapacity),
		opts:     opts,
	}
	b.position.Store(-1)
	return b
}

// Run emits chunks until ctx is cancelled. It closes the queue on return so
// subscribers end cleanly.
func (b *Broadcaster) Run(ctx context.Context) error {
	chunks := b.playlist.Chunks()
	if len(chunks) == 0 {
		return ErrEmptyPlaylist
	}
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("broadcaster already running")
	}
	defer b.running.Store(false)
	defer b.queue.Close()

	format := b.playlist.Format()
	log.Printf("Broadcaster started: %d chunks, %v per loop", len(chunks), b.playlist.Duration().Round(time.Millisecond))

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	start := time.Now()
	var elapsed time.Duration

	for {
		for i, chunk := range chunks {
			b.queue.Publish(chunk)
			b.position.Store(int64(i))
			b.opts.Metrics.ChunkPublished(ctx)

			elapsed += chunk.Duration(format)
			wait := time.Until(start.Add(elapsed))
			if wait < -maxBehind {
				if b.opts.Debug {
					log.Printf("[DEBUG] Broadcaster %v behind schedule, re-anchoring", -wait)
				}
				start = time.Now().Add(-elapsed)
				wait = 0
			}

			if wait <= 0 {
				if ctx.Err() != nil {
					log.Printf("Broadcaster stopping")
					return nil
				}
				continue
			}

			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				log.Printf("Broadcaster stopping")
				return nil
			}
		}
		b.loops.Add(1)
	}
}

// Deliver subscribes to the live stream and writes every chunk to w until a
// write fails or the broadcaster stops.
func (b *Broadcaster) Deliver(ctx context.Context, w ChunkWriter) error {
	sub := b.queue.Subscribe()
	lagged, _ := w.(lagRecorder)

	for {
		chunk, err := sub.Recv(ctx)
		if err != nil {
			var lag *fanout.LagError
			if errors.As(err, &lag) {
				b.opts.Metrics.Lagged(ctx, lag.Missed)
				if lagged != nil {
					lagged.RecordLag(lag.Missed)
				}
				if b.opts.LagPolicy == LagDisconnect {
					return fmt.Errorf("%w: %d chunks missed", ErrLagged, lag.Missed)
				}
				if b.opts.Debug {
					log.Printf("[DEBUG] Subscriber lagged, skipped %d chunks", lag.Missed)
				}
				continue
			}
			if errors.Is(err, fanout.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := w.WriteChunk(chunk); err != nil {
			return err
		}
	}
}

// Status implements Policy
func (b *Broadcaster) Status() Status {
	return Status{
		Mode:     ModeSync,
		Length:   b.playlist.Len(),
		Position: int(b.position.Load()),
		Loops:    b.loops.Load(),
		Running:  b.running.Load(),
		Loop:     true,
	}
}

// Running reports whether Run is active
func (b *Broadcaster) Running() bool {
	return b.running.Load()
}
