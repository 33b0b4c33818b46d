// ABOUTME: Independent replayer giving each connection its own playlist cursor
// ABOUTME: Streams at transport speed with optional looping
package distribute

import (
	"context"

	"github.com/Resonate-Protocol/pcmcast/internal/playlist"
)

// Replayer walks the playlist once per connection. The playlist is read-only,
// so cursors need no coordination.
type Replayer struct {
	playlist *playlist.Playlist
	loop     bool
}

// NewReplayer creates a replayer over pl
func NewReplayer(pl *playlist.Playlist, loop bool) *Replayer {
	return &Replayer{playlist: pl, loop: loop}
}

// Deliver writes every chunk in order. Without loop it returns nil after the
// last chunk; with loop it starts over until a write fails or ctx ends.
func (r *Replayer) Deliver(ctx context.Context, w ChunkWriter) error {
	chunks := r.playlist.Chunks()
	if len(chunks) == 0 {
		return nil
	}

	for {
		for _, chunk := range chunks {
			if ctx.Err() != nil {
				return nil
			}
			if err := w.WriteChunk(chunk); err != nil {
				return err
			}
		}
		if !r.loop {
			return nil
		}
	}
}

// Status implements Policy
func (r *Replayer) Status() Status {
	return Status{
		Mode:     ModeReplay,
		Length:   r.playlist.Len(),
		Position: -1,
		Running:  true,
		Loop:     r.loop,
	}
}
