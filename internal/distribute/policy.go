// ABOUTME: Distribution policy abstraction shared by broadcaster and replayer
// ABOUTME: Connections hand a ChunkWriter to the active policy and wait for it to return
package distribute

import (
	"context"
	"errors"
	"io"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
)

// Distribution modes
const (
	ModeSync   = "sync"
	ModeReplay = "replay"
)

var (
	// ErrEmptyPlaylist is returned by the broadcaster when there is nothing to play
	ErrEmptyPlaylist = errors.New("playlist is empty")

	// ErrLagged ends a connection under the disconnect lag policy
	ErrLagged = errors.New("subscriber fell behind the live position")
)

// ChunkWriter is the transport side of a connection
type ChunkWriter interface {
	WriteChunk(chunk audio.Chunk) error
}

// lagRecorder is implemented by writers that keep per-connection lag stats
type lagRecorder interface {
	RecordLag(missed uint64)
}

// Policy delivers the playlist to one connection. Deliver returns nil on
// normal completion or shutdown and the write error when the client goes away.
type Policy interface {
	Deliver(ctx context.Context, w ChunkWriter) error
	Status() Status
}

// Status is a point-in-time view of a policy
type Status struct {
	Mode string
	// Length is the number of chunks in the playlist
	Length int
	// Position is the index of the chunk most recently published (sync only)
	Position int
	// Loops counts completed passes over the playlist (sync only)
	Loops   uint64
	Running bool
	Loop    bool
}

// RawWriter writes chunk bytes to w without any framing
type RawWriter struct {
	W io.Writer
}

// WriteChunk implements ChunkWriter
func (r RawWriter) WriteChunk(chunk audio.Chunk) error {
	_, err := r.W.Write(chunk.Bytes())
	return err
}
