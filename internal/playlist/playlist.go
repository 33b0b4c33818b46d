// ABOUTME: Program loader building the in-memory playlist from a WAV directory
// ABOUTME: Validates every file against the configured format and splits it into chunks
package playlist

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio/decode"
)

// SeparatorChunks is the length of the silence inserted between programs,
// expressed in chunk durations.
const SeparatorChunks = 5

const audioExtension = ".wav"

var (
	// ErrFormatMismatch is returned when a file does not match the configured format
	ErrFormatMismatch = errors.New("audio format mismatch")

	// ErrNoDirectory is returned when the audio path is missing or not a directory
	ErrNoDirectory = errors.New("audio directory not found")
)

// Options controls how a directory is turned into a playlist
type Options struct {
	Format audio.Format

	// ChunkFrames is the number of sample frames per chunk
	ChunkFrames int

	// Separators appends a silent chunk after every file
	Separators bool

	Logger *log.Logger
}

// Playlist is the ordered, read-only sequence of chunks served to clients.
// It is never modified after Load returns and may be read concurrently.
type Playlist struct {
	format audio.Format
	chunks []audio.Chunk
	files  []string
	bytes  int
}

// New builds a playlist from already prepared chunks
func New(format audio.Format, chunks []audio.Chunk) *Playlist {
	p := &Playlist{format: format, chunks: chunks}
	for _, c := range chunks {
		p.bytes += c.Len()
	}
	return p
}

// Load scans dir for WAV files and builds the playlist. Any file whose format
// differs from opts.Format fails the whole load.
func Load(dir string, opts Options) (*Playlist, error) {
	if opts.ChunkFrames <= 0 {
		return nil, fmt.Errorf("invalid chunk size: %d", opts.ChunkFrames)
	}
	if err := opts.Format.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDirectory, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio directory: %w", err)
	}

	var separator audio.Chunk
	if opts.Separators {
		separator = audio.NewChunk(opts.Format.Silence(SeparatorChunks * opts.ChunkFrames))
	}

	p := &Playlist{format: opts.Format}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !isAudioFile(entry.Name()) || !isRegularFile(path, entry) {
			continue
		}

		stream, err := decode.OpenWAV(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		if stream.Format != opts.Format {
			return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrFormatMismatch, path, stream.Format, opts.Format)
		}

		chunks := Split(stream.Data, opts.ChunkFrames*opts.Format.FrameSize())
		p.append(chunks...)
		if opts.Separators {
			p.append(separator)
		}
		p.files = append(p.files, path)

		logger.Printf("Loaded: %s (%s, %d chunks, %v)", path, stream.Format, len(chunks),
			opts.Format.FramesDuration(stream.Frames()).Round(time.Millisecond))
	}

	logger.Printf("Loaded %d chunks from %d files", len(p.chunks), len(p.files))
	return p, nil
}

// Split cuts data into consecutive chunks of size bytes. The final chunk may
// be shorter; empty data yields no chunks.
func Split(data []byte, size int) []audio.Chunk {
	if size <= 0 || len(data) == 0 {
		return nil
	}

	chunks := make([]audio.Chunk, 0, (len(data)+size-1)/size)
	for start := 0; start < len(data); start += size {
		end := min(start+size, len(data))
		// Capacity is capped so an append on one chunk cannot reach the next.
		chunks = append(chunks, audio.NewChunk(data[start:end:end]))
	}
	return chunks
}

func (p *Playlist) append(chunks ...audio.Chunk) {
	for _, c := range chunks {
		p.chunks = append(p.chunks, c)
		p.bytes += c.Len()
	}
}

// Format returns the format shared by every chunk
func (p *Playlist) Format() audio.Format { return p.format }

// Len returns the number of chunks
func (p *Playlist) Len() int { return len(p.chunks) }

// Chunk returns the chunk at index i
func (p *Playlist) Chunk(i int) audio.Chunk { return p.chunks[i] }

// Chunks returns the underlying sequence. Callers must not modify it.
func (p *Playlist) Chunks() []audio.Chunk { return p.chunks }

// Files returns the loaded file paths in playlist order
func (p *Playlist) Files() []string { return p.files }

// Bytes returns the total payload size
func (p *Playlist) Bytes() int { return p.bytes }

// Duration returns the total playback time of one pass
func (p *Playlist) Duration() time.Duration {
	size := p.format.FrameSize()
	if size == 0 {
		return 0
	}
	return p.format.FramesDuration(p.bytes / size)
}

// isRegularFile follows symlinks so linked programs are picked up too
func isRegularFile(path string, entry os.DirEntry) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isAudioFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), audioExtension)
}
