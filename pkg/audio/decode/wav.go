// ABOUTME: WAV decoder built on go-audio/wav
// ABOUTME: Returns the declared PCM format and the raw little-endian sample bytes
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/go-audio/riff"
	"github.com/go-audio/wav"
)

// WAV audio format tags accepted as integer PCM
const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// Offset of the SubFormat GUID in a WAVE_FORMAT_EXTENSIBLE fmt chunk. Its
// first two bytes are the plain format tag.
const subFormatOffset = 24

// ErrNotPCM is returned for WAV files holding float or compressed audio
var ErrNotPCM = errors.New("not an integer PCM wav file")

// Stream holds a fully decoded WAV file
type Stream struct {
	Format audio.Format
	// Data is interleaved little-endian PCM in the file's own bit depth
	Data []byte
}

// Frames returns the number of sample frames in the stream
func (s *Stream) Frames() int {
	size := s.Format.FrameSize()
	if size == 0 {
		return 0
	}
	return len(s.Data) / size
}

// OpenWAV decodes the WAV file at path
func OpenWAV(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	return DecodeWAV(f)
}

// DecodeWAV reads a complete WAV stream
func DecodeWAV(r io.ReadSeeker) (*Stream, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wav header: %w", err)
	}
	if !d.IsValidFile() {
		return nil, errors.New("invalid wav file")
	}

	tag := d.WavAudioFormat
	if tag == wavFormatExtensible {
		sub, err := extensibleSubFormat(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read extensible format: %w", err)
		}
		tag = sub
	}
	if tag != wavFormatPCM {
		return nil, fmt.Errorf("%w (format tag %d)", ErrNotPCM, tag)
	}

	format := audio.Format{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode pcm data: %w", err)
	}

	data := make([]byte, 0, len(buf.Data)*format.BytesPerSample())
	for _, v := range buf.Data {
		data = audio.AppendSample(data, v, format.BitDepth)
	}

	return &Stream{Format: format, Data: data}, nil
}

// extensibleSubFormat rescans the RIFF chunks of r for the fmt chunk and
// returns the tag embedded in its SubFormat GUID. The read position of r is
// restored before returning.
func extensibleSubFormat(r io.ReadSeeker) (uint16, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	defer r.Seek(pos, io.SeekStart)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	p := riff.New(r)
	if err := p.ParseHeaders(); err != nil {
		return 0, err
	}

	for {
		ch, err := p.NextChunk()
		if err != nil {
			return 0, err
		}
		if ch.ID != riff.FmtID {
			ch.Drain()
			continue
		}

		fmtChunk := make([]byte, ch.Size)
		if _, err := io.ReadFull(ch, fmtChunk); err != nil {
			return 0, err
		}
		if len(fmtChunk) < subFormatOffset+2 {
			return 0, fmt.Errorf("fmt chunk too short for extensible format: %d bytes", len(fmtChunk))
		}
		return binary.LittleEndian.Uint16(fmtChunk[subFormatOffset:]), nil
	}
}
