// ABOUTME: Tests for the WAV writer
// ABOUTME: Streams bytes in uneven pieces and decodes the result
package encode

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio/decode"
)

func pcmRamp(format audio.Format, frames int) []byte {
	var out []byte
	for i := 0; i < frames*format.Channels; i++ {
		v := (i*97)%2000 - 1000
		if format.BitDepth == 8 {
			v = 128 + v/10
		}
		out = audio.AppendSample(out, v, format.BitDepth)
	}
	return out
}

func TestWAVWriterRoundTrip(t *testing.T) {
	formats := []audio.Format{
		{SampleRate: 16000, Channels: 1, BitDepth: 16},
		{SampleRate: 44100, Channels: 2, BitDepth: 16},
		{SampleRate: 8000, Channels: 1, BitDepth: 8},
		{SampleRate: 48000, Channels: 2, BitDepth: 24},
	}

	for _, format := range formats {
		t.Run(format.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.wav")
			f, err := os.Create(path)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}

			w, err := NewWAV(f, format)
			if err != nil {
				t.Fatalf("NewWAV: %v", err)
			}

			pcm := pcmRamp(format, 1000)
			// Uneven pieces split samples and frames
			for off := 0; off < len(pcm); {
				end := min(off+77, len(pcm))
				n, err := w.Write(pcm[off:end])
				if err != nil || n != end-off {
					t.Fatalf("Write = %d, %v", n, err)
				}
				off = end
			}
			if w.Frames() != 1000 {
				t.Errorf("Frames() = %d, want 1000", w.Frames())
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			f.Close()

			stream, err := decode.OpenWAV(path)
			if err != nil {
				t.Fatalf("OpenWAV: %v", err)
			}
			if stream.Format != format {
				t.Errorf("decoded format %v, want %v", stream.Format, format)
			}
			if !bytes.Equal(stream.Data, pcm) {
				t.Errorf("decoded %d bytes differ from the %d written", len(stream.Data), len(pcm))
			}
		})
	}
}

func TestWAVWriterDropsPartialFrame(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 2, BitDepth: 16}
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	w, err := NewWAV(f, format)
	if err != nil {
		t.Fatalf("NewWAV: %v", err)
	}
	// Two whole frames and half of a third
	if _, err := w.Write(make([]byte, 10)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Frames() != 2 {
		t.Errorf("Frames() = %d, want 2", w.Frames())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stream, err := decode.OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	if len(stream.Data) != 8 {
		t.Errorf("decoded %d bytes, want 8", len(stream.Data))
	}
}

func TestNewWAVRejectsInvalidFormat(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	if _, err := NewWAV(f, audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 12}); err == nil {
		t.Error("expected error for 12-bit format")
	}
}
