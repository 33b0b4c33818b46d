// ABOUTME: Tests for the listener helpers
// ABOUTME: Covers advertised format merging and WAV recording
package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/Resonate-Protocol/pcmcast/pkg/audio/decode"
)

func TestMergeFormat(t *testing.T) {
	flags := audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	advertised := audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 8}

	tests := []struct {
		name string
		set  map[string]bool
		want audio.Format
	}{
		{"nothing set", nil, advertised},
		{"rate set", map[string]bool{"rate": true}, audio.Format{SampleRate: 16000, Channels: 2, BitDepth: 8}},
		{"all set", map[string]bool{"rate": true, "channels": true, "bits": true}, flags},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mergeFormat(flags, advertised, tt.set); got != tt.want {
				t.Errorf("mergeFormat() = %v, want %v", got, tt.want)
			}
		})
	}

	// Missing TXT values keep the flag defaults
	if got := mergeFormat(flags, audio.Format{}, nil); got != flags {
		t.Errorf("mergeFormat() with empty advertisement = %v, want %v", got, flags)
	}
}

func TestRecordWAV(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	path := filepath.Join(t.TempDir(), "capture.wav")

	pcm := make([]byte, 3200)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	frames, err := recordWAV(bytes.NewReader(pcm), path, format)
	if err != nil {
		t.Fatalf("recordWAV: %v", err)
	}
	if frames != 1600 {
		t.Errorf("frames = %d, want 1600", frames)
	}

	stream, err := decode.OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	if !bytes.Equal(stream.Data, pcm) {
		t.Error("recorded data differs from the stream")
	}
}
