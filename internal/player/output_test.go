// ABOUTME: Tests for audio output
// ABOUTME: Tests format selection and software volume on raw PCM
package player

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

func TestOtoFormat(t *testing.T) {
	tests := []struct {
		bits    int
		want    oto.Format
		wantErr bool
	}{
		{8, oto.FormatUnsignedInt8, false},
		{16, oto.FormatSignedInt16LE, false},
		{24, 0, true},
		{32, 0, true},
	}

	for _, tt := range tests {
		got, err := OtoFormat(audio.Format{SampleRate: 16000, Channels: 1, BitDepth: tt.bits})
		if tt.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("%d-bit: expected ErrUnsupportedFormat, got %v", tt.bits, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%d-bit: got %v, %v", tt.bits, got, err)
		}
	}
}

func TestNewOutputRejectsBadFormats(t *testing.T) {
	if _, err := NewOutput(audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 24}, 100); err == nil {
		t.Error("expected error for 24-bit output")
	}
	if _, err := NewOutput(audio.Format{SampleRate: 0, Channels: 1, BitDepth: 16}, 100); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestVolumeMultiplier(t *testing.T) {
	tests := []struct {
		volume   int
		expected float64
	}{
		{100, 1.0},
		{50, 0.5},
		{0, 0.0},
	}

	for _, tt := range tests {
		result := getVolumeMultiplier(tt.volume)
		if result != tt.expected {
			t.Errorf("volume=%d: expected %f, got %f", tt.volume, tt.expected, result)
		}
	}
}

func TestSetVolumeClamps(t *testing.T) {
	o, err := NewOutput(audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}, 150)
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	if o.GetVolume() != 100 {
		t.Errorf("volume = %d, want 100", o.GetVolume())
	}
	o.SetVolume(-5)
	if o.GetVolume() != 0 {
		t.Errorf("volume = %d, want 0", o.GetVolume())
	}
}

func TestApplyGain(t *testing.T) {
	t.Run("16-bit", func(t *testing.T) {
		// 1000, -1000, 500
		buf := []byte{0xE8, 0x03, 0x18, 0xFC, 0xF4, 0x01}
		applyGain(buf, 16, 0.5)
		want := []byte{0xF4, 0x01, 0x0C, 0xFE, 0xFA, 0x00} // 500, -500, 250
		if !bytes.Equal(buf, want) {
			t.Errorf("got % x, want % x", buf, want)
		}
	})

	t.Run("8-bit", func(t *testing.T) {
		buf := []byte{128, 228, 28}
		applyGain(buf, 8, 0.5)
		want := []byte{128, 178, 78}
		if !bytes.Equal(buf, want) {
			t.Errorf("got %v, want %v", buf, want)
		}
	})
}

func TestGainReaderKeepsSamplesWhole(t *testing.T) {
	src := []byte{0xE8, 0x03, 0x18, 0xFC, 0xF4, 0x01, 0x00, 0x10}
	want := append([]byte(nil), src...)
	applyGain(want, 16, 0.5)

	// OneByteReader splits every sample across reads
	r := newGainReader(iotest.OneByteReader(bytes.NewReader(src)), 16, 0.5)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestGainReaderSmallReadsKeepOrder(t *testing.T) {
	src := []byte{0xE8, 0x03, 0x18, 0xFC, 0xF4, 0x01, 0x00, 0x10, 0x00, 0xF0}
	want := append([]byte(nil), src...)
	applyGain(want, 16, 0.5)

	// A 3-byte read leaves half a sample behind; the 1-byte reads that
	// follow must neither skip the gain nor reorder bytes.
	r := newGainReader(bytes.NewReader(src), 16, 0.5)
	var got []byte
	for i := 0; i < 100; i++ {
		size := 1
		if i%4 == 0 {
			size = 3
		}
		buf := make([]byte, size)
		n, err := r.Read(buf)
		got = append(got, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got % x, want % x", got, want)
	}
}

func TestGainReaderUnityPassesThrough(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3})
	if r := newGainReader(src, 16, 1); r != io.Reader(src) {
		t.Error("unity gain should return the source reader")
	}
}
