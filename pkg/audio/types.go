// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM format descriptor and immutable audio chunks
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a fixed-width integer PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// BytesPerSample returns the width of a single channel sample
func (f Format) BytesPerSample() int {
	return (f.BitDepth + 7) / 8
}

// FrameSize returns the number of bytes holding one sample for every channel
func (f Format) FrameSize() int {
	return f.BytesPerSample() * f.Channels
}

// ByteRate returns the number of bytes per second of real-time playback
func (f Format) ByteRate() int {
	return f.SampleRate * f.FrameSize()
}

// FramesDuration returns the playback time of the given number of frames
func (f Format) FramesDuration(frames int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Validate reports whether the format can be streamed
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", f.BitDepth)
	}
	return nil
}

// Silence returns frames of zero-level audio. 8-bit PCM is unsigned, so
// its zero level is 0x80.
func (f Format) Silence(frames int) []byte {
	data := make([]byte, frames*f.FrameSize())
	if f.BitDepth == 8 {
		for i := range data {
			data[i] = 0x80
		}
	}
	return data
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dbit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// Chunk is an immutable slice of interleaved little-endian PCM bytes.
// Chunks are passed by value; every copy shares the same backing array.
type Chunk struct {
	data []byte
}

// NewChunk wraps data without copying. The caller hands over ownership and
// must not modify data afterwards.
func NewChunk(data []byte) Chunk {
	return Chunk{data: data}
}

// Bytes returns the chunk payload. It must be treated as read-only.
func (c Chunk) Bytes() []byte { return c.data }

// Len returns the payload size in bytes
func (c Chunk) Len() int { return len(c.data) }

// Frames returns the number of sample frames in the chunk
func (c Chunk) Frames(f Format) int {
	size := f.FrameSize()
	if size == 0 {
		return 0
	}
	return len(c.data) / size
}

// Duration returns the real playback time of the chunk
func (c Chunk) Duration(f Format) time.Duration {
	return f.FramesDuration(c.Frames(f))
}

// AppendSample packs a signed sample value as little-endian bytes of the
// given bit depth. 8-bit values are expected in unsigned 0..255 form, as
// stored in WAV files.
func AppendSample(dst []byte, v int, bitDepth int) []byte {
	switch bitDepth {
	case 8:
		return append(dst, byte(v))
	case 16:
		return append(dst, byte(v), byte(v>>8))
	case 24:
		b := SampleTo24Bit(int32(v))
		return append(dst, b[0], b[1], b[2])
	default:
		return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
}

// ReadSample unpacks one little-endian sample of the given bit depth from
// the start of b. It is the inverse of AppendSample.
func ReadSample(b []byte, bitDepth int) int {
	switch bitDepth {
	case 8:
		return int(b[0])
	case 16:
		return int(int16(uint16(b[0]) | uint16(b[1])<<8))
	case 24:
		return int(SampleFrom24Bit([3]byte{b[0], b[1], b[2]}))
	default:
		return int(int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24))
	}
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	// Take lower 24 bits, pack little-endian
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}
