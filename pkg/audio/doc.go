// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and Chunk types and sample packing helpers
// Package audio provides the PCM types shared by the loader, the
// distribution policies and the connection transports.
//
//   - Format: sample rate, channel count and bit depth of the whole program
//   - Chunk: an immutable slice of interleaved little-endian PCM bytes
//
// Example:
//
//	format := audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
//	chunk := audio.NewChunk(pcm)
//	wait := chunk.Duration(format)
package audio
