// ABOUTME: Audio decoder package for WAV containers
// ABOUTME: Extracts the declared format and raw PCM bytes from WAV files
// Package decode reads integer PCM WAV files.
//
// Decoding is delegated to github.com/go-audio/wav; this package only
// normalizes the result into an audio.Format and a little-endian byte
// stream ready to be chunked.
//
// Example:
//
//	stream, err := decode.OpenWAV("program/intro.wav")
//	fmt.Println(stream.Format, len(stream.Data))
package decode
