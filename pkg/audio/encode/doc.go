// ABOUTME: Audio encoder package for writing raw PCM into containers
// ABOUTME: Provides a WAV writer fed with interleaved little-endian bytes
// Package encode writes raw PCM streams to files.
//
// The input is the same byte layout pcmcast sends on the wire, so a
// received stream can be saved without any conversion step:
//
//	w, err := encode.NewWAV(file, format)
//	_, err = io.Copy(w, conn)
//	err = w.Close()
package encode
