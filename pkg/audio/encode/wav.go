// ABOUTME: WAV writer for raw interleaved PCM bytes
// ABOUTME: Repacks byte input into go-audio buffers and finalizes the RIFF header on Close
package encode

import (
	"io"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// WAVWriter is an io.WriteCloser producing a PCM WAV file
type WAVWriter struct {
	enc    *wav.Encoder
	format audio.Format
	buf    *goaudio.IntBuffer
	carry  []byte
	frames int
}

// NewWAV starts a WAV file on w. The header sizes are written by Close, so
// w must support seeking.
func NewWAV(w io.WriteSeeker, format audio.Format) (*WAVWriter, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &WAVWriter{
		enc:    wav.NewEncoder(w, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM),
		format: format,
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
			SourceBitDepth: format.BitDepth,
		},
	}, nil
}

// Write accepts any number of bytes. Whole frames are encoded right away;
// a trailing partial frame waits for the next call.
func (w *WAVWriter) Write(p []byte) (int, error) {
	frameSize := w.format.FrameSize()
	sampleSize := w.format.BytesPerSample()

	data := p
	if len(w.carry) > 0 {
		data = append(w.carry, p...)
	}
	whole := len(data) - len(data)%frameSize

	samples := w.buf.Data[:0]
	for i := 0; i < whole; i += sampleSize {
		samples = append(samples, audio.ReadSample(data[i:], w.format.BitDepth))
	}
	w.buf.Data = samples

	if len(samples) > 0 {
		if err := w.enc.Write(w.buf); err != nil {
			return 0, err
		}
		w.frames += whole / frameSize
	}

	w.carry = append(w.carry[:0], data[whole:]...)
	return len(p), nil
}

// Frames returns how many frames have been encoded
func (w *WAVWriter) Frames() int {
	return w.frames
}

// Close finalizes the header. A trailing partial frame is dropped.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}
