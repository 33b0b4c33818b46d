// ABOUTME: Audio output using oto library
// ABOUTME: Plays a raw PCM byte stream with software volume control
package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Resonate-Protocol/pcmcast/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// ErrUnsupportedFormat is returned for bit depths oto cannot play
var ErrUnsupportedFormat = errors.New("unsupported output format")

const pollInterval = 50 * time.Millisecond

// OtoFormat maps a stream format to oto's sample encoding. Only unsigned
// 8-bit and signed little-endian 16-bit streams can be played unconverted.
func OtoFormat(f audio.Format) (oto.Format, error) {
	switch f.BitDepth {
	case 8:
		return oto.FormatUnsignedInt8, nil
	case 16:
		return oto.FormatSignedInt16LE, nil
	default:
		return 0, fmt.Errorf("%w: %d-bit", ErrUnsupportedFormat, f.BitDepth)
	}
}

// Output plays one PCM stream
type Output struct {
	format audio.Format
	volume int
}

// NewOutput creates an audio output for format. volume is 0-100.
func NewOutput(format audio.Format, volume int) (*Output, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if _, err := OtoFormat(format); err != nil {
		return nil, err
	}
	o := &Output{format: format}
	o.SetVolume(volume)
	return o, nil
}

// Play streams r to the sound device until r ends or ctx is cancelled. A
// clean end of stream returns nil.
func (o *Output) Play(ctx context.Context, r io.Reader) error {
	enc, err := OtoFormat(o.format)
	if err != nil {
		return err
	}

	otoCtx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   o.format.SampleRate,
		ChannelCount: o.format.Channels,
		Format:       enc,
	})
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan
	defer otoCtx.Suspend()

	log.Printf("Audio output initialized: %s", o.format)

	player := otoCtx.NewPlayer(newGainReader(r, o.format.BitDepth, getVolumeMultiplier(o.volume)))
	defer player.Close()
	player.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	if err := player.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Output) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
}

// GetVolume returns current volume
func (o *Output) GetVolume() int {
	return o.volume
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume int) float64 {
	return float64(volume) / 100.0
}

// gainReader scales samples as they pass through. A sample split across two
// reads is held back until it is complete; a scaled sample that does not fit
// the caller's buffer is handed out over the following reads.
type gainReader struct {
	r     io.Reader
	bits  int
	gain  float64
	carry []byte
	ready []byte
	err   error
}

func newGainReader(r io.Reader, bits int, gain float64) io.Reader {
	if gain == 1 {
		return r
	}
	return &gainReader{r: r, bits: bits, gain: gain}
}

func (g *gainReader) Read(p []byte) (int, error) {
	if len(g.ready) > 0 {
		n := copy(p, g.ready)
		g.ready = g.ready[n:]
		if len(g.ready) == 0 {
			err := g.err
			g.err = nil
			return n, err
		}
		return n, nil
	}

	size := g.bits / 8
	if len(p) >= size {
		return g.readSamples(p)
	}

	sample := make([]byte, size)
	n, err := g.readSamples(sample)
	m := copy(p, sample[:n])
	if m < n {
		g.ready = sample[m:n]
		g.err = err
		return m, nil
	}
	return m, err
}

// readSamples fills p with whole scaled samples
func (g *gainReader) readSamples(p []byte) (int, error) {
	size := g.bits / 8
	n := copy(p, g.carry)
	g.carry = g.carry[:0]

	m, err := g.r.Read(p[n:])
	total := n + m
	whole := total - total%size

	applyGain(p[:whole], g.bits, g.gain)
	g.carry = append(g.carry, p[whole:total]...)
	return whole, err
}

// applyGain scales 8-bit unsigned or 16-bit signed little-endian samples in place
func applyGain(buf []byte, bits int, gain float64) {
	switch bits {
	case 8:
		for i, b := range buf {
			buf[i] = byte(int(float64(int(b)-128)*gain) + 128)
		}
	case 16:
		for i := 0; i+1 < len(buf); i += 2 {
			s := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
			s = int16(float64(s) * gain)
			buf[i] = byte(s)
			buf[i+1] = byte(uint16(s) >> 8)
		}
	}
}
