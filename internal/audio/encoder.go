package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

const encoderBitrate = 64000

// Encoder turns 20ms frames of 48kHz mono PCM into Opus packets for
// the outbound track. Not safe for concurrent use; the capture loop is
// the only caller.
type Encoder struct {
	enc *opus.Encoder
	buf []byte
}

func NewEncoder() (*Encoder, error) {
	enc, err := opus.NewEncoder(SampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(encoderBitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}
	return &Encoder{enc: enc, buf: make([]byte, MaxPacketSize)}, nil
}

// Encode compresses one frame. The returned slice is valid until the
// next call.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSamples {
		return nil, fmt.Errorf("encode: frame has %d samples, want %d", len(pcm), FrameSamples)
	}
	n, err := e.enc.Encode(pcm, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	return e.buf[:n], nil
}
