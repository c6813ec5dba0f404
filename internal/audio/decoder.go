package audio

import (
	"fmt"

	"github.com/hraban/opus"
)

// Decoder turns Opus packets from the remote track back into 48kHz
// mono PCM for playback. Not safe for concurrent use; the playback
// loop is the only caller.
type Decoder struct {
	dec *opus.Decoder
	pcm []int16
}

func NewDecoder() (*Decoder, error) {
	dec, err := opus.NewDecoder(SampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &Decoder{dec: dec, pcm: make([]int16, MaxFrameSize)}, nil
}

// Decode decompresses one packet. The returned slice is valid until
// the next call.
func (d *Decoder) Decode(packet []byte) ([]int16, error) {
	n, err := d.dec.Decode(packet, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return d.pcm[:n*Channels], nil
}
