package audio

import "sync"

// PlaybackBuffers holds pre-allocated buffers for the RTP
// depacketize/decode-to-bytes pipeline. Used via sync.Pool to avoid
// per-packet allocations in the hot path.
type PlaybackBuffers struct {
	Packet []byte // cap: MaxPacketSize
	Bytes  []byte // cap: MaxFrameSize*2
}

var playbackPool = sync.Pool{
	New: func() interface{} {
		return &PlaybackBuffers{
			Packet: make([]byte, MaxPacketSize),
			Bytes:  make([]byte, MaxFrameSize*2),
		}
	},
}

// AcquirePlaybackBuffers gets a set of buffers from the pool.
func AcquirePlaybackBuffers() *PlaybackBuffers {
	return playbackPool.Get().(*PlaybackBuffers)
}

// ReleasePlaybackBuffers returns buffers to the pool.
func ReleasePlaybackBuffers(b *PlaybackBuffers) {
	playbackPool.Put(b)
}
