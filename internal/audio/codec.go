// Package audio holds the Opus codec wrappers and PCM helpers shared
// by the capture and playback paths. Everything runs at 48kHz mono
// s16le; the device layer opens its streams at the same rate so no
// resampling happens anywhere.
package audio

import "time"

const (
	SampleRate = 48000
	Channels   = 1

	// FrameDuration is the packet size used on the outbound track.
	FrameDuration = 20 * time.Millisecond
	// FrameSamples is one 20ms frame at 48kHz mono.
	FrameSamples = SampleRate / 1000 * 20

	// MaxFrameSize is the longest frame Opus can carry, 120ms at 48kHz.
	MaxFrameSize = 5760
	// MaxPacketSize bounds one encoded Opus packet.
	MaxPacketSize = 1500
)
