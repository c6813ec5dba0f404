package device

import "go.uber.org/zap"

// SpeakerRouter steers session audio to the speaker. Forcing the route
// opens the playback device; restoring releases it so other programs
// get the device back between sessions.
type SpeakerRouter struct {
	logger  *zap.Logger
	speaker *Speaker
}

func NewSpeakerRouter(logger *zap.Logger, speaker *Speaker) *SpeakerRouter {
	return &SpeakerRouter{logger: logger, speaker: speaker}
}

func (r *SpeakerRouter) ForceSpeakerphone() error {
	return r.speaker.Open()
}

func (r *SpeakerRouter) Restore() error {
	return r.speaker.Close()
}

func (r *SpeakerRouter) SetOutputMuted(muted bool) error {
	r.speaker.SetMuted(muted)
	return nil
}

// NopRouter is the routing stand-in for headless runs where no
// playback device exists.
type NopRouter struct{}

func (NopRouter) ForceSpeakerphone() error        { return nil }
func (NopRouter) Restore() error                  { return nil }
func (NopRouter) SetOutputMuted(muted bool) error { return nil }
