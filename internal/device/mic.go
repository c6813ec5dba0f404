// Package device binds the OS audio devices to the WebRTC media paths:
// microphone capture feeding the outbound track and remote audio
// playback through the speaker.
package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/audio"
	"github.com/jihoon-dev/voicelink/internal/metrics"
)

// Microphone captures device audio, encodes it to Opus, and writes it
// to the local track the transport sends. Frames captured while the
// microphone is disabled are discarded without releasing the device.
type Microphone struct {
	logger *zap.Logger
	track  *webrtc.TrackLocalStaticSample
	enc    *audio.Encoder

	mu       sync.Mutex
	audioCtx *malgo.AllocatedContext
	device   *malgo.Device
	enabled  bool
	pending  []int16
}

// NewMicrophone creates the microphone and its outbound track. The
// track exists before Open so the transport can be built around it.
func NewMicrophone(logger *zap.Logger) (*Microphone, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: audio.SampleRate,
		Channels:  2,
	}, "audio", "voicelink-mic")
	if err != nil {
		return nil, fmt.Errorf("create local track: %w", err)
	}

	enc, err := audio.NewEncoder()
	if err != nil {
		return nil, err
	}

	return &Microphone{
		logger:  logger,
		track:   track,
		enc:     enc,
		enabled: true,
	}, nil
}

// Track returns the outbound track the transport should send.
func (m *Microphone) Track() webrtc.TrackLocal {
	return m.track
}

// Open initializes the capture device and starts feeding the track.
func (m *Microphone) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return nil
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = audio.SampleRate
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = audio.Channels
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	cfg.PeriodSizeInFrames = audio.FrameSamples
	cfg.Periods = 3

	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * audio.Channels
	device, err := malgo.InitDevice(audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			m.onCapture(pInput[:n])
		},
	})
	if err != nil {
		uninitContext(audioCtx)
		return fmt.Errorf("init capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		uninitContext(audioCtx)
		return fmt.Errorf("start capture device: %w", err)
	}

	m.audioCtx = audioCtx
	m.device = device
	m.logger.Info("microphone open",
		zap.Int("sampleRate", audio.SampleRate),
		zap.Int("frameSamples", audio.FrameSamples),
	)
	return nil
}

// onCapture runs on the device thread. It accumulates samples into
// exact 20ms frames, encodes, and writes to the track.
func (m *Microphone) onCapture(data []byte) {
	m.mu.Lock()
	if !m.enabled {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, audio.BytesToInt16(data)...)
	frames := m.cutFrames()
	m.mu.Unlock()

	for _, frame := range frames {
		packet, err := m.enc.Encode(frame)
		if err != nil {
			metrics.EncodeErrorsTotal.Inc()
			m.logger.Debug("encode capture frame", zap.Error(err))
			continue
		}
		if err := m.track.WriteSample(media.Sample{
			Data:     packet,
			Duration: audio.FrameDuration,
		}); err != nil {
			m.logger.Debug("write capture sample", zap.Error(err))
		}
	}
}

// cutFrames splits pending samples into whole frames. Callers hold mu.
func (m *Microphone) cutFrames() [][]int16 {
	var frames [][]int16
	for len(m.pending) >= audio.FrameSamples {
		frame := make([]int16, audio.FrameSamples)
		copy(frame, m.pending[:audio.FrameSamples])
		frames = append(frames, frame)
		m.pending = m.pending[audio.FrameSamples:]
	}
	return frames
}

// SetEnabled gates capture without releasing the device. Disabling
// drops any partial frame so re-enabling starts clean.
func (m *Microphone) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
	if !enabled {
		m.pending = m.pending[:0]
	}
}

// Close stops capture and releases the device. Closing twice is a
// no-op; the track survives so a later Open can reuse it.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}

	if err := m.device.Stop(); err != nil {
		m.logger.Debug("stop capture device", zap.Error(err))
	}
	m.device.Uninit()
	m.device = nil
	uninitContext(m.audioCtx)
	m.audioCtx = nil
	m.pending = nil
	return nil
}

func uninitContext(ctx *malgo.AllocatedContext) {
	if ctx == nil {
		return
	}
	_ = ctx.Uninit()
	ctx.Free()
}
