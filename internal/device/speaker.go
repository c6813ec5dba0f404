package device

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/audio"
	"github.com/jihoon-dev/voicelink/internal/metrics"
	"github.com/jihoon-dev/voicelink/internal/ringbuffer"
)

// playoutSeconds bounds how far playback may lag behind the network
// before old audio is dropped.
const playoutSeconds = 2

// Speaker decodes the remote Opus track and plays it through the
// default output device. The playout buffer between the decode loop
// and the device callback absorbs network jitter.
type Speaker struct {
	logger *zap.Logger
	buf    *ringbuffer.Buffer

	mu       sync.Mutex
	audioCtx *malgo.AllocatedContext
	device   *malgo.Device
	muted    bool
	stop     chan struct{}
	readerWG sync.WaitGroup
}

func NewSpeaker(logger *zap.Logger) *Speaker {
	return &Speaker{
		logger: logger,
		buf:    ringbuffer.New(playoutSeconds),
	}
}

// Open initializes the playback device. Audio starts flowing once Play
// receives the remote track.
func (s *Speaker) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return nil
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = audio.SampleRate
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = audio.Channels
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = audio.SampleRate / 10
	cfg.Periods = 4

	device, err := malgo.InitDevice(audioCtx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			s.onPlayback(pOutput)
		},
	})
	if err != nil {
		uninitContext(audioCtx)
		return fmt.Errorf("init playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		uninitContext(audioCtx)
		return fmt.Errorf("start playback device: %w", err)
	}

	s.audioCtx = audioCtx
	s.device = device
	s.stop = make(chan struct{})
	s.logger.Info("speaker open", zap.Int("playoutSeconds", playoutSeconds))
	return nil
}

// onPlayback runs on the device thread. Whatever the buffer cannot
// supply plays as silence.
func (s *Speaker) onPlayback(pOutput []byte) {
	s.mu.Lock()
	muted := s.muted
	s.mu.Unlock()

	if muted {
		clearBytes(pOutput)
		return
	}

	n := s.buf.Read(pOutput)
	clearBytes(pOutput[n:])
}

// Play consumes the remote track until it ends or the speaker closes.
// It is called from the transport's remote-track callback.
func (s *Speaker) Play(remote *webrtc.TrackRemote) {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop == nil {
		s.logger.Warn("remote track before speaker open, dropping")
		return
	}

	s.readerWG.Add(1)
	go func() {
		defer s.readerWG.Done()
		s.readLoop(remote, stop)
	}()
}

func (s *Speaker) readLoop(remote *webrtc.TrackRemote, stop chan struct{}) {
	dec, err := audio.NewDecoder()
	if err != nil {
		s.logger.Error("create decoder", zap.Error(err))
		return
	}

	bufs := audio.AcquirePlaybackBuffers()
	defer audio.ReleasePlaybackBuffers(bufs)

	var pkt rtp.Packet
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, _, err := remote.Read(bufs.Packet)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("read remote rtp", zap.Error(err))
			}
			return
		}
		if err := pkt.Unmarshal(bufs.Packet[:n]); err != nil {
			s.logger.Debug("unmarshal remote rtp", zap.Error(err))
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm, err := dec.Decode(pkt.Payload)
		if err != nil {
			metrics.DecodeErrorsTotal.Inc()
			s.logger.Debug("decode remote packet", zap.Error(err))
			continue
		}

		if dropped := s.buf.Write(audio.Int16ToBytesInto(pcm, bufs.Bytes)); dropped > 0 {
			s.logger.Debug("playout buffer overrun", zap.Int("droppedBytes", dropped))
		}
	}
}

// SetMuted silences output without stopping the decode loop, so the
// playout position keeps tracking the live conversation.
func (s *Speaker) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// Close stops playback, ends the decode loop, and releases the device.
// Closing twice is a no-op.
func (s *Speaker) Close() error {
	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return nil
	}
	device := s.device
	audioCtx := s.audioCtx
	stop := s.stop
	s.device = nil
	s.audioCtx = nil
	s.stop = nil
	s.mu.Unlock()

	close(stop)
	s.readerWG.Wait()

	if err := device.Stop(); err != nil {
		s.logger.Debug("stop playback device", zap.Error(err))
	}
	device.Uninit()
	uninitContext(audioCtx)
	s.buf.Reset()
	return nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
