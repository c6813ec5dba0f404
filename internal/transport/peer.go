// Package transport owns one peer-to-peer connection. It wires the pion
// peer connection, local audio track, and ordered control data channel,
// and exposes primitives only: it carries no protocol semantics.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

const iceGatherTimeout = 10 * time.Second

// ConnState is the coarse connection state surfaced to the orchestrator.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
	StateFailed       ConnState = "failed"
	StateClosed       ConnState = "closed"
)

// ControlChannel is the bidirectional message channel carried alongside
// the audio media.
type ControlChannel interface {
	OnOpen(fn func())
	OnMessage(fn func(data []byte))
	Send(data []byte) error
	Close() error
}

// Peer is one WebRTC connection: local mic track, control data channel,
// offer/answer exchange, remote audio. Exactly one Peer exists per
// session and it is discarded on teardown.
type Peer struct {
	pc     *webrtc.PeerConnection
	track  webrtc.TrackLocal
	logger *zap.Logger

	mu       sync.Mutex
	closed   bool
	stateFns []func(ConnState)
	trackFns []func(*webrtc.TrackRemote)
}

// NewPeer creates a configured, unconnected peer with the Opus codec
// registered and NACK handling enabled. track is the local microphone
// track added before the offer is created.
func NewPeer(logger *zap.Logger, stunServers []string, track webrtc.TrackLocal) (*Peer, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	ir := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	ir.Add(responder)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
	)

	urls := make([]string, len(stunServers))
	copy(urls, stunServers)
	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{pc: pc, track: track, logger: logger}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Info("connection state", zap.String("state", state.String()))
		p.notifyState(mapConnState(state))
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info("remote track",
			zap.String("codec", remote.Codec().MimeType),
			zap.Uint8("pt", uint8(remote.PayloadType())),
		)
		p.mu.Lock()
		fns := append([]func(*webrtc.TrackRemote){}, p.trackFns...)
		p.mu.Unlock()
		for _, fn := range fns {
			fn(remote)
		}
	})

	return p, nil
}

func mapConnState(s webrtc.PeerConnectionState) ConnState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateConnecting
	}
}

func (p *Peer) notifyState(state ConnState) {
	p.mu.Lock()
	fns := append([]func(ConnState){}, p.stateFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

// OnStateChange registers a connection-state callback.
func (p *Peer) OnStateChange(fn func(ConnState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateFns = append(p.stateFns, fn)
}

// OnRemoteAudio registers a callback fired when the remote audio track
// arrives.
func (p *Peer) OnRemoteAudio(fn func()) {
	p.OnRemoteTrack(func(*webrtc.TrackRemote) { fn() })
}

// OnRemoteTrack registers a callback receiving the remote track itself,
// used by the playback path.
func (p *Peer) OnRemoteTrack(fn func(*webrtc.TrackRemote)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trackFns = append(p.trackFns, fn)
}

// CreateControlChannel creates the ordered data channel. It must be
// called before CreateOffer so the SCTP section lands in the SDP.
func (p *Peer) CreateControlChannel(label string) (ControlChannel, error) {
	ordered := true
	dc, err := p.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return &channel{dc: dc, logger: p.logger}, nil
}

// AddLocalAudio adds the microphone track to the connection.
func (p *Peer) AddLocalAudio() error {
	if p.track == nil {
		return fmt.Errorf("no local audio track configured")
	}
	if _, err := p.pc.AddTrack(p.track); err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}
	return nil
}

// CreateOffer generates the local SDP offer, applies it as the local
// description, and waits for ICE gathering (bounded) before returning
// the SDP string.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	gatherDone := webrtc.GatheringCompletePromise(p.pc)
	select {
	case <-gatherDone:
	case <-time.After(iceGatherTimeout):
		p.logger.Warn("ICE gathering timed out, proceeding with partial candidates")
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return p.pc.LocalDescription().SDP, nil
}

// SetAnswer applies the remote SDP answer.
func (p *Peer) SetAnswer(sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// Close tears down the peer connection. Closing twice is a no-op.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

// channel wraps the pion data channel behind ControlChannel.
type channel struct {
	dc     *webrtc.DataChannel
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (c *channel) OnOpen(fn func()) {
	c.dc.OnOpen(fn)
}

func (c *channel) OnMessage(fn func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *channel) Send(data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("control channel closed")
	}
	if err := c.dc.Send(data); err != nil {
		return fmt.Errorf("send control message: %w", err)
	}
	return nil
}

// Close tolerates close-on-closed: teardown is best-effort.
func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.dc.Close(); err != nil {
		c.logger.Debug("data channel close", zap.Error(err))
	}
	return nil
}
