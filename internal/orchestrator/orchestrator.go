// Package orchestrator owns the voice session lifecycle. It drives the
// credential mint, microphone capture, transport handshake, and control
// protocol for exactly one session at a time, and exposes the session
// state as immutable snapshots.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/credential"
	"github.com/jihoon-dev/voicelink/internal/history"
	"github.com/jihoon-dev/voicelink/internal/metrics"
	"github.com/jihoon-dev/voicelink/internal/protocol"
	"github.com/jihoon-dev/voicelink/internal/signaling"
	"github.com/jihoon-dev/voicelink/internal/tools"
	"github.com/jihoon-dev/voicelink/internal/transport"
)

// controlChannelLabel is the data channel label the remote peer expects.
const controlChannelLabel = "oai-events"

var (
	// ErrSessionActive is returned by Start while a session is
	// connecting or connected.
	ErrSessionActive = errors.New("session already active")
	// ErrNotConnected is returned by operations that need a live
	// control channel.
	ErrNotConnected = errors.New("session not connected")
	// ErrStartAborted is returned by Start when End supersedes the
	// handshake before it completes.
	ErrStartAborted = errors.New("session ended during start")
)

// Transport is the peer connection surface the orchestrator drives.
// *transport.Peer satisfies it.
type Transport interface {
	CreateControlChannel(label string) (transport.ControlChannel, error)
	AddLocalAudio() error
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(sdp string) error
	OnStateChange(fn func(transport.ConnState))
	OnRemoteAudio(fn func())
	Close() error
}

// Microphone is the capture device. Open starts capture into the local
// audio track; SetEnabled gates frames without releasing the device.
type Microphone interface {
	Open(ctx context.Context) error
	SetEnabled(enabled bool)
	Close() error
}

// AudioRouter steers device audio output. Routing failures are logged,
// never escalated; audio plumbing must not kill a healthy session.
type AudioRouter interface {
	ForceSpeakerphone() error
	Restore() error
	SetOutputMuted(muted bool) error
}

// Signaler performs the offer/answer exchange against the remote peer.
type Signaler interface {
	Connect(ctx context.Context, tr signaling.Offerer, token, model string) error
}

// ToolDispatcher executes one tool call and answers it over send.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, send tools.SendFunc, call protocol.FunctionCallArgumentsDone)
}

// Deps are the orchestrator's collaborators. All are required except
// History, which may be nil when transcripts are not persisted.
type Deps struct {
	Credentials  credential.Issuer
	Microphone   Microphone
	NewTransport func() (Transport, error)
	Signaler     Signaler
	Tools        ToolDispatcher
	Router       AudioRouter
	History      history.Store
	Logger       *zap.Logger
}

// Orchestrator runs one voice session at a time. All public methods are
// safe for concurrent use.
type Orchestrator struct {
	deps   Deps
	logger *zap.Logger

	mu            sync.Mutex
	gen           uint64
	draining      bool
	state         SessionState
	cfg           protocol.SessionConfig
	tr            Transport
	ch            transport.ControlChannel
	micOpen       bool
	transcript    []history.TranscriptEvent
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	stateFn       func(SessionState)
	transcriptFn  func(history.TranscriptEvent)

	toolWG sync.WaitGroup
}

// New builds an orchestrator in the idle state.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		deps:   deps,
		logger: deps.Logger,
		state:  initialState(),
	}
}

// State returns a snapshot of the current session state.
func (o *Orchestrator) State() SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Transcript returns a copy of the transcript accumulated so far. The
// transcript of an ended session stays readable until the next Start.
func (o *Orchestrator) Transcript() []history.TranscriptEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]history.TranscriptEvent, len(o.transcript))
	copy(out, o.transcript)
	return out
}

// OnStateChange registers the state listener. The listener receives a
// snapshot and must not call back into the orchestrator.
func (o *Orchestrator) OnStateChange(fn func(SessionState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stateFn = fn
}

// OnTranscript registers the transcript listener.
func (o *Orchestrator) OnTranscript(fn func(history.TranscriptEvent)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcriptFn = fn
}

// apply runs one event through the reducer and fires side effects that
// depend on the phase transition. Callers must hold o.mu.
func (o *Orchestrator) apply(ev stateEvent) {
	prev := o.state
	o.state = reduce(o.state, ev)

	if prev.Phase != PhaseConnected && o.state.Phase == PhaseConnected {
		metrics.SessionsStartedTotal.Inc()
		metrics.ActiveSessions.Inc()
	}
	if prev.Phase == PhaseConnected && o.state.Phase != PhaseConnected {
		metrics.ActiveSessions.Dec()
	}

	if o.stateFn != nil {
		o.stateFn(o.state)
	}
}

// Start brings up a session: mint a credential, open the microphone,
// build the transport, and complete the offer/answer exchange. The
// connected phase is reached asynchronously when the transport reports
// it. Start returns ErrSessionActive if a session is already underway,
// and ErrStartAborted if End was called while the handshake was still
// in flight; in the latter case everything acquired so far is released.
func (o *Orchestrator) Start(ctx context.Context, cfg protocol.SessionConfig) error {
	cfg = cfg.WithDefaults()

	o.mu.Lock()
	switch o.state.Phase {
	case PhaseConnecting, PhaseConnected:
		o.mu.Unlock()
		return ErrSessionActive
	}
	o.gen++
	gen := o.gen
	o.draining = false
	o.cfg = cfg
	o.transcript = nil
	o.sessionCtx, o.sessionCancel = context.WithCancel(context.Background())
	o.apply(startRequested{})
	o.mu.Unlock()

	if err := o.deps.Router.ForceSpeakerphone(); err != nil {
		o.logger.Warn("force speakerphone", zap.Error(err))
	}

	cred, err := o.deps.Credentials.Mint(ctx, cfg)
	if err != nil {
		return o.failStart(gen, "credential", fmt.Errorf("mint credential: %w", err))
	}
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return o.abortStart()
	}
	o.apply(credentialIssued{sessionID: cred.SessionID})
	o.mu.Unlock()
	o.logger.Info("credential issued",
		zap.String("session", cred.SessionID),
		zap.Time("expires", cred.ExpiresAt),
	)

	if err := o.deps.Microphone.Open(ctx); err != nil {
		return o.failStart(gen, "microphone", fmt.Errorf("open microphone: %w", err))
	}
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return o.abortStart(o.deps.Microphone.Close)
	}
	o.micOpen = true
	o.mu.Unlock()

	tr, err := o.deps.NewTransport()
	if err != nil {
		return o.failStart(gen, "transport", fmt.Errorf("init transport: %w", err))
	}
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return o.abortStart(tr.Close)
	}
	o.tr = tr
	o.mu.Unlock()

	// The control channel must exist before the offer so its SCTP
	// section is negotiated.
	ch, err := tr.CreateControlChannel(controlChannelLabel)
	if err != nil {
		return o.failStart(gen, "transport", fmt.Errorf("create control channel: %w", err))
	}
	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return o.abortStart(ch.Close)
	}
	o.ch = ch
	o.mu.Unlock()

	ch.OnOpen(o.onChannelOpen)
	ch.OnMessage(o.handleControlMessage)
	tr.OnStateChange(o.onTransportState)
	tr.OnRemoteAudio(o.onRemoteAudio)

	if err := tr.AddLocalAudio(); err != nil {
		return o.failStart(gen, "transport", fmt.Errorf("attach local audio: %w", err))
	}

	if err := o.deps.Signaler.Connect(ctx, tr, cred.Token, cfg.Model); err != nil {
		return o.failStart(gen, "signaling", err)
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return o.abortStart()
	}
	o.mu.Unlock()

	o.logger.Info("session handshake complete", zap.String("session", cred.SessionID))
	return nil
}

// abortStart finishes a Start attempt that End overtook. Resources the
// attempt had registered were already released by End; closers cover
// the one acquired after End's teardown ran, and routing is restored
// again for the same reason. Session state is left as End settled it.
func (o *Orchestrator) abortStart(closers ...func() error) error {
	o.logger.Info("session start aborted by end")
	for _, close := range closers {
		if err := close(); err != nil {
			o.logger.Warn("release aborted start", zap.Error(err))
		}
	}
	if err := o.deps.Router.Restore(); err != nil {
		o.logger.Warn("restore audio routing", zap.Error(err))
	}
	return ErrStartAborted
}

// failStart releases whatever Start had acquired, records the failure,
// and returns err unchanged. The failed phase is only applied while
// this attempt is still the current one; otherwise End or a transport
// failure already settled the state.
func (o *Orchestrator) failStart(gen uint64, stage string, err error) error {
	metrics.SessionStartFailuresTotal.WithLabelValues(stage).Inc()
	o.logger.Error("session start failed", zap.String("stage", stage), zap.Error(err))

	o.releaseResources()

	o.mu.Lock()
	if o.gen == gen {
		o.apply(startFailed{reason: err.Error()})
	}
	o.mu.Unlock()
	return err
}

// End tears the session down in order: wait for in-flight tool calls,
// close the control channel, stop the microphone, close the transport,
// restore audio routing, then persist the transcript. Ending an idle or
// already ended session is a no-op.
func (o *Orchestrator) End(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Phase == PhaseIdle || o.state.Phase == PhaseEnded {
		o.mu.Unlock()
		return nil
	}
	// Bumping the generation makes a Start still in its handshake
	// abort instead of registering fresh resources after teardown.
	o.gen++
	o.draining = true
	sessionID := o.state.SessionID
	o.mu.Unlock()

	// In-flight tool calls still need the channel to answer. New
	// dispatches are refused once draining is set, so the wait only
	// covers calls that were already counted.
	o.toolWG.Wait()

	o.releaseResources()

	o.mu.Lock()
	events := make([]history.TranscriptEvent, len(o.transcript))
	copy(events, o.transcript)
	o.apply(sessionEnded{})
	o.mu.Unlock()

	if o.deps.History != nil && len(events) > 0 {
		if err := o.deps.History.SaveSession(ctx, sessionID, events); err != nil {
			o.logger.Warn("save transcript", zap.Error(err))
		}
	}

	o.logger.Info("session ended",
		zap.String("session", sessionID),
		zap.Int("transcriptEvents", len(events)),
	)
	return nil
}

// releaseResources tears down in the fixed order channel, microphone,
// transport, routing. Every step tolerates being run twice.
func (o *Orchestrator) releaseResources() {
	o.mu.Lock()
	ch := o.ch
	tr := o.tr
	micOpen := o.micOpen
	cancel := o.sessionCancel
	o.ch = nil
	o.tr = nil
	o.micOpen = false
	o.sessionCancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		if err := ch.Close(); err != nil {
			o.logger.Debug("close control channel", zap.Error(err))
		}
	}
	if micOpen {
		if err := o.deps.Microphone.Close(); err != nil {
			o.logger.Warn("close microphone", zap.Error(err))
		}
	}
	if tr != nil {
		if err := tr.Close(); err != nil {
			o.logger.Warn("close transport", zap.Error(err))
		}
	}
	if err := o.deps.Router.Restore(); err != nil {
		o.logger.Warn("restore audio routing", zap.Error(err))
	}
}

// ToggleListening flips the listening indicator. It only applies while
// connected.
func (o *Orchestrator) ToggleListening() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.Phase != PhaseConnected {
		return
	}
	o.apply(listeningToggled{})
}

// ToggleMute mutes or unmutes microphone and speaker together. The
// session counts as muted only when both sides are; toggling from any
// mixed state mutes both, so two toggles always round-trip.
func (o *Orchestrator) ToggleMute() {
	o.mu.Lock()
	if !o.micOpen {
		o.mu.Unlock()
		return
	}
	target := !(o.state.IsMicMuted && o.state.IsSpeakerMuted)
	o.apply(muteSet{muted: target})
	o.mu.Unlock()

	o.deps.Microphone.SetEnabled(!target)
	if err := o.deps.Router.SetOutputMuted(target); err != nil {
		o.logger.Warn("set output mute", zap.Error(err))
	}
}

// SendTextMessage injects a typed user message into the conversation
// and requests a spoken response for it.
func (o *Orchestrator) SendTextMessage(text string) error {
	o.mu.Lock()
	if o.state.Phase != PhaseConnected {
		o.mu.Unlock()
		return ErrNotConnected
	}
	o.mu.Unlock()

	o.appendTranscript(history.RoleUser, text)

	if err := o.sendEvent(protocol.NewUserTextItem(text)); err != nil {
		return fmt.Errorf("send text item: %w", err)
	}
	if err := o.sendEvent(protocol.NewResponseCreate()); err != nil {
		return fmt.Errorf("request response: %w", err)
	}
	return nil
}

// sendEvent marshals v and writes it to the control channel. It matches
// tools.SendFunc so the dispatcher can answer over the same path.
func (o *Orchestrator) sendEvent(v any) error {
	o.mu.Lock()
	ch := o.ch
	o.mu.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		metrics.EncodeErrorsTotal.Inc()
		return fmt.Errorf("encode control message: %w", err)
	}
	return ch.Send(data)
}

// onChannelOpen configures the remote session. The session.update must
// land before the first response.create or the model answers with stale
// defaults.
func (o *Orchestrator) onChannelOpen() {
	o.logger.Info("control channel open")

	o.mu.Lock()
	cfg := o.cfg
	o.mu.Unlock()

	if err := o.sendEvent(protocol.NewSessionUpdate(cfg)); err != nil {
		o.logger.Warn("send session.update", zap.Error(err))
		return
	}
	if err := o.sendEvent(protocol.NewGreetingResponse()); err != nil {
		o.logger.Warn("send greeting request", zap.Error(err))
	}
}

func (o *Orchestrator) onRemoteAudio() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.apply(responseStarted{})
}

func (o *Orchestrator) onTransportState(st transport.ConnState) {
	switch st {
	case transport.StateConnected:
		o.mu.Lock()
		o.apply(transportConnected{})
		o.mu.Unlock()
	case transport.StateFailed, transport.StateDisconnected:
		o.mu.Lock()
		active := o.state.Phase == PhaseConnecting || o.state.Phase == PhaseConnected
		if active {
			o.gen++
			o.draining = true
		}
		o.mu.Unlock()
		if !active {
			return
		}
		o.logger.Error("transport lost", zap.String("state", string(st)))
		o.releaseResources()
		o.mu.Lock()
		o.apply(transportFailed{reason: "transport " + string(st)})
		o.mu.Unlock()
	}
}

// handleControlMessage is the single entry point for everything the
// remote peer sends over the data channel. Messages for one session
// arrive in order; unknown types are logged and change nothing.
func (o *Orchestrator) handleControlMessage(raw []byte) {
	ev, err := protocol.ParseServerEvent(raw)
	if err != nil {
		metrics.ControlMessagesTotal.WithLabelValues("malformed").Inc()
		o.logger.Warn("malformed control message", zap.Error(err))
		return
	}
	metrics.ControlMessagesTotal.WithLabelValues(protocol.TypeOf(ev)).Inc()

	switch msg := ev.(type) {
	case protocol.SessionCreated:
		o.logger.Info("remote session created", zap.String("remoteSession", msg.Session.ID))
	case protocol.SessionUpdated:
		o.logger.Debug("remote session updated")
	case protocol.SpeechStarted:
		o.mu.Lock()
		o.apply(speechStarted{})
		o.mu.Unlock()
	case protocol.SpeechStopped:
		o.mu.Lock()
		o.apply(speechStopped{})
		o.mu.Unlock()
	case protocol.InputTranscriptionCompleted:
		if msg.Transcript != "" {
			o.appendTranscript(history.RoleUser, msg.Transcript)
		}
	case protocol.ResponseAudioTranscriptDone:
		if msg.Transcript != "" {
			o.appendTranscript(history.RoleAssistant, msg.Transcript)
		}
	case protocol.FunctionCallArgumentsDone:
		o.dispatchToolCall(msg)
	case protocol.ResponseDone:
		o.mu.Lock()
		o.apply(responseFinished{})
		o.mu.Unlock()
	case protocol.ErrorEvent:
		o.logger.Warn("remote protocol error",
			zap.String("code", msg.Error.Code),
			zap.String("message", msg.Error.Message),
		)
		o.mu.Lock()
		o.apply(protocolErrorOccurred{message: msg.Error.Message})
		o.mu.Unlock()
	case protocol.UnknownEvent:
		o.logger.Debug("unhandled control message", zap.String("type", msg.Type))
	}
}

// dispatchToolCall runs the tool off the message callback so a slow
// search never stalls the control channel. The WaitGroup is counted
// under o.mu and gated on draining, so End's Wait never races a
// fresh Add, and a call landing mid-teardown is refused instead of
// answering into a closed channel.
func (o *Orchestrator) dispatchToolCall(call protocol.FunctionCallArgumentsDone) {
	o.mu.Lock()
	if o.draining || o.ch == nil {
		o.mu.Unlock()
		o.logger.Warn("tool call during teardown, dropping", zap.String("call", call.CallID))
		return
	}
	ctx := o.sessionCtx
	o.toolWG.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.toolWG.Done()
		o.deps.Tools.Dispatch(ctx, o.sendEvent, call)
	}()
}

func (o *Orchestrator) appendTranscript(role history.Role, text string) {
	ev := history.TranscriptEvent{
		ID:         uuid.NewString(),
		Role:       role,
		Text:       text,
		OccurredAt: time.Now().UTC(),
	}

	o.mu.Lock()
	o.transcript = append(o.transcript, ev)
	fn := o.transcriptFn
	o.mu.Unlock()

	metrics.TranscriptEventsTotal.WithLabelValues(string(role)).Inc()
	if fn != nil {
		fn(ev)
	}
}
