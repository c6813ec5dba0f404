package orchestrator

// Phase identifies where a session is in its lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseError      Phase = "error"
	PhaseEnded      Phase = "ended"
)

// SessionState is the complete observable state of a voice session.
// It is a value type; listeners receive snapshots and never share
// memory with the orchestrator.
type SessionState struct {
	Phase          Phase
	SessionID      string
	IsListening    bool
	IsSpeaking     bool
	IsMicMuted     bool
	IsSpeakerMuted bool
	LastError      string
}

func initialState() SessionState {
	return SessionState{Phase: PhaseIdle}
}

// stateEvent is the closed set of inputs the reducer accepts. All
// state transitions go through reduce so the lifecycle is testable
// without any I/O.
type stateEvent interface{ isStateEvent() }

type startRequested struct{}
type credentialIssued struct{ sessionID string }
type transportConnected struct{}
type startFailed struct{ reason string }
type transportFailed struct{ reason string }
type speechStarted struct{}
type speechStopped struct{}
type responseStarted struct{}
type responseFinished struct{}
type protocolErrorOccurred struct{ message string }
type listeningToggled struct{}
type muteSet struct{ muted bool }
type sessionEnded struct{}

func (startRequested) isStateEvent()        {}
func (credentialIssued) isStateEvent()      {}
func (transportConnected) isStateEvent()    {}
func (startFailed) isStateEvent()           {}
func (transportFailed) isStateEvent()       {}
func (speechStarted) isStateEvent()         {}
func (speechStopped) isStateEvent()         {}
func (responseStarted) isStateEvent()       {}
func (responseFinished) isStateEvent()      {}
func (protocolErrorOccurred) isStateEvent() {}
func (listeningToggled) isStateEvent()      {}
func (muteSet) isStateEvent()               {}
func (sessionEnded) isStateEvent()          {}

// reduce computes the next state from the current one and a single
// event. It never performs I/O and never mutates its input.
func reduce(s SessionState, ev stateEvent) SessionState {
	switch ev := ev.(type) {
	case startRequested:
		return SessionState{Phase: PhaseConnecting}
	case credentialIssued:
		s.SessionID = ev.sessionID
		return s
	case transportConnected:
		if s.Phase == PhaseConnecting {
			s.Phase = PhaseConnected
		}
		return s
	case startFailed:
		s.Phase = PhaseError
		s.LastError = ev.reason
		s.IsListening = false
		s.IsSpeaking = false
		return s
	case transportFailed:
		s.Phase = PhaseError
		s.LastError = ev.reason
		s.IsListening = false
		s.IsSpeaking = false
		return s
	case speechStarted:
		s.IsListening = true
		return s
	case speechStopped:
		s.IsListening = false
		return s
	case responseStarted:
		s.IsSpeaking = true
		return s
	case responseFinished:
		s.IsSpeaking = false
		return s
	case protocolErrorOccurred:
		// Protocol-level errors are recorded but never tear the
		// session down; the connection is still healthy.
		s.LastError = ev.message
		return s
	case listeningToggled:
		if s.Phase == PhaseConnected {
			s.IsListening = !s.IsListening
		}
		return s
	case muteSet:
		s.IsMicMuted = ev.muted
		s.IsSpeakerMuted = ev.muted
		return s
	case sessionEnded:
		return SessionState{Phase: PhaseEnded}
	default:
		return s
	}
}
