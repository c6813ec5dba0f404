// Package protocol defines the JSON control messages exchanged with the
// realtime model over the session's data channel: server events received
// from the model and client events emitted by the orchestrator.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Server event type tags.
const (
	TypeSessionCreated                = "session.created"
	TypeSessionUpdated                = "session.updated"
	TypeSpeechStarted                 = "input_audio_buffer.speech_started"
	TypeSpeechStopped                 = "input_audio_buffer.speech_stopped"
	TypeInputTranscriptionCompleted   = "conversation.item.input_audio_transcription.completed"
	TypeResponseAudioTranscriptDone   = "response.audio_transcript.done"
	TypeFunctionCallArgumentsDone     = "response.function_call_arguments.done"
	TypeResponseDone                  = "response.done"
	TypeError                         = "error"
)

// envelope is used for the first unmarshal pass, to pick the concrete
// event struct from the type tag.
type envelope struct {
	Type string `json:"type"`
}

// ServerEvent is the closed union of control messages the model can send.
// Unrecognized type tags parse into UnknownEvent, never an error, so new
// server-side message types cannot terminate a session.
type ServerEvent interface {
	eventType() string
}

// SessionCreated is sent once after the control channel opens.
type SessionCreated struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
	Session struct {
		ID        string `json:"id"`
		Model     string `json:"model"`
		Voice     string `json:"voice,omitempty"`
		ExpiresAt int64  `json:"expires_at,omitempty"`
	} `json:"session"`
}

// SessionUpdated acknowledges a session.update sent by the client.
type SessionUpdated struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

// SpeechStarted signals server-side VAD detected the user speaking.
type SpeechStarted struct {
	Type         string `json:"type"`
	AudioStartMs int64  `json:"audio_start_ms,omitempty"`
	ItemID       string `json:"item_id,omitempty"`
}

// SpeechStopped signals server-side VAD detected the end of user speech.
type SpeechStopped struct {
	Type       string `json:"type"`
	AudioEndMs int64  `json:"audio_end_ms,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
}

// InputTranscriptionCompleted carries the final transcript of a user turn.
type InputTranscriptionCompleted struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript"`
}

// ResponseAudioTranscriptDone carries the final transcript of an
// assistant audio response.
type ResponseAudioTranscriptDone struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	Transcript string `json:"transcript"`
}

// FunctionCallArgumentsDone is a model-initiated tool call. Arguments is
// the raw JSON argument string; correlation is strictly by CallID.
type FunctionCallArgumentsDone struct {
	Type       string `json:"type"`
	ResponseID string `json:"response_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	CallID     string `json:"call_id"`
	Name       string `json:"name"`
	Arguments  string `json:"arguments"`
}

// ResponseDone marks the end of a model response lifecycle.
type ResponseDone struct {
	Type     string `json:"type"`
	Response struct {
		ID     string `json:"id,omitempty"`
		Status string `json:"status,omitempty"`
	} `json:"response"`
}

// ErrorEvent is a protocol-level error from the model. It is reported,
// not fatal: only connection-level failures end a session.
type ErrorEvent struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type,omitempty"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// UnknownEvent wraps any message whose type tag is not recognized.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (SessionCreated) eventType() string              { return TypeSessionCreated }
func (SessionUpdated) eventType() string              { return TypeSessionUpdated }
func (SpeechStarted) eventType() string               { return TypeSpeechStarted }
func (SpeechStopped) eventType() string               { return TypeSpeechStopped }
func (InputTranscriptionCompleted) eventType() string { return TypeInputTranscriptionCompleted }
func (ResponseAudioTranscriptDone) eventType() string { return TypeResponseAudioTranscriptDone }
func (FunctionCallArgumentsDone) eventType() string   { return TypeFunctionCallArgumentsDone }
func (ResponseDone) eventType() string                { return TypeResponseDone }
func (ErrorEvent) eventType() string                  { return TypeError }
func (e UnknownEvent) eventType() string              { return e.Type }

// TypeOf returns the wire type tag of a parsed server event.
func TypeOf(ev ServerEvent) string {
	return ev.eventType()
}

// ParseServerEvent decodes a raw data channel message into its concrete
// event struct. Only malformed JSON is an error; an unrecognized type tag
// returns UnknownEvent.
func ParseServerEvent(raw []byte) (ServerEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case TypeSessionCreated:
		var ev SessionCreated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeSessionUpdated:
		var ev SessionUpdated
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeSpeechStarted:
		var ev SpeechStarted
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeSpeechStopped:
		var ev SpeechStopped
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeInputTranscriptionCompleted:
		var ev InputTranscriptionCompleted
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeResponseAudioTranscriptDone:
		var ev ResponseAudioTranscriptDone
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeFunctionCallArgumentsDone:
		var ev FunctionCallArgumentsDone
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeResponseDone:
		var ev ResponseDone
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	case TypeError:
		var ev ErrorEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		return ev, nil
	default:
		return UnknownEvent{Type: env.Type, Raw: append([]byte(nil), raw...)}, nil
	}
}
