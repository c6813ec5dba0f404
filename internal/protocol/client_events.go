package protocol

// Client event type tags.
const (
	TypeSessionUpdate          = "session.update"
	TypeResponseCreate         = "response.create"
	TypeConversationItemCreate = "conversation.item.create"
)

// SessionConfig is the immutable input to a voice session. It is supplied
// by the caller at session start and feeds both the credential request and
// the initial session.update.
type SessionConfig struct {
	Model                   string
	Instructions            string
	Voice                   string
	Temperature             float64
	MaxResponseOutputTokens int
	InputAudioFormat        string
	OutputAudioFormat       string
}

// DefaultConfig returns the session defaults used when the caller leaves
// fields unset.
func DefaultConfig() SessionConfig {
	return SessionConfig{
		Model:                   "gpt-4o-realtime-preview",
		Instructions:            "You are a helpful voice assistant. Keep the conversation natural and friendly.",
		Voice:                   "alloy",
		Temperature:             0.8,
		MaxResponseOutputTokens: 4096,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c SessionConfig) WithDefaults() SessionConfig {
	def := DefaultConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Instructions == "" {
		c.Instructions = def.Instructions
	}
	if c.Voice == "" {
		c.Voice = def.Voice
	}
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
	if c.MaxResponseOutputTokens == 0 {
		c.MaxResponseOutputTokens = def.MaxResponseOutputTokens
	}
	if c.InputAudioFormat == "" {
		c.InputAudioFormat = def.InputAudioFormat
	}
	if c.OutputAudioFormat == "" {
		c.OutputAudioFormat = def.OutputAudioFormat
	}
	return c
}

// InputTranscription selects the model used to transcribe user audio.
type InputTranscription struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side VAD. The model, not the client,
// decides when the user has started and stopped speaking.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
	CreateResponse    bool    `json:"create_response"`
}

// SessionSettings is the wire payload of a session.update.
type SessionSettings struct {
	Instructions            string             `json:"instructions,omitempty"`
	Voice                   string             `json:"voice,omitempty"`
	Temperature             float64            `json:"temperature,omitempty"`
	InputAudioTranscription InputTranscription `json:"input_audio_transcription"`
	TurnDetection           TurnDetection      `json:"turn_detection"`
}

// SessionUpdate configures the remote session. It must be the first
// client event after the control channel opens, ahead of any
// response.create, or the model may answer with stale defaults.
type SessionUpdate struct {
	Type    string          `json:"type"`
	Session SessionSettings `json:"session"`
}

// NewSessionUpdate builds the initial session.update for cfg.
func NewSessionUpdate(cfg SessionConfig) SessionUpdate {
	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionSettings{
			Instructions:            cfg.Instructions,
			Voice:                   cfg.Voice,
			Temperature:             cfg.Temperature,
			InputAudioTranscription: InputTranscription{Model: "whisper-1"},
			TurnDetection: TurnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMs:   300,
				SilenceDurationMs: 200,
				CreateResponse:    true,
			},
		},
	}
}

// ResponseOptions controls a requested model response.
type ResponseOptions struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions,omitempty"`
}

// ResponseCreate asks the model to generate a response.
type ResponseCreate struct {
	Type     string          `json:"type"`
	Response ResponseOptions `json:"response"`
}

// NewResponseCreate builds a plain text+audio response request.
func NewResponseCreate() ResponseCreate {
	return ResponseCreate{
		Type:     TypeResponseCreate,
		Response: ResponseOptions{Modalities: []string{"text", "audio"}},
	}
}

// NewGreetingResponse builds the one-shot response request sent right
// after session configuration to elicit an opening greeting.
func NewGreetingResponse() ResponseCreate {
	return ResponseCreate{
		Type: TypeResponseCreate,
		Response: ResponseOptions{
			Modalities:   []string{"text", "audio"},
			Instructions: "Greet the user and ask how you can help them.",
		},
	}
}

// ContentPart is one piece of a conversation item's content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ConversationItem is the item payload of a conversation.item.create.
// Type is "message" for user text input and "function_call_output" for
// tool results.
type ConversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

// ConversationItemCreate appends an item to the remote conversation.
type ConversationItemCreate struct {
	Type string           `json:"type"`
	Item ConversationItem `json:"item"`
}

// NewUserTextItem builds a conversation.item.create carrying user text.
func NewUserTextItem(text string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: "input_text", Text: text}},
		},
	}
}

// NewFunctionCallOutput builds a conversation.item.create carrying a tool
// result correlated to the originating call.
func NewFunctionCallOutput(callID, output string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: TypeConversationItemCreate,
		Item: ConversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}
