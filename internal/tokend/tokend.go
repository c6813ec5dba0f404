// Package tokend implements the credential-minting service. It is the
// only process holding the long-lived API key; clients get short-lived
// session tokens scoped to one signaling handshake.
package tokend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/config"
	"github.com/jihoon-dev/voicelink/internal/middleware"
	"github.com/jihoon-dev/voicelink/internal/protocol"
)

const upstreamTimeout = 15 * time.Second

// Service mints ephemeral session credentials against the upstream
// realtime sessions endpoint and tracks the sessions it minted so
// clients can poll their status.
type Service struct {
	cfg        *config.Tokend
	logger     *zap.Logger
	httpClient *http.Client

	mu       sync.Mutex
	sessions map[string]*sessionRecord
}

// sessionRecord is the in-memory bookkeeping for one minted session.
// The token itself is never stored.
type sessionRecord struct {
	Model     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Ended     bool
}

func New(cfg *config.Tokend, logger *zap.Logger) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{Timeout: upstreamTimeout},
		sessions:   make(map[string]*sessionRecord),
	}
}

// Router builds the HTTP surface.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/voice-sessions", func(r chi.Router) {
			r.Use(middleware.Auth(s.cfg.AuthToken))
			r.Post("/", s.createVoiceSession)
			r.Get("/{sessionId}", s.getVoiceSession)
			r.Delete("/{sessionId}", s.deleteVoiceSession)
		})
	})

	return r
}

func (s *Service) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type createRequest struct {
	Config sessionConfig `json:"config"`
}

type sessionConfig struct {
	Model                   string  `json:"model"`
	Instructions            string  `json:"instructions"`
	Voice                   string  `json:"voice"`
	InputAudioFormat        string  `json:"input_audio_format"`
	OutputAudioFormat       string  `json:"output_audio_format"`
	Temperature             float64 `json:"temperature"`
	MaxResponseOutputTokens int     `json:"max_response_output_tokens,omitempty"`
}

type createResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
}

// upstreamRequest is the realtime sessions API payload. The web_search
// tool is declared here so the model can call it over the data channel.
type upstreamRequest struct {
	Model                   string         `json:"model"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string         `json:"output_audio_format,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
	MaxResponseOutputTokens int            `json:"max_response_output_tokens,omitempty"`
	Tools                   []upstreamTool `json:"tools,omitempty"`
	ToolChoice              string         `json:"tool_choice,omitempty"`
}

type upstreamTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type upstreamResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

func webSearchTool() upstreamTool {
	return upstreamTool{
		Type:        "function",
		Name:        "web_search",
		Description: "Search the web for current information and return a short list of results.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query.",
				},
			},
			"required": []string{"query"},
		},
	}
}

// createVoiceSession handles POST /v1/voice-sessions.
func (s *Service) createVoiceSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := protocol.SessionConfig{
		Model:                   req.Config.Model,
		Instructions:            req.Config.Instructions,
		Voice:                   req.Config.Voice,
		InputAudioFormat:        req.Config.InputAudioFormat,
		OutputAudioFormat:       req.Config.OutputAudioFormat,
		Temperature:             req.Config.Temperature,
		MaxResponseOutputTokens: req.Config.MaxResponseOutputTokens,
	}.WithDefaults()

	up, err := s.mintUpstream(r.Context(), cfg)
	if err != nil {
		s.logger.Error("upstream mint failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "credential mint failed")
		return
	}

	expires := time.Unix(up.ClientSecret.ExpiresAt, 0).UTC()
	maxExpiry := time.Now().Add(time.Duration(s.cfg.SessionTTLSeconds) * time.Second).UTC()
	if expires.IsZero() || expires.After(maxExpiry) {
		expires = maxExpiry
	}

	sessionID := uuid.New().String()
	s.recordSession(sessionID, cfg.Model, expires)
	s.logger.Info("voice session minted",
		zap.String("session", sessionID),
		zap.String("remoteSession", up.ID),
		zap.String("model", cfg.Model),
		zap.Time("expires", expires),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createResponse{
		Token:     up.ClientSecret.Value,
		ExpiresAt: expires,
		SessionID: sessionID,
	})
}

func (s *Service) mintUpstream(ctx context.Context, cfg protocol.SessionConfig) (*upstreamResponse, error) {
	body, err := json.Marshal(upstreamRequest{
		Model:                   cfg.Model,
		Instructions:            cfg.Instructions,
		Voice:                   cfg.Voice,
		InputAudioFormat:        cfg.InputAudioFormat,
		OutputAudioFormat:       cfg.OutputAudioFormat,
		Temperature:             cfg.Temperature,
		MaxResponseOutputTokens: cfg.MaxResponseOutputTokens,
		Tools:                   []upstreamTool{webSearchTool()},
		ToolChoice:              "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("upstream rejected mint: status %d: %s", resp.StatusCode, msg)
	}

	var up upstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}
	if up.ClientSecret.Value == "" {
		return nil, fmt.Errorf("upstream returned empty client secret")
	}
	return &up, nil
}

// recordSession remembers a minted session for status lookups and
// drops records whose expiry is a full TTL in the past.
func (s *Service) recordSession(sessionID, model string, expires time.Time) {
	ttl := time.Duration(s.cfg.SessionTTLSeconds) * time.Second
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.sessions {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
	s.sessions[sessionID] = &sessionRecord{
		Model:     model,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expires,
	}
}

type statusResponse struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// getVoiceSession handles GET /v1/voice-sessions/{sessionId}.
func (s *Service) getVoiceSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	s.mu.Lock()
	rec, ok := s.sessions[sessionID]
	var snapshot sessionRecord
	if ok {
		snapshot = *rec
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	status := "active"
	switch {
	case snapshot.Ended:
		status = "ended"
	case time.Now().After(snapshot.ExpiresAt):
		status = "expired"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{
		SessionID: sessionID,
		Status:    status,
		Model:     snapshot.Model,
		CreatedAt: snapshot.CreatedAt,
		ExpiresAt: snapshot.ExpiresAt,
	})
}

// deleteVoiceSession handles DELETE /v1/voice-sessions/{sessionId}.
// Ephemeral tokens expire on their own; this marks the session ended
// and acknowledges the client's teardown so callers can treat End as
// fully symmetrical.
func (s *Service) deleteVoiceSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	s.mu.Lock()
	if rec, ok := s.sessions[sessionID]; ok {
		rec.Ended = true
	}
	s.mu.Unlock()

	s.logger.Info("voice session released", zap.String("session", sessionID))
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
