// Package credential requests short-lived, narrowly-scoped connection
// tokens from the session backend. The token authorizes only the
// signaling handshake and is discarded when the session ends.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/protocol"
)

const requestTimeout = 15 * time.Second

// Credential authorizes one signaling handshake. Never persisted.
type Credential struct {
	Token     string
	ExpiresAt time.Time
	SessionID string
}

// Issuer mints a connection credential for a session configuration.
type Issuer interface {
	Mint(ctx context.Context, cfg protocol.SessionConfig) (Credential, error)
}

// Client is the HTTP Issuer backed by the token-minting service. The
// caller's long-lived auth token is passed through as a bearer; the
// backend decides whether the caller may open a session.
type Client struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a credential client for the given minting endpoint.
func NewClient(endpoint, authToken string, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

type mintRequest struct {
	Config mintConfig `json:"config"`
}

type mintConfig struct {
	Model                   string  `json:"model"`
	Instructions            string  `json:"instructions"`
	Voice                   string  `json:"voice"`
	InputAudioFormat        string  `json:"input_audio_format"`
	OutputAudioFormat       string  `json:"output_audio_format"`
	Temperature             float64 `json:"temperature"`
	MaxResponseOutputTokens int     `json:"max_response_output_tokens,omitempty"`
}

type mintResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
}

// Mint requests a fresh credential. Any non-2xx response is a fatal
// start failure for the caller; there is no retry here.
func (c *Client) Mint(ctx context.Context, cfg protocol.SessionConfig) (Credential, error) {
	body, err := json.Marshal(mintRequest{Config: mintConfig{
		Model:                   cfg.Model,
		Instructions:            cfg.Instructions,
		Voice:                   cfg.Voice,
		InputAudioFormat:        cfg.InputAudioFormat,
		OutputAudioFormat:       cfg.OutputAudioFormat,
		Temperature:             cfg.Temperature,
		MaxResponseOutputTokens: cfg.MaxResponseOutputTokens,
	}})
	if err != nil {
		return Credential{}, fmt.Errorf("marshal credential request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Credential{}, fmt.Errorf("build credential request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("request credential: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Credential{}, fmt.Errorf("credential service rejected request: status %d: %s", resp.StatusCode, msg)
	}

	var mr mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return Credential{}, fmt.Errorf("decode credential response: %w", err)
	}
	if mr.Token == "" {
		return Credential{}, fmt.Errorf("credential service returned empty token")
	}

	c.logger.Debug("credential minted",
		zap.String("session", mr.SessionID),
		zap.Time("expiresAt", mr.ExpiresAt),
	)

	return Credential{Token: mr.Token, ExpiresAt: mr.ExpiresAt, SessionID: mr.SessionID}, nil
}
