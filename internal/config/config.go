// Package config loads process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

// defaultSTUNServer is used when no ICE servers are configured.
const defaultSTUNServer = "stun:stun.l.google.com:19302"

// Client configures the voice client binary.
type Client struct {
	// TokenEndpoint mints ephemeral session credentials. The client
	// never sees the long-lived API key.
	TokenEndpoint string
	// TokenAuth is the bearer token presented to the token endpoint,
	// empty when the endpoint is unauthenticated.
	TokenAuth string
	// SignalingURL is the realtime SDP exchange endpoint.
	SignalingURL string
	// SearchURL is the web search backend used for tool calls.
	SearchURL string
	// SearchAuth is the bearer token for the search backend.
	SearchAuth string
	// STUNServers are the ICE servers for the peer connection.
	STUNServers []string
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string
	// HistoryDSN enables transcript persistence when non-empty.
	HistoryDSN string
	// Model overrides the default realtime model.
	Model string
	// Voice overrides the default voice.
	Voice string
}

// LoadClient reads the client configuration from the environment.
func LoadClient() *Client {
	return &Client{
		TokenEndpoint: getEnv("VOICELINK_TOKEN_ENDPOINT", "http://localhost:8880/v1/voice-sessions"),
		TokenAuth:     getEnv("VOICELINK_TOKEN_AUTH", ""),
		SignalingURL:  getEnv("VOICELINK_SIGNALING_URL", "https://api.openai.com/v1/realtime"),
		SearchURL:     getEnv("VOICELINK_SEARCH_URL", "http://localhost:8090/search"),
		SearchAuth:    getEnv("VOICELINK_SEARCH_AUTH", ""),
		STUNServers:   getEnvList("VOICELINK_STUN_SERVERS", defaultSTUNServer),
		MetricsAddr:   getEnv("VOICELINK_METRICS_ADDR", ""),
		HistoryDSN:    getEnv("VOICELINK_HISTORY_DSN", ""),
		Model:         getEnv("VOICELINK_MODEL", ""),
		Voice:         getEnv("VOICELINK_VOICE", ""),
	}
}

// Tokend configures the credential-minting service.
type Tokend struct {
	ListenAddr string
	// UpstreamURL is the realtime sessions endpoint used to mint
	// ephemeral credentials.
	UpstreamURL string
	// APIKey is the long-lived key held only by this service.
	APIKey string
	// AuthToken guards the mint endpoint when non-empty.
	AuthToken string
	// SessionTTLSeconds bounds how long a minted session may be used.
	SessionTTLSeconds int
	// AllowedOrigins configures CORS for browser clients.
	AllowedOrigins []string
}

// LoadTokend reads the token service configuration from the
// environment.
func LoadTokend() *Tokend {
	return &Tokend{
		ListenAddr:        getEnv("TOKEND_LISTEN_ADDR", ":8880"),
		UpstreamURL:       getEnv("TOKEND_UPSTREAM_URL", "https://api.openai.com/v1/realtime/sessions"),
		APIKey:            getEnv("TOKEND_API_KEY", ""),
		AuthToken:         getEnv("TOKEND_AUTH_TOKEN", ""),
		SessionTTLSeconds: getEnvInt("TOKEND_SESSION_TTL_SECONDS", 3600),
		AllowedOrigins:    getEnvList("TOKEND_ALLOWED_ORIGINS", "*"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
