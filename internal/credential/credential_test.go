package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/protocol"
)

func TestClientMint(t *testing.T) {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer user-token" {
			t.Errorf("Authorization = %q", got)
		}

		var req struct {
			Config struct {
				Model string  `json:"model"`
				Voice string  `json:"voice"`
				Temp  float64 `json:"temperature"`
			} `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Config.Model != "m1" || req.Config.Voice != "v1" {
			t.Errorf("unexpected config: %+v", req.Config)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"token":      "ephemeral-abc",
			"expires_at": expires,
			"session_id": "s1",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user-token", zap.NewNop())
	cred, err := c.Mint(context.Background(), protocol.SessionConfig{Model: "m1", Voice: "v1", Temperature: 0.7})
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if cred.Token != "ephemeral-abc" || cred.SessionID != "s1" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if !cred.ExpiresAt.Equal(expires) {
		t.Fatalf("ExpiresAt = %v, want %v", cred.ExpiresAt, expires)
	}
}

func TestClientMintRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired", zap.NewNop())
	_, err := c.Mint(context.Background(), protocol.DefaultConfig())
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestClientMintEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": "", "session_id": "s1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "user-token", zap.NewNop())
	if _, err := c.Mint(context.Background(), protocol.DefaultConfig()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
