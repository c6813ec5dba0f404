// Package signaling performs the one-shot SDP offer/answer handshake
// with the remote realtime service. The exchange is authenticated with
// the session's ephemeral credential, never the caller's long-lived
// token, and is not retried: retry policy belongs to the caller.
package signaling

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jihoon-dev/voicelink/internal/metrics"
)

const exchangeTimeout = 15 * time.Second

// Offerer is the transport-side surface the exchange drives: produce a
// local offer, accept the remote answer.
type Offerer interface {
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(sdp string) error
}

// Exchange performs offer/answer against one signaling endpoint.
type Exchange struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates an Exchange for the given signaling base URL.
func New(baseURL string, logger *zap.Logger) *Exchange {
	return &Exchange{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: exchangeTimeout},
		logger:     logger,
	}
}

// Connect runs the full one-shot handshake: create the local offer,
// POST it with the ephemeral bearer token, apply the answer. Any non-2xx
// status is a fatal, non-retryable failure whose body is surfaced in the
// error for diagnostics.
func (e *Exchange) Connect(ctx context.Context, tr Offerer, token, model string) error {
	offer, err := tr.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("create local offer: %w", err)
	}

	start := time.Now()
	endpoint := e.baseURL + "?model=" + url.QueryEscape(model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(offer))
	if err != nil {
		return fmt.Errorf("build signaling request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("signaling exchange: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read signaling response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("signaling rejected offer: status %d: %s", resp.StatusCode, body)
	}

	metrics.SignalingLatency.Observe(float64(time.Since(start).Milliseconds()))
	e.logger.Debug("answer received",
		zap.String("model", model),
		zap.Int("sdpLen", len(body)),
	)

	if err := tr.SetAnswer(string(body)); err != nil {
		return fmt.Errorf("apply remote answer: %w", err)
	}
	return nil
}
