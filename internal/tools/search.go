// Package tools executes model-initiated tool calls and returns their
// results through the control protocol.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const searchTimeout = 20 * time.Second

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResult is the structured payload returned to the model. A failed
// search still produces a SearchResult with Error set; the search
// backend's failure is forwarded, never thrown.
type SearchResult struct {
	Query        string   `json:"query,omitempty"`
	Results      []Result `json:"results"`
	Answer       string   `json:"answer,omitempty"`
	TotalResults int      `json:"total_results,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Searcher is the external search collaborator.
type Searcher interface {
	Search(ctx context.Context, query, language string, count int) (SearchResult, error)
}

// HTTPSearcher calls the backend search function over HTTP JSON.
type HTTPSearcher struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPSearcher creates a searcher for the given function endpoint.
func NewHTTPSearcher(endpoint, authToken string, logger *zap.Logger) *HTTPSearcher {
	return &HTTPSearcher{
		endpoint:   endpoint,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: searchTimeout},
		logger:     logger,
	}
}

type searchRequest struct {
	Query    string `json:"query"`
	Language string `json:"language"`
	Count    int    `json:"count"`
}

// Search invokes the backend function. Non-2xx responses and transport
// failures are returned as errors; the dispatcher converts them into an
// error payload for the model.
func (s *HTTPSearcher) Search(ctx context.Context, query, language string, count int) (SearchResult, error) {
	body, err := json.Marshal(searchRequest{Query: query, Language: language, Count: count})
	if err != nil {
		return SearchResult{}, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return SearchResult{}, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return SearchResult{}, fmt.Errorf("search backend: status %d: %s", resp.StatusCode, msg)
	}

	var result SearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	if result.Results == nil {
		result.Results = []Result{}
	}
	return result, nil
}
