package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestHTTPSearcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fn-token" {
			t.Errorf("Authorization = %q", got)
		}
		var req struct {
			Query    string `json:"query"`
			Language string `json:"language"`
			Count    int    `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Query != "latest news" || req.Count != 5 {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(SearchResult{
			Query:        req.Query,
			Results:      []Result{{Title: "A", URL: "https://a.example"}},
			TotalResults: 1,
		})
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, "fn-token", zap.NewNop())
	result, err := s.Search(context.Background(), "latest news", "ko", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Results) != 1 || result.TotalResults != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHTTPSearcherNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, "", zap.NewNop())
	if _, err := s.Search(context.Background(), "x", "ko", 1); err == nil {
		t.Fatal("expected error for 429")
	}
}

func TestHTTPSearcherNilResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"42"}`))
	}))
	defer srv.Close()

	s := NewHTTPSearcher(srv.URL, "", zap.NewNop())
	result, err := s.Search(context.Background(), "x", "ko", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if result.Results == nil {
		t.Fatal("Results must be non-nil for the wire payload")
	}
}
