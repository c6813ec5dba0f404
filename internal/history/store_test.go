package history

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSaveIsolation(t *testing.T) {
	s := NewMemoryStore()
	events := []TranscriptEvent{
		{ID: "1", Role: RoleUser, Text: "hello", OccurredAt: time.Now()},
		{ID: "2", Role: RoleAssistant, Text: "hi there", OccurredAt: time.Now()},
	}

	if err := s.SaveSession(context.Background(), "s1", events); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	// Mutating the caller's slice must not affect the stored copy.
	events[0].Text = "mutated"

	got := s.Session("s1")
	if len(got) != 2 {
		t.Fatalf("stored %d events, want 2", len(got))
	}
	if got[0].Text != "hello" {
		t.Fatalf("stored copy affected by caller mutation: %q", got[0].Text)
	}
	if got[0].Role != RoleUser || got[1].Role != RoleAssistant {
		t.Fatalf("order not preserved: %+v", got)
	}
}

func TestMemoryStoreResaveReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.SaveSession(ctx, "s1", []TranscriptEvent{{ID: "1", Role: RoleUser, Text: "a"}})
	s.SaveSession(ctx, "s1", []TranscriptEvent{{ID: "2", Role: RoleAssistant, Text: "b"}})

	got := s.Session("s1")
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("re-save should replace, got %+v", got)
	}
}

func TestMemoryStoreUnknownSession(t *testing.T) {
	s := NewMemoryStore()
	if got := s.Session("missing"); got != nil {
		t.Fatalf("unknown session = %+v, want nil", got)
	}
}
