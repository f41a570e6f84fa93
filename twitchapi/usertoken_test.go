package twitchapi

import (
	"context"
	"testing"
)

func TestStoredTokenSourceFallback(t *testing.T) {
	s := &StoredTokenSource{Provider: "twitch", Fallback: "oauth:abc123"}
	tok, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok != "abc123" {
		t.Errorf("token = %q, want abc123 (oauth: prefix stripped)", tok)
	}

	s = &StoredTokenSource{Provider: "twitch", Fallback: "plainToken"}
	tok, err = s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok != "plainToken" {
		t.Errorf("token = %q, want plainToken", tok)
	}
}

func TestStoredTokenSourceNoToken(t *testing.T) {
	s := &StoredTokenSource{Provider: "twitch"}
	if _, err := s.Get(context.Background()); err == nil {
		t.Error("expected error when no token is available")
	}
}
