// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/chatwarden/controlplane"
	"github.com/onnwee/chatwarden/db"
	"github.com/onnwee/chatwarden/moderation"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// CommandPublisher emits control commands; *controlplane.Publisher implements it.
// Channel and spambot mutations go through the command stream rather than
// straight into the processor so they take the same path as commands from the
// fleet-management layer.
type CommandPublisher interface {
	Publish(cmd controlplane.Command) error
}

// RuleStore is the slice of the repository the rule endpoints need.
type RuleStore interface {
	ListBannedWords(ctx context.Context) ([]db.BannedWord, error)
	InsertBannedWord(ctx context.Context, pattern string, isRegex bool, channelName string) (db.BannedWord, error)
	DeleteBannedWord(ctx context.Context, id int64) error
}

// RuleReloader recompiles the in-memory rule set after a store mutation;
// *moderation.Processor implements it.
type RuleReloader interface {
	ReloadRules(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db        *sql.DB
	rules     RuleStore
	reloader  RuleReloader
	state     *moderation.State
	connected func() bool
	publisher CommandPublisher

	stateStore map[string]time.Time
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// connected reports the chat connection status for /status and may be nil.
// publisher may be nil when no control-plane broker is configured; the
// channel and spambot endpoints then return 503.
func NewHandlers(database *sql.DB, rules RuleStore, reloader RuleReloader, state *moderation.State, connected func() bool, publisher CommandPublisher) *Handlers {
	return &Handlers{
		db:         database,
		rules:      rules,
		reloader:   reloader,
		state:      state,
		connected:  connected,
		publisher:  publisher,
		stateStore: make(map[string]time.Time),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Refusing to add past the cap fails the OAuth flow, which beats
	// memory exhaustion.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = expiry
}
