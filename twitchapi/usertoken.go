package twitchapi

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/onnwee/chatwarden/db"
)

// StoredTokenSource yields the bot's user access token from the oauth_tokens
// table, where the OAuth callback stores it and the refresher keeps it fresh.
// Fallback is a static token from the environment for deployments that skip
// the OAuth flow (the "oauth:" IRC prefix is stripped if present).
type StoredTokenSource struct {
	DB       *sql.DB
	Provider string
	Fallback string
}

// Get returns the stored access token when present and not about to expire,
// otherwise the static fallback.
func (s *StoredTokenSource) Get(ctx context.Context) (string, error) {
	if s.DB != nil {
		access, _, expiry, _, err := db.GetOAuthToken(ctx, s.DB, s.Provider)
		if err == nil && access != "" && (expiry.IsZero() || time.Until(expiry) > 30*time.Second) {
			return access, nil
		}
	}
	if s.Fallback != "" {
		return strings.TrimPrefix(s.Fallback, "oauth:"), nil
	}
	return "", errors.New("no user access token available; complete the OAuth flow or set TWITCH_OAUTH_TOKEN")
}
