// Package twitchapi contains minimal helpers to interact with Twitch identity
// and Helix APIs: app/user access tokens, login-to-id resolution, and the
// moderation endpoint used to ban or timeout users.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
)

// TokenProvider yields a bearer token for Helix calls. TokenSource (app
// tokens) and StoredTokenSource (persisted user tokens) both implement it.
type TokenProvider interface {
	Get(ctx context.Context) (string, error)
}

// HelixClient provides the Helix operations the moderation engine needs.
// User-id lookups use the app token; moderation actions require the user
// token of an account with moderator privilege in the target channel.
type HelixClient struct {
	AppTokenSource  TokenProvider
	UserTokenSource TokenProvider
	ClientID        string
	HTTPClient      *http.Client

	mu      sync.Mutex
	userIDs map[string]string
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) cachedUserID(login string) (string, bool) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	id, ok := hc.userIDs[login]
	return id, ok
}

func (hc *HelixClient) rememberUserID(login, id string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if hc.userIDs == nil {
		hc.userIDs = make(map[string]string)
	}
	hc.userIDs[login] = id
}

// GetUserID resolves a login name to its user ID. Results are cached for the
// process lifetime; Twitch user IDs are stable.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	if id, ok := hc.cachedUserID(login); ok {
		return id, nil
	}
	tokenSource := hc.AppTokenSource
	if tokenSource == nil {
		tokenSource = hc.UserTokenSource
	}
	if tokenSource == nil {
		return "", errors.New("no token source configured")
	}
	tok, err := tokenSource.Get(ctx)
	if err != nil {
		return "", err
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.twitch.tv/helix/users", nil)
	q := req.URL.Query()
	q.Set("login", login)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("helix users request failed: %s: %s", resp.Status, string(b))
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	hc.rememberUserID(login, body.Data[0].ID)
	return body.Data[0].ID, nil
}

// BanUser bans (duration 0) or times out (duration > 0, in seconds) a user
// via the Helix moderation endpoint. The user token must carry the
// moderator:manage:banned_users scope, and the token's account must be a
// moderator in the broadcaster's channel; a 403 means it is not.
func (hc *HelixClient) BanUser(ctx context.Context, broadcasterID, moderatorID, userID string, durationSeconds int, reason string) error {
	if broadcasterID == "" || moderatorID == "" || userID == "" {
		return errors.New("broadcasterID, moderatorID and userID are required")
	}
	if hc.UserTokenSource == nil {
		return errors.New("no user token source configured for moderation actions")
	}
	tok, err := hc.UserTokenSource.Get(ctx)
	if err != nil {
		return err
	}

	payload := struct {
		Data struct {
			UserID   string `json:"user_id"`
			Duration int    `json:"duration,omitempty"`
			Reason   string `json:"reason,omitempty"`
		} `json:"data"`
	}{}
	payload.Data.UserID = userID
	payload.Data.Duration = durationSeconds
	payload.Data.Reason = reason
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.twitch.tv/helix/moderation/bans", bytes.NewReader(body))
	if err != nil {
		return err
	}
	q := req.URL.Query()
	q.Set("broadcaster_id", broadcasterID)
	q.Set("moderator_id", moderatorID)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusForbidden:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix ban rejected, missing moderator privilege: %s", string(b))
	default:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("helix ban request failed: %s: %s", resp.Status, string(b))
	}
}
