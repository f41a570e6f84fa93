package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/onnwee/chatwarden/testutil"
	"github.com/onnwee/chatwarden/twitchapi"
)

type staticToken string

func (s staticToken) Get(ctx context.Context) (string, error) { return string(s), nil }

// rewriteTransport sends every request to the test server regardless of host.
type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func newTransportFixture(t *testing.T, handler http.HandlerFunc) *Transport {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	target, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	helix := &twitchapi.HelixClient{
		UserTokenSource: staticToken("user-token"),
		ClientID:        "test-client",
		HTTPClient:      &http.Client{Transport: &rewriteTransport{target: target}},
	}
	return NewTransport(nil, helix, "warden")
}

func TestTransportBanResolvesAllParties(t *testing.T) {
	ids := map[string]string{"somechannel": "100", "warden": "200", "spammer": "300"}
	var banQuery url.Values
	var banBody map[string]any

	tr := newTransportFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/helix/users":
			login := r.URL.Query().Get("login")
			id, ok := ids[login]
			if !ok {
				t.Errorf("unexpected login lookup %q", login)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{{"id": id, "login": login}},
			})
		case r.URL.Path == "/helix/moderation/bans":
			banQuery = r.URL.Query()
			var body struct {
				Data map[string]any `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			banBody = body.Data
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	if err := tr.Ban(context.Background(), "somechannel", "spammer", "Spambot"); err != nil {
		t.Fatalf("Ban: %v", err)
	}
	if banQuery.Get("broadcaster_id") != "100" || banQuery.Get("moderator_id") != "200" {
		t.Errorf("ban query = %v", banQuery)
	}
	if banBody["user_id"] != "300" {
		t.Errorf("user_id = %v, want 300", banBody["user_id"])
	}
	if _, ok := banBody["duration"]; ok {
		t.Error("permanent ban must not carry a duration")
	}
}

func TestTransportTimeoutCarriesDuration(t *testing.T) {
	var banBody map[string]any
	tr := newTransportFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/helix/users" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]string{{"id": "1", "login": r.URL.Query().Get("login")}},
			})
			return
		}
		var body struct {
			Data map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		banBody = body.Data
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})

	if err := tr.Timeout(context.Background(), "somechannel", "spammer", 300, "Spambot"); err != nil {
		t.Fatalf("Timeout: %v", err)
	}
	if dur, ok := banBody["duration"].(float64); !ok || int(dur) != 300 {
		t.Errorf("duration = %v, want 300", banBody["duration"])
	}
}

func TestTransportBanForbidden(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUserResponse("1", "anylogin")
	mock.MockBanResponse(http.StatusForbidden)

	target, err := url.Parse(mock.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	helix := &twitchapi.HelixClient{
		UserTokenSource: staticToken("user-token"),
		ClientID:        "test-client",
		HTTPClient:      &http.Client{Transport: &rewriteTransport{target: target}},
	}
	tr := NewTransport(nil, helix, "warden")

	err = tr.Ban(context.Background(), "somechannel", "spammer", "Spambot")
	if err == nil {
		t.Fatal("expected error when the bot is not a moderator")
	}
	if !strings.Contains(err.Error(), "moderator") {
		t.Errorf("403 error should mention moderator privilege, got %v", err)
	}
}

func TestTransportBanUnresolvableTarget(t *testing.T) {
	tr := newTransportFixture(t, func(w http.ResponseWriter, r *http.Request) {
		login := r.URL.Query().Get("login")
		if login == "ghost" {
			_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "1", "login": login}},
		})
	})

	err := tr.Ban(context.Background(), "somechannel", "ghost", "Spambot")
	if err == nil {
		t.Fatal("expected error for unresolvable target")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error should name the unresolvable login, got %v", err)
	}
}
