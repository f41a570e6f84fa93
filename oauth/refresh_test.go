package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	dbpkg "github.com/onnwee/chatwarden/db"
	"github.com/onnwee/chatwarden/testutil"
)

func TestStartRefresherOutsideWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Token that doesn't need refresh yet.
	futureExpiry := time.Now().Add(1 * time.Hour)
	if err := dbpkg.UpsertOAuthToken(context.Background(), db, "test-provider", "access123", "refresh456", futureExpiry, "scope1"); err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	refreshCalled := false
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled = true
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	StartRefresher(ctx, db, "test-provider", 50*time.Millisecond, 30*time.Minute, refreshFunc)

	<-ctx.Done()

	if refreshCalled {
		t.Error("refresh should not have been called for token that expires in 1 hour with 30 min window")
	}
}

func TestStartRefresherWithinWindow(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Expires in 5 minutes, window is 15 minutes.
	soonExpiry := time.Now().Add(5 * time.Minute)
	if err := dbpkg.UpsertOAuthToken(context.Background(), db, "test-provider", "old-access", "old-refresh", soonExpiry, "scope1"); err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	refreshCalled := false
	newExpiry := time.Now().Add(2 * time.Hour)
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		if refreshToken != "old-refresh" {
			t.Errorf("refresh called with wrong token: got %s, want old-refresh", refreshToken)
		}
		refreshCalled = true
		return "new-access", "new-refresh", newExpiry, "scope2", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	StartRefresher(ctx, db, "test-provider", 100*time.Millisecond, 15*time.Minute, refreshFunc)

	time.Sleep(300 * time.Millisecond)
	cancel()

	if !refreshCalled {
		t.Error("refresh should have been called for token expiring within window")
	}

	access, refresh, _, scope, err := dbpkg.GetOAuthToken(context.Background(), db, "test-provider")
	if err != nil {
		t.Fatalf("failed to query updated token: %v", err)
	}
	if access != "new-access" {
		t.Errorf("access token not updated: got %s, want new-access", access)
	}
	if refresh != "new-refresh" {
		t.Errorf("refresh token not updated: got %s, want new-refresh", refresh)
	}
	if scope != "scope2" {
		t.Errorf("scope not updated: got %s, want scope2", scope)
	}
}

func TestStartRefresherRefreshError(t *testing.T) {
	db := testutil.SetupTestDB(t)

	soonExpiry := time.Now().Add(5 * time.Minute)
	if err := dbpkg.UpsertOAuthToken(context.Background(), db, "test-provider", "old-access", "old-refresh", soonExpiry, "scope1"); err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "", "", time.Time{}, "", errors.New("refresh failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	StartRefresher(ctx, db, "test-provider", 50*time.Millisecond, 15*time.Minute, refreshFunc)

	time.Sleep(200 * time.Millisecond)
	cancel()

	access, _, _, _, err := dbpkg.GetOAuthToken(context.Background(), db, "test-provider")
	if err != nil {
		t.Fatalf("failed to query token: %v", err)
	}
	if access != "old-access" {
		t.Errorf("token should not have been updated on error, got %s", access)
	}
}

func TestStartRefresherNoRefreshToken(t *testing.T) {
	db := testutil.SetupTestDB(t)

	soonExpiry := time.Now().Add(5 * time.Minute)
	if err := dbpkg.UpsertOAuthToken(context.Background(), db, "test-provider", "access123", "", soonExpiry, "scope1"); err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	refreshCalled := false
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		refreshCalled = true
		return "new-access", "new-refresh", time.Now().Add(2 * time.Hour), "scope1", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	StartRefresher(ctx, db, "test-provider", 50*time.Millisecond, 15*time.Minute, refreshFunc)

	time.Sleep(150 * time.Millisecond)
	cancel()

	if refreshCalled {
		t.Error("refresh should not be called when refresh_token is empty")
	}
}

func TestStartRefresherCancellation(t *testing.T) {
	db := testutil.SetupTestDB(t)

	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "access", "refresh", time.Now().Add(1 * time.Hour), "scope", nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	StartRefresher(ctx, db, "test-provider", 1*time.Second, 15*time.Minute, refreshFunc)

	cancel()

	// If we get here without hanging, cancellation works.
	time.Sleep(50 * time.Millisecond)
}

func TestStartRefresherPreservesRefreshToken(t *testing.T) {
	db := testutil.SetupTestDB(t)

	soonExpiry := time.Now().Add(5 * time.Minute)
	if err := dbpkg.UpsertOAuthToken(context.Background(), db, "test-provider", "old-access", "original-refresh", soonExpiry, "scope1"); err != nil {
		t.Fatalf("failed to insert test token: %v", err)
	}

	// Refresh function returns an empty refresh token; the original must survive.
	refreshFunc := func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		return "new-access", "", time.Now().Add(2 * time.Hour), "", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	StartRefresher(ctx, db, "test-provider", 100*time.Millisecond, 15*time.Minute, refreshFunc)

	time.Sleep(300 * time.Millisecond)
	cancel()

	access, refresh, _, scope, err := dbpkg.GetOAuthToken(context.Background(), db, "test-provider")
	if err != nil {
		t.Fatalf("failed to query token: %v", err)
	}
	if access != "new-access" {
		t.Errorf("access token not updated: got %s", access)
	}
	if refresh != "original-refresh" {
		t.Errorf("refresh token should be preserved: got %s, want original-refresh", refresh)
	}
	if scope != "scope1" {
		t.Errorf("scope should be preserved: got %s, want scope1", scope)
	}
}
