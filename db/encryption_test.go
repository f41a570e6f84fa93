package db

import (
	"context"
	"database/sql"
	"encoding/base64"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// setupTestDB creates a test database connection and runs migrations for encryption tests
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	ctx := context.Background()
	if err := Migrate(ctx, database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_, _ = database.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE provider LIKE 'test-%'`)
		database.Close()
	})
	return database
}

// resetEncryptor clears the lazily-initialized encryptor so each test sees
// its own ENCRYPTION_KEY value.
func resetEncryptor() {
	encryptorOnce = sync.Once{}
	encryptor = nil
	encryptorErr = nil
}

func TestTokenRoundTripPlaintext(t *testing.T) {
	database := setupTestDB(t)
	t.Setenv("ENCRYPTION_KEY", "")
	resetEncryptor()

	ctx := context.Background()
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := UpsertOAuthToken(ctx, database, "test-plain", "access-1", "refresh-1", expiry, "chat:read"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	access, refresh, gotExpiry, scope, err := GetOAuthToken(ctx, database, "test-plain")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "access-1" || refresh != "refresh-1" || scope != "chat:read" {
		t.Errorf("round trip mismatch: access=%q refresh=%q scope=%q", access, refresh, scope)
	}
	if !gotExpiry.Equal(expiry) {
		t.Errorf("expiry = %v, want %v", gotExpiry, expiry)
	}

	// Without a key the row must be stored with version 0.
	var version int
	if err := database.QueryRowContext(ctx, `SELECT encryption_version FROM oauth_tokens WHERE provider='test-plain'`).Scan(&version); err != nil {
		t.Fatalf("query version: %v", err)
	}
	if version != 0 {
		t.Errorf("encryption_version = %d, want 0", version)
	}
}

func TestTokenRoundTripEncrypted(t *testing.T) {
	database := setupTestDB(t)
	key := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	t.Setenv("ENCRYPTION_KEY", key)
	resetEncryptor()
	t.Cleanup(resetEncryptor)

	ctx := context.Background()
	if err := UpsertOAuthToken(ctx, database, "test-enc", "access-2", "refresh-2", time.Now().Add(time.Hour), "chat:read"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Stored ciphertext must differ from plaintext.
	var storedAccess string
	var version int
	if err := database.QueryRowContext(ctx, `SELECT access_token, encryption_version FROM oauth_tokens WHERE provider='test-enc'`).Scan(&storedAccess, &version); err != nil {
		t.Fatalf("query: %v", err)
	}
	if version != 1 {
		t.Errorf("encryption_version = %d, want 1", version)
	}
	if storedAccess == "access-2" {
		t.Error("access token stored in plaintext despite ENCRYPTION_KEY")
	}

	// GetOAuthToken must decrypt transparently.
	access, refresh, _, _, err := GetOAuthToken(ctx, database, "test-enc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "access-2" || refresh != "refresh-2" {
		t.Errorf("decrypt mismatch: access=%q refresh=%q", access, refresh)
	}
}

func TestGetOAuthTokenMissingProvider(t *testing.T) {
	database := setupTestDB(t)
	t.Setenv("ENCRYPTION_KEY", "")
	resetEncryptor()

	access, _, _, _, err := GetOAuthToken(context.Background(), database, "test-missing")
	if err != nil {
		t.Fatalf("missing provider should not error: %v", err)
	}
	if access != "" {
		t.Errorf("expected empty access token for missing provider, got %q", access)
	}
}

func TestUpsertOAuthTokenOverwrites(t *testing.T) {
	database := setupTestDB(t)
	t.Setenv("ENCRYPTION_KEY", "")
	resetEncryptor()

	ctx := context.Background()
	if err := UpsertOAuthToken(ctx, database, "test-over", "old", "old-r", time.Now().Add(time.Hour), "a"); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := UpsertOAuthToken(ctx, database, "test-over", "new", "new-r", time.Now().Add(2*time.Hour), "b"); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	access, refresh, _, scope, err := GetOAuthToken(ctx, database, "test-over")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if access != "new" || refresh != "new-r" || scope != "b" {
		t.Errorf("upsert did not overwrite: access=%q refresh=%q scope=%q", access, refresh, scope)
	}
}
