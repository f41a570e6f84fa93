package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ChannelSettings is the structured per-channel policy stored as JSONB.
type ChannelSettings struct {
	// TimeoutOnly means rule violations get a bounded timeout instead of a
	// permanent ban. Join-time spambot detection always bans regardless.
	TimeoutOnly bool `json:"timeoutOnly"`
}

// Channel is a moderated chat channel.
type Channel struct {
	ID        int64
	Name      string
	Settings  ChannelSettings
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User is a chat participant the engine has seen. IsBot marks known spambots.
type User struct {
	ID         int64
	Name       string
	IsBot      bool
	LastSeenAt sql.NullTime
}

// BannedWord is a stored banned-word rule. ChannelName is empty for global rules.
type BannedWord struct {
	ID          int64
	Str         string
	Regex       bool
	ChannelName string
}

// SpamURL is a URL row; only rows with Spam=true feed the live cache.
type SpamURL struct {
	ID   int64
	URL  string
	Spam bool
}

// Store is the typed persistence facade the moderation engine uses. The engine
// never issues raw queries outside this package.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle.
func NewStore(database *sql.DB) *Store { return &Store{db: database} }

// DB exposes the underlying handle for health checks and token storage.
func (s *Store) DB() *sql.DB { return s.db }

func scanSettings(raw []byte) ChannelSettings {
	var cs ChannelSettings
	if len(raw) > 0 {
		// Unknown keys are ignored; a malformed settings blob falls back to defaults.
		_ = json.Unmarshal(raw, &cs)
	}
	return cs
}

// ListChannels returns all moderated channels.
func (s *Store) ListChannels(ctx context.Context) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(settings, '{}'::jsonb), created_at, COALESCE(updated_at, created_at)
		 FROM channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	var out []Channel
	for rows.Next() {
		var c Channel
		var raw []byte
		if err := rows.Scan(&c.ID, &c.Name, &raw, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.Settings = scanSettings(raw)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetChannelByName fetches one channel; returns sql.ErrNoRows when absent.
func (s *Store) GetChannelByName(ctx context.Context, name string) (Channel, error) {
	var c Channel
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(settings, '{}'::jsonb), created_at, COALESCE(updated_at, created_at)
		 FROM channels WHERE name = $1`, name).
		Scan(&c.ID, &c.Name, &raw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Channel{}, fmt.Errorf("get channel %q: %w", name, err)
	}
	c.Settings = scanSettings(raw)
	return c, nil
}

// InsertChannel creates a channel with default settings and returns the row.
func (s *Store) InsertChannel(ctx context.Context, name string) (Channel, error) {
	var c Channel
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO channels(name, settings) VALUES($1, '{}'::jsonb) RETURNING id, name, created_at`,
		name).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		return Channel{}, fmt.Errorf("insert channel %q: %w", name, err)
	}
	c.UpdatedAt = c.CreatedAt
	return c, nil
}

// UpdateChannelSettings persists a channel's policy blob.
func (s *Store) UpdateChannelSettings(ctx context.Context, name string, settings ChannelSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE channels SET settings = $1::jsonb, updated_at = NOW() WHERE name = $2`, raw, name); err != nil {
		return fmt.Errorf("update channel settings %q: %w", name, err)
	}
	return nil
}

// DeleteChannel removes a channel together with its memberships and
// channel-scoped rules. The cleanup is explicit application-level work inside
// one transaction, so the "no orphaned membership/rule rows" invariant does
// not depend on foreign-key cascade behavior.
func (s *Store) DeleteChannel(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete channel %q: begin: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channel_users WHERE channel_id IN (SELECT id FROM channels WHERE name = $1)`, name); err != nil {
		return fmt.Errorf("delete channel %q: memberships: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM banned_words WHERE channel_id IN (SELECT id FROM channels WHERE name = $1)`, name); err != nil {
		return fmt.Errorf("delete channel %q: rules: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete channel %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete channel %q: commit: %w", name, err)
	}
	return nil
}

// ListUsers returns all known users, people and spambots alike.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, is_bot, last_seen_at FROM users`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.IsBot, &u.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUserByName fetches one user; returns sql.ErrNoRows when absent.
func (s *Store) GetUserByName(ctx context.Context, name string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_bot, last_seen_at FROM users WHERE name = $1`, name).
		Scan(&u.ID, &u.Name, &u.IsBot, &u.LastSeenAt)
	if err != nil {
		return User{}, fmt.Errorf("get user %q: %w", name, err)
	}
	return u, nil
}

// UpsertUser inserts or updates a user, refreshing is_bot and last_seen_at.
func (s *Store) UpsertUser(ctx context.Context, name string, isBot bool, lastSeen time.Time) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users(name, is_bot, last_seen_at) VALUES($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET is_bot = EXCLUDED.is_bot, last_seen_at = EXCLUDED.last_seen_at, updated_at = NOW()
		 RETURNING id, name, is_bot, last_seen_at`,
		name, isBot, lastSeen).Scan(&u.ID, &u.Name, &u.IsBot, &u.LastSeenAt)
	if err != nil {
		return User{}, fmt.Errorf("upsert user %q: %w", name, err)
	}
	return u, nil
}

// SetUserBot flips only the spambot flag, leaving last_seen_at untouched.
// Creates the user when it does not exist yet.
func (s *Store) SetUserBot(ctx context.Context, name string, isBot bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(name, is_bot) VALUES($1, $2)
		 ON CONFLICT (name) DO UPDATE SET is_bot = EXCLUDED.is_bot, updated_at = NOW()`,
		name, isBot)
	if err != nil {
		return fmt.Errorf("set user %q is_bot=%v: %w", name, isBot, err)
	}
	return nil
}

// InsertChannelMembership records that a user has been seen in a channel.
func (s *Store) InsertChannelMembership(ctx context.Context, channelID, userID int64, lastSeen time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_users(channel_id, user_id, last_seen_at) VALUES($1, $2, $3)`,
		channelID, userID, lastSeen)
	if err != nil {
		return fmt.Errorf("insert membership channel=%d user=%d: %w", channelID, userID, err)
	}
	return nil
}

// ListBannedWords returns all rules with the owning channel name joined in
// (empty for global rules).
func (s *Store) ListBannedWords(ctx context.Context) ([]BannedWord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bw.id, bw.str, bw.regex, COALESCE(c.name, '')
		 FROM banned_words bw LEFT JOIN channels c ON c.id = bw.channel_id
		 ORDER BY bw.id`)
	if err != nil {
		return nil, fmt.Errorf("list banned words: %w", err)
	}
	defer rows.Close()
	var out []BannedWord
	for rows.Next() {
		var bw BannedWord
		if err := rows.Scan(&bw.ID, &bw.Str, &bw.Regex, &bw.ChannelName); err != nil {
			return nil, fmt.Errorf("scan banned word: %w", err)
		}
		out = append(out, bw)
	}
	return out, rows.Err()
}

// InsertBannedWord stores a rule, channel-scoped when channelName is non-empty.
func (s *Store) InsertBannedWord(ctx context.Context, pattern string, isRegex bool, channelName string) (BannedWord, error) {
	bw := BannedWord{Str: pattern, Regex: isRegex, ChannelName: channelName}
	var err error
	if channelName == "" {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO banned_words(str, regex) VALUES($1, $2) RETURNING id`,
			pattern, isRegex).Scan(&bw.ID)
	} else {
		err = s.db.QueryRowContext(ctx,
			`INSERT INTO banned_words(str, regex, channel_id)
			 VALUES($1, $2, (SELECT id FROM channels WHERE name = $3)) RETURNING id`,
			pattern, isRegex, channelName).Scan(&bw.ID)
	}
	if err != nil {
		return BannedWord{}, fmt.Errorf("insert banned word %q: %w", pattern, err)
	}
	return bw, nil
}

// DeleteBannedWord removes a rule by id.
func (s *Store) DeleteBannedWord(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM banned_words WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete banned word %d: %w", id, err)
	}
	return nil
}

// ListSpamURLs returns the URLs flagged as spam. Non-spam rows exist for
// audit only and never reach the cache.
func (s *Store) ListSpamURLs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url FROM urls WHERE spam = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("list spam urls: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan spam url: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// InsertSpamURL records a newly discovered spam URL. Re-inserting a known URL
// is a no-op so the call is idempotent.
func (s *Store) InsertSpamURL(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO urls(url, spam) VALUES($1, TRUE) ON CONFLICT (url) DO NOTHING`, url); err != nil {
		return fmt.Errorf("insert spam url %q: %w", url, err)
	}
	return nil
}
