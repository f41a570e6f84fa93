package moderation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chatwarden/db"
	"github.com/onnwee/chatwarden/telemetry"
)

// Store is the persistence facade the processor writes through. *db.Store
// implements it; tests substitute an in-memory fake.
type Store interface {
	ListChannels(ctx context.Context) ([]db.Channel, error)
	InsertChannel(ctx context.Context, name string) (db.Channel, error)
	DeleteChannel(ctx context.Context, name string) error
	ListUsers(ctx context.Context) ([]db.User, error)
	UpsertUser(ctx context.Context, name string, isBot bool, lastSeen time.Time) (db.User, error)
	SetUserBot(ctx context.Context, name string, isBot bool) error
	InsertChannelMembership(ctx context.Context, channelID, userID int64, lastSeen time.Time) error
	ListBannedWords(ctx context.Context) ([]db.BannedWord, error)
	ListSpamURLs(ctx context.Context) ([]string, error)
	InsertSpamURL(ctx context.Context, url string) error
}

// Transport is the chat-protocol collaborator: channel membership plus the
// two moderation actions. Implemented over IRC + Helix in package chat.
type Transport interface {
	Join(channel string) error
	Part(channel string) error
	Ban(ctx context.Context, channel, username, reason string) error
	Timeout(ctx context.Context, channel, username string, seconds int, reason string) error
}

// ProcessorConfig carries the moderation-action knobs.
type ProcessorConfig struct {
	// BanReason is the fixed reason string sent with bans and timeouts.
	BanReason string
	// TimeoutSeconds is the bounded timeout duration for timeout-only channels.
	TimeoutSeconds int
}

// Processor orchestrates one event end to end: classify against the cache,
// apply the moderation action via the transport, mutate the cache, persist
// via the store. A single mutex serializes every chat event and every
// control-plane command, so each event runs its full
// read-decide-mutate-persist sequence to completion before the next begins.
// Cache mutations are applied before the corresponding store write; a failed
// store write is logged and not rolled back (a restart reconciles from the
// store).
type Processor struct {
	mu        sync.Mutex
	state     *State
	store     Store
	transport Transport

	banReason      string
	timeoutSeconds int
	now            func() time.Time
}

// NewProcessor wires the processor. Zero config fields get defaults
// (reason "Spambot", 300 second timeouts).
func NewProcessor(state *State, store Store, transport Transport, cfg ProcessorConfig) *Processor {
	if cfg.BanReason == "" {
		cfg.BanReason = "Spambot"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 300
	}
	return &Processor{
		state:          state,
		store:          store,
		transport:      transport,
		banReason:      cfg.BanReason,
		timeoutSeconds: cfg.TimeoutSeconds,
		now:            time.Now,
	}
}

// State exposes the cache for read-only consumers (status endpoint, bot startup).
func (p *Processor) State() *State { return p.state }

// HandleJoin processes one join event. Self-joins are ignored. A join by a
// known spambot is banned outright: the user has not spoken yet, so
// timeout-only policy does not apply.
func (p *Processor) HandleJoin(ctx context.Context, channel, username string, self bool) {
	if self {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	telemetry.IncJoinsProcessed()
	if p.state.ClassifyJoin(username) != JoinKnownSpambot {
		return
	}
	slog.Info("known spambot joined", slog.String("channel", channel), slog.String("user", username))
	p.banOrTimeout(ctx, channel, username, true)
}

// HandleMessage processes one message or action event end to end.
func (p *Processor) HandleMessage(ctx context.Context, channel, username, text string, isMod, isVIP, self bool) {
	if self {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	verdict := p.state.ClassifyMessage(channel, username, text, isMod, isVIP)
	telemetry.IncMessagesProcessed(verdict.String())

	switch verdict {
	case VerdictAllow:
		// No state change: vetted user or per-event override.

	case VerdictViolation:
		p.banOrTimeout(ctx, channel, username, false)
		p.recordSpamURLs(ctx, text)

	case VerdictNewPerson:
		p.admitNewPerson(ctx, channel, username)
	}

	telemetry.ObserveEventDuration(p.now().Sub(start))
	p.publishCacheGauges()
}

// admitNewPerson adds a first-time clean user to the people set and persists
// the User row plus the channel membership.
func (p *Processor) admitNewPerson(ctx context.Context, channel, username string) {
	slog.Debug("new person", slog.String("channel", channel), slog.String("user", username))
	p.state.AddPerson(username)

	now := p.now().UTC()
	user, err := p.store.UpsertUser(ctx, username, false, now)
	if err != nil {
		slog.Error("failed to persist new person", slog.String("user", username), slog.Any("err", err))
		return
	}
	ch, ok := p.state.Channel(channel)
	if !ok {
		// The channel must already be cached when its traffic reaches us;
		// anything else is a logic error worth surfacing loudly.
		slog.Error("channel missing from cache during membership insert",
			slog.String("channel", channel), slog.String("user", username))
		return
	}
	if err := p.store.InsertChannelMembership(ctx, ch.ID, user.ID, now); err != nil {
		slog.Error("failed to persist channel membership",
			slog.String("channel", channel), slog.String("user", username), slog.Any("err", err))
	}
}

// recordSpamURLs extracts URLs from an offending message and records the ones
// not already known as spam.
func (p *Processor) recordSpamURLs(ctx context.Context, text string) {
	for _, url := range ExtractURLs(text) {
		if p.state.HasSpamURL(url) {
			continue
		}
		slog.Info("new spam url", slog.String("url", url))
		p.state.AddSpamURL(url)
		telemetry.IncSpamURLsRecorded()
		if err := p.store.InsertSpamURL(ctx, url); err != nil {
			slog.Error("failed to persist spam url", slog.String("url", url), slog.Any("err", err))
		}
	}
}

// banOrTimeout applies the moderation action for one offending event.
// forceBan skips the timeout-only policy (join-time detection). A transport
// failure, typically missing moderator privilege in the channel, is logged
// and swallowed: the spambot bookkeeping below must still happen.
func (p *Processor) banOrTimeout(ctx context.Context, channel, username string, forceBan bool) {
	ch, _ := p.state.Channel(channel)
	if !forceBan && ch.Settings.TimeoutOnly {
		if err := p.transport.Timeout(ctx, channel, username, p.timeoutSeconds, p.banReason); err != nil {
			slog.Error("could not timeout user", slog.String("channel", channel), slog.String("user", username), slog.Any("err", err))
		} else {
			telemetry.IncTimeoutsIssued()
		}
	} else {
		if err := p.transport.Ban(ctx, channel, username, p.banReason); err != nil {
			slog.Error("could not ban user, maybe not a moderator in this channel",
				slog.String("channel", channel), slog.String("user", username), slog.Any("err", err))
		} else {
			telemetry.IncBansIssued()
		}
	}

	if p.state.IsSpambot(username) {
		return
	}
	p.state.AddSpambot(username)
	if _, err := p.store.UpsertUser(ctx, username, true, p.now().UTC()); err != nil {
		slog.Error("failed to persist spambot flag", slog.String("user", username), slog.Any("err", err))
	}
}

func (p *Processor) publishCacheGauges() {
	stats := p.state.Snapshot()
	telemetry.SetCacheSizes(stats.Channels, stats.People, stats.Spambots)
}
