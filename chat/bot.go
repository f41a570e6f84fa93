package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/onnwee/chatwarden/moderation"
	"github.com/onnwee/chatwarden/telemetry"
)

// Bot owns the IRC connection and dispatches chat events into the processor.
// Each event kind has an explicit handler arm; classification happens inside
// the processor against the moderation cache, never here.
type Bot struct {
	client    *twitch.Client
	processor *moderation.Processor
	username  string
	connected atomic.Bool
}

// NewBot wires a bot around an existing IRC client. username is the bot's
// login, used for self-event filtering.
func NewBot(client *twitch.Client, processor *moderation.Processor, username string) *Bot {
	return &Bot{
		client:    client,
		processor: processor,
		username:  strings.ToLower(username),
	}
}

// Connected reports whether the IRC connection is currently up.
func (b *Bot) Connected() bool { return b.connected.Load() }

func (b *Bot) isSelf(username string) bool {
	return strings.EqualFold(username, b.username)
}

// eventContext returns a fresh context carrying a correlation id so every log
// line of one event's processing can be tied together.
func eventContext() context.Context {
	return telemetry.WithCorrelation(context.Background(), uuid.New().String())
}

func isModerator(user twitch.User, tags map[string]string) bool {
	return user.Badges["moderator"] > 0 || user.Badges["broadcaster"] > 0 || tags["mod"] == "1"
}

func isVIP(user twitch.User, tags map[string]string) bool {
	return user.Badges["vip"] > 0 || tags["vip"] == "1"
}

// Run registers handlers, joins all cached channels, and blocks on the IRC
// connection until ctx is canceled. Joining before Connect is fine: the
// client flushes pending joins once connected.
func (b *Bot) Run(ctx context.Context) error {
	// JOIN/PART events require the membership capability on top of the defaults.
	b.client.Capabilities = []string{twitch.TagsCapability, twitch.CommandsCapability, twitch.MembershipCapability}

	b.client.OnConnect(func() {
		b.connected.Store(true)
		telemetry.SetConnected(true)
		slog.Info("connected to twitch chat")
	})

	b.client.OnPrivateMessage(b.handlePrivateMessage)

	b.client.OnUserJoinMessage(func(m twitch.UserJoinMessage) {
		slog.Debug("user joined", slog.String("channel", m.Channel), slog.String("user", m.User))
		b.processor.HandleJoin(eventContext(), m.Channel, m.User, b.isSelf(m.User))
	})

	b.client.OnUserNoticeMessage(func(m twitch.UserNoticeMessage) {
		if m.MsgID == "raid" {
			slog.Info("channel raided",
				slog.String("channel", m.Channel),
				slog.String("by", m.User.Name),
				slog.String("viewers", m.MsgParams["msg-param-viewerCount"]))
		}
	})

	b.client.OnNoticeMessage(func(m twitch.NoticeMessage) {
		slog.Debug("server notice",
			slog.String("channel", m.Channel),
			slog.String("msg_id", m.MsgID),
			slog.String("message", m.Message))
	})

	channels := b.processor.State().ChannelNames()
	slog.Info("joining channels", slog.Int("count", len(channels)))
	b.client.Join(channels...)

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := b.client.Disconnect(); err != nil {
			slog.Warn("twitch chat disconnect", slog.Any("err", err))
		}
		close(done)
	}()

	err := b.client.Connect()
	b.connected.Store(false)
	telemetry.SetConnected(false)
	if ctx.Err() != nil {
		<-done
		return nil
	}
	return err
}

// handlePrivateMessage covers plain messages, /me actions, and cheers (a
// cheer is a message with Bits set).
func (b *Bot) handlePrivateMessage(m twitch.PrivateMessage) {
	if m.Bits > 0 {
		slog.Info("cheer",
			slog.String("channel", m.Channel),
			slog.String("user", m.User.DisplayName),
			slog.Int("bits", m.Bits),
			slog.String("message", m.Message))
	}
	slog.Debug("message",
		slog.String("channel", m.Channel),
		slog.String("user", m.User.Name),
		slog.String("message", m.Message))

	b.processor.HandleMessage(eventContext(),
		m.Channel, m.User.Name, m.Message,
		isModerator(m.User, m.Tags), isVIP(m.User, m.Tags),
		b.isSelf(m.User.Name))
}
