package chat

import (
	"context"
	"fmt"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chatwarden/twitchapi"
)

// Transport implements moderation.Transport. Channel membership rides the IRC
// connection; bans and timeouts go through the Helix moderation endpoint with
// the bot's user token, which requires the bot to be a moderator in the
// target channel.
type Transport struct {
	irc            *twitch.Client
	helix          *twitchapi.HelixClient
	moderatorLogin string
}

// NewTransport wires the transport around the shared IRC client and Helix client.
func NewTransport(irc *twitch.Client, helix *twitchapi.HelixClient, moderatorLogin string) *Transport {
	return &Transport{irc: irc, helix: helix, moderatorLogin: moderatorLogin}
}

// Join adds the channel to the IRC connection. Queued until connected when
// called before Connect.
func (t *Transport) Join(channel string) error {
	t.irc.Join(channel)
	return nil
}

// Part leaves the channel on the IRC connection.
func (t *Transport) Part(channel string) error {
	t.irc.Depart(channel)
	return nil
}

// Ban permanently bans username in channel.
func (t *Transport) Ban(ctx context.Context, channel, username, reason string) error {
	return t.apply(ctx, channel, username, 0, reason)
}

// Timeout times username out of channel for the given number of seconds.
func (t *Transport) Timeout(ctx context.Context, channel, username string, seconds int, reason string) error {
	return t.apply(ctx, channel, username, seconds, reason)
}

func (t *Transport) apply(ctx context.Context, channel, username string, seconds int, reason string) error {
	broadcasterID, err := t.helix.GetUserID(ctx, channel)
	if err != nil {
		return fmt.Errorf("resolve broadcaster %q: %w", channel, err)
	}
	moderatorID, err := t.helix.GetUserID(ctx, t.moderatorLogin)
	if err != nil {
		return fmt.Errorf("resolve moderator %q: %w", t.moderatorLogin, err)
	}
	targetID, err := t.helix.GetUserID(ctx, username)
	if err != nil {
		return fmt.Errorf("resolve target %q: %w", username, err)
	}
	return t.helix.BanUser(ctx, broadcasterID, moderatorID, targetID, seconds, reason)
}
