package moderation

import (
	"context"
	"fmt"
	"log/slog"
)

// Administrative operations applied by the control-plane consumer and the
// admin HTTP surface. Each runs under the same processor lock as chat events,
// so the two producers never interleave mutations to the same cache entry.

// AddChannel starts moderating a channel: join via transport, insert the
// Channel row, cache it with an empty rule list.
func (p *Processor) AddChannel(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		return fmt.Errorf("add channel: %w", ErrInvalidName)
	}
	if p.state.HasChannel(name) {
		return fmt.Errorf("add channel %q: %w", name, ErrAlreadyExists)
	}
	slog.Info("joining new channel", slog.String("channel", name))
	if err := p.transport.Join(name); err != nil {
		return fmt.Errorf("join channel %q: %w", name, err)
	}
	ch, err := p.store.InsertChannel(ctx, name)
	if err != nil {
		return err
	}
	p.state.AddChannel(ch)
	p.publishCacheGauges()
	return nil
}

// RemoveChannel stops moderating a channel: part via transport, drop from the
// cache, delete the row (memberships and channel-scoped rules go with it).
func (p *Processor) RemoveChannel(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		return fmt.Errorf("remove channel: %w", ErrInvalidName)
	}
	if !p.state.HasChannel(name) {
		return fmt.Errorf("remove channel %q: %w", name, ErrNotFound)
	}
	slog.Info("leaving channel", slog.String("channel", name))
	if err := p.transport.Part(name); err != nil {
		return fmt.Errorf("part channel %q: %w", name, err)
	}
	p.state.RemoveChannel(name)
	if err := p.store.DeleteChannel(ctx, name); err != nil {
		return err
	}
	p.publishCacheGauges()
	return nil
}

// FlagSpambot marks a user as a known spambot, creating the User row if
// needed. Idempotent: flagging twice leaves one entry and no error.
func (p *Processor) FlagSpambot(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		return fmt.Errorf("flag spambot: %w", ErrInvalidName)
	}
	if err := p.store.SetUserBot(ctx, name, true); err != nil {
		return err
	}
	p.state.AddSpambot(name)
	p.publishCacheGauges()
	return nil
}

// UnflagSpambot clears the spambot flag. Unflagging an unknown name is a
// reported no-op, not an error.
func (p *Processor) UnflagSpambot(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		return fmt.Errorf("unflag spambot: %w", ErrInvalidName)
	}
	if !p.state.RemoveSpambot(name) {
		slog.Warn("unflag requested for unknown spambot", slog.String("user", name))
		return nil
	}
	slog.Info("removing spambot flag", slog.String("user", name))
	if err := p.store.SetUserBot(ctx, name, false); err != nil {
		return err
	}
	p.publishCacheGauges()
	return nil
}

// ReloadRules recompiles the banned-word rule set from the store and swaps it
// into the cache, so operator rule changes take effect without a restart.
func (p *Processor) ReloadRules(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	words, err := p.store.ListBannedWords(ctx)
	if err != nil {
		return err
	}
	var global []Rule
	perChannel := make(map[string][]Rule)
	for _, w := range words {
		rule, err := CompileRule(w.Str, w.Regex)
		if err != nil {
			slog.Error("skipping uncompilable banned-word rule", slog.Int64("id", w.ID), slog.Any("err", err))
			continue
		}
		if w.ChannelName == "" {
			global = append(global, rule)
		} else {
			perChannel[w.ChannelName] = append(perChannel[w.ChannelName], rule)
		}
	}
	p.state.ReplaceRules(global, perChannel)
	slog.Info("banned-word rules reloaded", slog.Int("global", len(global)), slog.Int("channel_scoped", len(words)-len(global)))
	return nil
}
