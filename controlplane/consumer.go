package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/onnwee/chatwarden/moderation"
	"github.com/onnwee/chatwarden/telemetry"
)

// Applier is the administrative surface of the moderation engine.
// *moderation.Processor implements it.
type Applier interface {
	AddChannel(ctx context.Context, name string) error
	RemoveChannel(ctx context.Context, name string) error
	FlagSpambot(ctx context.Context, name string) error
	UnflagSpambot(ctx context.Context, name string) error
}

// Consumer pulls administrative commands off one topic and applies them,
// one at a time, through the moderation processor. Ack/nack policy:
//
//   - applied successfully: ack
//   - malformed or unknown type: ack after logging (poison; under JetStream a
//     nack means redelivery, and redelivering a poison message retries it forever)
//   - domain rejection (invalid/duplicate/missing name): ack after logging,
//     a retry cannot succeed either
//   - anything else (store or transport unavailable): nack for redelivery
type Consumer struct {
	subscriber message.Subscriber
	topic      string
	applier    Applier
}

// NewConsumer wires a consumer; Run starts it.
func NewConsumer(subscriber message.Subscriber, topic string, applier Applier) *Consumer {
	return &Consumer{subscriber: subscriber, topic: topic, applier: applier}
}

// Run processes commands until ctx is canceled or the subscription closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}
	slog.Info("control-plane consumer started", slog.String("topic", c.topic))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg *message.Message) {
	slog.Debug("control command received", slog.String("uuid", msg.UUID), slog.String("payload", string(msg.Payload)))

	cmd, err := ParseCommand(msg.Payload)
	if err != nil {
		slog.Warn("dropping malformed control command", slog.String("uuid", msg.UUID), slog.Any("err", err))
		telemetry.IncControlCommand("rejected")
		msg.Ack()
		return
	}

	err = c.apply(ctx, cmd)
	switch {
	case err == nil:
		telemetry.IncControlCommand("applied")
		msg.Ack()
	case isDomainRejection(err):
		slog.Warn("control command rejected", slog.String("type", string(cmd.Type)), slog.String("name", cmd.Name), slog.Any("err", err))
		telemetry.IncControlCommand("rejected")
		msg.Ack()
	default:
		slog.Error("control command failed, will redeliver", slog.String("type", string(cmd.Type)), slog.String("name", cmd.Name), slog.Any("err", err))
		telemetry.IncControlCommand("failed")
		msg.Nack()
	}
}

func (c *Consumer) apply(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CommandNewChannel:
		return c.applier.AddChannel(ctx, cmd.Name)
	case CommandDeleteChannel:
		return c.applier.RemoveChannel(ctx, cmd.Name)
	case CommandNewSpambot:
		return c.applier.FlagSpambot(ctx, cmd.Name)
	case CommandDeleteSpambot:
		return c.applier.UnflagSpambot(ctx, cmd.Name)
	default:
		// ParseCommand already rejected unknown types.
		return fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, cmd.Type)
	}
}

// isDomainRejection reports whether the error is a deterministic rejection
// that retrying cannot fix.
func isDomainRejection(err error) bool {
	return errors.Is(err, moderation.ErrInvalidName) ||
		errors.Is(err, moderation.ErrAlreadyExists) ||
		errors.Is(err, moderation.ErrNotFound) ||
		errors.Is(err, ErrMalformedCommand)
}
