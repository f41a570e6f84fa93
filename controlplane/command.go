// Package controlplane consumes the asynchronous administrative command
// stream: adding/removing moderated channels and flagging/unflagging known
// spambots. Commands ride NATS JetStream through Watermill; the JSON envelope
// is kept compatible with the fleet-management layer.
package controlplane

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CommandType enumerates the administrative command kinds on the wire.
type CommandType string

const (
	CommandNewChannel    CommandType = "newChannel"
	CommandDeleteChannel CommandType = "deleteChannel"
	CommandNewSpambot    CommandType = "newSpambot"
	CommandDeleteSpambot CommandType = "deleteSpambot"
)

// ErrMalformedCommand marks a payload that cannot be applied: unparsable
// JSON or an unknown type. Such messages are dropped, never retried.
var ErrMalformedCommand = errors.New("malformed control command")

// Command is the wire envelope, e.g. {"type":"newChannel","name":"demo"}.
type Command struct {
	Type CommandType `json:"type"`
	Name string      `json:"name"`
}

// ParseCommand decodes and validates an envelope.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	switch cmd.Type {
	case CommandNewChannel, CommandDeleteChannel, CommandNewSpambot, CommandDeleteSpambot:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, cmd.Type)
	}
}
