package moderation

import "errors"

// Sentinel errors returned by the administrative operations. Callers (the
// control-plane consumer, the admin HTTP handlers) match these with errors.Is
// to decide whether a command is a domain rejection or a transient failure.
var (
	// ErrInvalidName is returned when a channel or user name is empty.
	ErrInvalidName = errors.New("invalid name")
	// ErrAlreadyExists is returned when adding a channel that is already moderated.
	ErrAlreadyExists = errors.New("channel already exists")
	// ErrNotFound is returned when removing a channel that is not moderated.
	ErrNotFound = errors.New("channel not found")
)
