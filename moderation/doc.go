// Package moderation implements the in-memory moderation state engine and its
// event-processing pipeline: the caches of known people, spambots, banned-word
// rules and spam URLs; the pure classification of join/message events against
// those caches; and the processor that applies moderation actions and keeps
// cache, chat membership and the persistent store consistent.
//
// All mutation goes through a Processor, which serializes the full
// read-decide-mutate-persist sequence of each chat event and each
// control-plane command under one lock. Reads therefore always observe a
// fully applied mutation, and each offending event produces at most one
// moderation action.
package moderation
