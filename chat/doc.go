// Package chat glues the moderation engine to Twitch chat. The Bot owns the
// IRC connection and translates incoming IRC events into processor calls; the
// Transport implements the engine's moderation actions, joining and parting
// over IRC and banning/timeouting through the Helix moderation API (IRC chat
// commands like /ban no longer exist).
package chat
