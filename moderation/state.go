package moderation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/onnwee/chatwarden/db"
)

// State is the in-memory mirror of moderation data: known people, known
// spambots, moderated channels with their settings, compiled banned-word
// rules (global and per channel), and known spam URLs.
//
// State is the runtime-authoritative copy for decision-making; the database
// is the durable source of truth across restarts. LoadFromStore rebuilds the
// whole cache before any event is processed; after that, only the Processor
// mutates it. The RWMutex guarantees every read observes the last completed
// mutation. There is no eviction: the cache grows monotonically except for
// explicit removals (channel part, spambot unflag).
type State struct {
	mu           sync.RWMutex
	people       map[string]struct{}
	spambots     map[string]struct{}
	channels     map[string]db.Channel
	globalRules  []Rule
	channelRules map[string][]Rule
	spamURLs     map[string]struct{}
}

// NewState returns an empty cache.
func NewState() *State {
	return &State{
		people:       make(map[string]struct{}),
		spambots:     make(map[string]struct{}),
		channels:     make(map[string]db.Channel),
		channelRules: make(map[string][]Rule),
		spamURLs:     make(map[string]struct{}),
	}
}

// LoadFromStore rebuilds the cache in full from the database. Partial loads
// are not supported: on any store error the cache is left untouched and the
// error is returned so startup can abort.
func (s *State) LoadFromStore(ctx context.Context, store Store) error {
	channels, err := store.ListChannels(ctx)
	if err != nil {
		return err
	}
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	urls, err := store.ListSpamURLs(ctx)
	if err != nil {
		return err
	}
	words, err := store.ListBannedWords(ctx)
	if err != nil {
		return err
	}

	people := make(map[string]struct{})
	spambots := make(map[string]struct{})
	channelMap := make(map[string]db.Channel, len(channels))
	channelRules := make(map[string][]Rule, len(channels))
	spamURLs := make(map[string]struct{}, len(urls))
	var globalRules []Rule

	for _, ch := range channels {
		channelMap[ch.Name] = ch
		channelRules[ch.Name] = nil
	}
	for _, u := range users {
		if u.IsBot {
			spambots[u.Name] = struct{}{}
		} else {
			people[u.Name] = struct{}{}
		}
	}
	for _, u := range urls {
		spamURLs[u] = struct{}{}
	}

	regexes := 0
	for _, w := range words {
		rule, err := CompileRule(w.Str, w.Regex)
		if err != nil {
			// A stored pattern that no longer compiles must not take the
			// whole engine down; the rule is skipped until fixed.
			slog.Error("skipping uncompilable banned-word rule", slog.Int64("id", w.ID), slog.Any("err", err))
			continue
		}
		if w.Regex {
			regexes++
		}
		if w.ChannelName == "" {
			globalRules = append(globalRules, rule)
			continue
		}
		if _, ok := channelRules[w.ChannelName]; !ok {
			slog.Warn("banned-word rule references unknown channel", slog.Int64("id", w.ID), slog.String("channel", w.ChannelName))
			continue
		}
		channelRules[w.ChannelName] = append(channelRules[w.ChannelName], rule)
	}

	s.mu.Lock()
	s.people = people
	s.spambots = spambots
	s.channels = channelMap
	s.channelRules = channelRules
	s.globalRules = globalRules
	s.spamURLs = spamURLs
	s.mu.Unlock()

	slog.Info("moderation state loaded",
		slog.Int("channels", len(channelMap)),
		slog.Int("people", len(people)),
		slog.Int("spambots", len(spambots)),
		slog.Int("spam_urls", len(spamURLs)),
		slog.Int("global_rules", len(globalRules)),
		slog.Int("regex_rules", regexes))
	return nil
}

// ReplaceRules swaps in a freshly compiled rule set (live rule reload).
func (s *State) ReplaceRules(global []Rule, perChannel map[string][]Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalRules = global
	s.channelRules = make(map[string][]Rule, len(s.channels))
	for name := range s.channels {
		s.channelRules[name] = perChannel[name]
	}
}

// IsPerson reports whether the user has already been vetted as a person.
func (s *State) IsPerson(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.people[username]
	return ok
}

// IsSpambot reports whether the user is a known spambot.
func (s *State) IsSpambot(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spambots[username]
	return ok
}

// Channel returns the cached channel record.
func (s *State) Channel(name string) (db.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	return ch, ok
}

// HasChannel reports whether a channel is moderated.
func (s *State) HasChannel(name string) bool {
	_, ok := s.Channel(name)
	return ok
}

// ChannelNames returns the names of all moderated channels.
func (s *State) ChannelNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	return names
}

// HasSpamURL reports whether a URL is already recorded as spam.
func (s *State) HasSpamURL(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.spamURLs[url]
	return ok
}

// AddPerson marks a user as a vetted person.
func (s *State) AddPerson(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spambots, username)
	s.people[username] = struct{}{}
}

// AddSpambot marks a user as a known spambot. Idempotent.
func (s *State) AddSpambot(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.people, username)
	s.spambots[username] = struct{}{}
}

// RemoveSpambot clears the spambot flag, reporting whether it was set.
// The user rejoins the people set so the cache matches what a reload from
// the store (is_bot=false) would produce.
func (s *State) RemoveSpambot(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.spambots[username]; !ok {
		return false
	}
	delete(s.spambots, username)
	s.people[username] = struct{}{}
	return true
}

// AddChannel caches a channel record and initializes its empty rule list.
func (s *State) AddChannel(ch db.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.Name] = ch
	if _, ok := s.channelRules[ch.Name]; !ok {
		s.channelRules[ch.Name] = nil
	}
}

// RemoveChannel drops a channel and its channel-scoped rules from the cache.
func (s *State) RemoveChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, name)
	delete(s.channelRules, name)
}

// AddSpamURL records a URL as spam in the cache.
func (s *State) AddSpamURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spamURLs[url] = struct{}{}
}

// Stats is a point-in-time summary of cache sizes for /status and metrics.
type Stats struct {
	Channels    int `json:"channels"`
	People      int `json:"people"`
	Spambots    int `json:"spambots"`
	GlobalRules int `json:"globalRules"`
	SpamURLs    int `json:"spamUrls"`
}

// Snapshot returns current cache sizes.
func (s *State) Snapshot() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Channels:    len(s.channels),
		People:      len(s.people),
		Spambots:    len(s.spambots),
		GlobalRules: len(s.globalRules),
		SpamURLs:    len(s.spamURLs),
	}
}
