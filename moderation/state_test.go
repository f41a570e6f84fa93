package moderation

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/onnwee/chatwarden/db"
)

func seededFakeStore() *fakeStore {
	store := newFakeStore()
	store.addChannel("demo", false)
	store.addChannel("softchan", true)
	store.users = map[string]db.User{
		"alice":   {ID: 10, Name: "alice", IsBot: false},
		"evilbot": {ID: 11, Name: "evilbot", IsBot: true},
	}
	store.words = []db.BannedWord{
		{ID: 1, Str: "bigfollows", Regex: false},
		{ID: 2, Str: `buy \d+ viewers`, Regex: true, ChannelName: "demo"},
	}
	store.spamURLs = []string{"http://scam.example/x"}
	return store
}

func TestLoadFromStore(t *testing.T) {
	store := seededFakeStore()
	s := NewState()
	if err := s.LoadFromStore(context.Background(), store); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}

	if !s.IsPerson("alice") || s.IsSpambot("alice") {
		t.Error("non-bot user should land in the people set")
	}
	if !s.IsSpambot("evilbot") || s.IsPerson("evilbot") {
		t.Error("bot user should land in the spambot set")
	}
	if !s.HasChannel("demo") || !s.HasChannel("softchan") {
		t.Error("channels missing from cache")
	}
	ch, _ := s.Channel("softchan")
	if !ch.Settings.TimeoutOnly {
		t.Error("channel settings not carried into the cache")
	}
	if !s.HasSpamURL("http://scam.example/x") {
		t.Error("spam url missing from cache")
	}

	// Global rule enforced everywhere, channel rule only in demo.
	if got := s.ClassifyMessage("softchan", "u1", "bigfollows", false, false); got != VerdictViolation {
		t.Errorf("global rule = %v, want VerdictViolation", got)
	}
	if got := s.ClassifyMessage("demo", "u2", "buy 100 viewers", false, false); got != VerdictViolation {
		t.Errorf("channel regex rule = %v, want VerdictViolation", got)
	}
	if got := s.ClassifyMessage("softchan", "u3", "buy 100 viewers", false, false); got != VerdictNewPerson {
		t.Errorf("channel rule outside its channel = %v, want VerdictNewPerson", got)
	}
}

func TestLoadFromStoreSkipsBadRules(t *testing.T) {
	store := seededFakeStore()
	store.words = append(store.words,
		db.BannedWord{ID: 3, Str: "[unclosed", Regex: true},
		db.BannedWord{ID: 4, Str: "ghostword", Regex: false, ChannelName: "nosuchchannel"},
	)

	s := NewState()
	if err := s.LoadFromStore(context.Background(), store); err != nil {
		t.Fatalf("LoadFromStore: %v", err)
	}

	// The uncompilable and orphaned rules are dropped; valid rules survive.
	if got := s.Snapshot().GlobalRules; got != 1 {
		t.Errorf("global rules = %d, want 1", got)
	}
	if got := s.ClassifyMessage("demo", "u1", "ghostword", false, false); got != VerdictNewPerson {
		t.Errorf("orphaned rule must not enforce anywhere, got %v", got)
	}
}

func TestLoadFromStoreErrorLeavesCacheUntouched(t *testing.T) {
	store := seededFakeStore()
	s := NewState()
	if err := s.LoadFromStore(context.Background(), store); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	store.errs["ListBannedWords"] = errors.New("db down")
	if err := s.LoadFromStore(context.Background(), store); err == nil {
		t.Fatal("expected error from failed reload")
	}

	// The previous cache stays intact.
	if !s.IsPerson("alice") || !s.IsSpambot("evilbot") || !s.HasChannel("demo") {
		t.Error("failed reload must not clear the cache")
	}
}

func TestAddPersonAddSpambotExclusive(t *testing.T) {
	s := NewState()

	s.AddPerson("flipflop")
	s.AddSpambot("flipflop")
	if s.IsPerson("flipflop") || !s.IsSpambot("flipflop") {
		t.Error("AddSpambot must remove the user from the people set")
	}

	s.AddPerson("flipflop")
	if !s.IsPerson("flipflop") || s.IsSpambot("flipflop") {
		t.Error("AddPerson must remove the user from the spambot set")
	}
}

func TestRemoveSpambot(t *testing.T) {
	s := NewState()
	s.AddSpambot("evilbot")

	if !s.RemoveSpambot("evilbot") {
		t.Error("RemoveSpambot should report the flag was set")
	}
	if s.IsSpambot("evilbot") {
		t.Error("flag not cleared")
	}
	if !s.IsPerson("evilbot") {
		t.Error("unflagged user must rejoin the people set")
	}

	if s.RemoveSpambot("neverseen") {
		t.Error("RemoveSpambot on unknown user should report false")
	}
}

func TestRemoveChannelDropsRules(t *testing.T) {
	s := newTestState(t)

	s.RemoveChannel("demo")
	if s.HasChannel("demo") {
		t.Error("channel still cached")
	}

	s.AddChannel(db.Channel{ID: 1, Name: "demo"})
	// Channel-scoped rules were dropped with the channel.
	if got := s.ClassifyMessage("demo", "u1", "say demoword", false, false); got != VerdictNewPerson {
		t.Errorf("rule survived channel removal, got %v", got)
	}
}

func TestChannelNamesAndSnapshot(t *testing.T) {
	s := newTestState(t)
	s.AddPerson("alice")
	s.AddSpambot("evilbot")
	s.AddSpamURL("http://scam.example/x")

	names := s.ChannelNames()
	sort.Strings(names)
	if len(names) != 2 || names[0] != "demo" || names[1] != "other" {
		t.Errorf("ChannelNames = %v", names)
	}

	got := s.Snapshot()
	want := Stats{Channels: 2, People: 1, Spambots: 1, GlobalRules: 1, SpamURLs: 1}
	if got != want {
		t.Errorf("Snapshot = %+v, want %+v", got, want)
	}
}
