package moderation

// JoinVerdict classifies a join event.
type JoinVerdict int

const (
	// JoinBenign means the joining user is not a known spambot.
	JoinBenign JoinVerdict = iota
	// JoinKnownSpambot means the joining user is a known spambot and should
	// be banned before they speak.
	JoinKnownSpambot
)

// Verdict classifies a message event.
type Verdict int

const (
	// VerdictAllow means no action: the user is already vetted, or holds a
	// per-event moderator/VIP override.
	VerdictAllow Verdict = iota
	// VerdictNewPerson means this is the first clean appearance of a
	// previously-unseen, non-bot user.
	VerdictNewPerson
	// VerdictViolation means the message matched a banned-word rule or the
	// sender is a known spambot, with no override in effect.
	VerdictViolation
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictNewPerson:
		return "new_person"
	case VerdictViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// ClassifyJoin classifies a join event against the current cache. Pure read;
// no side effects.
func (s *State) ClassifyJoin(username string) JoinVerdict {
	if s.IsSpambot(username) {
		return JoinKnownSpambot
	}
	return JoinBenign
}

// ClassifyMessage classifies a message against the current cache snapshot.
// Pure read; no side effects.
//
// Users already in the people set are never re-scanned (trust-once). For
// everyone else a violation is a spambot-set hit or a rule match, global
// rules consulted before channel-scoped ones, first match wins. Moderator or
// VIP status suppresses enforcement for this event only; the override never
// adds the user to the people set.
func (s *State) ClassifyMessage(channel, username, text string, isMod, isVIP bool) Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, vetted := s.people[username]; vetted {
		return VerdictAllow
	}

	_, isBot := s.spambots[username]
	if !isBot && !s.matchesRulesLocked(channel, text) {
		return VerdictNewPerson
	}
	if isMod || isVIP {
		return VerdictAllow
	}
	return VerdictViolation
}

// matchesRulesLocked checks global rules first, then the channel's rules.
// Caller holds at least the read lock.
func (s *State) matchesRulesLocked(channel, text string) bool {
	for _, rule := range s.globalRules {
		if rule.Matches(text) {
			return true
		}
	}
	for _, rule := range s.channelRules[channel] {
		if rule.Matches(text) {
			return true
		}
	}
	return false
}
