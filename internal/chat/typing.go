package chat

import (
	"sort"
	"sync"
	"time"
)

// typingKey identifies one remote typist in one conversation.
type typingKey struct {
	ConversationID string
	UserID         string
}

// TypingTracker holds the ephemeral "peer is typing" state. Each typing
// signal (re)arms a quiet timer for its (conversation, user) pair; the state
// falls back to idle when the timer fires with no refresh, or immediately
// when a real message from that user arrives. Only remote typing is tracked;
// the current user's own signals are outbound-only.
//
// Unlike the rest of the core, the tracker has its own lock: expiry timers
// fire on their own goroutines.
type TypingTracker struct {
	mu     sync.Mutex
	quiet  time.Duration
	gen    uint64
	timers map[typingKey]*typingTimer
	// onChange, if set, is invoked (without the lock held) after any state
	// transition so the UI layer can re-render indicators.
	onChange func(conversationID string)
}

type typingTimer struct {
	timer *time.Timer
	gen   uint64
}

// NewTypingTracker creates a tracker with the given quiet interval.
func NewTypingTracker(quiet time.Duration, onChange func(conversationID string)) *TypingTracker {
	return &TypingTracker{
		quiet:    quiet,
		timers:   make(map[typingKey]*typingTimer),
		onChange: onChange,
	}
}

// OnSignal records a typing signal from userID in the conversation and
// (re)arms the expiry timer.
func (t *TypingTracker) OnSignal(conversationID, userID string) {
	key := typingKey{ConversationID: conversationID, UserID: userID}

	t.mu.Lock()
	existing, refreshed := t.timers[key]
	if refreshed {
		// Supersede the old timer entirely; a fire already in flight will
		// miss the generation check and become a no-op.
		existing.timer.Stop()
	}
	t.gen++
	gen := t.gen
	tt := &typingTimer{gen: gen}
	tt.timer = time.AfterFunc(t.quiet, func() {
		t.expire(key, gen)
	})
	t.timers[key] = tt
	t.mu.Unlock()

	if !refreshed {
		t.notify(conversationID)
	}
}

// Clear drops the typing state for userID in the conversation, regardless of
// the timer. Message arrival from a user supersedes their typing signal.
func (t *TypingTracker) Clear(conversationID, userID string) {
	key := typingKey{ConversationID: conversationID, UserID: userID}

	t.mu.Lock()
	tt, ok := t.timers[key]
	if ok {
		tt.timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()

	if ok {
		t.notify(conversationID)
	}
}

// Typing returns the user IDs currently typing in the conversation, sorted
// for deterministic output.
func (t *TypingTracker) Typing(conversationID string) []string {
	t.mu.Lock()
	var users []string
	for key := range t.timers {
		if key.ConversationID == conversationID {
			users = append(users, key.UserID)
		}
	}
	t.mu.Unlock()

	sort.Strings(users)
	return users
}

// Stop cancels every outstanding timer. Used on shutdown.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	for key, tt := range t.timers {
		tt.timer.Stop()
		delete(t.timers, key)
	}
	t.mu.Unlock()
}

// expire is the timer callback. The generation check discards a fire that
// raced a Reset, so a refreshed signal is never expired early.
func (t *TypingTracker) expire(key typingKey, gen uint64) {
	t.mu.Lock()
	tt, ok := t.timers[key]
	if !ok || tt.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.timers, key)
	t.mu.Unlock()

	t.notify(key.ConversationID)
}

func (t *TypingTracker) notify(conversationID string) {
	if t.onChange != nil {
		t.onChange(conversationID)
	}
}
