package chat_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"petchat/internal/chat"
)

func TestTypingTrackerExpiry(t *testing.T) {
	tracker := chat.NewTypingTracker(40*time.Millisecond, nil)
	defer tracker.Stop()

	tracker.OnSignal("c1", "u2")
	assert.Equal(t, []string{"u2"}, tracker.Typing("c1"))

	assert.Eventually(t, func() bool {
		return len(tracker.Typing("c1")) == 0
	}, time.Second, 10*time.Millisecond, "typing state must expire after the quiet interval")
}

func TestTypingTrackerRefreshExtends(t *testing.T) {
	tracker := chat.NewTypingTracker(60*time.Millisecond, nil)
	defer tracker.Stop()

	tracker.OnSignal("c1", "u2")
	time.Sleep(40 * time.Millisecond)
	tracker.OnSignal("c1", "u2")
	time.Sleep(40 * time.Millisecond)

	// 80ms after the first signal but only 40ms after the refresh.
	assert.Equal(t, []string{"u2"}, tracker.Typing("c1"))

	assert.Eventually(t, func() bool {
		return len(tracker.Typing("c1")) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTypingTrackerClear(t *testing.T) {
	tracker := chat.NewTypingTracker(time.Minute, nil)
	defer tracker.Stop()

	tracker.OnSignal("c1", "u2")
	tracker.OnSignal("c1", "u3")
	tracker.Clear("c1", "u2")

	assert.Equal(t, []string{"u3"}, tracker.Typing("c1"))
}

func TestTypingTrackerScopedPerConversation(t *testing.T) {
	tracker := chat.NewTypingTracker(time.Minute, nil)
	defer tracker.Stop()

	tracker.OnSignal("c1", "u2")
	tracker.OnSignal("c2", "u2")

	assert.Equal(t, []string{"u2"}, tracker.Typing("c1"))
	assert.Equal(t, []string{"u2"}, tracker.Typing("c2"))

	tracker.Clear("c1", "u2")
	assert.Empty(t, tracker.Typing("c1"))
	assert.Equal(t, []string{"u2"}, tracker.Typing("c2"))
}

func TestTypingTrackerNotifiesOnTransitions(t *testing.T) {
	var calls atomic.Int64
	tracker := chat.NewTypingTracker(40*time.Millisecond, func(string) {
		calls.Add(1)
	})
	defer tracker.Stop()

	tracker.OnSignal("c1", "u2")
	tracker.OnSignal("c1", "u2") // refresh, no transition
	assert.EqualValues(t, 1, calls.Load())

	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 10*time.Millisecond, "expiry must notify once")
}
