package chat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/chat"
	"petchat/internal/domain"
)

func conv(id string, kind domain.ConversationKind, status string, at time.Time) domain.Conversation {
	return domain.Conversation{
		ID:             id,
		Kind:           kind,
		Status:         status,
		LastActivityAt: at,
	}
}

func TestStoreReplaceAll(t *testing.T) {
	s := chat.NewStore("me")
	s.ReplaceAll([]domain.Conversation{
		conv("old", domain.ConversationDirect, "active", baseTime),
		conv("new", domain.ConversationDirect, "active", baseTime.Add(time.Hour)),
	})

	got := s.Conversations()
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID, "list must be most-recent-first")
	assert.Equal(t, "old", got[1].ID)
}

func TestStoreActiveConversationStaysRead(t *testing.T) {
	s := chat.NewStore("me")
	c := conv("c1", domain.ConversationDirect, "active", baseTime)
	c.UnreadCount = 3
	s.ReplaceAll([]domain.Conversation{c})

	s.SetActive("c1")
	assert.Zero(t, s.Get("c1").UnreadCount)

	// A peer message while the conversation is open must not count as unread.
	s.UpsertFromPush(msgAt("9", "u2", "hi", baseTime.Add(time.Minute)))
	assert.Zero(t, s.Get("c1").UnreadCount)

	// A refetch while active re-zeroes whatever the backend still reports.
	c.UnreadCount = 5
	s.ReplaceAll([]domain.Conversation{c})
	assert.Zero(t, s.Get("c1").UnreadCount)
}

func TestStoreUpsertFromPush(t *testing.T) {
	newStore := func() *chat.Store {
		s := chat.NewStore("me")
		s.ReplaceAll([]domain.Conversation{
			conv("c1", domain.ConversationDirect, "active", baseTime),
			conv("c2", domain.ConversationDirect, "active", baseTime.Add(time.Minute)),
		})
		return s
	}

	t.Run("PeerMessageIncrementsUnreadAndMovesToFront", func(t *testing.T) {
		s := newStore()
		m := msgAt("1", "u2", "hello", baseTime.Add(time.Hour))
		s.UpsertFromPush(m)

		got := s.Conversations()
		assert.Equal(t, "c1", got[0].ID)
		assert.Equal(t, 1, got[0].UnreadCount)
		require.NotNil(t, got[0].LastMessage)
		assert.Equal(t, "hello", got[0].LastMessage.Body)
		assert.Equal(t, m.CreatedAt, got[0].LastActivityAt)
	})

	t.Run("OwnMessageDoesNotIncrementUnread", func(t *testing.T) {
		s := newStore()
		s.UpsertFromPush(msgAt("1", "me", "mine", baseTime.Add(time.Hour)))
		assert.Zero(t, s.Get("c1").UnreadCount)
	})

	t.Run("SystemMessageDoesNotIncrementUnread", func(t *testing.T) {
		s := newStore()
		m := msgAt("1", "u2", "joined", baseTime.Add(time.Hour))
		m.IsSystem = true
		s.UpsertFromPush(m)
		assert.Zero(t, s.Get("c1").UnreadCount)
	})

	t.Run("UnknownConversationIsDropped", func(t *testing.T) {
		s := newStore()
		m := msgAt("1", "u2", "stray", baseTime.Add(time.Hour))
		m.ConversationID = "never-fetched"
		s.UpsertFromPush(m)

		assert.Len(t, s.Conversations(), 2)
		assert.Nil(t, s.Get("never-fetched"))
	})
}

func TestStoreListGrouped(t *testing.T) {
	s := chat.NewStore("me")
	s.ReplaceAll([]domain.Conversation{
		conv("s1", domain.ConversationSupport, "open", baseTime.Add(3*time.Minute)),
		conv("a1", domain.ConversationDirect, "open", baseTime.Add(2*time.Minute)),
		conv("a2", domain.ConversationDirect, "active", baseTime.Add(time.Minute)),
		conv("o1", domain.ConversationDirect, "archived", baseTime),
	})

	g := s.ListGrouped()
	require.Len(t, g.Support, 1)
	assert.Equal(t, "s1", g.Support[0].ID)
	require.Len(t, g.Active, 2)
	assert.Equal(t, "a1", g.Active[0].ID)
	require.Len(t, g.Other, 1)
	assert.Equal(t, "o1", g.Other[0].ID)
}

func TestStoreMarkRead(t *testing.T) {
	s := chat.NewStore("me")
	c := conv("c1", domain.ConversationDirect, "active", baseTime)
	c.UnreadCount = 4
	s.ReplaceAll([]domain.Conversation{c})

	s.MarkRead("c1")
	assert.Zero(t, s.Get("c1").UnreadCount)
	assert.Empty(t, s.ActiveID(), "MarkRead must not activate the conversation")
}
