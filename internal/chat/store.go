package chat

import (
	"sort"

	"petchat/internal/domain"
)

// Store holds the conversation list ordered most-recent-first and tracks the
// active conversation. Re-sorting to the front on every push event is O(n),
// which is fine for the handful of open conversations a user has; a separate
// ordered index is not worth the complexity.
//
// Store is not safe for concurrent use; the Engine serializes access.
type Store struct {
	conversations []*domain.Conversation
	activeID      string
	selfID        string
}

// GroupedConversations partitions the list for UI sectioning.
type GroupedConversations struct {
	Support []*domain.Conversation
	Active  []*domain.Conversation
	Other   []*domain.Conversation
}

// NewStore creates an empty store. selfID is the current user; messages from
// this sender never count as unread.
func NewStore(selfID string) *Store {
	return &Store{selfID: selfID}
}

// ReplaceAll hydrates the store from a bulk list fetch, keeping the incoming
// order after a most-recent-first sort.
func (s *Store) ReplaceAll(convs []domain.Conversation) {
	s.conversations = make([]*domain.Conversation, len(convs))
	for i := range convs {
		c := convs[i]
		s.conversations[i] = &c
	}
	s.sortByActivity()
	if s.activeID != "" {
		if c := s.find(s.activeID); c != nil {
			c.UnreadCount = 0
		}
	}
}

// Conversations returns the list most-recent-first.
func (s *Store) Conversations() []*domain.Conversation {
	out := make([]*domain.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Get returns the conversation with the given ID, or nil.
func (s *Store) Get(id string) *domain.Conversation {
	return s.find(id)
}

// ActiveID returns the currently active conversation ID, empty if none.
func (s *Store) ActiveID() string { return s.activeID }

// SetActive marks a conversation active and zeroes its unread counter.
func (s *Store) SetActive(id string) {
	s.activeID = id
	if c := s.find(id); c != nil {
		c.UnreadCount = 0
	}
}

// ClearActive clears the active conversation.
func (s *Store) ClearActive() {
	s.activeID = ""
}

// UpsertFromPush merges an incoming message into the list: updates the
// preview, bumps activity, conditionally increments the unread counter, and
// moves the conversation to the front. A message for a conversation that was
// never fetched is dropped; the next bulk list fetch will pick it up.
func (s *Store) UpsertFromPush(msg domain.Message) {
	idx := s.indexOf(msg.ConversationID)
	if idx < 0 {
		return
	}
	conv := s.conversations[idx]

	m := msg
	conv.LastMessage = &m
	conv.LastActivityAt = msg.CreatedAt

	switch {
	case s.activeID == conv.ID:
		conv.UnreadCount = 0
	case !msg.IsSystem && msg.SenderID != s.selfID:
		conv.UnreadCount++
	}

	// Move to front.
	copy(s.conversations[1:idx+1], s.conversations[:idx])
	s.conversations[0] = conv
}

// MarkRead zeroes the unread counter without changing the active state
// (optimistic local read; the backend call is fire-and-forget).
func (s *Store) MarkRead(id string) {
	if c := s.find(id); c != nil {
		c.UnreadCount = 0
	}
}

// ListGrouped partitions conversations into the three UI sections: support
// threads, open/active chats, and everything else. Pure projection.
func (s *Store) ListGrouped() GroupedConversations {
	var g GroupedConversations
	for _, c := range s.conversations {
		switch {
		case c.Kind == domain.ConversationSupport:
			g.Support = append(g.Support, c)
		case c.Status == "open" || c.Status == "active":
			g.Active = append(g.Active, c)
		default:
			g.Other = append(g.Other, c)
		}
	}
	return g
}

func (s *Store) find(id string) *domain.Conversation {
	if idx := s.indexOf(id); idx >= 0 {
		return s.conversations[idx]
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) sortByActivity() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].LastActivityAt.After(s.conversations[j].LastActivityAt)
	})
}
