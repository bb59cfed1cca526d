// Package devserver is a self-contained stub of the chat backend: the same
// REST and WebSocket surface the production API exposes, backed by memory.
// It exists so the client engine can be driven end to end in development.
package devserver

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// User is a registered dev-server account.
type User struct {
	ID           string
	Name         string
	PasswordHash string
}

// Conversation is a chat thread with its participant user IDs.
type Conversation struct {
	ID           string
	Type         string // support | direct
	Status       string // open | active | archived
	Participants []string
	LastActivity time.Time
}

// Attachment is one gallery entry on a stored message.
type Attachment struct {
	URL        string
	PreviewURL string
	MediaType  string
}

// Message is a stored chat message.
type Message struct {
	ID             string
	ConversationID string
	OwnerID        string
	Body           string
	Gallery        []Attachment
	CreatedAt      time.Time
	IsSystem       bool
	ReadBy         map[string]bool
}

// Store is the in-memory backing state, safe for concurrent use.
type Store struct {
	mu            sync.RWMutex
	users         map[string]*User // by ID
	usersByName   map[string]*User
	conversations map[string]*Conversation
	messages      map[string][]*Message // by conversation, oldest-first
	nextID        int
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]*User),
		usersByName:   make(map[string]*User),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

func (s *Store) newID() string {
	s.nextID++
	return fmt.Sprintf("%d", s.nextID)
}

// CreateUser registers a user; the name must be unique.
func (s *Store) CreateUser(name, passwordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.usersByName[name]; taken {
		return nil, fmt.Errorf("username %q already exists", name)
	}
	u := &User{ID: s.newID(), Name: name, PasswordHash: passwordHash}
	s.users[u.ID] = u
	s.usersByName[name] = u
	return u, nil
}

func (s *Store) UserByName(name string) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usersByName[name]
}

func (s *Store) UserByID(id string) *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id]
}

// CreateConversation opens a thread between the given participants.
func (s *Store) CreateConversation(kind, status string, participants []string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Conversation{
		ID:           s.newID(),
		Type:         kind,
		Status:       status,
		Participants: participants,
		LastActivity: time.Now(),
	}
	s.conversations[c.ID] = c
	return c
}

func (s *Store) Conversation(id string) *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conversations[id]
}

// ConversationsFor lists the user's conversations most-recent-first.
func (s *Store) ConversationsFor(userID string) []*Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Conversation
	for _, c := range s.conversations {
		for _, p := range c.Participants {
			if p == userID {
				out = append(out, c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// AppendMessage stores a message and bumps the conversation's activity.
func (s *Store) AppendMessage(conversationID, ownerID, body string, gallery []Attachment, isSystem bool) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %q not found", conversationID)
	}
	m := &Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		OwnerID:        ownerID,
		Body:           body,
		Gallery:        gallery,
		CreatedAt:      time.Now(),
		IsSystem:       isSystem,
		ReadBy:         map[string]bool{ownerID: true},
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	c.LastActivity = m.CreatedAt
	return m, nil
}

// MessagesPage returns one page of a conversation's history, newest-first,
// matching the production API's pagination contract.
func (s *Store) MessagesPage(conversationID string, page, pageSize int) []*Message {
	if page < 1 {
		page = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]

	// all is oldest-first; page 1 is the newest pageSize messages.
	start := len(all) - page*pageSize
	end := start + pageSize
	if end <= 0 {
		return nil
	}
	if start < 0 {
		start = 0
	}

	out := make([]*Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, all[i])
	}
	return out
}

// LastMessage returns the newest message of a conversation, or nil.
func (s *Store) LastMessage(conversationID string) *Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// MarkAllRead marks every message in the conversation read for the user.
func (s *Store) MarkAllRead(conversationID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[conversationID] {
		m.ReadBy[userID] = true
	}
}

// UnreadCount counts messages from other senders not yet read by the user.
func (s *Store) UnreadCount(conversationID, userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.messages[conversationID] {
		if m.OwnerID != userID && !m.ReadBy[userID] && !m.IsSystem {
			n++
		}
	}
	return n
}

// IsParticipant reports whether the user belongs to the conversation.
func (s *Store) IsParticipant(conversationID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return false
	}
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}
