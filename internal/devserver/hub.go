package devserver

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub manages active WebSocket connections keyed by user ID and tracks which
// conversations each connection has subscribed to.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]*session
}

type session struct {
	subs map[string]struct{} // conversation IDs
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*websocket.Conn]*session),
	}
}

// Register adds a connection for the given user.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[*websocket.Conn]*session)
	}
	h.conns[userID][conn] = &session{subs: make(map[string]struct{})}
}

// Unregister removes a connection for the given user.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}

// Subscribe marks the connection as listening on a conversation.
func (h *Hub) Subscribe(userID string, conn *websocket.Conn, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess, ok := h.conns[userID][conn]; ok {
		sess.subs[conversationID] = struct{}{}
	}
}

// Unsubscribe stops delivery of a conversation's events to the connection.
func (h *Hub) Unsubscribe(userID string, conn *websocket.Conn, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sess, ok := h.conns[userID][conn]; ok {
		delete(sess.subs, conversationID)
	}
}

// BroadcastToUsers sends the payload to all active connections of the given
// users. Connections that fail are closed; cleanup happens on Unregister.
func (h *Hub) BroadcastToUsers(userIDs []string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, uid := range userIDs {
		for conn := range h.conns[uid] {
			if err := conn.WriteJSON(payload); err != nil {
				conn.Close()
			}
		}
	}
}

// BroadcastToConversation sends the payload to every connection subscribed to
// the conversation, skipping the excluded user (typically the sender).
func (h *Hub) BroadcastToConversation(conversationID, exceptUserID string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for uid, conns := range h.conns {
		if uid == exceptUserID {
			continue
		}
		for conn, sess := range conns {
			if _, ok := sess.subs[conversationID]; !ok {
				continue
			}
			if err := conn.WriteJSON(payload); err != nil {
				conn.Close()
			}
		}
	}
}
