package devserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"petchat/internal/security"
)

func extractTokenFromWSRequest(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		if token := strings.TrimSpace(authHeader[len("Bearer "):]); token != "" {
			return token
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	return ""
}

// wsFrame is one inbound client frame on the live channel.
type wsFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
}

// makeWSHandler returns the /ws endpoint. Authenticates via Bearer token
// (Authorization header or Sec-WebSocket-Protocol), then dispatches frames:
//   - subscribe / unsubscribe -> manage the connection's conversation set
//   - typing                  -> forward a typing indicator to other subscribers
func makeWSHandler(hub *Hub, store *Store, tokens *security.TokenService, log *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		// Dev stub accepts any origin.
		CheckOrigin:  func(r *http.Request) bool { return true },
		Subprotocols: []string{"bearer"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractTokenFromWSRequest(r)
		if tokenStr == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		user := store.UserByID(sub)
		if user == nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hub.Register(user.ID, conn)
		defer hub.Unregister(user.ID, conn)
		log.Debug("ws client connected", "user_id", user.ID)

		for {
			var f wsFrame
			if err := conn.ReadJSON(&f); err != nil {
				break
			}
			switch f.Type {
			case "subscribe":
				if !store.IsParticipant(f.ConversationID, user.ID) {
					sendWSError(conn, "not allowed for this conversation")
					continue
				}
				hub.Subscribe(user.ID, conn, f.ConversationID)

			case "unsubscribe":
				hub.Unsubscribe(user.ID, conn, f.ConversationID)

			case "typing":
				if !store.IsParticipant(f.ConversationID, user.ID) {
					sendWSError(conn, "not allowed for this conversation")
					continue
				}
				hub.BroadcastToConversation(f.ConversationID, user.ID, map[string]any{
					"type":            "typing",
					"conversation_id": f.ConversationID,
					"user_id":         user.ID,
				})

			default:
				log.Debug("unknown ws frame", "type", f.Type, "user_id", user.ID)
			}
		}
	}
}

func sendWSError(conn *websocket.Conn, msg string) {
	_ = conn.WriteJSON(map[string]any{
		"type":    "error",
		"message": msg,
	})
}
