// Package live implements the push collaborator: a persistent WebSocket
// connection delivering message and typing events, with idempotent
// per-conversation subscriptions and automatic reconnect.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"petchat/internal/chat"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Client is an owned connection handle with an explicit lifecycle: construct,
// Run until the context is cancelled, done. It satisfies chat.LiveChannel and
// feeds events into a chat.LiveEvents handler.
type Client struct {
	url    string
	token  string
	events chat.LiveEvents
	log    *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	topics map[string]struct{}
}

// New creates a client for the given WebSocket URL. events receives every
// decoded push event; it must be non-nil before Run.
func New(wsURL, token string, events chat.LiveEvents, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		url:    wsURL,
		token:  token,
		events: events,
		log:    log,
		topics: make(map[string]struct{}),
	}
}

// Run maintains the connection until ctx is cancelled, reconnecting with
// capped exponential backoff. On every successful (re)connect the tracked
// topic set is replayed before the connected state is reported, so the
// subscription set survives reconnect cycles.
func (c *Client) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		c.events.OnConnectionState(chat.ConnConnecting)
		conn, err := c.dial(ctx)
		if err != nil {
			c.log.Warn("live channel dial failed", "error", err)
			c.events.OnConnectionState(chat.ConnDisconnected)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		c.mu.Lock()
		c.conn = conn
		topics := make([]string, 0, len(c.topics))
		for id := range c.topics {
			topics = append(topics, id)
		}
		c.mu.Unlock()

		for _, id := range topics {
			c.send(frame{Type: "subscribe", ConversationID: id})
		}
		c.events.OnConnectionState(chat.ConnConnected)

		c.readLoop(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		c.events.OnConnectionState(chat.ConnDisconnected)
	}
}

// Subscribe registers interest in a conversation. Safe to call repeatedly;
// the topic set is deduplicated and the server tolerates repeat frames.
func (c *Client) Subscribe(conversationID string) {
	c.mu.Lock()
	c.topics[conversationID] = struct{}{}
	c.mu.Unlock()
	c.send(frame{Type: "subscribe", ConversationID: conversationID})
}

// Unsubscribe drops interest in a conversation.
func (c *Client) Unsubscribe(conversationID string) {
	c.mu.Lock()
	delete(c.topics, conversationID)
	c.mu.Unlock()
	c.send(frame{Type: "unsubscribe", ConversationID: conversationID})
}

// SendTyping emits an ephemeral typing whisper for the conversation.
func (c *Client) SendTyping(conversationID string) {
	c.send(frame{Type: "typing", ConversationID: conversationID})
}

type frame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"bearer", c.token},
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)

	conn, resp, err := dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Close the connection when the context is cancelled so the blocking
	// read below unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("live channel read failed", "error", err)
			}
			return
		}
		c.dispatch(payload)
	}
}

type inboundEnvelope struct {
	Type           string      `json:"type"`
	ConversationID chat.FlexID `json:"conversation_id"`
	UserID         chat.FlexID `json:"user_id"`
}

func (c *Client) dispatch(payload []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.log.Debug("undecodable live event dropped", "error", err)
		return
	}

	switch env.Type {
	case "message":
		var raw chat.RawPushEnvelope
		if err := json.Unmarshal(payload, &raw); err != nil {
			c.log.Debug("undecodable message event dropped", "error", err)
			return
		}
		c.events.OnMessage(raw)
	case "typing":
		c.events.OnTyping(env.ConversationID.String(), env.UserID.String())
	default:
		c.log.Debug("unknown live event type", "type", env.Type)
	}
}

// send writes a frame if connected; otherwise it is dropped. Dropped
// subscribe frames are harmless because the topic set is replayed on
// reconnect.
func (c *Client) send(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(f); err != nil {
		c.log.Debug("live channel write failed", "type", f.Type, "error", err)
	}
}
