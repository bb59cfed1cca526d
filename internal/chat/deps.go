package chat

import (
	"context"

	"petchat/internal/domain"
)

// ConnState is the live channel's connection state.
type ConnState string

const (
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnDisconnected ConnState = "disconnected"
)

// HistoryAPI is the REST collaborator: paginated history, sends, the bulk
// conversation list, and the fire-and-forget read marker.
type HistoryAPI interface {
	FetchHistoryPage(ctx context.Context, conversationID string, page, pageSize int) ([]RawHistoryItem, error)
	SendMessage(ctx context.Context, conversationID, body string, attachments []domain.Attachment) (RawSendResponse, error)
	FetchConversationList(ctx context.Context, page, pageSize int) ([]RawConversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// LiveChannel is the push collaborator's command surface. Subscribe and
// Unsubscribe must be idempotent by conversation; SendTyping emits a whisper
// that the transport never persists.
type LiveChannel interface {
	Subscribe(conversationID string)
	Unsubscribe(conversationID string)
	SendTyping(conversationID string)
}

// LiveEvents receives the push collaborator's async events. The Engine
// implements it; the transport invokes it from its read loop.
type LiveEvents interface {
	OnMessage(raw RawPushEnvelope)
	OnTyping(conversationID, userID string)
	OnConnectionState(state ConnState)
}

// MessageCache is the persisted last-N-messages snapshot used to paint a
// timeline before the network fetch resolves. Never a source of truth; a
// read failure is just a miss.
type MessageCache interface {
	Get(ctx context.Context, userID, conversationID string) ([]domain.Message, bool, error)
	Put(ctx context.Context, userID, conversationID string, msgs []domain.Message) error
}
