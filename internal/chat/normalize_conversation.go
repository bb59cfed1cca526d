package chat

import (
	"time"

	"petchat/internal/domain"
)

// RawConversation is one entry of the bulk conversation-list fetch. The
// last_message nested inside follows the history-item shape.
type RawConversation struct {
	ID            FlexID          `json:"id"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Participant   *RawSender      `json:"participant"`
	UnreadCount   int             `json:"unread_count"`
	LastMessage   *RawHistoryItem `json:"last_message"`
	LastMessageAt string          `json:"last_message_at"`
}

// NormalizeConversation converts a raw list entry into the canonical shape.
// Like message normalization it is total; a degenerate entry yields a
// conversation with defaults rather than an error.
func NormalizeConversation(raw RawConversation, now time.Time) domain.Conversation {
	kind := domain.ConversationDirect
	if raw.Type == "support" {
		kind = domain.ConversationSupport
	}

	var participant *domain.Participant
	if raw.Participant != nil {
		participant = &domain.Participant{
			ID:        senderID(raw.Participant).String(),
			Name:      raw.Participant.Name,
			AvatarURL: raw.Participant.Avatar.Preferred(),
		}
	}

	conv := domain.Conversation{
		ID:          raw.ID.String(),
		Kind:        kind,
		Status:      raw.Status,
		Participant: participant,
		UnreadCount: raw.UnreadCount,
	}
	if conv.UnreadCount < 0 {
		conv.UnreadCount = 0
	}

	if raw.LastMessage != nil {
		last := Normalize(*raw.LastMessage, conv.ID, now)
		conv.LastMessage = &last
	}

	conv.LastActivityAt = parseTimestamp(raw.LastMessageAt, now)
	if conv.LastMessage != nil && raw.LastMessageAt == "" {
		conv.LastActivityAt = conv.LastMessage.CreatedAt
	}

	return conv
}
