package domain

import "time"

// DeliveryState tracks a message through its local-send or receive lifecycle.
type DeliveryState string

const (
	// Outgoing lifecycle: pending -> sent | failed.
	DeliveryPending DeliveryState = "pending"
	DeliverySent    DeliveryState = "sent"
	DeliveryFailed  DeliveryState = "failed"

	// Incoming lifecycle: delivered-unread -> delivered-read.
	DeliveryUnread DeliveryState = "delivered-unread"
	DeliveryRead   DeliveryState = "delivered-read"
)

// AttachmentKind classifies a media attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
)

// Attachment is a single media reference carried by a message.
type Attachment struct {
	URL        string         `json:"url"`
	PreviewURL string         `json:"preview_url,omitempty"`
	Kind       AttachmentKind `json:"kind"`
}

// Message is the canonical unit of conversation content. Every raw payload
// shape (history fetch, send response, push envelope) is normalized into this
// one form before it touches any state.
type Message struct {
	// ID is the server-assigned identifier. Empty while the message is
	// optimistic (pending); stable once assigned.
	ID string `json:"id"`
	// LocalID is assigned at creation time for optimistic sends and retained
	// after reconciliation so a late duplicate can still be matched.
	LocalID        string        `json:"local_id,omitempty"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	SenderName     string        `json:"sender_name"`
	SenderAvatar   string        `json:"sender_avatar,omitempty"`
	Body           string        `json:"body"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	DeliveryState  DeliveryState `json:"delivery_state"`
	IsSystem       bool          `json:"is_system"`
}

// Pending reports whether the message is still awaiting server confirmation.
func (m *Message) Pending() bool { return m.DeliveryState == DeliveryPending }

// ConversationKind distinguishes support threads from direct peer chats.
type ConversationKind string

const (
	ConversationSupport ConversationKind = "support"
	ConversationDirect  ConversationKind = "direct"
)

// Participant is the counterpart identity shown in the conversation list.
type Participant struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	IsOnline  bool   `json:"is_online,omitempty"`
}

// Conversation is one chat thread between the user and a counterpart or
// support. Conversations are created by the backend and only ever reordered
// or updated client-side.
type Conversation struct {
	ID     string           `json:"id"`
	Kind   ConversationKind `json:"kind"`
	Status string           `json:"status"` // open | active | other backend states
	// Participant is nil for support threads.
	Participant *Participant `json:"participant,omitempty"`
	// LastMessage is a denormalized preview pointer; eventually consistent
	// with the timeline.
	LastMessage    *Message  `json:"last_message,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
