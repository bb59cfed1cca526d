package chat_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/chat"
	"petchat/internal/domain"
)

func TestFlexID(t *testing.T) {
	var payload struct {
		A chat.FlexID `json:"a"`
		B chat.FlexID `json:"b"`
		C chat.FlexID `json:"c"`
	}
	err := json.Unmarshal([]byte(`{"a":"abc","b":123,"c":null}`), &payload)
	require.NoError(t, err)

	assert.Equal(t, "abc", payload.A.String())
	assert.Equal(t, "123", payload.B.String())
	assert.Empty(t, payload.C.String())
}

func TestFlexAvatar(t *testing.T) {
	var payload struct {
		Plain  chat.FlexAvatar `json:"plain"`
		Object chat.FlexAvatar `json:"object"`
	}
	err := json.Unmarshal([]byte(`{
		"plain": "https://cdn.example/a.png",
		"object": {"url": "https://cdn.example/full.png", "preview_url": "https://cdn.example/small.png"}
	}`), &payload)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example/a.png", payload.Plain.Preferred())
	assert.Equal(t, "https://cdn.example/small.png", payload.Object.Preferred())
}

func TestNormalizeHistoryItem(t *testing.T) {
	var raw chat.RawHistoryItem
	err := json.Unmarshal([]byte(`{
		"id": 91,
		"message": "see you at 5",
		"created_at": "2026-03-14T12:00:00Z",
		"owner_id": "u7",
		"owner": {"id": "ignored", "name": "Dana", "avatar": "https://cdn.example/d.png"},
		"read": true
	}`), &raw)
	require.NoError(t, err)

	m := chat.Normalize(raw, "c1", time.Now())
	assert.Equal(t, "91", m.ID)
	assert.Equal(t, "c1", m.ConversationID)
	assert.Equal(t, "u7", m.SenderID, "top-level owner_id wins over the nested object")
	assert.Equal(t, "Dana", m.SenderName)
	assert.Equal(t, "https://cdn.example/d.png", m.SenderAvatar)
	assert.Equal(t, domain.DeliveryRead, m.DeliveryState)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), m.CreatedAt)
}

func TestNormalizeDefaults(t *testing.T) {
	now := time.Now()
	m := chat.Normalize(chat.RawHistoryItem{ID: "1"}, "c1", now)

	assert.Equal(t, "User", m.SenderName, "missing sender name falls back to a placeholder")
	assert.Equal(t, now, m.CreatedAt, "missing timestamp falls back to now, never zero")
	assert.Equal(t, domain.DeliveryUnread, m.DeliveryState)
}

func TestNormalizeTimestampLayouts(t *testing.T) {
	now := time.Now()
	cases := map[string]string{
		"rfc3339":      "2026-03-14T12:00:00Z",
		"rfc3339 nano": "2026-03-14T12:00:00.123456789Z",
		"space":        "2026-03-14 12:00:00",
		"no zone":      "2026-03-14T12:00:00",
	}
	for name, ts := range cases {
		t.Run(name, func(t *testing.T) {
			m := chat.Normalize(chat.RawHistoryItem{ID: "1", CreatedAt: ts}, "c1", now)
			assert.Equal(t, 2026, m.CreatedAt.Year())
			assert.Equal(t, 12, m.CreatedAt.Hour())
		})
	}

	t.Run("garbage falls back to now", func(t *testing.T) {
		m := chat.Normalize(chat.RawHistoryItem{ID: "1", CreatedAt: "yesterday-ish"}, "c1", now)
		assert.Equal(t, now, m.CreatedAt)
	})
}

func TestNormalizeAttachments(t *testing.T) {
	raw := chat.RawHistoryItem{
		ID: "1",
		Gallery: []chat.RawAttachment{
			{URL: "https://cdn.example/v.mp4", MediaType: "video"},
			{Src: "https://cdn.example/p.jpg", Preview: "https://cdn.example/p_s.jpg"},
			{MIME: "video/mp4", URL: "https://cdn.example/clip.mp4"},
			{PreviewURL: "https://cdn.example/only-preview.jpg"},
			{MediaType: "photo"},
		},
	}

	m := chat.Normalize(raw, "c1", time.Now())
	require.Len(t, m.Attachments, 4, "entries without any usable URL are dropped")
	assert.Equal(t, domain.AttachmentVideo, m.Attachments[0].Kind)
	assert.Equal(t, "https://cdn.example/p.jpg", m.Attachments[1].URL)
	assert.Equal(t, "https://cdn.example/p_s.jpg", m.Attachments[1].PreviewURL)
	assert.Equal(t, domain.AttachmentImage, m.Attachments[1].Kind)
	assert.Equal(t, domain.AttachmentVideo, m.Attachments[2].Kind, "video MIME prefix classifies as video")
	assert.Equal(t, domain.AttachmentImage, m.Attachments[3].Kind)
}

func TestNormalizePushEnvelope(t *testing.T) {
	var raw chat.RawPushEnvelope
	err := json.Unmarshal([]byte(`{
		"type": "message",
		"id": "55",
		"message": "woof",
		"group_id": 12,
		"sender_id": "u3",
		"sender_name": "Riley"
	}`), &raw)
	require.NoError(t, err)

	m := chat.Normalize(raw, "", time.Now())
	assert.Equal(t, "12", m.ConversationID, "group_id backs up a missing chat_group_id")
	assert.Equal(t, "u3", m.SenderID)
	assert.Equal(t, "Riley", m.SenderName)
}

func TestNormalizeConversation(t *testing.T) {
	t.Run("SupportKindAndParticipant", func(t *testing.T) {
		raw := chat.RawConversation{
			ID:     "c9",
			Type:   "support",
			Status: "open",
			Participant: &chat.RawSender{
				ID:   "agent-1",
				Name: "Support",
			},
			UnreadCount: 2,
		}
		c := chat.NormalizeConversation(raw, time.Now())
		assert.Equal(t, domain.ConversationSupport, c.Kind)
		require.NotNil(t, c.Participant)
		assert.Equal(t, "agent-1", c.Participant.ID)
		assert.Equal(t, 2, c.UnreadCount)
	})

	t.Run("NegativeUnreadClamped", func(t *testing.T) {
		c := chat.NormalizeConversation(chat.RawConversation{ID: "c1", UnreadCount: -3}, time.Now())
		assert.Zero(t, c.UnreadCount)
	})

	t.Run("ActivityFallsBackToLastMessage", func(t *testing.T) {
		raw := chat.RawConversation{
			ID: "c1",
			LastMessage: &chat.RawHistoryItem{
				ID:        "m1",
				Message:   "latest",
				CreatedAt: "2026-03-14T12:00:00Z",
			},
		}
		c := chat.NormalizeConversation(raw, time.Now())
		require.NotNil(t, c.LastMessage)
		assert.Equal(t, c.LastMessage.CreatedAt, c.LastActivityAt)
	})
}
