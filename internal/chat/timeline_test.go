package chat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/chat"
	"petchat/internal/domain"
)

var baseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func msgAt(id string, sender string, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		SenderName:     "Someone",
		Body:           body,
		CreatedAt:      at,
		DeliveryState:  domain.DeliveryRead,
	}
}

func bodies(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}

func TestTimelineAppendOlderPage(t *testing.T) {
	t.Run("DeduplicatesByID", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		tl.AppendOlderPage([]domain.Message{
			msgAt("1", "u2", "a", baseTime),
			msgAt("2", "u2", "b", baseTime.Add(time.Second)),
		})
		tl.AppendOlderPage([]domain.Message{
			msgAt("2", "u2", "b again", baseTime.Add(time.Second)),
			msgAt("3", "u2", "c", baseTime.Add(2*time.Second)),
		})

		assert.Equal(t, []string{"a", "b", "c"}, bodies(tl.Messages()))
	})

	t.Run("OlderPageNeverReordersExisting", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		// Messages with identical timestamps: tie-breaking must keep the
		// already-rendered ones after the prepended page.
		tl.AppendOlderPage([]domain.Message{
			msgAt("10", "u2", "first seen", baseTime),
			msgAt("11", "u2", "second seen", baseTime),
		})
		tl.AppendOlderPage([]domain.Message{
			msgAt("8", "u2", "older 1", baseTime),
			msgAt("9", "u2", "older 2", baseTime),
		})

		assert.Equal(t,
			[]string{"older 1", "older 2", "first seen", "second seen"},
			bodies(tl.Messages()))
	})

	t.Run("EmptyPageIsNoop", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		tl.AppendOlderPage(nil)
		assert.Zero(t, tl.Len())
	})
}

func TestTimelineOptimisticSend(t *testing.T) {
	t.Run("PendingThenConfirmed", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		local := tl.AppendOptimistic(chat.MessageDraft{
			Body: "hello", SenderID: "me", SenderName: "Me",
		}, baseTime)

		require.NotEmpty(t, local.LocalID)
		assert.Equal(t, domain.DeliveryPending, local.DeliveryState)
		assert.Equal(t, 1, tl.Len())

		server := msgAt("42", "me", "hello", baseTime.Add(time.Second))
		tl.ReconcileSendResult(local.LocalID, server)

		msgs := tl.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "42", msgs[0].ID)
		assert.Equal(t, local.LocalID, msgs[0].LocalID)
		assert.Equal(t, domain.DeliverySent, msgs[0].DeliveryState)
	})

	t.Run("FailureKeepsMessageVisible", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		local := tl.AppendOptimistic(chat.MessageDraft{Body: "oops", SenderID: "me"}, baseTime)

		tl.ReconcileSendFailure(local.LocalID)

		msgs := tl.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, domain.DeliveryFailed, msgs[0].DeliveryState)
		assert.Equal(t, "oops", msgs[0].Body)
	})

	t.Run("ConfirmationWithoutPendingStillLands", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		server := msgAt("7", "me", "ghost", baseTime)
		tl.ReconcileSendResult("gone-local-id", server)

		msgs := tl.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "7", msgs[0].ID)
		assert.Equal(t, domain.DeliverySent, msgs[0].DeliveryState)
	})
}

func TestTimelineSendPushRaces(t *testing.T) {
	t.Run("HTTPResponseFirstThenPush", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		local := tl.AppendOptimistic(chat.MessageDraft{Body: "hi", SenderID: "me"}, baseTime)

		server := msgAt("100", "me", "hi", baseTime.Add(time.Second))
		tl.ReconcileSendResult(local.LocalID, server)

		// The push echo for the same server ID arrives afterwards.
		echo := msgAt("100", "me", "hi", baseTime.Add(time.Second))
		echo.DeliveryState = domain.DeliveryUnread
		tl.ApplyPushMessage(echo, "me")

		msgs := tl.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "100", msgs[0].ID)
		assert.Equal(t, local.LocalID, msgs[0].LocalID)
		// The echo must not regress the confirmed message to unread.
		assert.Equal(t, domain.DeliverySent, msgs[0].DeliveryState)
	})

	t.Run("PushFirstThenHTTPResponse", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		local := tl.AppendOptimistic(chat.MessageDraft{Body: "hi", SenderID: "me"}, baseTime)

		push := msgAt("100", "me", "hi", baseTime.Add(time.Second))
		tl.ApplyPushMessage(push, "me")

		msgs := tl.Messages()
		require.Len(t, msgs, 1, "push must collapse into the pending copy")
		assert.Equal(t, "100", msgs[0].ID)
		assert.Equal(t, local.LocalID, msgs[0].LocalID)

		tl.ReconcileSendResult(local.LocalID, msgAt("100", "me", "hi", baseTime.Add(time.Second)))

		msgs = tl.Messages()
		require.Len(t, msgs, 1, "late response must not duplicate the message")
		assert.Equal(t, "100", msgs[0].ID)
		assert.Equal(t, domain.DeliverySent, msgs[0].DeliveryState)
	})
}

func TestTimelineApplyPushMessage(t *testing.T) {
	t.Run("PendingMatchOutsideWindowInsertsSeparately", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		tl.AppendOptimistic(chat.MessageDraft{Body: "hi", SenderID: "me"}, baseTime)

		late := msgAt("5", "me", "hi", baseTime.Add(20*time.Second))
		tl.ApplyPushMessage(late, "me")

		assert.Equal(t, 2, tl.Len())
	})

	t.Run("PeerMessageNeverMatchesPending", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		tl.AppendOptimistic(chat.MessageDraft{Body: "hi", SenderID: "me"}, baseTime)

		peer := msgAt("6", "u2", "hi", baseTime.Add(time.Second))
		tl.ApplyPushMessage(peer, "me")

		assert.Equal(t, 2, tl.Len())
	})

	t.Run("OutOfOrderArrivalFindsSortedPosition", func(t *testing.T) {
		tl := chat.NewTimeline("c1", 15*time.Second)
		tl.AppendOlderPage([]domain.Message{
			msgAt("1", "u2", "a", baseTime),
			msgAt("3", "u2", "c", baseTime.Add(2*time.Second)),
		})

		tl.ApplyPushMessage(msgAt("2", "u2", "b", baseTime.Add(time.Second)), "me")

		assert.Equal(t, []string{"a", "b", "c"}, bodies(tl.Messages()))
	})
}

func TestTimelineMarkAllRead(t *testing.T) {
	tl := chat.NewTimeline("c1", 15*time.Second)
	mine := msgAt("1", "me", "mine", baseTime)
	mine.DeliveryState = domain.DeliverySent
	theirs := msgAt("2", "u2", "theirs", baseTime.Add(time.Second))
	theirs.DeliveryState = domain.DeliveryUnread
	tl.AppendOlderPage([]domain.Message{mine, theirs})

	tl.MarkAllRead("me")

	msgs := tl.Messages()
	assert.Equal(t, domain.DeliverySent, msgs[0].DeliveryState)
	assert.Equal(t, domain.DeliveryRead, msgs[1].DeliveryState)
}
