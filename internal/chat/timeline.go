package chat

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"petchat/internal/domain"
)

// Timeline is the per-conversation ordered message log. Messages are kept
// sorted by CreatedAt with ties broken by arrival order; entries are never
// removed except when a pending copy collapses into its server-confirmed
// counterpart.
//
// Timeline is not safe for concurrent use; the Engine serializes access.
type Timeline struct {
	conversationID string
	window         time.Duration

	entries []timelineEntry
	// Arrival sequence numbers are the ordering tie-breaker. Appends count
	// up from zero; prepended history pages count down, so an older page
	// never reorders what is already present.
	nextSeq  int64
	frontSeq int64
}

type timelineEntry struct {
	msg domain.Message
	seq int64
}

// MessageDraft is the caller-supplied content of an optimistic send.
type MessageDraft struct {
	Body         string
	Attachments  []domain.Attachment
	SenderID     string
	SenderName   string
	SenderAvatar string
}

// NewTimeline creates an empty timeline for one conversation. window bounds
// the timestamp distance for optimistic-send reconciliation.
func NewTimeline(conversationID string, window time.Duration) *Timeline {
	return &Timeline{
		conversationID: conversationID,
		window:         window,
	}
}

// ConversationID returns the owning conversation.
func (t *Timeline) ConversationID() string { return t.conversationID }

// Len returns the number of messages currently held.
func (t *Timeline) Len() int { return len(t.entries) }

// Messages returns the timeline oldest-first.
func (t *Timeline) Messages() []domain.Message {
	out := make([]domain.Message, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.msg
	}
	return out
}

// Last returns the newest message, or nil for an empty timeline.
func (t *Timeline) Last() *domain.Message {
	if len(t.entries) == 0 {
		return nil
	}
	m := t.entries[len(t.entries)-1].msg
	return &m
}

// AppendOlderPage prepends a fetched history page, oldest-first, after
// de-duplicating against already-present IDs. The relative order of existing
// messages is never changed, which is what lets the UI restore its scroll
// anchor after the prepend.
func (t *Timeline) AppendOlderPage(msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(t.entries))
	for _, e := range t.entries {
		if e.msg.ID != "" {
			seen[e.msg.ID] = struct{}{}
		}
	}

	var fresh []domain.Message
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return
	}

	// Page entries get sequence numbers below every existing entry, in page
	// order, so equal timestamps keep the page's own ordering.
	base := t.frontSeq - int64(len(fresh))
	t.frontSeq = base
	for i, m := range fresh {
		t.entries = append(t.entries, timelineEntry{msg: m, seq: base + int64(i)})
	}
	t.sortEntries()
}

// AppendOptimistic synthesizes a pending message from the draft, inserts it
// at the tail, and returns it for immediate rendering.
func (t *Timeline) AppendOptimistic(draft MessageDraft, now time.Time) domain.Message {
	msg := domain.Message{
		LocalID:        uuid.NewString(),
		ConversationID: t.conversationID,
		SenderID:       draft.SenderID,
		SenderName:     draft.SenderName,
		SenderAvatar:   draft.SenderAvatar,
		Body:           draft.Body,
		Attachments:    draft.Attachments,
		CreatedAt:      now,
		DeliveryState:  domain.DeliveryPending,
	}
	t.insert(msg)
	return msg
}

// ReconcileSendResult applies the server copy returned by a successful send.
// If a push event for the same logical message already arrived (push beat the
// HTTP response), the two collapse into one entry keeping the first-arrived
// server ID; the LocalID association is preserved either way.
func (t *Timeline) ReconcileSendResult(localID string, server domain.Message) {
	if idx := t.indexByID(server.ID); idx >= 0 {
		// Push won the race. Keep its copy, drop any stray pending twin.
		e := &t.entries[idx]
		if e.msg.LocalID == "" {
			e.msg.LocalID = localID
		}
		if e.msg.DeliveryState == domain.DeliveryPending || e.msg.DeliveryState == domain.DeliveryUnread {
			e.msg.DeliveryState = domain.DeliverySent
		}
		t.dropPending(localID)
		return
	}

	if idx := t.indexByLocalID(localID); idx >= 0 {
		e := &t.entries[idx]
		local := e.msg
		server.LocalID = localID
		server.ConversationID = t.conversationID
		server.DeliveryState = domain.DeliverySent
		if server.SenderID == "" {
			server.SenderID = local.SenderID
		}
		e.msg = server
		t.sortEntries() // server timestamp may differ from the local one
		return
	}

	// No pending copy left (it was already collapsed and then pruned, or the
	// caller raced a navigation). Never lose the message.
	server.LocalID = localID
	server.ConversationID = t.conversationID
	server.DeliveryState = domain.DeliverySent
	t.insert(server)
}

// ReconcileSendFailure marks the pending message failed. It stays visible so
// the UI can offer a retry.
func (t *Timeline) ReconcileSendFailure(localID string) {
	if idx := t.indexByLocalID(localID); idx >= 0 {
		if t.entries[idx].msg.Pending() {
			t.entries[idx].msg.DeliveryState = domain.DeliveryFailed
		}
	}
}

// ApplyPushMessage merges a live-channel message into the timeline following
// the de-duplication priority: exact ID match updates in place; a pending
// optimistic send from selfID with the same body within the reconcile window
// adopts the server copy; anything else inserts at its sorted position.
func (t *Timeline) ApplyPushMessage(msg domain.Message, selfID string) {
	if idx := t.indexByID(msg.ID); idx >= 0 {
		e := &t.entries[idx]
		localID := e.msg.LocalID
		seqState := e.msg.DeliveryState
		e.msg = msg
		e.msg.LocalID = localID
		// An in-place update may carry a read receipt but must not regress a
		// confirmed outgoing message back to unread.
		if seqState == domain.DeliverySent && msg.DeliveryState == domain.DeliveryUnread {
			e.msg.DeliveryState = domain.DeliverySent
		}
		t.sortEntries()
		return
	}

	if msg.SenderID == selfID {
		if idx := t.matchPending(msg); idx >= 0 {
			e := &t.entries[idx]
			localID := e.msg.LocalID
			e.msg = msg
			e.msg.LocalID = localID
			e.msg.DeliveryState = domain.DeliverySent
			t.sortEntries()
			return
		}
	}

	// Push normally implies "now" so this lands at the tail, but slight
	// out-of-order arrival still finds its correct sorted position.
	t.insert(msg)
}

// MarkAllRead transitions every delivered-unread message from other senders
// to delivered-read.
func (t *Timeline) MarkAllRead(selfID string) {
	for i := range t.entries {
		m := &t.entries[i].msg
		if m.SenderID != selfID && m.DeliveryState == domain.DeliveryUnread {
			m.DeliveryState = domain.DeliveryRead
		}
	}
}

func (t *Timeline) insert(msg domain.Message) {
	seq := t.nextSeq
	t.nextSeq++
	entry := timelineEntry{msg: msg, seq: seq}
	pos := sort.Search(len(t.entries), func(i int) bool {
		return entryLess(entry, t.entries[i])
	})
	t.entries = append(t.entries, timelineEntry{})
	copy(t.entries[pos+1:], t.entries[pos:])
	t.entries[pos] = entry
}

func (t *Timeline) sortEntries() {
	sort.Slice(t.entries, func(i, j int) bool {
		return entryLess(t.entries[i], t.entries[j])
	})
}

func entryLess(a, b timelineEntry) bool {
	if !a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
		return a.msg.CreatedAt.Before(b.msg.CreatedAt)
	}
	return a.seq < b.seq
}

func (t *Timeline) indexByID(id string) int {
	if id == "" {
		return -1
	}
	for i := range t.entries {
		if t.entries[i].msg.ID == id {
			return i
		}
	}
	return -1
}

func (t *Timeline) indexByLocalID(localID string) int {
	if localID == "" {
		return -1
	}
	for i := range t.entries {
		if t.entries[i].msg.LocalID == localID {
			return i
		}
	}
	return -1
}

// matchPending finds a pending optimistic send that plausibly is the same
// logical message: same body, timestamps within the reconcile window.
func (t *Timeline) matchPending(server domain.Message) int {
	for i := range t.entries {
		m := &t.entries[i].msg
		if !m.Pending() || m.Body != server.Body {
			continue
		}
		delta := server.CreatedAt.Sub(m.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta < t.window {
			return i
		}
	}
	return -1
}

func (t *Timeline) dropPending(localID string) {
	for i := range t.entries {
		if t.entries[i].msg.LocalID == localID && t.entries[i].msg.Pending() {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}
