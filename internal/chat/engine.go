package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"petchat/internal/domain"
)

// Engine is the chat feature's state core. It owns the conversation store,
// the per-conversation timelines, and the typing tracker, and it is the only
// writer to any of them: REST responses, push events, and user actions all
// funnel through its methods under one mutex, so every interleaving of event
// sources converges to the same state.
type Engine struct {
	api   HistoryAPI
	live  LiveChannel
	cache MessageCache
	log   *slog.Logger

	selfID     string
	selfName   string
	selfAvatar string

	pageSize  int
	window    time.Duration
	keepLast  int
	onUpdate  func()
	baseCtx   context.Context
	baseStop  context.CancelFunc
	typing    *TypingTracker

	mu        sync.Mutex
	store     *Store
	timelines map[string]*Timeline
	// pagination cursor and exhaustion flag per conversation
	nextPage map[string]int
	hasMore  map[string]bool
	// openGen invalidates in-flight history fetches when the user navigates
	// to another conversation before they resolve
	openGen     uint64
	fetchCtx    context.Context
	cancelFetch context.CancelFunc
}

// Options configures an Engine.
type Options struct {
	SelfID     string
	SelfName   string
	SelfAvatar string

	PageSize        int
	ReconcileWindow time.Duration
	TypingQuiet     time.Duration
	CacheKeepLast   int

	Logger *slog.Logger
	// OnUpdate, if set, is invoked after every state change so the UI layer
	// can re-render. Called without internal locks held.
	OnUpdate func()
}

// NewEngine wires the core against its collaborators.
func NewEngine(api HistoryAPI, live LiveChannel, cache MessageCache, opts Options) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.ReconcileWindow <= 0 {
		opts.ReconcileWindow = 15 * time.Second
	}
	if opts.TypingQuiet <= 0 {
		opts.TypingQuiet = 3 * time.Second
	}
	if opts.CacheKeepLast <= 0 {
		opts.CacheKeepLast = 50
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, stop := context.WithCancel(context.Background())
	e := &Engine{
		api:        api,
		live:       live,
		cache:      cache,
		log:        opts.Logger,
		selfID:     opts.SelfID,
		selfName:   opts.SelfName,
		selfAvatar: opts.SelfAvatar,
		pageSize:   opts.PageSize,
		window:     opts.ReconcileWindow,
		keepLast:   opts.CacheKeepLast,
		onUpdate:   opts.OnUpdate,
		baseCtx:    ctx,
		baseStop:   stop,
		store:      NewStore(opts.SelfID),
		timelines:  make(map[string]*Timeline),
		nextPage:   make(map[string]int),
		hasMore:    make(map[string]bool),
	}
	e.typing = NewTypingTracker(opts.TypingQuiet, func(string) { e.notify() })
	return e
}

// Shutdown cancels outstanding work and typing timers.
func (e *Engine) Shutdown() {
	e.baseStop()
	e.typing.Stop()
}

// RefreshConversations fetches the conversation list, hydrates the store, and
// subscribes every listed conversation so typing indicators reach the list.
func (e *Engine) RefreshConversations(ctx context.Context) error {
	raw, err := e.api.FetchConversationList(ctx, 1, e.pageSize)
	if err != nil {
		return fmt.Errorf("fetch conversation list: %w", err)
	}

	now := time.Now()
	convs := make([]domain.Conversation, 0, len(raw))
	for _, rc := range raw {
		convs = append(convs, NormalizeConversation(rc, now))
	}

	e.mu.Lock()
	e.store.ReplaceAll(convs)
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.live.Subscribe(id)
	}
	e.notify()
	return nil
}

// Open makes the conversation active: zeroes its unread counter, paints the
// timeline from cache if it is empty, subscribes, marks read on the backend
// (fire-and-forget), and fetches the first history page. Opening another
// conversation before the fetch resolves discards the stale page.
func (e *Engine) Open(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	e.store.SetActive(conversationID)
	gen := e.bumpOpenLocked(ctx)
	fetchCtx := e.fetchCtxLocked()
	tl := e.timelineLocked(conversationID)
	tl.MarkAllRead(e.selfID)
	// The cursor advances in loadPage only after a page lands, so a failed
	// first fetch leaves it at 1 and the next scroll retries the newest page.
	e.nextPage[conversationID] = 1
	e.hasMore[conversationID] = true
	needPaint := tl.Len() == 0
	e.mu.Unlock()

	e.live.Subscribe(conversationID)
	e.notify()

	if needPaint {
		e.paintFromCache(ctx, conversationID, gen)
	}

	go func() {
		if err := e.api.MarkRead(e.baseCtx, conversationID); err != nil {
			e.log.Warn("mark read failed", "conversation", conversationID, "error", err)
		}
	}()

	return e.loadPage(fetchCtx, gen, conversationID, 1)
}

// Close deactivates the current conversation. The subscription stays: the
// conversation is still visible in the list and typing indicators there need
// the channel.
func (e *Engine) Close() {
	e.mu.Lock()
	e.store.ClearActive()
	e.openGen++
	if e.cancelFetch != nil {
		e.cancelFetch()
		e.cancelFetch = nil
	}
	e.mu.Unlock()
	e.notify()
}

// LoadOlder fetches the next older history page for the active conversation.
// On failure the timeline is left untouched and the cursor does not advance,
// so the next scroll trigger retries the same page.
func (e *Engine) LoadOlder(ctx context.Context) error {
	e.mu.Lock()
	conversationID := e.store.ActiveID()
	if conversationID == "" {
		e.mu.Unlock()
		return domain.ErrConversationUnknown
	}
	if !e.hasMore[conversationID] {
		e.mu.Unlock()
		return nil
	}
	gen := e.openGen
	page := e.nextPage[conversationID]
	fetchCtx := e.fetchCtxLocked()
	e.mu.Unlock()

	return e.loadPage(fetchCtx, gen, conversationID, page)
}

// Send appends an optimistic message to the active conversation, posts it,
// and reconciles the result. The returned message is the optimistic copy; the
// timeline holds the confirmed one once the call returns without error.
func (e *Engine) Send(ctx context.Context, body string, attachments []domain.Attachment) (domain.Message, error) {
	e.mu.Lock()
	conversationID := e.store.ActiveID()
	if conversationID == "" {
		e.mu.Unlock()
		return domain.Message{}, domain.ErrConversationUnknown
	}
	if body == "" && len(attachments) == 0 {
		e.mu.Unlock()
		return domain.Message{}, domain.ErrInvalidInput
	}
	tl := e.timelineLocked(conversationID)
	msg := tl.AppendOptimistic(MessageDraft{
		Body:         body,
		Attachments:  attachments,
		SenderID:     e.selfID,
		SenderName:   e.selfName,
		SenderAvatar: e.selfAvatar,
	}, time.Now())
	e.store.UpsertFromPush(msg)
	e.mu.Unlock()
	e.notify()

	raw, err := e.api.SendMessage(ctx, conversationID, body, attachments)
	if err != nil {
		e.mu.Lock()
		e.timelineLocked(conversationID).ReconcileSendFailure(msg.LocalID)
		e.mu.Unlock()
		e.notify()
		return msg, fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
	}

	server := Normalize(raw, conversationID, time.Now())
	e.mu.Lock()
	tl = e.timelineLocked(conversationID)
	tl.ReconcileSendResult(msg.LocalID, server)
	if last := tl.Last(); last != nil {
		e.store.UpsertFromPush(*last)
	}
	e.mu.Unlock()
	e.writeBehind(conversationID)
	e.notify()
	return msg, nil
}

// SendTyping forwards a local typing burst for the active conversation.
func (e *Engine) SendTyping() {
	e.mu.Lock()
	conversationID := e.store.ActiveID()
	e.mu.Unlock()
	if conversationID != "" {
		e.live.SendTyping(conversationID)
	}
}

// OnMessage is the live channel's message event entry point.
func (e *Engine) OnMessage(raw RawPushEnvelope) {
	msg := Normalize(raw, "", time.Now())
	if msg.ConversationID == "" {
		e.log.Debug("push message without conversation id dropped")
		return
	}

	e.mu.Lock()
	active := e.store.ActiveID() == msg.ConversationID
	fromPeer := msg.SenderID != e.selfID
	if active && fromPeer {
		msg.DeliveryState = domain.DeliveryRead
	}
	e.timelineLocked(msg.ConversationID).ApplyPushMessage(msg, e.selfID)
	e.store.UpsertFromPush(msg)
	e.mu.Unlock()

	// A real message supersedes the sender's typing signal.
	e.typing.Clear(msg.ConversationID, msg.SenderID)

	if active && fromPeer {
		go func() {
			if err := e.api.MarkRead(e.baseCtx, msg.ConversationID); err != nil {
				e.log.Warn("mark read failed", "conversation", msg.ConversationID, "error", err)
			}
		}()
	}

	e.writeBehind(msg.ConversationID)
	e.notify()
}

// OnTyping is the live channel's whisper event entry point. The user's own
// echo is ignored.
func (e *Engine) OnTyping(conversationID, userID string) {
	if userID == "" || userID == e.selfID {
		return
	}
	e.typing.OnSignal(conversationID, userID)
}

// OnConnectionState re-issues the derived subscription set on every
// transition into connected: the active conversation plus everything in the
// list. Subscribe is idempotent, so reconnect cycles cannot leak or double
// subscriptions.
func (e *Engine) OnConnectionState(state ConnState) {
	if state != ConnConnected {
		return
	}
	e.mu.Lock()
	convs := e.store.Conversations()
	ids := make([]string, 0, len(convs)+1)
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	if a := e.store.ActiveID(); a != "" && e.store.Get(a) == nil {
		ids = append(ids, a)
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.live.Subscribe(id)
	}
}

// Conversations returns the list most-recent-first.
func (e *Engine) Conversations() []*domain.Conversation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Conversations()
}

// Grouped partitions the list for UI sectioning.
func (e *Engine) Grouped() GroupedConversations {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListGrouped()
}

// Messages returns the timeline for a conversation, oldest-first.
func (e *Engine) Messages(conversationID string) []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.timelineLocked(conversationID).Messages()
}

// TypingUsers returns who is currently typing in a conversation.
func (e *Engine) TypingUsers(conversationID string) []string {
	return e.typing.Typing(conversationID)
}

// ActiveID returns the active conversation ID, empty if none.
func (e *Engine) ActiveID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ActiveID()
}

func (e *Engine) loadPage(ctx context.Context, gen uint64, conversationID string, page int) error {
	raw, err := e.api.FetchHistoryPage(ctx, conversationID, page, e.pageSize)
	if err != nil {
		return fmt.Errorf("%w: page %d: %v", domain.ErrPageUnavailable, page, err)
	}

	now := time.Now()
	// The API returns newest-first; the timeline wants oldest-first.
	msgs := make([]domain.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		m := Normalize(raw[i], conversationID, now)
		if m.DeliveryState == domain.DeliveryUnread {
			m.DeliveryState = domain.DeliveryRead
		}
		msgs = append(msgs, m)
	}

	e.mu.Lock()
	if gen != e.openGen {
		// The user navigated away while the fetch was in flight; applying it
		// now could pollute another conversation's view of the world.
		e.mu.Unlock()
		e.log.Debug("stale history page discarded", "conversation", conversationID, "page", page)
		return nil
	}
	tl := e.timelineLocked(conversationID)
	tl.AppendOlderPage(msgs)
	e.nextPage[conversationID] = page + 1
	e.hasMore[conversationID] = len(raw) >= e.pageSize
	e.mu.Unlock()

	e.writeBehind(conversationID)
	e.notify()
	return nil
}

func (e *Engine) paintFromCache(ctx context.Context, conversationID string, gen uint64) {
	cached, ok, err := e.cache.Get(ctx, e.selfID, conversationID)
	if err != nil {
		e.log.Debug("cache read failed", "conversation", conversationID, "error", err)
		return
	}
	if !ok || len(cached) == 0 {
		return
	}

	e.mu.Lock()
	tl := e.timelineLocked(conversationID)
	if gen == e.openGen && tl.Len() == 0 {
		tl.AppendOlderPage(cached)
		tl.MarkAllRead(e.selfID)
	}
	e.mu.Unlock()
	e.notify()
}

// writeBehind persists the tail of a timeline for instant paint on the next
// open. Failures are logged and ignored; the cache is never authoritative.
func (e *Engine) writeBehind(conversationID string) {
	e.mu.Lock()
	msgs := e.timelineLocked(conversationID).Messages()
	e.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	if len(msgs) > e.keepLast {
		msgs = msgs[len(msgs)-e.keepLast:]
	}
	go func() {
		if err := e.cache.Put(e.baseCtx, e.selfID, conversationID, msgs); err != nil {
			e.log.Debug("cache write failed", "conversation", conversationID, "error", err)
		}
	}()
}

func (e *Engine) timelineLocked(conversationID string) *Timeline {
	tl, ok := e.timelines[conversationID]
	if !ok {
		tl = NewTimeline(conversationID, e.window)
		e.timelines[conversationID] = tl
	}
	return tl
}

func (e *Engine) bumpOpenLocked(ctx context.Context) uint64 {
	e.openGen++
	if e.cancelFetch != nil {
		e.cancelFetch()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	e.cancelFetch = cancel
	e.fetchCtx = fetchCtx
	return e.openGen
}

func (e *Engine) fetchCtxLocked() context.Context {
	if e.fetchCtx != nil {
		return e.fetchCtx
	}
	return e.baseCtx
}

func (e *Engine) notify() {
	if e.onUpdate != nil {
		e.onUpdate()
	}
}
