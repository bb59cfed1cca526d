package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"petchat/internal/cache"
	"petchat/internal/chat"
	"petchat/internal/domain"
	"petchat/internal/security"
	"petchat/internal/transport/live"
	"petchat/internal/transport/rest"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat client",
	Long: `Connects to the backend with the token from AUTH_TOKEN and starts an
interactive session. Commands:

  /list          show conversations, grouped
  /open <id>     open a conversation
  /older         load the previous history page
  /close         leave the current conversation
  /quit          exit

Any other input is sent as a message to the open conversation; a line that
changes while composing emits typing signals automatically.`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	if cfg.AuthToken == "" {
		return fmt.Errorf("AUTH_TOKEN is not set; run 'petchat login' first")
	}
	session, err := security.SessionFromToken(cfg.AuthToken)
	if err != nil {
		return fmt.Errorf("invalid AUTH_TOKEN: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		cancel()
	}()

	msgCache, err := cache.Open(cfg.CachePath)
	if err != nil {
		return fmt.Errorf("open message cache: %w", err)
	}
	defer msgCache.Close()

	api := rest.New(cfg.APIBaseURL, cfg.AuthToken)

	ui := &console{out: os.Stdout}
	var engine *chat.Engine
	liveClient := live.New(cfg.WSURL, cfg.AuthToken, liveEventsProxy{engine: &engine}, logger)

	engine = chat.NewEngine(api, liveClient, msgCache, chat.Options{
		SelfID:          session.UserID,
		SelfName:        session.Name,
		PageSize:        cfg.PageSize,
		ReconcileWindow: cfg.ReconcileWindow,
		TypingQuiet:     cfg.TypingQuiet,
		CacheKeepLast:   cfg.CacheKeepLast,
		Logger:          logger,
		OnUpdate:        func() { ui.render(engine) },
	})
	defer engine.Shutdown()

	go liveClient.Run(ctx)

	if err := engine.RefreshConversations(ctx); err != nil {
		logger.Warn("initial conversation fetch failed", "error", err)
	}
	ui.printGrouped(engine.Grouped())

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := runChatCommand(ctx, engine, ui, line); quit {
				break
			}
			continue
		}

		engine.SendTyping()
		if _, err := engine.Send(ctx, line, nil); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func runChatCommand(ctx context.Context, engine *chat.Engine, ui *console, line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/list":
		if err := engine.RefreshConversations(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "refresh failed: %v\n", err)
		}
		ui.printGrouped(engine.Grouped())
	case "/open":
		if len(fields) < 2 {
			fmt.Fprintln(os.Stderr, "usage: /open <conversation-id>")
			return false
		}
		if err := engine.Open(ctx, fields[1]); err != nil {
			fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		}
	case "/older":
		if err := engine.LoadOlder(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "load older failed: %v\n", err)
		}
	case "/close":
		engine.Close()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", fields[0])
	}
	return false
}

// liveEventsProxy lets the live client be constructed before the engine that
// consumes its events.
type liveEventsProxy struct {
	engine **chat.Engine
}

func (p liveEventsProxy) OnMessage(raw chat.RawPushEnvelope) {
	if e := *p.engine; e != nil {
		e.OnMessage(raw)
	}
}

func (p liveEventsProxy) OnTyping(conversationID, userID string) {
	if e := *p.engine; e != nil {
		e.OnTyping(conversationID, userID)
	}
}

func (p liveEventsProxy) OnConnectionState(state chat.ConnState) {
	if e := *p.engine; e != nil {
		e.OnConnectionState(state)
	}
}

// console is a minimal terminal renderer: it appends newly arrived messages
// of the active conversation instead of redrawing the screen. Update
// callbacks arrive from several goroutines, hence the lock.
type console struct {
	mu      sync.Mutex
	out     *os.File
	lastID  string
	printed int
}

func (c *console) render(e *chat.Engine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	active := e.ActiveID()
	if active == "" {
		return
	}
	if active != c.lastID {
		c.lastID = active
		c.printed = 0
		fmt.Fprintf(c.out, "-- conversation %s --\n", active)
	}

	msgs := e.Messages(active)
	if c.printed > len(msgs) {
		c.printed = len(msgs)
	}
	for _, m := range msgs[c.printed:] {
		c.printMessage(m)
	}
	c.printed = len(msgs)

	if typing := e.TypingUsers(active); len(typing) > 0 {
		fmt.Fprintf(c.out, "  (%s typing...)\n", strings.Join(typing, ", "))
	}
}

func (c *console) printMessage(m domain.Message) {
	marker := ""
	switch m.DeliveryState {
	case domain.DeliveryPending:
		marker = " [sending]"
	case domain.DeliveryFailed:
		marker = " [failed]"
	}
	fmt.Fprintf(c.out, "[%s] %s: %s%s\n",
		m.CreatedAt.Format("15:04:05"), m.SenderName, m.Body, marker)
}

func (c *console) printGrouped(g chat.GroupedConversations) {
	c.mu.Lock()
	defer c.mu.Unlock()
	printSection := func(title string, convs []*domain.Conversation) {
		if len(convs) == 0 {
			return
		}
		fmt.Fprintf(c.out, "%s:\n", title)
		for _, conv := range convs {
			name := "conversation"
			if conv.Participant != nil {
				name = conv.Participant.Name
			}
			unread := ""
			if conv.UnreadCount > 0 {
				unread = fmt.Sprintf(" (%d unread)", conv.UnreadCount)
			}
			fmt.Fprintf(c.out, "  %s  %s%s\n", conv.ID, name, unread)
		}
	}
	printSection("Support", g.Support)
	printSection("Active", g.Active)
	printSection("Other", g.Other)
}
