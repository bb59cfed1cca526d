package devserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"petchat/internal/config"
	"petchat/internal/security"
)

// Server bundles the dev stub's state and HTTP surface.
type Server struct {
	cfg    *config.Config
	store  *Store
	hub    *Hub
	tokens *security.TokenService
	hasher *security.PasswordHasher
	log    *slog.Logger
}

func NewServer(cfg *config.Config, log *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		store:  NewStore(),
		hub:    NewHub(),
		tokens: security.NewTokenService(cfg.JWTSecret, 24*time.Hour),
		hasher: security.NewPasswordHasher(0),
		log:    log,
	}
}

// Seed creates a demo support agent and a support conversation with a
// greeting, so a freshly started server has something to chat with.
func (s *Server) Seed() {
	hash, err := s.hasher.Hash("support")
	if err != nil {
		return
	}
	agent, err := s.store.CreateUser("support", hash)
	if err != nil {
		return
	}
	s.log.Info("seeded support agent", "user_id", agent.ID)
}

// ensureSupportConversation opens a support thread for a new user.
func (s *Server) ensureSupportConversation(u *User) {
	agent := s.store.UserByName("support")
	if agent == nil || agent.ID == u.ID {
		return
	}
	conv := s.store.CreateConversation("support", "open", []string{u.ID, agent.ID})
	_, _ = s.store.AppendMessage(conv.ID, agent.ID, "Hi! How can we help you and your pets today?", nil, false)
}

// Handler builds the full HTTP router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)

	r.Get("/ws", makeWSHandler(s.hub, s.store, s.tokens, s.log))

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/conversations", s.handleListConversations)
		r.Get("/conversations/{id}/messages", s.handleListMessages)
		r.Post("/conversations/{id}/messages", s.handleSendMessage)
		r.Post("/conversations/{id}/read", s.handleMarkRead)
	})

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr(),
		Handler: s.Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dev server listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

// ── auth ─────────────────────────────────────────────────────────────────────

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to hash password"})
		return
	}
	u, err := s.store.CreateUser(req.Username, hash)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.ensureSupportConversation(u)

	token, err := s.tokens.CreateForUser(u.ID, u.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      u.ID,
		Username:    u.Name,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	u := s.store.UserByName(req.Username)
	if u == nil || s.hasher.Verify(req.Password, u.PasswordHash) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	token, err := s.tokens.CreateForUser(u.ID, u.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      u.ID,
		Username:    u.Name,
	})
}

type contextKey string

const userContextKey contextKey = "currentUser"

func currentUser(r *http.Request) *User {
	u, _ := r.Context().Value(userContextKey).(*User)
	return u
}

// authMiddleware validates the Bearer token and attaches the user to the
// request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

		claims, err := s.tokens.Parse(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		u := s.store.UserByID(sub)
		if u == nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ── conversations and messages ───────────────────────────────────────────────

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	page, pageSize := pageParams(r)

	convs := s.store.ConversationsFor(u.ID)
	start := (page - 1) * pageSize
	if start >= len(convs) {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	end := start + pageSize
	if end > len(convs) {
		end = len(convs)
	}

	out := make([]map[string]any, 0, end-start)
	for _, c := range convs[start:end] {
		out = append(out, s.conversationJSON(c, u.ID))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	convID := chi.URLParam(r, "id")
	if !s.store.IsParticipant(convID, u.ID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}

	page, pageSize := pageParams(r)
	msgs := s.store.MessagesPage(convID, page, pageSize)
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.messageJSON(m, u.ID))
	}
	writeJSON(w, http.StatusOK, out)
}

type sendMessageRequest struct {
	Message string `json:"message"`
	Gallery []struct {
		URL        string `json:"url"`
		PreviewURL string `json:"preview_url"`
		MediaType  string `json:"media_type"`
	} `json:"gallery"`
}

func (r sendMessageRequest) attachments() []Attachment {
	if len(r.Gallery) == 0 {
		return nil
	}
	out := make([]Attachment, 0, len(r.Gallery))
	for _, g := range r.Gallery {
		out = append(out, Attachment{URL: g.URL, PreviewURL: g.PreviewURL, MediaType: g.MediaType})
	}
	return out
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	convID := chi.URLParam(r, "id")
	if !s.store.IsParticipant(convID, u.ID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Gallery) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message must not be empty"})
		return
	}

	m, err := s.store.AppendMessage(convID, u.ID, req.Message, req.attachments(), false)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	// Push to every other subscriber of the conversation, and echo to the
	// sender's own connections so a second client on the same account syncs.
	push := s.messageJSON(m, "")
	push["type"] = "message"
	push["chat_group_id"] = convID
	s.hub.BroadcastToConversation(convID, u.ID, push)
	s.hub.BroadcastToUsers([]string{u.ID}, push)

	resp := s.messageJSON(m, u.ID)
	resp["chat_group_id"] = convID
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	convID := chi.URLParam(r, "id")
	if !s.store.IsParticipant(convID, u.ID) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "conversation not found"})
		return
	}
	s.store.MarkAllRead(convID, u.ID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── wire shapes ──────────────────────────────────────────────────────────────

// messageJSON renders a message the way the production history endpoint does.
// viewerID controls the read flag; empty means render as unread.
func (s *Server) messageJSON(m *Message, viewerID string) map[string]any {
	owner := s.store.UserByID(m.OwnerID)
	ownerName := "User"
	if owner != nil {
		ownerName = owner.Name
	}
	read := false
	if viewerID != "" {
		read = m.OwnerID == viewerID || m.ReadBy[viewerID]
	}
	out := map[string]any{
		"id":         m.ID,
		"message":    m.Body,
		"created_at": m.CreatedAt.Format(time.RFC3339Nano),
		"owner_id":   m.OwnerID,
		"owner": map[string]any{
			"id":   m.OwnerID,
			"name": ownerName,
		},
		"is_system": m.IsSystem,
		"read":      read,
	}
	if len(m.Gallery) > 0 {
		gallery := make([]map[string]any, 0, len(m.Gallery))
		for _, a := range m.Gallery {
			gallery = append(gallery, map[string]any{
				"url":         a.URL,
				"preview_url": a.PreviewURL,
				"media_type":  a.MediaType,
			})
		}
		out["gallery"] = gallery
	}
	return out
}

func (s *Server) conversationJSON(c *Conversation, viewerID string) map[string]any {
	var participant map[string]any
	for _, pid := range c.Participants {
		if pid == viewerID {
			continue
		}
		if p := s.store.UserByID(pid); p != nil {
			participant = map[string]any{"id": p.ID, "name": p.Name}
		}
		break
	}

	out := map[string]any{
		"id":              c.ID,
		"type":            c.Type,
		"status":          c.Status,
		"participant":     participant,
		"unread_count":    s.store.UnreadCount(c.ID, viewerID),
		"last_message_at": c.LastActivity.Format(time.RFC3339Nano),
	}
	if last := s.store.LastMessage(c.ID); last != nil {
		out["last_message"] = s.messageJSON(last, viewerID)
	}
	return out
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return page, pageSize
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
