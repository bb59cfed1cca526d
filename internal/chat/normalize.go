package chat

import (
	"encoding/json"
	"strings"
	"time"

	"petchat/internal/domain"
)

// The backend delivers messages in three shapes with inconsistent field names:
// REST history items, send responses, and push envelopes. Each shape gets its
// own typed struct; all of them funnel through Normalize into the one
// canonical domain.Message. Normalization is total: a malformed payload
// degrades to safe defaults, it never fails.

// FlexID decodes a JSON identifier that may arrive as a string or a number.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*f = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err == nil {
			*f = FlexID(v)
		}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexID(n.String())
	}
	return nil
}

func (f FlexID) String() string { return string(f) }

// FlexAvatar decodes an avatar that may be a bare URL string or an object
// with url/preview_url at varying depths.
type FlexAvatar struct {
	URL        string
	PreviewURL string
}

func (a *FlexAvatar) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err == nil {
			a.URL = v
		}
		return nil
	}
	var obj struct {
		URL        string `json:"url"`
		PreviewURL string `json:"preview_url"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		a.URL = obj.URL
		a.PreviewURL = obj.PreviewURL
	}
	return nil
}

// Preferred returns the best available avatar URL.
func (a FlexAvatar) Preferred() string {
	if a.PreviewURL != "" {
		return a.PreviewURL
	}
	return a.URL
}

// RawSender is the nested owner/user object carried by some payload shapes.
type RawSender struct {
	ID     FlexID     `json:"id"`
	AltID  FlexID     `json:"_id"`
	Name   string     `json:"name"`
	Avatar FlexAvatar `json:"avatar"`
}

// RawAttachment is one gallery/media entry. Field names differ per source.
type RawAttachment struct {
	URL        string `json:"url"`
	Src        string `json:"src"`
	PreviewURL string `json:"preview_url"`
	Preview    string `json:"preview"`
	MediaType  string `json:"media_type"`
	Type       string `json:"type"`
	MIME       string `json:"mime"`
}

// RawPayload is the tagged union of the three known raw message shapes.
type RawPayload interface {
	fields() rawFields
}

// RawHistoryItem is a message as returned by the paginated history fetch.
type RawHistoryItem struct {
	ID        FlexID          `json:"id"`
	Message   string          `json:"message"`
	Text      string          `json:"text"`
	CreatedAt string          `json:"created_at"`
	OwnerID   FlexID          `json:"owner_id"`
	Owner     *RawSender      `json:"owner"`
	User      *RawSender      `json:"user"`
	Gallery   []RawAttachment `json:"gallery"`
	Media     []RawAttachment `json:"media"`
	Files     []RawAttachment `json:"files"`
	IsSystem  bool            `json:"is_system"`
	Read      bool            `json:"read"`
}

func (r RawHistoryItem) fields() rawFields {
	return rawFields{
		id:          r.ID,
		body:        firstNonEmpty(r.Message, r.Text),
		createdAt:   r.CreatedAt,
		senderIDs:   []FlexID{r.OwnerID, senderID(r.Owner), senderID(r.User)},
		senders:     []*RawSender{r.Owner, r.User},
		attachments: firstNonEmptyAttachments(r.Gallery, r.Media, r.Files),
		isSystem:    r.IsSystem,
		read:        r.Read,
	}
}

// RawSendResponse is the body of a successful send-message call.
type RawSendResponse struct {
	ID             FlexID          `json:"id"`
	Message        string          `json:"message"`
	Text           string          `json:"text"`
	CreatedAt      string          `json:"created_at"`
	ConversationID FlexID          `json:"chat_group_id"`
	OwnerID        FlexID          `json:"owner_id"`
	Owner          *RawSender      `json:"owner"`
	Gallery        []RawAttachment `json:"gallery"`
	IsSystem       bool            `json:"is_system"`
}

func (r RawSendResponse) fields() rawFields {
	return rawFields{
		id:             r.ID,
		body:           firstNonEmpty(r.Message, r.Text),
		createdAt:      r.CreatedAt,
		conversationID: r.ConversationID,
		senderIDs:      []FlexID{r.OwnerID, senderID(r.Owner)},
		senders:        []*RawSender{r.Owner},
		attachments:    r.Gallery,
		isSystem:       r.IsSystem,
	}
}

// RawPushEnvelope is a message event as delivered over the live channel.
type RawPushEnvelope struct {
	ID             FlexID          `json:"id"`
	Message        string          `json:"message"`
	Text           string          `json:"text"`
	CreatedAt      string          `json:"created_at"`
	ConversationID FlexID          `json:"chat_group_id"`
	GroupID        FlexID          `json:"group_id"`
	OwnerID        FlexID          `json:"owner_id"`
	SenderID       FlexID          `json:"sender_id"`
	Owner          *RawSender      `json:"owner"`
	User           *RawSender      `json:"user"`
	SenderName     string          `json:"sender_name"`
	SenderAvatar   FlexAvatar      `json:"sender_avatar"`
	Gallery        []RawAttachment `json:"gallery"`
	IsSystem       bool            `json:"is_system"`
	Read           bool            `json:"read"`
}

func (r RawPushEnvelope) fields() rawFields {
	return rawFields{
		id:             r.ID,
		body:           firstNonEmpty(r.Message, r.Text),
		createdAt:      r.CreatedAt,
		conversationID: FlexID(firstNonEmpty(r.ConversationID.String(), r.GroupID.String())),
		senderIDs:      []FlexID{r.OwnerID, r.SenderID, senderID(r.Owner), senderID(r.User)},
		senders:        []*RawSender{r.Owner, r.User},
		senderName:     r.SenderName,
		senderAvatar:   r.SenderAvatar,
		attachments:    r.Gallery,
		isSystem:       r.IsSystem,
		read:           r.Read,
	}
}

// rawFields is the shape-independent intermediate every raw payload reduces
// to before the shared normalization below.
type rawFields struct {
	id             FlexID
	body           string
	createdAt      string
	conversationID FlexID
	senderIDs      []FlexID
	senders        []*RawSender
	senderName     string
	senderAvatar   FlexAvatar
	attachments    []RawAttachment
	isSystem       bool
	read           bool
}

// Normalize converts any raw payload into the canonical message shape.
// conversationID overrides the payload's own conversation field when the
// caller already knows the owning conversation (history fetches are scoped).
// now supplies the fallback timestamp for payloads without created_at.
func Normalize(raw RawPayload, conversationID string, now time.Time) domain.Message {
	f := raw.fields()

	convID := conversationID
	if convID == "" {
		convID = f.conversationID.String()
	}

	senderID := ""
	for _, id := range f.senderIDs {
		if id != "" {
			senderID = id.String()
			break
		}
	}

	senderName := ""
	senderAvatar := f.senderAvatar.Preferred()
	for _, s := range f.senders {
		if s == nil {
			continue
		}
		if senderName == "" && s.Name != "" {
			senderName = s.Name
		}
		if senderAvatar == "" {
			senderAvatar = s.Avatar.Preferred()
		}
	}
	if senderName == "" {
		senderName = f.senderName
	}
	if senderName == "" {
		senderName = "User"
	}

	state := domain.DeliveryUnread
	if f.read {
		state = domain.DeliveryRead
	}

	return domain.Message{
		ID:             f.id.String(),
		ConversationID: convID,
		SenderID:       senderID,
		SenderName:     senderName,
		SenderAvatar:   senderAvatar,
		Body:           f.body,
		Attachments:    normalizeAttachments(f.attachments),
		CreatedAt:      parseTimestamp(f.createdAt, now),
		DeliveryState:  state,
		IsSystem:       f.isSystem,
	}
}

func normalizeAttachments(raw []RawAttachment) []domain.Attachment {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.Attachment, 0, len(raw))
	for _, a := range raw {
		url := firstNonEmpty(a.URL, a.Src, a.PreviewURL)
		if url == "" {
			continue // no usable URL, drop the entry
		}
		out = append(out, domain.Attachment{
			URL:        url,
			PreviewURL: firstNonEmpty(a.PreviewURL, a.Preview),
			Kind:       classifyAttachment(a),
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// classifyAttachment prefers the explicit media-type field and falls back to
// MIME-prefix sniffing: video/* is video, everything else is an image.
func classifyAttachment(a RawAttachment) domain.AttachmentKind {
	t := firstNonEmpty(a.MediaType, a.Type)
	switch t {
	case "video":
		return domain.AttachmentVideo
	case "photo", "image":
		return domain.AttachmentImage
	}
	if strings.HasPrefix(a.MIME, "video/") {
		return domain.AttachmentVideo
	}
	return domain.AttachmentImage
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp parses a wire timestamp, defaulting to now (never the zero
// time) when absent or unparseable.
func parseTimestamp(s string, now time.Time) time.Time {
	if s == "" {
		return now
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return now
}

func senderID(s *RawSender) FlexID {
	if s == nil {
		return ""
	}
	if s.ID != "" {
		return s.ID
	}
	return s.AltID
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyAttachments(lists ...[]RawAttachment) []RawAttachment {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
