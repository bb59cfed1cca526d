// Package rest implements the HTTP API collaborator: paginated history
// fetch, message send, the bulk conversation list, and the read marker.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"petchat/internal/chat"
	"petchat/internal/domain"
)

// Client talks JSON to the chat backend. It satisfies chat.HistoryAPI.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the given API base URL, authenticating every
// request with the bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchHistoryPage returns one page of a conversation's history, newest-first
// as the backend delivers it.
func (c *Client) FetchHistoryPage(ctx context.Context, conversationID string, page, pageSize int) ([]chat.RawHistoryItem, error) {
	endpoint := fmt.Sprintf("%s/conversations/%s/messages", c.baseURL, url.PathEscape(conversationID))
	var items []chat.RawHistoryItem
	if err := c.get(ctx, endpoint, page, pageSize, &items); err != nil {
		return nil, fmt.Errorf("fetch history page: %w", err)
	}
	return items, nil
}

type sendRequest struct {
	Message string           `json:"message"`
	Gallery []sendAttachment `json:"gallery,omitempty"`
}

type sendAttachment struct {
	URL        string `json:"url"`
	PreviewURL string `json:"preview_url,omitempty"`
	MediaType  string `json:"media_type"`
}

// SendMessage posts a message and returns the server's copy.
func (c *Client) SendMessage(ctx context.Context, conversationID, body string, attachments []domain.Attachment) (chat.RawSendResponse, error) {
	req := sendRequest{Message: body}
	for _, a := range attachments {
		req.Gallery = append(req.Gallery, sendAttachment{
			URL:        a.URL,
			PreviewURL: a.PreviewURL,
			MediaType:  string(a.Kind),
		})
	}

	endpoint := fmt.Sprintf("%s/conversations/%s/messages", c.baseURL, url.PathEscape(conversationID))
	var resp chat.RawSendResponse
	if err := c.post(ctx, endpoint, req, &resp); err != nil {
		return chat.RawSendResponse{}, fmt.Errorf("send message: %w", err)
	}
	return resp, nil
}

// FetchConversationList returns one page of the user's conversations.
func (c *Client) FetchConversationList(ctx context.Context, page, pageSize int) ([]chat.RawConversation, error) {
	endpoint := c.baseURL + "/conversations"
	var convs []chat.RawConversation
	if err := c.get(ctx, endpoint, page, pageSize, &convs); err != nil {
		return nil, fmt.Errorf("fetch conversation list: %w", err)
	}
	return convs, nil
}

// MarkRead marks every message in the conversation as read. Callers treat it
// as fire-and-forget; a failure never rolls back local read state.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	endpoint := fmt.Sprintf("%s/conversations/%s/read", c.baseURL, url.PathEscape(conversationID))
	if err := c.post(ctx, endpoint, nil, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string, page, pageSize int, out any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, string(payload))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(payload))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
