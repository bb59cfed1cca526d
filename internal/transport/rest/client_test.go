package rest_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petchat/internal/domain"
	"petchat/internal/transport/rest"
)

func TestFetchHistoryPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conversations/c1/messages", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "50", r.URL.Query().Get("page_size"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 2, "message": "newer"}, {"id": 1, "message": "older"}]`))
	}))
	defer ts.Close()

	c := rest.New(ts.URL, "tok")
	items, err := c.FetchHistoryPage(context.Background(), "c1", 2, 50)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "2", items[0].ID.String())
	assert.Equal(t, "newer", items[0].Message)
}

func TestSendMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/c1/messages", r.URL.Path)

		var body struct {
			Message string `json:"message"`
			Gallery []struct {
				URL       string `json:"url"`
				MediaType string `json:"media_type"`
			} `json:"gallery"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Message)
		require.Len(t, body.Gallery, 1)
		assert.Equal(t, "image", body.Gallery[0].MediaType)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": "9", "message": "hello", "chat_group_id": "c1"}`))
	}))
	defer ts.Close()

	c := rest.New(ts.URL, "tok")
	resp, err := c.SendMessage(context.Background(), "c1", "hello", []domain.Attachment{
		{URL: "https://cdn.example/p.jpg", Kind: domain.AttachmentImage},
	})
	require.NoError(t, err)
	assert.Equal(t, "9", resp.ID.String())
	assert.Equal(t, "c1", resp.ConversationID.String())
}

func TestServerErrorSurfaced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "db exploded", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := rest.New(ts.URL, "tok")
	_, err := c.FetchHistoryPage(context.Background(), "c1", 1, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "db exploded")
}

func TestNotFoundMapsToSentinel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversation gone", http.StatusNotFound)
	}))
	defer ts.Close()

	c := rest.New(ts.URL, "tok")
	_, err := c.FetchHistoryPage(context.Background(), "c1", 1, 50)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarkRead(t *testing.T) {
	var called bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/conversations/c1/read", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := rest.New(ts.URL, "tok")
	require.NoError(t, c.MarkRead(context.Background(), "c1"))
	assert.True(t, called)
}
