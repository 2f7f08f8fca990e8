package bot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse/internal/rating"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "test-token", nil)
	// Keep retries fast in tests.
	client.policy.InitialBackoff = 0
	client.policy.RateLimitBackoff = 0
	return client
}

func okResponse(result any) []byte {
	body, _ := json.Marshal(map[string]any{"ok": true, "result": result})
	return body
}

func TestPostMessage(t *testing.T) {
	var gotPath atomic.Value
	var gotBody atomic.Value

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotBody.Store(payload)
		_, _ = w.Write(okResponse(map[string]any{
			"message_id": 99,
			"chat":       map[string]any{"id": -100123},
		}))
	})

	post := rating.PostID{ChannelID: -100123, MessageID: 42}
	ref, err := client.PostMessage(context.Background(), post, "caption", rating.Keyboard())
	require.NoError(t, err)
	assert.Equal(t, rating.MessageRef{ChatID: -100123, MessageID: 99}, ref)

	assert.Equal(t, "/bottest-token/sendMessage", gotPath.Load())
	payload := gotBody.Load().(map[string]any)
	assert.Equal(t, "caption", payload["text"])
	assert.EqualValues(t, 42, payload["reply_to_message_id"])
	assert.Contains(t, payload, "reply_markup")
}

func TestEditMessage(t *testing.T) {
	var gotPath atomic.Value

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		_, _ = w.Write(okResponse(true))
	})

	ref := rating.MessageRef{ChatID: -100123, MessageID: 99}
	err := client.EditMessage(context.Background(), ref, "new caption", rating.Keyboard())
	require.NoError(t, err)
	assert.Equal(t, "/bottest-token/editMessageText", gotPath.Load())
}

func TestAnswerCallback(t *testing.T) {
	var gotBody atomic.Value

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotBody.Store(payload)
		_, _ = w.Write(okResponse(true))
	})

	err := client.AnswerCallback(context.Background(), "cb1", "You rated this 7/10")
	require.NoError(t, err)

	payload := gotBody.Load().(map[string]any)
	assert.Equal(t, "cb1", payload["callback_query_id"])
	assert.Equal(t, "You rated this 7/10", payload["text"])
}

func TestCallRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok": false, "error_code": 502, "description": "bad gateway",
			})
			return
		}
		_, _ = w.Write(okResponse(true))
	})

	err := client.AnswerCallback(context.Background(), "cb1", "hi")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestCallStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 400, "description": "chat not found",
		})
	})

	err := client.AnswerCallback(context.Background(), "cb1", "hi")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load(), "permanent errors must not be retried")

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Code)
}

func TestCallSendsIdempotencyKey(t *testing.T) {
	var gotKey atomic.Value

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-Idempotency-Key"))
		_, _ = w.Write(okResponse(true))
	})

	require.NoError(t, client.AnswerCallback(context.Background(), "cb1", "hi"))
	assert.NotEmpty(t, gotKey.Load())
}
