// Package bot holds both sides of the messaging-platform boundary: the
// outbound HTTP client implementing rating.Messenger and the inbound webhook
// handler feeding updates into the engine.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/postpulse/postpulse/internal/metrics"
	"github.com/postpulse/postpulse/internal/platform/retry"
	"github.com/postpulse/postpulse/internal/rating"
)

// Client talks to a Telegram-style bot HTTP API. Calls are retried with
// exponential backoff and guarded by a circuit breaker so a dead API does
// not pile up blocked vote handlers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	breaker    *gobreaker.CircuitBreaker
	policy     retry.Policy
	metrics    *metrics.Metrics
}

func NewClient(baseURL, token string, m *metrics.Metrics) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "messenger",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
		breaker:    breaker,
		policy: retry.Policy{
			MaxAttempts:      3,
			InitialBackoff:   250 * time.Millisecond,
			RateLimitBackoff: 2 * time.Second,
		},
		metrics: m,
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sentMessage struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// PostMessage sends the rating message as a reply to the channel post.
func (c *Client) PostMessage(ctx context.Context, post rating.PostID, caption string, keyboard [][]rating.Button) (rating.MessageRef, error) {
	payload := map[string]any{
		"chat_id":             post.ChannelID,
		"text":                caption,
		"reply_to_message_id": post.MessageID,
		"reply_markup":        toInlineKeyboard(keyboard),
	}

	var sent sentMessage
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return rating.MessageRef{}, fmt.Errorf("send rating message: %w", err)
	}
	return rating.MessageRef{ChatID: sent.Chat.ID, MessageID: sent.MessageID}, nil
}

// EditMessage replaces the rating message text and keyboard in place.
func (c *Client) EditMessage(ctx context.Context, ref rating.MessageRef, caption string, keyboard [][]rating.Button) error {
	payload := map[string]any{
		"chat_id":      ref.ChatID,
		"message_id":   ref.MessageID,
		"text":         caption,
		"reply_markup": toInlineKeyboard(keyboard),
	}

	if err := c.call(ctx, "editMessageText", payload, nil); err != nil {
		return fmt.Errorf("edit rating message: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press with a transient notice.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{
		"callback_query_id": callbackID,
		"text":              text,
	}

	if err := c.call(ctx, "answerCallbackQuery", payload, nil); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

func toInlineKeyboard(keyboard [][]rating.Button) inlineKeyboard {
	rows := make([][]inlineButton, len(keyboard))
	for i, row := range keyboard {
		buttons := make([]inlineButton, len(row))
		for j, b := range row {
			buttons[j] = inlineButton{Text: b.Text, CallbackData: b.Data}
		}
		rows[i] = buttons
	}
	return inlineKeyboard{InlineKeyboard: rows}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("bot api error %d: %s", e.Code, e.Description)
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	// One idempotency key per logical call, stable across retries.
	idempotencyKey := uuid.NewString()

	raw, err := retry.Do(ctx, c.policy, classifyCallError, func() (json.RawMessage, error) {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.doRequest(ctx, endpoint, body, idempotencyKey)
		})
		if err != nil {
			return nil, err
		}
		return result.(json.RawMessage), nil
	})

	if c.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		c.metrics.MessengerRequests.WithLabelValues(method, outcome).Inc()
	}
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, body []byte, idempotencyKey string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !decoded.OK {
		return nil, &apiError{Code: decoded.ErrorCode, Description: decoded.Description}
	}
	return decoded.Result, nil
}

func classifyCallError(err error) retry.Action {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return retry.After
		case apiErr.Code >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}

	// Network-level failures are worth retrying.
	return retry.Retry
}
