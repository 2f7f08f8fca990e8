package bot

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/postpulse/postpulse/internal/metrics"
	"github.com/postpulse/postpulse/internal/rating"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body, keyed
// with the shared webhook secret.
const SignatureHeader = "X-Webhook-Signature"

// VoteSink is the engine surface the webhook needs.
type VoteSink interface {
	HandleNewPost(ctx context.Context, post rating.PostID) error
	HandleVote(ctx context.Context, post rating.PostID, userID string, score int) (rating.Aggregate, error)
}

// CallbackAnswerer acknowledges button presses with a transient notice.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Inbound update payloads, Telegram-shaped.

type update struct {
	UpdateID      int64          `json:"update_id"`
	ChannelPost   *message       `json:"channel_post"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

type chat struct {
	ID int64 `json:"id"`
}

type message struct {
	MessageID      int64    `json:"message_id"`
	Chat           chat     `json:"chat"`
	ReplyToMessage *message `json:"reply_to_message"`
}

type user struct {
	ID int64 `json:"id"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    user     `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}

// WebhookHandler verifies and dispatches incoming updates: new channel posts
// get a rating message, button presses become votes.
type WebhookHandler struct {
	secret   []byte
	engine   VoteSink
	answerer CallbackAnswerer
	metrics  *metrics.Metrics
}

func NewWebhookHandler(secret string, engine VoteSink, answerer CallbackAnswerer, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		secret:   []byte(secret),
		engine:   engine,
		answerer: answerer,
		metrics:  m,
	}
}

// HandleUpdate is the echo handler for POST /webhooks/updates.
func (h *WebhookHandler) HandleUpdate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	if !h.verifySignature(body, c.Request().Header.Get(SignatureHeader)) {
		slog.Warn("Webhook signature mismatch")
		return c.NoContent(http.StatusUnauthorized)
	}

	var u update
	if err := json.Unmarshal(body, &u); err != nil {
		slog.Warn("Malformed webhook payload", "error", err)
		return c.NoContent(http.StatusBadRequest)
	}

	ctx := c.Request().Context()
	switch {
	case u.ChannelPost != nil:
		h.handleChannelPost(ctx, u.ChannelPost)
	case u.CallbackQuery != nil:
		h.handleCallback(ctx, u.CallbackQuery)
	}

	// Always 200 once verified: delivery must not be retried for events we
	// chose to ignore.
	return c.NoContent(http.StatusOK)
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

func (h *WebhookHandler) handleChannelPost(ctx context.Context, msg *message) {
	post := rating.PostID{ChannelID: msg.Chat.ID, MessageID: msg.MessageID}
	if err := h.engine.HandleNewPost(ctx, post); err != nil {
		slog.Error("Failed to attach rating message", "post", post.String(), "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.PostsTracked.Inc()
	}
}

func (h *WebhookHandler) handleCallback(ctx context.Context, cb *callbackQuery) {
	// The rating message replies to the rated post; a callback without that
	// link is not ours.
	if cb.Message == nil || cb.Message.ReplyToMessage == nil {
		return
	}

	post := rating.PostID{
		ChannelID: cb.Message.Chat.ID,
		MessageID: cb.Message.ReplyToMessage.MessageID,
	}
	userID := strconv.FormatInt(cb.From.ID, 10)

	score, err := strconv.Atoi(cb.Data)
	if err != nil {
		h.answer(ctx, cb.ID, "Invalid vote.")
		h.countVote(metrics.ResultInvalidScore)
		return
	}

	start := time.Now()
	agg, err := h.engine.HandleVote(ctx, post, userID, score)
	h.observeDuration(time.Since(start))

	switch {
	case errors.Is(err, rating.ErrInvalidScore):
		h.answer(ctx, cb.ID, fmt.Sprintf("Scores must be between %d and %d.", rating.MinScore, rating.MaxScore))
		h.countVote(metrics.ResultInvalidScore)
	case errors.Is(err, rating.ErrUnknownPost):
		h.answer(ctx, cb.ID, "This post is no longer rated.")
		h.countVote(metrics.ResultUnknownPost)
	case err != nil:
		slog.Error("Vote processing failed", "post", post.String(), "error", err)
		h.answer(ctx, cb.ID, "Something went wrong, try again.")
		h.countVote(metrics.ResultError)
	default:
		h.answer(ctx, cb.ID, fmt.Sprintf("You rated this %d/10", score))
		h.countVote(metrics.ResultApplied)
		if h.metrics != nil {
			h.metrics.VoteScores.Observe(float64(score))
		}
		slog.Info("Vote applied", "post", post.String(), "user_id", userID,
			"score", score, "count", agg.Count, "average", agg.Average)
	}
}

func (h *WebhookHandler) answer(ctx context.Context, callbackID, text string) {
	if err := h.answerer.AnswerCallback(ctx, callbackID, text); err != nil {
		slog.Error("Failed to answer callback", "callback_id", callbackID, "error", err)
	}
}

func (h *WebhookHandler) countVote(result string) {
	if h.metrics != nil {
		h.metrics.VotesProcessed.WithLabelValues(result).Inc()
	}
}

func (h *WebhookHandler) observeDuration(d time.Duration) {
	if h.metrics != nil {
		h.metrics.ProcessingDuration.Observe(d.Seconds())
	}
}
