package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/postpulse/postpulse/internal/rating"
)

type ratingResponse struct {
	ChannelID int64    `json:"channel_id"`
	MessageID int64    `json:"message_id"`
	Count     int      `json:"count"`
	Average   *float64 `json:"average,omitempty"`
}

func (s *Server) handleGetRating(c echo.Context) error {
	channelID, err := strconv.ParseInt(c.Param("channel"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
	}
	messageID, err := strconv.ParseInt(c.Param("message"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message id"})
	}

	post := rating.PostID{ChannelID: channelID, MessageID: messageID}
	agg, err := s.engine.Aggregate(c.Request().Context(), post)
	if errors.Is(err, rating.ErrUnknownPost) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "post is not tracked"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read aggregate"})
	}

	resp := ratingResponse{
		ChannelID: post.ChannelID,
		MessageID: post.MessageID,
		Count:     agg.Count,
	}
	if agg.Count > 0 {
		avg := agg.Average
		resp.Average = &avg
	}
	return c.JSON(http.StatusOK, resp)
}
