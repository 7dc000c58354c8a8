package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/doorman/doorman/pkg/eventbus"
)

type EventSource interface {
	Subscribe(ctx context.Context, channels ...string) <-chan *eventbus.Event
}

// StreamHandler relays decision and session events as server-sent events.
type StreamHandler struct {
	events EventSource
	logger *zap.Logger
}

func NewStreamHandler(events EventSource, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{events: events, logger: logger}
}

func (h *StreamHandler) Events(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream is disabled"})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	events := h.events.Subscribe(ctx, eventbus.ChannelDecision, eventbus.ChannelSession)

	c.Status(http.StatusOK)
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("event stream closed", zap.String("request_id", c.GetString("request_id")))
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(event.Type, event)
			c.Writer.Flush()
		}
	}
}
