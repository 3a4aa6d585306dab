package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/echoform/echoform-backend/internal/http/middleware"
	"github.com/echoform/echoform-backend/internal/pkg/logger"
	"github.com/echoform/echoform-backend/internal/sse"
)

// StreamHandler serves the per-user job event stream. Every connection
// subscribes to the caller's user channel; job lifecycle events fan out
// through the hub (and across processes via the redis bus).
type StreamHandler struct {
	log *logger.Logger
	hub *sse.Hub
}

func NewStreamHandler(log *logger.Logger, hub *sse.Hub) *StreamHandler {
	return &StreamHandler{
		log: log.With("handler", "StreamHandler"),
		hub: hub,
	}
}

func (h *StreamHandler) Stream(c *gin.Context) {
	userID := middleware.UserID(c)

	client := h.hub.NewClient(userID)
	h.hub.AddChannel(client, userID.String())
	h.log.Info("Event stream opened", "user_id", userID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Info("Event stream closed", "user_id", userID)
}
