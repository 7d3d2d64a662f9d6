package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/bot"
)

// Dispatcher handles one decoded chat update.
type Dispatcher interface {
	Handle(ctx context.Context, u bot.Update) []bot.Reply
}

// UpdateHandler accepts chat updates relayed by the platform transport.
type UpdateHandler struct {
	dispatcher Dispatcher
}

// NewUpdateHandler constructs an UpdateHandler.
func NewUpdateHandler(d Dispatcher) *UpdateHandler {
	return &UpdateHandler{dispatcher: d}
}

// Handle decodes an update and answers with the replies for its sender.
func (h *UpdateHandler) Handle(c *gin.Context) {
	var body bot.Update
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	replies := h.dispatcher.Handle(c.Request.Context(), body)
	c.JSON(http.StatusOK, gin.H{"chat_id": body.UserID, "replies": replies})
}
