package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/store"
	log "github.com/sirupsen/logrus"
)

// BroadcastHandler sends one message to every known user.
type BroadcastHandler struct {
	store    *store.Store
	notifier notify.Notifier
}

// NewBroadcastHandler constructs a BroadcastHandler.
func NewBroadcastHandler(st *store.Store, notifier notify.Notifier) *BroadcastHandler {
	return &BroadcastHandler{store: st, notifier: notifier}
}

type broadcastRequest struct {
	Text     string             `json:"text"`
	Photo    *notify.Attachment `json:"photo"`
	Document *notify.Attachment `json:"document"`
}

// Send delivers the message and reports per-recipient counts.
func (h *BroadcastHandler) Send(c *gin.Context) {
	var body broadcastRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	msg := notify.BroadcastMessage{Text: strings.TrimSpace(body.Text), Photo: body.Photo, Document: body.Document}
	if msg.Text == "" && msg.Photo == nil && msg.Document == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}
	recipients, errIDs := h.store.UserIDs(c.Request.Context())
	if errIDs != nil {
		writeError(c, "list recipients", errIDs)
		return
	}
	res := notify.Broadcast(c.Request.Context(), h.notifier, recipients, msg)
	log.WithFields(log.Fields{"successful": res.Successful, "failed": res.Failed, "total": res.Total}).Info("broadcast complete")
	c.JSON(http.StatusOK, res)
}
