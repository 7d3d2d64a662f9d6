package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/payments"
)

// PaymentHandler exposes the review queue and decisions.
type PaymentHandler struct {
	payments *payments.Service
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(svc *payments.Service) *PaymentHandler {
	return &PaymentHandler{payments: svc}
}

type decisionRequest struct {
	Note string `json:"note"`
}

// Pending lists pending payments oldest first.
func (h *PaymentHandler) Pending(c *gin.Context) {
	rows, errList := h.payments.Pending(c.Request.Context())
	if errList != nil {
		writeError(c, "list pending payments", errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		view := paymentView(&rows[i].Payment)
		view["username"] = rows[i].Username
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"payments": out})
}

// Get returns one payment with its review details.
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	review, errReview := h.payments.Review(c.Request.Context(), id)
	if errReview != nil {
		writeError(c, "get payment", errReview)
		return
	}
	view := paymentView(review.Payment)
	view["username"] = review.Username
	view["proof_available"] = review.ProofAvailable
	c.JSON(http.StatusOK, view)
}

// Proof streams the stored payment proof.
func (h *PaymentHandler) Proof(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	review, errReview := h.payments.Review(c.Request.Context(), id)
	if errReview != nil {
		writeError(c, "get payment", errReview)
		return
	}
	att, errProof := h.payments.ProofAttachment(c.Request.Context(), review.Payment)
	if errProof != nil {
		writeError(c, "load proof", errProof)
		return
	}
	contentType := att.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(att.Data)
	}
	c.Data(http.StatusOK, contentType, att.Data)
}

// Approve approves a pending payment.
func (h *PaymentHandler) Approve(c *gin.Context) {
	h.decide(c, "approve payment", h.payments.Approve)
}

// Reject rejects a pending payment.
func (h *PaymentHandler) Reject(c *gin.Context) {
	h.decide(c, "reject payment", h.payments.Reject)
}

func (h *PaymentHandler) decide(c *gin.Context, op string, fn func(ctx context.Context, id uint64, note string) (*payments.Decision, error)) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	var body decisionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	dec, errDecide := fn(c.Request.Context(), id, body.Note)
	if errDecide != nil {
		writeError(c, op, errDecide)
		return
	}
	view := paymentView(dec.Payment)
	if dec.User != nil {
		view["username"] = dec.User.DisplayName()
		view["user_expiry_date"] = dec.User.ExpiryDate
	}
	c.JSON(http.StatusOK, view)
}

func paymentView(p *models.Payment) gin.H {
	return gin.H{
		"payment_id":     p.PaymentID,
		"user_id":        p.UserID,
		"amount":         p.Amount,
		"payment_date":   p.PaymentDate,
		"status":         p.Status,
		"admin_note":     p.AdminNote,
		"processed_date": p.ProcessedDate,
		"proof_meta":     p.ProofMeta,
	}
}
