package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/store"
	"github.com/nexanet/configbot/internal/subscription"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserHandler manages subscriber endpoints.
type UserHandler struct {
	store *store.Store
	now   func() time.Time
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(st *store.Store, now func() time.Time) *UserHandler {
	if now == nil {
		now = time.Now
	}
	return &UserHandler{store: st, now: now}
}

// List returns users newest first. Supports search, status, page and page_size.
func (h *UserHandler) List(c *gin.Context) {
	status := models.PaymentStatus(strings.TrimSpace(c.Query("status")))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	size := queryInt(c, "page_size", defaultPageSize)
	if size == 0 || size > maxPageSize {
		size = defaultPageSize
	}
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}

	rows, total, errList := h.store.ListUsers(c.Request.Context(), store.ListUsersOptions{
		Query:  c.Query("search"),
		Status: status,
		Offset: (page - 1) * size,
		Limit:  size,
	})
	if errList != nil {
		writeError(c, "list users", errList)
		return
	}
	now := h.now()
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, userView(&rows[i], now))
	}
	c.JSON(http.StatusOK, gin.H{"users": out, "total": total, "page": page, "page_size": size})
}

// Expire moves a user's expiry into the past, revoking access at once.
func (h *UserHandler) Expire(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	now := h.now()
	user, errUpdate := h.store.UpdateUser(c.Request.Context(), int64(id), func(u *models.User) error {
		subscription.MarkExpiredImmediately(u, now)
		return nil
	})
	if errUpdate != nil {
		writeError(c, "expire user", errUpdate)
		return
	}
	log.WithFields(log.Fields{"user_id": id, "by": c.GetInt64("adminID")}).Info("user expired manually")
	c.JSON(http.StatusOK, userView(user, now))
}

func userView(u *models.User, now time.Time) gin.H {
	return gin.H{
		"user_id":         u.UserID,
		"username":        u.Username,
		"join_date":       u.JoinDate,
		"expiry_date":     u.ExpiryDate,
		"payment_status":  u.PaymentStatus,
		"total_downloads": u.TotalDownloads,
		"is_admin":        u.IsAdmin,
		"eligible":        subscription.IsEligible(u, now),
		"time_remaining":  subscription.TimeRemaining(u, now),
	}
}

// Downloads returns a user's download audit trail, newest first.
func (h *UserHandler) Downloads(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, errGet := h.store.GetUser(ctx, int64(id)); errGet != nil {
		writeError(c, "get user", errGet)
		return
	}
	limit := queryInt(c, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	rows, errList := h.store.DownloadsByUser(ctx, int64(id), limit)
	if errList != nil {
		writeError(c, "list downloads", errList)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{"download_id": r.DownloadID, "config_id": r.ConfigID, "download_date": r.DownloadDate})
	}
	c.JSON(http.StatusOK, gin.H{"downloads": out})
}
