package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/store"
)

// StatsHandler serves the dashboard counters.
type StatsHandler struct {
	store *store.Store
	now   func() time.Time
}

// NewStatsHandler constructs a StatsHandler.
func NewStatsHandler(st *store.Store, now func() time.Time) *StatsHandler {
	if now == nil {
		now = time.Now
	}
	return &StatsHandler{store: st, now: now}
}

// Get returns the aggregate counters.
func (h *StatsHandler) Get(c *gin.Context) {
	stats, errStats := h.store.Stats(c.Request.Context(), h.now())
	if errStats != nil {
		writeError(c, "load stats", errStats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
