package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/sweep"
)

// SweepHandler triggers an out-of-schedule maintenance run.
type SweepHandler struct {
	sweeper *sweep.Sweeper
}

// NewSweepHandler constructs a SweepHandler.
func NewSweepHandler(s *sweep.Sweeper) *SweepHandler {
	return &SweepHandler{sweeper: s}
}

// Run executes one sweep. A run already in progress yields 409.
func (h *SweepHandler) Run(c *gin.Context) {
	res := h.sweeper.RunOnce(c.Request.Context())
	if res.Skipped {
		c.JSON(http.StatusConflict, gin.H{"error": "sweep already running"})
		return
	}
	c.JSON(http.StatusOK, res)
}
