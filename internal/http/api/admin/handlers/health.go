package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and metrics endpoints.
type HealthHandler struct {
	store       Pinger
	promHandler http.Handler
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store, promHandler: promhttp.Handler()}
}

// Healthz reports ok when the database responds.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "fail", "error": "store not initialized"})
		return
	}
	if errPing := h.store.Ping(ctx); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "fail", "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// Metrics serves the Prometheus registry.
func (h *HealthHandler) Metrics(c *gin.Context) {
	h.promHandler.ServeHTTP(c.Writer, c.Request)
}
