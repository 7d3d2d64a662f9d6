package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/apperr"
	"github.com/nexanet/configbot/internal/config"
	"github.com/nexanet/configbot/internal/configs"
	handlers "github.com/nexanet/configbot/internal/http/api/admin/handlers"
	"github.com/nexanet/configbot/internal/notify"
	"github.com/nexanet/configbot/internal/payments"
	"github.com/nexanet/configbot/internal/security"
	"github.com/nexanet/configbot/internal/store"
	"github.com/nexanet/configbot/internal/sweep"
)

// Deps carries the services the admin API drives.
type Deps struct {
	Store      *store.Store
	Configs    *configs.Service
	Payments   *payments.Service
	Sweeper    *sweep.Sweeper
	Notifier   notify.Notifier
	OperatorID int64
	JWT        config.JWTConfig
	Now        func() time.Time
}

// RegisterAdminRoutes registers health, metrics and the authenticated admin routes.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.Store == nil {
		return
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	healthHandler := handlers.NewHealthHandler(deps.Store)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", healthHandler.Metrics)

	authed := r.Group("/v0/admin")
	authed.Use(adminAuthMiddleware(deps.Store, deps.JWT, deps.OperatorID))

	statsHandler := handlers.NewStatsHandler(deps.Store, deps.Now)
	authed.GET("/stats", statsHandler.Get)

	userHandler := handlers.NewUserHandler(deps.Store, deps.Now)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id/downloads", userHandler.Downloads)
	authed.POST("/users/:id/expire", userHandler.Expire)

	if deps.Payments != nil {
		paymentHandler := handlers.NewPaymentHandler(deps.Payments)
		authed.GET("/payments/pending", paymentHandler.Pending)
		authed.GET("/payments/:id", paymentHandler.Get)
		authed.GET("/payments/:id/proof", paymentHandler.Proof)
		authed.POST("/payments/:id/approve", paymentHandler.Approve)
		authed.POST("/payments/:id/reject", paymentHandler.Reject)
	}

	if deps.Configs != nil {
		configHandler := handlers.NewConfigHandler(deps.Configs, deps.Now)
		authed.GET("/configs", configHandler.List)
		authed.POST("/configs", configHandler.Upload)
		authed.DELETE("/configs/:id", configHandler.Delete)
	}

	if deps.Notifier != nil {
		broadcastHandler := handlers.NewBroadcastHandler(deps.Store, deps.Notifier)
		authed.POST("/broadcast", broadcastHandler.Send)
	}

	if deps.Sweeper != nil {
		sweepHandler := handlers.NewSweepHandler(deps.Sweeper)
		authed.POST("/sweep", sweepHandler.Run)
	}
}

// adminAuthMiddleware validates admin JWTs. The subject must be the operator or a
// user flagged as admin.
func adminAuthMiddleware(st *store.Store, jwtCfg config.JWTConfig, operatorID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if operatorID == 0 || claims.OperatorID != operatorID {
			user, errFind := st.GetUser(c.Request.Context(), claims.OperatorID)
			if errFind != nil {
				if errors.Is(errFind, apperr.ErrNotFound) {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
					return
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "load admin failed"})
				return
			}
			if !user.IsAdmin {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not an admin"})
				return
			}
		}

		c.Set("adminID", claims.OperatorID)
		c.Next()
	}
}
