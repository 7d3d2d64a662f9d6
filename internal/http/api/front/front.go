// Package front exposes the endpoint the chat platform transport relays updates to.
package front

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/http/api/front/handlers"
)

// RegisterFrontRoutes mounts POST /v0/bot/updates, authenticated with the bot token.
func RegisterFrontRoutes(r *gin.Engine, dispatcher handlers.Dispatcher, botToken string) {
	if r == nil || dispatcher == nil {
		return
	}
	group := r.Group("/v0/bot")
	group.Use(botTokenMiddleware(botToken))

	updateHandler := handlers.NewUpdateHandler(dispatcher)
	group.POST("/updates", updateHandler.Handle)
}

// botTokenMiddleware requires "Authorization: Bearer <bot token>".
func botTokenMiddleware(botToken string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(botToken))
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
