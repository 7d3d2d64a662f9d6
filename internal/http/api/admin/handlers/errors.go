package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nexanet/configbot/internal/apperr"
	log "github.com/sirupsen/logrus"
)

var taxonomy = []error{
	apperr.ErrUnauthorized,
	apperr.ErrNotFound,
	apperr.ErrInvalidInput,
	apperr.ErrAlreadyProcessed,
	apperr.ErrMembershipRequired,
	apperr.ErrPaymentRequired,
	apperr.ErrSubscriptionExpired,
	apperr.ErrFileUnavailable,
	apperr.ErrDecryptionFailed,
	apperr.ErrEncryptionFailed,
}

// writeError maps err onto a status and a short message. Internal failures are
// logged and reported as "<op> failed".
func writeError(c *gin.Context, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.FullPath()).Error("admin: " + op + " failed")
		c.JSON(status, gin.H{"error": op + " failed"})
		return
	}
	msg := err.Error()
	for _, target := range taxonomy {
		if errors.Is(err, target) {
			msg = target.Error()
			break
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

func parseUintParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryInt reads a non-negative integer query value, falling back to def.
func queryInt(c *gin.Context, name string, def int) int {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def
	}
	v, errParse := strconv.Atoi(raw)
	if errParse != nil || v < 0 {
		return def
	}
	return v
}
