// Package ginutil holds small response and rate-limit helpers shared by the
// gin handlers.
package ginutil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Rate-limit bucket names used by the handlers.
const (
	RLBillingWebhook = "billing_webhook"
	RLRevokeExpired  = "revoke_expired"
)

// RateLimiter is the minimal limiter surface the handlers need. A nil
// limiter allows everything.
type RateLimiter interface {
	AllowNamed(bucket, key string) (bool, error)
}

// AllowNamed checks the caller's IP against the named bucket. Limiter
// errors fail open; the webhook must keep flowing when the limiter backend
// is down.
func AllowNamed(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	ok, err := rl.AllowNamed(bucket, c.ClientIP())
	if err != nil {
		return true
	}
	return ok
}

func BadRequest(c *gin.Context, code string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": code})
}

func ServerError(c *gin.Context, code string) {
	c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": code})
}

func TooMany(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": "rate_limited"})
}
