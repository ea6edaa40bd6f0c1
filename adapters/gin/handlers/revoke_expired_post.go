package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/vpnkit/adapters/ginutil"
	"github.com/open-rails/vpnkit/core"
)

// HandleRevokeExpiredPOST runs an expiration sweep on demand. Clients whose
// external revoke failed are listed in the response and retried on the next
// sweep.
func HandleRevokeExpiredPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLRevokeExpired) {
			ginutil.TooMany(c)
			return
		}
		res, err := svc.RunExpirationSweep(c.Request.Context(), time.Now().UTC())
		if err != nil {
			ginutil.ServerError(c, "sweep_failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "revoked": res.Revoked, "failed": res.Failed})
	}
}
