package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/open-rails/vpnkit/adapters/ginutil"
	"github.com/open-rails/vpnkit/core"
)

// HandleBillingWebhookPOST accepts the payment provider's webhook. The raw
// body and the Stripe-Signature header go straight to the lifecycle engine;
// unauthorized payloads get a 400 without any state change.
func HandleBillingWebhookPOST(svc *core.Service, rl ginutil.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ginutil.AllowNamed(c, rl, ginutil.RLBillingWebhook) {
			ginutil.TooMany(c)
			return
		}
		payload, err := c.GetRawData()
		if err != nil {
			ginutil.BadRequest(c, "unreadable_body")
			return
		}

		outcome, err := svc.HandleBillingEvent(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"ok": true, "outcome": outcome})
		case errors.Is(err, core.ErrUnauthorizedEvent):
			ginutil.BadRequest(c, "invalid_signature")
		case errors.Is(err, core.ErrInvalidIdentity):
			ginutil.BadRequest(c, "invalid_contact_address")
		default:
			// Accepted but partially failed (provisioning or storage);
			// the provider should redeliver.
			var perr *core.ProvisionError
			if errors.As(err, &perr) {
				c.JSON(http.StatusBadGateway, gin.H{"ok": false, "outcome": outcome, "error": "provisioning_failed", "client_id": perr.ClientID})
				return
			}
			ginutil.ServerError(c, "storage_failed")
		}
	}
}
