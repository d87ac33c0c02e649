package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/services/orders"
	"storefront/internal/services/payments"
)

const maxWebhookBody = 64 << 10

// PaymentWebhook applies payment outcomes reported by the provider. Events
// for unknown orders are acknowledged so the provider stops retrying them.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	ctx := c.Request.Context()
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.fail(c, errBadRequest)
		return
	}

	ev, err := h.payments.ParseEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.WarnContext(ctx, "webhook rejected", "err", err)
		if errors.Is(err, payments.ErrUnavailable) {
			h.fail(c, err)
			return
		}
		h.fail(c, payments.ErrInvalidSignature)
		return
	}

	switch ev.Type {
	case payments.EventPaymentSucceeded:
		_, err = h.orders.MarkPaid(ctx, ev.OrderID, ev.PaymentIntentID)
	case payments.EventPaymentFailed:
		_, err = h.orders.MarkPaymentFailed(ctx, ev.OrderID, ev.PaymentIntentID, ev.FailureMessage)
	default:
		h.log.DebugContext(ctx, "webhook event ignored", "event_id", ev.ID, "type", ev.Type)
	}

	if errors.Is(err, orders.ErrOrderNotFound) {
		h.log.WarnContext(ctx, "webhook for unknown order", "event_id", ev.ID, "order_id", ev.OrderID)
		err = nil
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
