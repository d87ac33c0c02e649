package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/cache"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services/checkout"
	"storefront/internal/services/notify"
	"storefront/internal/services/orders"
	"storefront/internal/store"
)

const HeaderIdempotencyKey = "Idempotency-Key"

// CreateOrder places an order from the cart. A repeated Idempotency-Key
// returns the order the first request created.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errBadRequest)
		return
	}
	req.UserID = c.GetString(middleware.KeyUserID)
	req.UserEmail = c.GetString(middleware.KeyEmail)
	ctx := c.Request.Context()

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key != "" && h.idempotency != nil {
		key = middleware.ByUserOrIP(c) + ":" + key
		orderID, err := h.idempotency.Reserve(ctx, key)
		switch {
		case errors.Is(err, cache.ErrInProgress):
			h.fail(c, err)
			return
		case err != nil:
			h.log.WarnContext(ctx, "idempotency store unavailable", "err", err)
			key = ""
		case orderID != "":
			o, err := h.orders.Get(ctx, orderID)
			if err != nil {
				h.fail(c, err)
				return
			}
			c.Header("Idempotent-Replayed", "true")
			c.JSON(http.StatusOK, o)
			return
		}
	} else {
		key = ""
	}

	// The key must settle even when the client has gone away.
	settle := context.WithoutCancel(ctx)
	order, err := h.checkout.Place(ctx, req)
	if err != nil {
		if key != "" {
			if rerr := h.idempotency.Release(settle, key); rerr != nil {
				h.log.WarnContext(ctx, "release idempotency key failed", "err", rerr)
			}
		}
		h.fail(c, err)
		return
	}
	if key != "" {
		if err := h.idempotency.Complete(settle, key, order.ID.Hex()); err != nil {
			h.log.WarnContext(ctx, "complete idempotency key failed", "order_number", order.OrderNumber, "err", err)
		}
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) MyOrders(c *gin.Context) {
	limit, skip := page(c)
	list, err := h.orders.List(c.Request.Context(), store.OrderFilter{
		UserID: c.GetString(middleware.KeyUserID),
		Limit:  limit,
		Skip:   skip,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// canView reports whether the caller may see o: its owner, an admin, or a
// guest quoting the checkout e-mail.
func canView(c *gin.Context, o *models.Order) bool {
	if middleware.IsAdmin(c) {
		return true
	}
	if uid := c.GetString(middleware.KeyUserID); uid != "" && uid == o.UserID {
		return true
	}
	email := strings.TrimSpace(c.Query("email"))
	return o.GuestEmail != "" && email != "" && strings.EqualFold(email, o.GuestEmail)
}

// viewableOrder loads the :id order, answering 404 for callers who may not
// see it.
func (h *Handler) viewableOrder(c *gin.Context) (*models.Order, bool) {
	o, err := h.orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if !canView(c, o) {
		h.fail(c, orders.ErrOrderNotFound)
		return nil, false
	}
	return o, true
}

func (h *Handler) GetOrder(c *gin.Context) {
	o, ok := h.viewableOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	o, ok := h.viewableOrder(c)
	if !ok {
		return
	}
	intent, err := h.orders.CreatePaymentIntent(c.Request.Context(), o.ID.Hex())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

const receiptLinkTTL = 15 * time.Minute

// GetReceipt links to the receipt archived when the order was placed.
func (h *Handler) GetReceipt(c *gin.Context) {
	o, ok := h.viewableOrder(c)
	if !ok {
		return
	}
	if h.receipts == nil {
		h.fail(c, errNoReceipts)
		return
	}
	link, err := h.receipts.SignedURL(c.Request.Context(), notify.ReceiptKey(o.OrderNumber), receiptLinkTTL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link, "expiresIn": int(receiptLinkTTL.Seconds())})
}
