// Package handlers is the REST boundary of the storefront. Handlers bind
// and validate payloads, call one service and map its errors to statuses.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/audit"
	"storefront/internal/cache"
	"storefront/internal/events"
	"storefront/internal/services/catalog"
	"storefront/internal/services/checkout"
	"storefront/internal/services/orders"
	"storefront/internal/services/payments"
	"storefront/internal/services/pricing"
	"storefront/internal/services/settings"
	"storefront/internal/store"
)

// ReceiptLinker hands out download links for archived receipts.
type ReceiptLinker interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// HealthCheck reports whether one backend is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Checkout       *checkout.Service
	Orders         *orders.Service
	Catalog        *catalog.Service
	Pricing        *pricing.Resolver
	Coupons        *pricing.Coupons
	Settings       *settings.Service
	Payments       payments.Gateway
	Events         events.Subscriber
	Audit          audit.Recorder
	Idempotency    cache.Idempotency
	Receipts       ReceiptLinker
	HealthChecks   map[string]HealthCheck
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Handler struct {
	checkout       *checkout.Service
	orders         *orders.Service
	catalog        *catalog.Service
	pricing        *pricing.Resolver
	coupons        *pricing.Coupons
	settings       *settings.Service
	payments       payments.Gateway
	events         events.Subscriber
	audit          audit.Recorder
	idempotency    cache.Idempotency
	receipts       ReceiptLinker
	checks         map[string]HealthCheck
	allowedOrigins []string
	log            *slog.Logger
}

func New(d Deps) *Handler {
	h := &Handler{
		checkout:       d.Checkout,
		orders:         d.Orders,
		catalog:        d.Catalog,
		pricing:        d.Pricing,
		coupons:        d.Coupons,
		settings:       d.Settings,
		payments:       d.Payments,
		events:         d.Events,
		audit:          d.Audit,
		idempotency:    d.Idempotency,
		receipts:       d.Receipts,
		checks:         d.HealthChecks,
		allowedOrigins: d.AllowedOrigins,
		log:            d.Logger,
	}
	if h.payments == nil {
		h.payments = payments.Disabled{}
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

var (
	errBadRequest = errors.New("Invalid request body")
	errNoReceipts = errors.New("receipts are not archived")
)

// status maps service errors to an HTTP status and the message shown to the
// caller.
func status(err error) (int, string) {
	var (
		notFound *checkout.ProductNotFoundError
		noStock  *store.InsufficientStockError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest, checkout.ErrEmptyCart.Error()
	case errors.Is(err, pricing.ErrInvalidCoupon):
		return http.StatusBadRequest, "Invalid coupon code"
	case errors.Is(err, errBadRequest),
		errors.Is(err, checkout.ErrInvalidRequest),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrEmptyNote),
		errors.Is(err, pricing.ErrInvalidInput),
		errors.Is(err, settings.ErrInvalidSettings),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, payments.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &notFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, pricing.ErrCouponNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &noStock):
		return http.StatusConflict, "Insufficient stock"
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, orders.ErrNotPayable),
		errors.Is(err, pricing.ErrCouponExists),
		errors.Is(err, catalog.ErrSlugTaken),
		errors.Is(err, cache.ErrInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, payments.ErrUnavailable), errors.Is(err, errNoReceipts):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (h *Handler) fail(c *gin.Context, err error) {
	code, msg := status(err)
	if code >= http.StatusInternalServerError {
		h.log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "err", err)
	}
	_ = c.Error(err)
	body := gin.H{"error": msg}
	var (
		noStock  *store.InsufficientStockError
		notFound *checkout.ProductNotFoundError
	)
	switch {
	case errors.As(err, &noStock):
		body["productId"] = noStock.ProductID.Hex()
	case errors.As(err, &notFound):
		body["productId"] = notFound.Ref
	}
	c.JSON(code, body)
}

// page reads limit and skip query parameters.
func page(c *gin.Context) (limit, skip int64) {
	limit = 50
	if v, err := strconv.ParseInt(c.Query("limit"), 10, 64); err == nil && v > 0 {
		limit = min(v, 200)
	}
	if v, err := strconv.ParseInt(c.Query("skip"), 10, 64); err == nil && v > 0 {
		skip = v
	}
	return limit, skip
}

func (h *Handler) Health(c *gin.Context) {
	result := gin.H{}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			h.log.WarnContext(c.Request.Context(), "health check failed", "backend", name, "err", err)
			result[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		result[name] = "ok"
	}
	c.JSON(code, gin.H{"status": http.StatusText(code), "checks": result})
}
