package routes

import (
	"log/slog"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"storefront/internal/cache"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
)

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	// CheckoutLimiter and CouponLimiter may be nil to disable rate limiting.
	CheckoutLimiter cache.Limiter
	CouponLimiter   cache.Limiter
	Logger          *slog.Logger
}

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, opts Options) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r.Use(
		middleware.RequestID(),
		middleware.RequestLogger(opts.Logger),
		cors.New(corsConfig(opts.AllowedOrigins)),
	)

	r.GET("/healthz", h.Health)

	api := r.Group("/api")

	// Webhooks carry their own signature and no user token.
	api.POST("/webhooks/stripe", h.PaymentWebhook)

	public := api.Group("", middleware.OptionalAuth(opts.JWTSecret))

	// Catalogue
	public.GET("/products", h.ListProducts)
	public.GET("/products/:id", h.GetProduct)
	public.GET("/products/slug/:slug", h.GetProductBySlug)

	// Coupons
	public.POST("/coupons/apply", limit(opts.CouponLimiter, middleware.ByClientIP), h.ApplyCoupon)

	// Orders
	public.POST("/orders", limit(opts.CheckoutLimiter, middleware.ByUserOrIP), h.CreateOrder)
	public.GET("/orders/mine", middleware.AuthRequired(opts.JWTSecret), h.MyOrders)
	public.GET("/orders/:id", h.GetOrder)
	public.GET("/orders/:id/ws", h.WatchOrder)
	public.POST("/orders/:id/payment-intent", h.CreatePaymentIntent)
	public.GET("/orders/:id/receipt", h.GetReceipt)

	admin := api.Group("/admin", middleware.AuthRequired(opts.JWTSecret), middleware.RequireAdmin())
	{
		admin.GET("/orders", h.AdminListOrders)
		admin.GET("/orders/search", h.AdminSearchOrders)
		admin.GET("/orders/:id", h.AdminGetOrder)
		admin.PUT("/orders/:id/status", h.SetOrderStatus)
		admin.POST("/orders/:id/notes", h.AddOrderNote)
		admin.POST("/orders/:id/refund", h.RefundOrder)

		admin.POST("/products", h.CreateProduct)
		admin.PUT("/products/:id", h.UpdateProduct)
		admin.PUT("/products/:id/stock", h.AdjustStock)

		admin.GET("/coupons", h.ListCoupons)
		admin.POST("/coupons", h.CreateCoupon)
		admin.PUT("/coupons/:id", h.UpdateCoupon)
		admin.DELETE("/coupons/:id", h.DeleteCoupon)

		admin.GET("/settings", h.GetSettings)
		admin.PUT("/settings", h.UpdateSettings)

		admin.GET("/audit", h.ListAudit)
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", handlers.HeaderIdempotencyKey, middleware.HeaderRequestID},
		ExposeHeaders: []string{middleware.HeaderRequestID, "Retry-After", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func limit(l cache.Limiter, key func(*gin.Context) string) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(l, key)
}
