package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"storefront/internal/audit"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/logger"
	"storefront/internal/routes"
	"storefront/internal/services/catalog"
	"storefront/internal/services/checkout"
	"storefront/internal/services/notify"
	"storefront/internal/services/orders"
	"storefront/internal/services/payments"
	"storefront/internal/services/pricing"
	"storefront/internal/services/search"
	"storefront/internal/services/settings"
	"storefront/internal/shutdown"
	"storefront/internal/store"
	"storefront/internal/store/memory"
	mongostore "storefront/internal/store/mongo"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: "storefront",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// stores groups the persistence the services are built on.
type stores struct {
	products store.ProductStore
	orders   store.OrderStore
	coupons  store.CouponStore
	settings store.SettingsStore
	ping     handlers.HealthCheck
	close    func(context.Context) error
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (stores, error) {
	switch cfg.DatabaseDriver {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")
		db := memory.New()
		return stores{
			products: db.Products(),
			orders:   db.Orders(),
			coupons:  db.Coupons(),
			settings: db.Settings(),
			close:    func(context.Context) error { return nil },
		}, nil
	case "mongo":
		db, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return stores{}, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			_ = db.Close(ctx)
			return stores{}, err
		}
		log.Info("connected to mongo", "database", cfg.MongoDatabase)
		return stores{
			products: db.Products(),
			orders:   db.Orders(),
			coupons:  db.Coupons(),
			settings: db.Settings(),
			ping:     db.Ping,
			close:    db.Close,
		}, nil
	}
	return stores{}, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver)
}

func run(cfg config.Config, log *slog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	// Money is served as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := shutdown.WithSignals(context.Background())
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.Warn("close store", "err", err)
		}
	}()

	checks := map[string]handlers.HealthCheck{}
	if st.ping != nil {
		checks["mongo"] = st.ping
	}

	// Redis backs rate limits, idempotency keys and live order events.
	var (
		checkoutLimiter cache.Limiter     = cache.NewMemoryLimiter(cfg.CheckoutRateLimit, cfg.CheckoutRateWindow)
		couponLimiter   cache.Limiter     = cache.NewMemoryLimiter(cfg.CouponRateLimit, cfg.CouponRateWindow)
		idem            cache.Idempotency = cache.NewMemoryIdempotency(cfg.IdempotencyTTL)
		bus             events.Bus        = events.NewLocal()
	)
	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable, using in-process fallbacks", "err", err)
	}
	if rdb != nil {
		defer rdb.Close()
		checkoutLimiter = cache.NewRedisLimiter(rdb, "checkout", cfg.CheckoutRateLimit, cfg.CheckoutRateWindow)
		couponLimiter = cache.NewRedisLimiter(rdb, "coupon", cfg.CouponRateLimit, cfg.CouponRateWindow)
		idem = cache.NewRedisIdempotency(rdb, cfg.IdempotencyTTL)
		bus = events.NewRedis(rdb)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var recorder audit.Recorder = audit.NewMemory()
	session, err := database.ConnectScylla(cfg)
	if err != nil {
		log.Warn("scylla unavailable, audit log kept in memory", "err", err)
	}
	if session != nil {
		defer session.Close()
		recorder = audit.NewScylla(session)
		checks["scylla"] = scyllaCheck(session)
	}

	var index search.Indexer = search.Nop{}
	es, err := database.ConnectElastic(cfg)
	if err != nil {
		log.Warn("elasticsearch unavailable, order search limited to order numbers", "err", err)
	}
	if es != nil {
		index = search.NewElastic(es)
	}

	settingsSvc := settings.NewService(st.settings, recorder)

	var (
		receipts notify.ReceiptStore
		linker   handlers.ReceiptLinker
	)
	mc, err := database.ConnectMinIO(ctx, cfg)
	if err != nil {
		log.Warn("minio unavailable, receipts are not archived", "err", err)
	}
	if mc != nil {
		archive := notify.NewMinIOReceipts(mc, cfg.MinioBucket)
		receipts, linker = archive, archive
	}
	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		log.Info("SMTP_HOST not set, customer e-mails disabled")
	}
	notifier := notify.New(mailer, receipts, settingsSvc, log)
	defer notifier.Wait()

	var gateway payments.Gateway = payments.Disabled{}
	if cfg.StripeSecretKey != "" {
		allowUnsigned := !cfg.IsProduction() && cfg.StripeWebhookSecret == ""
		if allowUnsigned {
			log.Warn("STRIPE_WEBHOOK_SECRET not set, accepting unsigned webhooks")
		}
		gateway = payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret, allowUnsigned)
		log.Info("stripe payments enabled")
	} else {
		log.Info("STRIPE_SECRET_KEY not set, card payments disabled")
	}

	resolver := pricing.NewResolver(st.coupons)
	checkoutSvc := checkout.New(checkout.Deps{
		Products: st.products,
		Orders:   st.orders,
		Pricing:  resolver,
		Settings: settingsSvc,
		Audit:    recorder,
		Notifier: notifier,
		Search:   index,
		Events:   bus,
		Logger:   log,
	})
	orderSvc := orders.New(orders.Deps{
		Orders:   st.orders,
		Payments: gateway,
		Settings: settingsSvc,
		Audit:    recorder,
		Notifier: notifier,
		Search:   index,
		Events:   bus,
		Logger:   log,
	})

	h := handlers.New(handlers.Deps{
		Checkout:       checkoutSvc,
		Orders:         orderSvc,
		Catalog:        catalog.New(st.products, recorder, log),
		Pricing:        resolver,
		Coupons:        pricing.NewCoupons(st.coupons, recorder),
		Settings:       settingsSvc,
		Payments:       gateway,
		Events:         bus,
		Audit:          recorder,
		Idempotency:    idem,
		Receipts:       linker,
		HealthChecks:   checks,
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         log,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	routes.RegisterRoutes(r, h, routes.Options{
		JWTSecret:       []byte(cfg.JWTSecret),
		AllowedOrigins:  cfg.CORSOrigins,
		CheckoutLimiter: checkoutLimiter,
		CouponLimiter:   couponLimiter,
		Logger:          log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("storefront listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func scyllaCheck(session *gocql.Session) handlers.HealthCheck {
	return func(ctx context.Context) error {
		return session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
	}
}
