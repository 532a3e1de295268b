package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/database"
	"github.com/iliyamo/event-booking/internal/gateway"
	"github.com/iliyamo/event-booking/internal/handler"
	"github.com/iliyamo/event-booking/internal/logger"
	"github.com/iliyamo/event-booking/internal/middleware"
	"github.com/iliyamo/event-booking/internal/queue"
	"github.com/iliyamo/event-booking/internal/realtime"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/router"
	"github.com/iliyamo/event-booking/internal/service"
	"github.com/iliyamo/event-booking/internal/utils"
	"github.com/iliyamo/event-booking/internal/worker"
)

func main() {
	cfg, cfgErr := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if cfgErr != nil {
		log.Fatal("invalid configuration", zap.Error(cfgErr))
	}
	bcfg := config.LoadBookingConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db := openStore(ctx, cfg, log)
	if db != nil {
		defer db.Close()
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable: rate limiting, catalog cache and cross-instance fan-out disabled")
	} else {
		defer rdb.Close()
	}
	hub := realtime.NewHub(store, rdb, log)
	if rdb != nil {
		go func() {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("availability fan-out stopped", zap.Error(err))
			}
		}()
	}

	gw, err := gateway.New(gateway.Config{
		Provider:      bcfg.Gateway,
		MerchantID:    bcfg.MerchantID,
		Secret:        bcfg.GatewaySecret,
		CheckoutURL:   bcfg.GatewayCheckoutURL,
		ReturnURL:     bcfg.PaymentReturnURL,
		Currency:      bcfg.Currency,
		StripeKey:     bcfg.StripeSecretKey,
		WebhookSecret: bcfg.StripeWebhookKey,
	})
	if err != nil {
		log.Fatal("payment gateway", zap.Error(err))
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithHoldWindow(bcfg.HoldWindow),
		service.WithTxAttempts(bcfg.TxAttempts),
		service.WithSweepBatch(bcfg.SweepBatchSize),
		service.WithPublisher(hub),
	}
	if bcfg.NotifyEnabled {
		opts = append(opts, service.WithNotifier(queue.NewPublisher(bcfg.RabbitMQURL, log)))
		consumer := queue.NewConsumer(bcfg.RabbitMQURL, bcfg.NotifyLogDir, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("confirmation consumer stopped", zap.Error(err))
			}
		}()
	}
	holds := service.NewHoldManager(store, opts...)
	rec := service.NewReconciler(store, opts...)
	sweeps := worker.NewExpiryWorker(service.NewSweeper(store, rec, opts...), bcfg.SweepInterval, log)
	if err := sweeps.Start(ctx); err != nil {
		log.Fatal("expiry worker", zap.Error(err))
	}
	defer sweeps.Stop()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	ready := handler.Ready(nil)
	if db != nil {
		ready = handler.Ready(db)
	}
	router.RegisterRoutes(e, ready)
	router.RegisterCatalog(e, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterPayments(e, handler.NewPaymentHandler(rec, gw, log))
	router.RegisterCustomer(e,
		handler.NewBookingHandler(holds, rec, store, gw, log),
		handler.NewAvailabilityHandler(hub, bcfg.LiveOrigins, log),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterAdmin(e, handler.NewAdminHandler(store, sweeps), cfg.JWTSecret)

	if cfg.Env == "dev" {
		issueDevTokens(cfg, log)
	}

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening",
			zap.String("addr", addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver),
			zap.String("gateway", gw.Name()))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
}

// openStore returns the configured store.  The *sql.DB is nil for the
// memory driver.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.Store, *sql.DB) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store; state is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("schema migration", zap.Error(err))
	}
	return repository.NewMySQLStore(db), db
}

// issueDevTokens logs a customer and an admin token so the API can be
// exercised locally without the authentication provider.
func issueDevTokens(cfg config.Config, log *zap.Logger) {
	ttl := time.Duration(cfg.AccessTTLMin) * time.Minute
	for _, who := range []struct{ user, role string }{
		{"dev-customer", middleware.RoleCustomer},
		{"dev-admin", middleware.RoleAdmin},
	} {
		tok, err := utils.NewAccessToken(cfg.JWTSecret, who.user, who.role, ttl)
		if err != nil {
			log.Warn("dev token", zap.Error(err))
			continue
		}
		log.Info("dev token", zap.String("user_id", who.user), zap.String("role", who.role), zap.String("token", tok.Token))
	}
}
