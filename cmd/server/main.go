package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rental/internal/app"
	"rental/internal/config"
	"rental/internal/events"
	"rental/internal/gateway"
	"rental/internal/handler"
	internalRedis "rental/internal/redis"
	"rental/internal/repository/postgres"
	"rental/internal/scheduler"
	"rental/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Development())
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize New Relic", zap.Error(err))
		} else {
			logger.Info("New Relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	var publisher *events.Publisher
	if cfg.Broker.AMQPURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.Broker.AMQPURL, cfg.Broker.QueueSuffix, logger)
		if err != nil {
			logger.Fatal("failed to connect to broker", zap.Error(err))
		}
		publisher = events.NewPublisher(amqpPub, logger)
		logger.Info("connected to RabbitMQ")
	} else {
		logger.Warn("AMQP_URL not set, domain events are dropped")
	}

	w := wire(cfg, db, redisClient, publisher, nrApp, logger)

	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			logger.Fatal("failed to start scheduler", zap.Error(err))
		}
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.notifications.Wait()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close publisher", zap.Error(err))
		}
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

type wiring struct {
	server        *http.Server
	scheduler     *scheduler.Scheduler
	notifications *service.NotificationService
}

// wire wires all dependencies and returns the HTTP server and background workers.
func wire(
	cfg *config.Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	publisher *events.Publisher,
	nrApp *newrelic.Application,
	logger *zap.Logger,
) *wiring {
	store := postgres.NewStore(db, cfg.Database.LockTimeout)
	cacheStore := internalRedis.NewCacheStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)

	var eventPublisher service.EventPublisher
	if publisher != nil {
		eventPublisher = publisher
	}

	payhere := gateway.NewPayHere(gateway.Config{
		MerchantID:       cfg.Gateway.MerchantID,
		MerchantSecret:   cfg.Gateway.MerchantSecret,
		Sandbox:          cfg.Gateway.Sandbox,
		ReturnURL:        cfg.Gateway.ReturnURL,
		CancelURL:        cfg.Gateway.CancelURL,
		NotifyURL:        cfg.Gateway.NotifyURL,
		APIBaseURL:       cfg.Gateway.APIBaseURL,
		Timeout:          cfg.Gateway.Timeout,
		BreakerThreshold: cfg.Gateway.BreakerThreshold,
	})

	notifications := service.NewNotificationService(eventPublisher, cfg.Broker.PublishTimeout, logger)
	availability := service.NewAvailabilityChecker(store.Bookings(), cacheStore, cfg.Booking.AvailabilityTTL, logger)
	pricing := service.NewPricingEngine(cfg.Revenue.CommissionRate, cfg.Revenue.PlatformFeeRate)
	commission := service.NewCommissionService(store, logger)
	installments := service.NewInstallmentService(store, service.InstallmentConfig{
		BNPLMinAmount:      cfg.Installment.BNPLMinAmount,
		BNPLMaxAmount:      cfg.Installment.BNPLMaxAmount,
		BNPLMaxActivePlans: cfg.Installment.BNPLMaxActivePlans,
		EMIMinAmount:       cfg.Installment.EMIMinAmount,
	}, logger)
	payments := service.NewPaymentService(service.PaymentServiceDeps{
		Store:         store,
		Gateway:       payhere,
		Installments:  installments,
		Commission:    commission,
		Notifications: notifications,
		Locker:        lockStore,
		Country:       cfg.Gateway.Country,
		Logger:        logger,
	})
	bookings := service.NewBookingService(store, availability, pricing, payments, cacheStore, cfg.Booking.Currency, logger)
	cancellations := service.NewCancellationService(store, availability, payments, commission, notifications, logger)

	var (
		sched   *scheduler.Scheduler
		monitor http.Handler
	)
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(scheduler.Config{
			RedisAddr:     cfg.Redis.Addr,
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Scheduler.Concurrency,
			ActivateSpec:  cfg.Scheduler.ActivateSpec,
			OverdueSpec:   cfg.Scheduler.OverdueSpec,
		}, bookings, installments, lockStore, logger)
		if cfg.Scheduler.MonitorEnabled {
			monitor = sched.Monitor()
		}
	}

	router := app.NewRouter(app.RouterDeps{
		BookingHandler: handler.NewBookingHandler(bookings, cancellations),
		PaymentHandler: handler.NewPaymentHandler(payments),
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Logger:         logger,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		Monitor:        monitor,
	})

	return &wiring{
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		scheduler:     sched,
		notifications: notifications,
	}
}
