package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/srgjo27/session_reservation/internal/adapter/cache"
	"github.com/srgjo27/session_reservation/internal/adapter/handler"
	"github.com/srgjo27/session_reservation/internal/adapter/queue"
	"github.com/srgjo27/session_reservation/internal/adapter/repository/sqlstore"
	"github.com/srgjo27/session_reservation/internal/core/services"
	"github.com/srgjo27/session_reservation/internal/platform/config"
	"github.com/srgjo27/session_reservation/internal/platform/database"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Config{
		Driver:       database.Dialect(cfg.DBDriver),
		Host:         cfg.DBHost,
		Port:         cfg.DBPort,
		User:         cfg.DBUser,
		Password:     cfg.DBPassword,
		DBName:       cfg.DBName,
		SQLitePath:   cfg.SQLitePath,
		MaxOpenConns: cfg.DBMaxOpenConns,
	}, log)
	if err != nil {
		log.Fatal("failed to connect to db after retries", "error", err)
	}
	defer db.Close()
	db.SetMaxIdleConns(cfg.DBMaxOpenConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlstore.Migrate(ctx, db); err != nil {
		log.Fatal("failed to apply migrations", "error", err)
	}

	log.Info("connecting to redis", "addr", cfg.RedisAddr)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	store := sqlstore.New(db)
	catalog := sqlstore.NewCatalog(db)
	directory := cache.NewCachedDirectory(catalog, rdb, cfg.CacheTTL, log)
	availability := cache.NewAvailabilityCache(rdb, cfg.CacheTTL)
	publisher := queue.NewPublisher(cfg.RabbitMQURL, cfg.EventsQueue, log)

	settings := services.Settings{
		ReservationTTL: cfg.ReservationTTL,
		MaxAttendees:   cfg.MaxAttendees,
		AutoPromote:    cfg.AutoPromoteWaitlist,
		Retry: services.RetryPolicy{
			MaxTries:        cfg.RetryMaxTries,
			InitialInterval: cfg.RetryInitialInterval,
			MaxInterval:     cfg.RetryMaxInterval,
		},
	}

	ledger := services.NewCapacityLedger(directory, settings)
	finalizer := services.NewCheckoutFinalizer(store, ledger, directory, catalog, availability, publisher, settings, log)
	waitlist := services.NewWaitlistManager(store, ledger, finalizer, directory, availability, publisher, settings, log)
	checkouts := services.NewCheckoutService(store, ledger, waitlist, directory, catalog, catalog, availability, settings, log)
	sweeper := services.NewSweeper(checkouts, cfg.SweepInterval, cfg.SweepBatchSize, log)

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 5 * time.Second
	e.Server.WriteTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(handler.RequestLogger(log))
	handler.Register(e, cfg.JWTSecret,
		handler.NewCheckoutHandler(checkouts, finalizer, log),
		handler.NewAdminHandler(waitlist, finalizer, log),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	sweeper.Start(gctx)

	if cfg.ConsumerEnabled {
		consumer := queue.NewPaymentConsumer(cfg.RabbitMQURL, cfg.PaymentsQueue, finalizer, log)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	err = g.Wait()
	sweeper.Stop()
	if err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server exiting")
}
