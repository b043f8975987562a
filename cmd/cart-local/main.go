package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/go_cart/cart-local/internal/cart"
	"github.com/fjod/go_cart/cart-local/internal/config"
	h "github.com/fjod/go_cart/cart-local/internal/http"
	"github.com/fjod/go_cart/cart-local/internal/metrics"
	"github.com/fjod/go_cart/cart-local/internal/storage"
	"github.com/fjod/go_cart/cart-local/internal/syncclient"
	"github.com/fjod/go_cart/cart-local/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "cart-local",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Console:     cfg.App.IsDev(),
	})
	ctx := context.Background()

	st, closeStorage, err := buildStorage(ctx, cfg, log)
	if err != nil {
		log.Zerolog(ctx).Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("failed to set up storage")
	}
	defer closeStorage()

	m := metrics.New()
	badge := &cart.Badge{}
	syncer := syncclient.New(syncclient.Config{
		BaseURL:            cfg.Sync.BaseURL,
		Path:               cfg.Sync.Path,
		Timeout:            cfg.Sync.Timeout,
		AuthToken:          cfg.Sync.AuthToken,
		SessionCookie:      cfg.Sync.SessionCookie,
		BreakerMaxFailures: cfg.Sync.BreakerMaxFailures,
		BreakerOpenTimeout: cfg.Sync.BreakerOpenTimeout,
	}, log)

	store := cart.NewStore(
		storage.NewLimitedStorage(st, cfg.Storage.MaxValueBytes),
		syncer,
		cart.WithStorageKey(cfg.Storage.Key),
		cart.WithBadge(badge),
		cart.WithLogger(log),
		cart.WithRecorder(m),
	)
	// prime the badge from whatever survived the last run
	badge.UpdateBadge(store.TotalItems(ctx))

	router := h.NewRouter(h.RouterConfig{
		Cart:           h.NewCartHandler(store, badge, log, cfg.HTTP.RequestTimeout),
		Metrics:        m.Handler(),
		Log:            log,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodySize:    cfg.HTTP.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info(ctx).
			Str("port", cfg.HTTP.Port).
			Str("storage", cfg.Storage.Backend).
			Str("sync_endpoint", cfg.Sync.BaseURL+cfg.Sync.Path).
			Msg("cart-local listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Zerolog(ctx).Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info(ctx).Msg("shutting down cart-local")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, err).Msg("server forced to shutdown")
	}
	log.Info(ctx).Msg("cart-local stopped")
}

func buildStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (storage.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping failed: %w", err)
		}
		log.Info(ctx).Str("addr", cfg.Redis.Addr).Msg("connected to redis")
		return storage.NewRedisStorage(client, cfg.Redis.TTL), func() { _ = client.Close() }, nil

	case config.BackendMongo:
		db, err := storage.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx).Str("database", cfg.Mongo.Database).Msg("connected to mongodb")
		closeFn := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(disconnectCtx)
		}
		return storage.NewMongoStorage(db, cfg.Mongo.Collection), closeFn, nil

	default:
		return storage.NewMemoryStorage(), func() {}, nil
	}
}
