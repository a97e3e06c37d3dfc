package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/example/rocketshoes-cart/internal/api"
	"github.com/example/rocketshoes-cart/internal/api/middleware"
	"github.com/example/rocketshoes-cart/internal/auth"
	"github.com/example/rocketshoes-cart/internal/config"
	"github.com/example/rocketshoes-cart/internal/domain/cart"
	"github.com/example/rocketshoes-cart/internal/domain/catalog"
	"github.com/example/rocketshoes-cart/internal/infrastructure/kafka"
	"github.com/example/rocketshoes-cart/internal/infrastructure/productapi"
	"github.com/example/rocketshoes-cart/internal/infrastructure/store"
	"github.com/example/rocketshoes-cart/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg := config.LoadEnv()

	zl, err := logger.New(cfg.Server.AppEnv, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zl.Info("starting cart api",
		zap.String("env", cfg.Server.AppEnv),
		zap.String("addr", cfg.Server.HTTPAddr),
		zap.String("product_api", cfg.ProductAPI.BaseURL),
		zap.String("storage", cfg.Storage.Backend),
	)

	storage, closer, err := openStorage(ctx, cfg)
	if err != nil {
		zl.Fatal("failed to open cart storage", zap.Error(err))
	}
	defer closer.Close()

	client := productapi.NewClient(cfg.ProductAPI.BaseURL, cfg.ProductAPI.Timeout)

	cat := catalog.NewCatalog(client, zl)
	if err := cat.Load(ctx); err != nil {
		zl.Warn("failed to load catalog, starting with an empty one", zap.Error(err))
	}

	var publisher cart.Publisher = cart.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
		zl.Info("publishing cart events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	var jwtService *auth.JWTService
	if cfg.JWT.SecretKey != "" {
		jwtService = auth.NewJWTService(cfg.JWT.SecretKey, 15*time.Minute)
	} else {
		zl.Info("JWT_SECRET not set, shoppers are identified by header only")
	}

	registry := cart.NewRegistry(cart.Dependencies{
		Catalog:   cat,
		API:       client,
		Storage:   storage,
		Publisher: publisher,
		Logger:    zl,
	})
	go registry.StartEviction(ctx, time.Minute, cfg.Server.CartIdleTimeout)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go limiter.StartCleanup(ctx, time.Minute)
	}

	router := api.NewRouter(api.RouterConfig{
		Handlers:    api.NewHandlers(registry, cat, zl),
		JWTService:  jwtService,
		Logger:      zl,
		RateLimiter: limiter,
	})

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		zl.Info("server started", zap.String("addr", cfg.Server.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zl.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStorage builds the configured key-value backend together with whatever
// must be closed on shutdown.
func openStorage(ctx context.Context, cfg *config.Config) (store.KeyValueStore, io.Closer, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryStore(), nopCloser{}, nil

	case "file":
		fs, err := store.NewFileStore(cfg.Storage.FileDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, nopCloser{}, nil

	case "postgres":
		db, err := store.ConnectPostgres(cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pg, db, nil

	case "redis":
		rdb, err := store.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(rdb), rdb, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
