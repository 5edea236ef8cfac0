package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/auth"
	"github.com/fjod/go_cart/storefront-service/internal/cache"
	"github.com/fjod/go_cart/storefront-service/internal/config"
	h "github.com/fjod/go_cart/storefront-service/internal/http"
	"github.com/fjod/go_cart/storefront-service/internal/logger"
	"github.com/fjod/go_cart/storefront-service/internal/marketplace"
	"github.com/fjod/go_cart/storefront-service/internal/poller"
	"github.com/fjod/go_cart/storefront-service/internal/publisher"
	"github.com/fjod/go_cart/storefront-service/internal/repository"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("storefront stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := marketplace.NewBackend(marketplace.Config{
		BaseURL:         cfg.MarketplaceURL,
		Timeout:         cfg.MarketplaceTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}, log)
	if err != nil {
		return err
	}

	deps := session.Dependencies{
		Backend:            backend,
		Parser:             auth.NewParser(cfg.JWTSecret),
		Currency:           cfg.Currency,
		ResolveSellerNames: cfg.ResolveSellerNames,
		IdleTTL:            cfg.SessionIdleTTL,
		Logger:             log,
	}

	if cfg.RedisEnabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		deps.QuoteCache = cache.NewRedisQuoteCache(redisClient, cfg.QuoteCacheTTL)
		deps.Selections = cache.NewRedisSelectionRepository(redisClient, cfg.SelectionTTL)
	} else {
		quotes := cache.NewMemoryQuoteCache(cfg.QuoteCacheTTL)
		defer quotes.Close()
		deps.QuoteCache = quotes
		deps.Selections = cache.NewMemorySelectionRepository()
		log.Info("redis disabled, using in-memory quote cache and selections")
	}

	var receipts *repository.Repository
	if cfg.PostgresEnabled() {
		cred := &repository.Credentials{
			Host:              cfg.PostgresHost,
			Port:              cfg.PostgresPort,
			User:              cfg.PostgresUser,
			Password:          cfg.PostgresPassword,
			DBName:            cfg.PostgresDB,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		receipts, err = repository.NewRepository(ctx, cred)
		if err != nil {
			return err
		}
		defer receipts.Close()
		if err := receipts.RunMigrations(cred); err != nil {
			return err
		}
		log.Info("receipts database ready", zap.String("host", cfg.PostgresHost))
		deps.Receipts = receipts
	}

	var events *publisher.EventPublisher
	if cfg.KafkaEnabled() {
		events = publisher.NewEventPublisher(cfg.KafkaTopic, log, cfg.KafkaBrokers...)
		defer events.Close()
		deps.Events = events
	}

	registry := session.NewRegistry(deps)

	if events != nil {
		groupID := cfg.KafkaGroupID
		if groupID == "" {
			groupID = "storefront-" + uuid.NewString()
		}
		p := poller.NewPoller(registry, cfg.KafkaTopic, groupID, log, cfg.KafkaBrokers...)
		defer p.Close()
		go p.Run(ctx)
		log.Info("checkout events enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	go registry.RunJanitor(ctx, cfg.JanitorPeriod)

	routerCfg := h.RouterConfig{
		Sessions:       registry,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
	}
	if receipts != nil {
		routerCfg.Receipts = receipts
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.NewRouter(routerCfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	healthServer := health.NewServer()
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("storefront http listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info("storefront grpc health listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info("shutting down storefront")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	log.Info("storefront stopped")
	return runErr
}
