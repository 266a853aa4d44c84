// Package main is the entry point for the broker dashboard server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/softrade/brokerdesk/internal/backend"
	"github.com/softrade/brokerdesk/internal/capability"
	"github.com/softrade/brokerdesk/internal/config"
	"github.com/softrade/brokerdesk/internal/matrix"
	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/internal/resource"
	"github.com/softrade/brokerdesk/internal/table"
	"github.com/softrade/brokerdesk/internal/transport"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "brokerdesk", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Load the rebate API OpenAPI document and index its operations.
	index := backend.NewIndex()
	specPath := cfg.Specs.SpecFile
	if cfg.Specs.Directory != "" && !filepath.IsAbs(specPath) {
		specPath = filepath.Join(cfg.Specs.Directory, specPath)
	}
	if err := index.Load(specPath); err != nil {
		logger.Error("OpenAPI index load failed", zap.Error(err))
		return 1
	}
	metrics.SetOpenAPIOperationsIndexed(float64(index.Len()))

	// Load resource definitions.
	loader := resource.NewLoader()
	defs, err := loader.LoadAll(cfg.Resources.Directories)
	if err != nil {
		logger.Error("resource definition loading failed", zap.Error(err))
		return 1
	}
	registry, err := resource.NewRegistry(defs)
	if err != nil {
		logger.Error("resource registry build failed", zap.Error(err))
		return 1
	}
	metrics.SetResourceDefinitionsLoaded(float64(registry.Len()))

	// Capabilities.
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy load failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(evaluator, cfg.Capability.Cache.TTL, cfg.Capability.Cache.MaxEntries, metrics)

	// Stores.
	filterStore, filterCloser, err := buildFilterStore(cfg.Filters, logger)
	if err != nil {
		logger.Error("filter store initialization failed", zap.Error(err))
		return 1
	}
	draftStore, draftCloser, err := buildDraftStore(ctx, cfg.Drafts, logger)
	if err != nil {
		logger.Error("draft store initialization failed", zap.Error(err))
		return 1
	}

	// Backend client and domain engines.
	client := backend.NewClient(index, cfg.Backend, logger, metrics)
	engine := matrix.NewEngine(client, draftStore, logger, metrics)
	resources := resource.NewProvider(registry, client, filterStore, cfg.Filters.DefaultTTL, logger, metrics)

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)

	readiness := observability.ReadinessChecks{
		ResourcesLoaded: func() bool { return registry.Len() > 0 },
		OpenAPILoaded:   func() bool { return index.Len() > 0 },
	}
	if hc, ok := filterStore.(observability.HealthChecker); ok {
		readiness.FilterStore = hc
	}
	if hc, ok := draftStore.(observability.HealthChecker); ok {
		readiness.DraftStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: capResolver,
		Resources:          resources,
		Matrix:             engine,
		Options:            client,
		Metrics:            metrics,
		Ready:              readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("resources", registry.Len()),
		zap.Int("operations", index.Len()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if filterCloser != nil {
		filterCloser()
	}
	if draftCloser != nil {
		draftCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildFilterStore creates the remembered-filter store based on config.
func buildFilterStore(cfg config.FilterStoreConfig, logger *zap.Logger) (table.FilterStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory filter store")
		return table.NewMemoryFilterStore(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("filter store: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		return table.NewRedisFilterStore(client), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported filter store driver: %q", cfg.Driver)
	}
}

// buildDraftStore creates the matrix draft store based on config.
func buildDraftStore(ctx context.Context, cfg config.DraftStoreConfig, logger *zap.Logger) (matrix.DraftStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory draft store")
		return matrix.NewMemoryDraftStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("draft store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("draft store: parse DSN: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			poolCfg.MinConns = int32(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("draft store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("draft store: ping: %w", err)
		}
		return matrix.NewPgDraftStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported draft store driver: %q", cfg.Driver)
	}
}
