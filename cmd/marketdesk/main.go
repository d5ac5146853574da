// Package main is the entry point for the marketdesk admin server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/capability"
	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/internal/definition"
	"github.com/pitabwire/marketdesk/internal/idempotency"
	"github.com/pitabwire/marketdesk/internal/importlog"
	"github.com/pitabwire/marketdesk/internal/metadata"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/internal/openapi"
	"github.com/pitabwire/marketdesk/internal/resource"
	"github.com/pitabwire/marketdesk/internal/session"
	"github.com/pitabwire/marketdesk/internal/transport"
	"github.com/pitabwire/marketdesk/model"
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

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// The marketplace OpenAPI document is optional.
	var oaIndex *openapi.Index
	if cfg.Specs.MarketplaceFile != "" {
		oaIndex = openapi.NewIndex()
		if err := oaIndex.Load(cfg.Specs.MarketplaceFile); err != nil {
			logger.Error("OpenAPI index load failed", zap.Error(err))
			return 1
		}
		metrics.SetOpenAPIOperationsIndexed(float64(oaIndex.Len()))
	}

	registry := definition.NewRegistry(nil)
	if err := registry.Reload(cfg.Definitions.Directories, oaIndex); err != nil {
		logReloadError(logger, err)
		logger.Error("definition loading failed")
		return 1
	}
	metrics.SetDefinitionsLoaded(float64(registry.Len()))

	policy, err := capability.NewStaticPolicyEvaluator(cfg.Capability.StaticPolicyFile)
	if err != nil {
		logger.Error("capability policy load failed", zap.Error(err))
		return 1
	}
	capResolver := capability.NewResolver(policy, cfg.Capability.Cache, metrics)

	historyStore, historyHealth, historyCloser, err := buildHistoryStore(ctx, cfg.Import.History, logger)
	if err != nil {
		logger.Error("import history store initialization failed", zap.Error(err))
		return 1
	}

	idemStore, idemHealth, idemCloser, err := buildIdempotencyStore(ctx, cfg.Idempotency, logger)
	if err != nil {
		logger.Error("idempotency store initialization failed", zap.Error(err))
		return 1
	}

	exec := resource.NewExecutor(cfg.Marketplace, logger, metrics)

	var factoryOpts []session.FactoryOption
	if oaIndex != nil {
		factoryOpts = append(factoryOpts, session.WithSchemaChecker(oaIndex))
	}
	factory := session.NewFactory(exec, cfg.Views.MaxVisiblePages, logger, metrics, factoryOpts...)
	views := session.NewRegistry(cfg.Views, logger, metrics)

	importer := resource.NewImporter(exec, cfg.Import, resource.TokenFunc(requestToken), metrics)

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return registry.Len() > 0 },
		Marketplace:       exec,
		ImportHistory:     historyHealth,
		IdempotencyStore:  idemHealth,
	}
	if oaIndex != nil {
		readiness.OpenAPILoaded = func() bool { return oaIndex.Len() > 0 }
	}

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, logger)

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Metrics:            metrics,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: capResolver,
		Readiness:          readiness,
		Definitions:        registry,
		Menu:               metadata.NewMenuProvider(registry),
		Collections:        metadata.NewCollectionProvider(registry, metadata.NewActionProvider()),
		Views:              views,
		ViewBuilder:        factory,
		Idempotency:        idemStore,
		IdempotencyTTL:     cfg.Idempotency.Store.DefaultTTL,
		Importer:           importer,
		ImportHistory:      historyStore,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go views.Run(bgCtx)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-hup:
				reload(cfg, registry, oaIndex, policy, capResolver, metrics, logger)
			}
		}
	}()

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("collections", registry.Len()),
		zap.String("definitions_checksum", registry.Checksum()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	bgCancel()
	views.Shutdown()

	if historyCloser != nil {
		historyCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// requestToken forwards the bearer token of the signed-in admin.
func requestToken(ctx context.Context) string {
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		return rctx.Token
	}
	return ""
}

// reload re-reads the policy file and the collection definitions. A
// definition set that fails validation leaves the served one in place.
func reload(cfg *config.Config, registry *definition.Registry, index *openapi.Index,
	policy *capability.StaticPolicyEvaluator, resolver *capability.Resolver,
	metrics *observability.Metrics, logger *zap.Logger) {
	if err := policy.Sync(); err != nil {
		logger.Error("capability policy reload failed", zap.Error(err))
	} else {
		resolver.Flush()
	}

	before := registry.Checksum()
	if err := registry.Reload(cfg.Definitions.Directories, index); err != nil {
		metrics.RecordDefinitionReload("error")
		logReloadError(logger, err)
		return
	}
	metrics.RecordDefinitionReload("success")
	metrics.SetDefinitionsLoaded(float64(registry.Len()))
	logger.Info("definitions reloaded",
		zap.Int("collections", registry.Len()),
		zap.Bool("changed", registry.Checksum() != before),
	)
}

func logReloadError(logger *zap.Logger, err error) {
	var rerr *definition.ReloadError
	if !errors.As(err, &rerr) {
		logger.Error("definition reload failed", zap.Error(err))
		return
	}
	for _, ve := range rerr.Errors {
		logger.Error("definition validation error",
			zap.String("path", ve.Path),
			zap.String("code", ve.Code),
			zap.String("message", ve.Message),
		)
	}
	logger.Error("definition validation failed", zap.Int("errors", len(rerr.Errors)))
}

// buildHistoryStore creates the import history store based on config.
func buildHistoryStore(ctx context.Context, cfg config.HistoryStoreConfig, logger *zap.Logger) (importlog.Store, observability.HealthChecker, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory import history")
		return importlog.NewMemoryStore(), nil, nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, nil, fmt.Errorf("import history: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("import history: parse DSN: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("import history: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("import history: ping: %w", err)
		}

		store := importlog.NewPgStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("import history: schema: %w", err)
		}
		return store, store, pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported import history driver: %q", cfg.Driver)
	}
}

// buildIdempotencyStore creates the idempotency store based on config.
// It returns a nil store when idempotency is disabled.
func buildIdempotencyStore(ctx context.Context, cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, observability.HealthChecker, func(), error) {
	if !cfg.Enabled {
		return nil, nil, nil, nil
	}

	switch cfg.Store.Driver {
	case "memory":
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil, nil, nil
	case "redis":
		addr := os.Getenv(cfg.Store.AddrEnv)
		if addr == "" {
			return nil, nil, nil, fmt.Errorf("idempotency store: %s environment variable not set", cfg.Store.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.Store.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("idempotency store: ping: %w", err)
		}
		store := idempotency.NewRedisStore(client)
		return store, store, func() { client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported idempotency store driver: %q", cfg.Store.Driver)
	}
}
