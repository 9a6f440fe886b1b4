// Command server runs the saga orchestrator's HTTP API: the REST surface
// (§6), the background sweep scheduler (§4.10), and (when AWS.Endpoint or
// credentials are configured) a DynamoDB-backed store; otherwise an
// in-memory store, for local development.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sagaorchestrator/internal/api"
	"sagaorchestrator/internal/breaker"
	"sagaorchestrator/internal/compensation"
	appconfig "sagaorchestrator/internal/config"
	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/engine"
	"sagaorchestrator/internal/infrastructure/cache"
	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/orchestrator"
	"sagaorchestrator/internal/ratelimit"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/scheduler"
	"sagaorchestrator/internal/store"
	"sagaorchestrator/internal/store/dynamostore"
	"sagaorchestrator/internal/tracing"
)

func main() {
	cfg := appconfig.LoadConfig()

	logger, err := orcherrors.NewStructuredLogger(string(cfg.Environment))
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	st := buildStore(cfg, logger.Logger)

	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, newBusinessLogicExecutor())
	metricsReg := metrics.New(prometheus.DefaultRegisterer, "sagaorchestrator")
	breakers := breaker.NewRegistry(breaker.Config{
		ConsecutiveFailures: uint32(cfg.Infrastructure.CircuitBreakerConfig.MinimumRequests),
		OpenDuration:        cfg.Infrastructure.CircuitBreakerConfig.OpenDuration,
		HalfOpenMaxRequests: uint32(cfg.Infrastructure.CircuitBreakerConfig.HalfOpenRequests),
	}, logger.Logger, metricsReg)
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	compensator := compensation.New(reg, eventbus.NoOp{}, logger.Logger)

	eng := engine.New(st, reg, breakers, compensator, eventbus.NoOp{}, metricsReg, limiter, logger.Logger)
	orch := orchestrator.New(st, eng, nil, newSagaCache(cfg, logger.Logger), cfg.Cache.TTL, logger.Logger)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracing("sagaorchestrator", string(cfg.Environment), cfg.Tracing.Endpoint)
		if err != nil {
			logger.Warn("failed to initialize tracing, continuing without it", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	sched := scheduler.New(scheduler.DefaultConfig(), st, orch, eventbus.NoOp{}, metricsReg, logger.Logger)
	schedCtx, schedCancel := context.WithCancel(context.Background())
	sched.Start(schedCtx)
	defer schedCancel()

	router := api.NewRouter(orch, metricsReg, breakers, cfg.Server.RequestTimeout, logger.Logger)
	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting saga orchestrator server",
			zap.String("address", srv.Addr),
			zap.String("environment", string(cfg.Environment)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
}

func buildStore(cfg appconfig.Config, logger *zap.Logger) store.SagaStore {
	if cfg.AWS.Endpoint == "" && cfg.Environment == appconfig.Development {
		logger.Info("no AWS endpoint configured, using in-memory saga store")
		return store.NewMemStore()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Database.Region))
	if err != nil {
		logger.Warn("failed to load AWS config, falling back to in-memory saga store", zap.Error(err))
		return store.NewMemStore()
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = &cfg.AWS.Endpoint
		}
	})
	return dynamostore.New(client, cfg.Database.TableName)
}

// newBusinessLogicExecutor registers the "passthrough" handler as the one
// built-in BUSINESS_LOGIC handler every deployment gets for free; host
// programs embedding this binary's logic register their own handlers
// alongside it by calling executor.Registry.Register again before the
// registry sees traffic.
func newBusinessLogicExecutor() *executor.BusinessLogicExecutor {
	bl := executor.NewBusinessLogicExecutor()
	bl.Register("passthrough", func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
		return input, nil
	})
	return bl
}

// sagaCacheMaxMemoryBytes bounds the read-through saga cache independently
// of cfg.Cache.MaxItems, since a pathologically large saga document
// shouldn't be able to grow the cache without limit just because the item
// count is still under budget.
const sagaCacheMaxMemoryBytes = 64 << 20

// newSagaCache returns the orchestrator's read-through Get cache, or nil if
// the configured provider isn't "memory" — a "redis"/"memcached" provider
// has no client wired up here, so the orchestrator falls back to reading
// the store directly rather than silently ignoring the configured provider.
func newSagaCache(cfg appconfig.Config, logger *zap.Logger) *cache.MemoryCache {
	if cfg.Cache.Provider != "memory" {
		return nil
	}
	return cache.NewMemoryCache(cfg.Cache.MaxItems, sagaCacheMaxMemoryBytes, logger)
}
