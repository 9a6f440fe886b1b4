// Command worker runs the saga orchestrator's background half: the sweep
// scheduler (§4.10) and the three named worker pools (§5), with no REST
// surface. It is meant to run as a separate deployment from cmd/server in
// environments that split request-serving and background processing across
// services (see config.Infrastructure's ECS/Lambda concurrency split).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sagaorchestrator/internal/breaker"
	"sagaorchestrator/internal/compensation"
	appconfig "sagaorchestrator/internal/config"
	"sagaorchestrator/internal/concurrency"
	"sagaorchestrator/internal/engine"
	"sagaorchestrator/internal/infrastructure/cache"
	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/orchestrator"
	"sagaorchestrator/internal/ratelimit"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/scheduler"
	"sagaorchestrator/internal/store"
)

func main() {
	cfg := appconfig.LoadConfig()

	logger, err := orcherrors.NewStructuredLogger(string(cfg.Environment))
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	st := store.NewMemStore()
	if cfg.AWS.Endpoint != "" {
		logger.Warn("worker does not yet build a DynamoDB store from AWS.Endpoint; using in-memory store")
	}

	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, newBusinessLogicExecutor())
	metricsReg := metrics.New(prometheus.DefaultRegisterer, "sagaorchestrator_worker")
	breakers := breaker.NewRegistry(breaker.Config{
		ConsecutiveFailures: uint32(cfg.Infrastructure.CircuitBreakerConfig.MinimumRequests),
		OpenDuration:        cfg.Infrastructure.CircuitBreakerConfig.OpenDuration,
		HalfOpenMaxRequests: uint32(cfg.Infrastructure.CircuitBreakerConfig.HalfOpenRequests),
	}, logger.Logger, metricsReg)
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	compensator := compensation.New(reg, eventbus.NoOp{}, logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pools := concurrency.NewGroup(ctx, func(name string, active int) {
		metricsReg.SetActiveWorkers(name, active)
	})
	defer pools.Shutdown(context.Background())

	eng := engine.New(st, reg, breakers, compensator, eventbus.NoOp{}, metricsReg, limiter, logger.Logger)
	orch := orchestrator.New(st, eng, pools, newSagaCache(cfg, logger.Logger), cfg.Cache.TTL, logger.Logger)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.AutoRetryEnabled = cfg.Features.EnableAsyncExecution
	sched := scheduler.New(schedCfg, st, orch, eventbus.NoOp{}, metricsReg, logger.Logger)
	sched.Start(ctx)

	logger.Info("worker started",
		zap.String("environment", string(cfg.Environment)),
		zap.Bool("auto_retry", schedCfg.AutoRetryEnabled),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("worker shutting down")
	sched.Stop()
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
