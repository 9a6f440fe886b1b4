// Command lambda adapts the saga orchestrator's REST surface (the same
// chi router cmd/server mounts) to run behind API Gateway, as an
// alternative deployment target to the long-running HTTP server. It does
// not run the sweep scheduler: sweeps belong to a separately scheduled
// invocation (e.g. an EventBridge-triggered cmd/worker-equivalent), not
// to the request-serving path.
package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/awslabs/aws-lambda-go-api-proxy/chiadapter"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"sagaorchestrator/internal/api"
	"sagaorchestrator/internal/breaker"
	"sagaorchestrator/internal/compensation"
	appconfig "sagaorchestrator/internal/config"
	"sagaorchestrator/internal/engine"
	"sagaorchestrator/internal/infrastructure/cache"
	orcherrors "sagaorchestrator/internal/errors"
	"sagaorchestrator/internal/eventbus"
	"sagaorchestrator/internal/executor"
	"sagaorchestrator/internal/metrics"
	"sagaorchestrator/internal/orchestrator"
	"sagaorchestrator/internal/ratelimit"
	"sagaorchestrator/internal/saga"
	"sagaorchestrator/internal/store"
	"sagaorchestrator/internal/store/dynamostore"
	pkgapi "sagaorchestrator/pkg/api"
)

var chiLambda *chiadapter.ChiLambda

func init() {
	cfg := appconfig.LoadConfig()

	logger, err := orcherrors.NewStructuredLogger(string(cfg.Environment))
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	st := buildStore(cfg, logger.Logger)
	reg := executor.NewRegistry()
	reg.Register(saga.StepTypeBusinessLogic, newBusinessLogicExecutor())
	metricsReg := metrics.New(prometheus.DefaultRegisterer, "sagaorchestrator_lambda")
	breakers := breaker.NewRegistry(breaker.Config{
		ConsecutiveFailures: uint32(cfg.Infrastructure.CircuitBreakerConfig.MinimumRequests),
		OpenDuration:        cfg.Infrastructure.CircuitBreakerConfig.OpenDuration,
		HalfOpenMaxRequests: uint32(cfg.Infrastructure.CircuitBreakerConfig.HalfOpenRequests),
	}, logger.Logger, metricsReg)
	limiter := ratelimit.New(ratelimit.DefaultConfig())
	compensator := compensation.New(reg, eventbus.NoOp{}, logger.Logger)

	eng := engine.New(st, reg, breakers, compensator, eventbus.NoOp{}, metricsReg, limiter, logger.Logger)
	orch := orchestrator.New(st, eng, nil, newSagaCache(cfg, logger.Logger), cfg.Cache.TTL, logger.Logger)

	router := api.NewRouter(orch, metricsReg, breakers, cfg.Server.RequestTimeout, logger.Logger)
	mux, ok := router.Setup().(*chi.Mux)
	if !ok {
		log.Fatal("router did not produce a *chi.Mux")
	}
	chiLambda = chiadapter.New(mux)
}

func handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	resp, err := chiLambda.ProxyWithContext(ctx, req)
	if err != nil {
		return pkgapi.GatewayError(500, err.Error()), nil
	}
	return resp, nil
}

func main() {
	lambda.Start(handler)
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
