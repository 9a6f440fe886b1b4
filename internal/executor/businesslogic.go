package executor

import (
	"context"
	"time"

	"sagaorchestrator/internal/saga"
)

// Handler is a host-registered in-process business operation, addressed by
// name from a step's config (§4.5's BusinessLogic variant).
type Handler func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)

// BusinessLogicExecutor dispatches BUSINESS_LOGIC steps to handlers the
// host program registers by name. Config recognizes: handler (string).
type BusinessLogicExecutor struct {
	handlers map[string]Handler
}

// NewBusinessLogicExecutor returns an executor with no handlers registered;
// callers populate it via Register before the registry sees any traffic.
func NewBusinessLogicExecutor() *BusinessLogicExecutor {
	return &BusinessLogicExecutor{handlers: make(map[string]Handler)}
}

// Register binds name to handler, replacing any prior binding.
func (e *BusinessLogicExecutor) Register(name string, handler Handler) {
	e.handlers[name] = handler
}

func (e *BusinessLogicExecutor) Execute(ctx context.Context, step *saga.Step, sagaInput map[string]interface{}) Result {
	start := time.Now()

	name, _ := step.Config["handler"].(string)
	if name == "" {
		return Result{Success: false, ErrorMessage: "business_logic step missing handler", Duration: time.Since(start)}
	}

	handler, ok := e.handlers[name]
	if !ok {
		return Result{Success: false, ErrorMessage: "no handler registered for " + name, Duration: time.Since(start)}
	}

	merged := make(map[string]interface{}, len(sagaInput)+len(step.InputData))
	for k, v := range sagaInput {
		merged[k] = v
	}
	for k, v := range step.InputData {
		merged[k] = v
	}

	output, err := handler(ctx, merged)
	duration := time.Since(start)
	if err != nil {
		return Result{Success: false, ErrorMessage: err.Error(), Duration: duration}
	}
	return Result{Success: true, Output: output, Duration: duration}
}
