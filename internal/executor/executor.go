// Package executor implements the per-StepType adapters the engine
// dispatches to (§4.5), and the registry that selects one (§4.6).
package executor

import (
	"context"
	"time"

	"sagaorchestrator/internal/saga"
)

// Result is what every StepExecutor returns (§4.5).
type Result struct {
	Success      bool
	Output       map[string]interface{}
	ErrorMessage string
	ErrorTrace   string
	Duration     time.Duration
}

// StepExecutor executes one step (forward or compensation — the engine
// passes whichever config applies) against saga-level input for
// substitution context.
type StepExecutor interface {
	Execute(ctx context.Context, step *saga.Step, sagaInput map[string]interface{}) Result
}

// Func adapts a plain function to StepExecutor.
type Func func(ctx context.Context, step *saga.Step, sagaInput map[string]interface{}) Result

func (f Func) Execute(ctx context.Context, step *saga.Step, sagaInput map[string]interface{}) Result {
	return f(ctx, step, sagaInput)
}

// Registry maps StepType to its executor, used for both forward execution
// and compensation dispatch (the compensation_config.Type selects an
// executor the same way).
type Registry struct {
	executors map[saga.StepType]StepExecutor
}

// NewRegistry returns a Registry pre-populated with the variants that need
// no host-supplied configuration (HTTP, database, wait). BUSINESS_LOGIC is
// also required (§4.5) but has no useful registry-level default — it
// dispatches to host-registered handlers by name, so callers must
// Register a *BusinessLogicExecutor themselves once they've populated it.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[saga.StepType]StepExecutor)}
	r.Register(saga.StepTypeHTTPCall, NewHTTPExecutor(nil))
	r.Register(saga.StepTypeDatabaseOp, NewNoopDatabaseExecutor())
	r.Register(saga.StepTypeWait, WaitExecutor{})
	return r
}

// Register binds an executor to a step type, replacing any existing one.
func (r *Registry) Register(t saga.StepType, exec StepExecutor) {
	r.executors[t] = exec
}

// Resolve returns the executor for t, or (nil, false) if none is
// registered — the engine treats that as UNSUPPORTED_STEP_TYPE.
func (r *Registry) Resolve(t saga.StepType) (StepExecutor, bool) {
	exec, ok := r.executors[t]
	return exec, ok
}
