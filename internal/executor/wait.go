package executor

import (
	"context"
	"time"

	"sagaorchestrator/internal/saga"
)

// WaitExecutor executes WAIT steps: sleep delay_ms, always succeed unless
// the context is cancelled first (§4.5).
type WaitExecutor struct{}

func (WaitExecutor) Execute(ctx context.Context, step *saga.Step, sagaInput map[string]interface{}) Result {
	start := time.Now()

	delayMs, _ := step.Config["delay_ms"].(float64)
	delay := time.Duration(delayMs) * time.Millisecond

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return Result{Success: true, Duration: time.Since(start)}
	case <-ctx.Done():
		return Result{Success: false, ErrorMessage: "wait step cancelled: " + ctx.Err().Error(), Duration: time.Since(start)}
	}
}
