// Package saga defines the aggregate at the center of the orchestrator: the
// Saga and its ordered Steps, their status enums, and the invariants a
// SagaStore write must uphold.
package saga

import "time"

// Status is the saga-level state machine (§4.8).
type Status string

const (
	StatusCreated      Status = "CREATED"
	StatusRunning      Status = "RUNNING"
	StatusRetrying     Status = "RETRYING"
	StatusPaused       Status = "PAUSED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCompensated  Status = "COMPENSATED"
	StatusTimeout      Status = "TIMEOUT"
)

// IsTerminal reports whether a saga in this status is immutable except via
// administrative retry.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCompensated, StatusTimeout:
		return true
	default:
		return false
	}
}

// StepStatus is the per-step substate machine, active while the saga is RUNNING.
type StepStatus string

const (
	StepStatusCreated     StepStatus = "CREATED"
	StepStatusRunning     StepStatus = "RUNNING"
	StepStatusCompleted   StepStatus = "COMPLETED"
	StepStatusFailed      StepStatus = "FAILED"
	StepStatusCompensating StepStatus = "COMPENSATING"
	StepStatusCompensated StepStatus = "COMPENSATED"
	StepStatusTimeout     StepStatus = "TIMEOUT"
	StepStatusRetrying    StepStatus = "RETRYING"
	StepStatusSkipped     StepStatus = "SKIPPED"
)

// StepType selects which StepExecutor handles a step. Only the first four
// plus WAIT are required to be implementable (§4.5); the rest are reserved
// and fail closed with UNSUPPORTED_STEP_TYPE if no host adapter registers
// for them (§9 open question).
type StepType string

const (
	StepTypeHTTPCall       StepType = "HTTP_CALL"
	StepTypeDatabaseOp     StepType = "DATABASE_OP"
	StepTypeBusinessLogic  StepType = "BUSINESS_LOGIC"
	StepTypeMessageQueue   StepType = "MESSAGE_QUEUE"
	StepTypeFileOp         StepType = "FILE_OP"
	StepTypeWait           StepType = "WAIT"
	StepTypeConditional    StepType = "CONDITIONAL"
	StepTypeParallel       StepType = "PARALLEL"
	StepTypeSubSaga        StepType = "SUB_SAGA"
)

// StepConfig carries type-specific execution configuration (§6 recognized
// fields). It is kept as an opaque key/value container at the engine
// boundary; executors type-assert the keys they understand. This looseness
// is deliberate, not accidental: it lets one saga mix step types without the
// engine knowing about any of them.
type StepConfig map[string]interface{}

// CompensationConfig is shaped like StepConfig plus a compensation type and
// a required flag (§3).
type CompensationConfig struct {
	Type     StepType   `json:"type"`
	Config   StepConfig `json:"config"`
	Required bool       `json:"required"`
}

// Step is one unit of forward work in a saga, with an optional compensating
// action.
type Step struct {
	StepID  string   `json:"step_id"`
	Name    string   `json:"name"`
	Order   int      `json:"order"`
	Type    StepType `json:"type"`

	Status StepStatus `json:"status"`

	Config             StepConfig          `json:"config"`
	CompensationConfig *CompensationConfig `json:"compensation_config,omitempty"`

	InputData  map[string]interface{} `json:"input_data,omitempty"`
	OutputData map[string]interface{} `json:"output_data,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorTrace   string `json:"error_trace,omitempty"`

	RetryCount   int `json:"retry_count"`
	MaxRetries   int `json:"max_retries"`
	TimeoutMs    int `json:"timeout_ms"`
	RetryDelayMs int `json:"retry_delay_ms"`

	// Required: if false, a terminal failure is treated as success (step
	// marked SKIPPED/FAILED but saga advances).
	Required bool `json:"required"`
	// Compensatable: if false, a completed step has no rollback.
	Compensatable bool `json:"compensatable"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms,omitempty"`
}

// Saga is the aggregate root.
type Saga struct {
	SagaID        string `json:"saga_id"`
	Name          string `json:"name"`
	CorrelationID string `json:"correlation_id,omitempty"`

	Status Status `json:"status"`

	Steps             []Step `json:"steps"`
	CurrentStepIndex  int    `json:"current_step_index"`

	InputData  map[string]interface{} `json:"input_data,omitempty"`
	OutputData map[string]interface{} `json:"output_data,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
	TimeoutMs  int `json:"timeout_ms"`

	Priority int `json:"priority"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Version is the optimistic-concurrency token; it strictly increases on
	// every successful SagaStore.Save (§3 invariant 7).
	Version int64 `json:"version"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorTrace   string `json:"error_trace,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Tags     []string                `json:"tags,omitempty"`
}

// CurrentStep returns the step at CurrentStepIndex, or nil if the saga has
// run past its last step.
func (s *Saga) CurrentStep() *Step {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Steps) {
		return nil
	}
	return &s.Steps[s.CurrentStepIndex]
}

// MergeOutput folds a step's output into the saga's accumulated output,
// with later steps overwriting earlier ones on key collision (§3, a
// documented contract, not accidental).
func (s *Saga) MergeOutput(output map[string]interface{}) {
	if len(output) == 0 {
		return
	}
	if s.OutputData == nil {
		s.OutputData = make(map[string]interface{}, len(output))
	}
	for k, v := range output {
		s.OutputData[k] = v
	}
}

// Touch sets UpdatedAt and, when completing, CompletedAt.
func (s *Saga) Touch(now time.Time) {
	s.UpdatedAt = now
}
