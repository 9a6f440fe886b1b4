// Package api defines the wire contracts for the saga orchestrator's REST
// surface (§6) and the response helpers both the HTTP server and the
// Lambda adapter use to produce them.
package api

import (
	"encoding/json"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

// CreateSagaRequest is the body of POST /api/v1/sagas.
type CreateSagaRequest struct {
	Name          string                 `json:"name" validate:"required"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Steps         []StepRequest          `json:"steps" validate:"required,min=1,dive"`
	InputData     map[string]interface{} `json:"input_data,omitempty"`
	TimeoutMs     int                    `json:"timeout_ms,omitempty"`
	Priority      int                    `json:"priority,omitempty"`
	Async         bool                   `json:"async,omitempty"`
}

// StepRequest is one step definition within a CreateSagaRequest.
type StepRequest struct {
	Name               string                 `json:"name" validate:"required"`
	Type               string                 `json:"type" validate:"required"`
	Config             map[string]interface{} `json:"config,omitempty"`
	CompensationConfig *CompensationRequest   `json:"compensation_config,omitempty"`
	Required           bool                   `json:"required"`
	Compensatable      bool                   `json:"compensatable"`
	TimeoutMs          int                    `json:"timeout_ms,omitempty"`
	MaxRetries         int                    `json:"max_retries,omitempty"`
	RetryDelayMs       int                    `json:"retry_delay_ms,omitempty"`
}

// CompensationRequest describes a step's rollback action.
type CompensationRequest struct {
	Type     string                 `json:"type" validate:"required"`
	Config   map[string]interface{} `json:"config,omitempty"`
	Required bool                   `json:"required"`
}

// SagaResponse is the representation of a Saga returned by every endpoint
// that surfaces one.
type SagaResponse struct {
	SagaID           string                 `json:"saga_id"`
	Name             string                 `json:"name"`
	CorrelationID    string                 `json:"correlation_id,omitempty"`
	Status           string                 `json:"status"`
	CurrentStepIndex int                    `json:"current_step_index"`
	Steps            []StepResponse         `json:"steps"`
	InputData        map[string]interface{} `json:"input_data,omitempty"`
	OutputData       map[string]interface{} `json:"output_data,omitempty"`
	RetryCount       int                    `json:"retry_count"`
	MaxRetries       int                    `json:"max_retries"`
	Version          int64                  `json:"version"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
}

// StepResponse is one step's representation within a SagaResponse.
type StepResponse struct {
	StepID       string     `json:"step_id"`
	Name         string     `json:"name"`
	Order        int        `json:"order"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   int64      `json:"duration_ms,omitempty"`
}

// SagaListResponse pages results from ListByStatus/ListByCorrelation.
type SagaListResponse struct {
	Sagas []SagaResponse `json:"sagas"`
	Count int            `json:"count"`
}

// ErrorResponse is a standardized error message for API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// GatewayResponse builds a valid APIGatewayProxyResponse for the Lambda
// adapter (cmd/lambda), mirroring the http.ResponseWriter helpers in
// helpers.go for the non-Lambda entrypoint.
func GatewayResponse(statusCode int, body string) (events.APIGatewayProxyResponse, error) {
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}, nil
}

// GatewaySuccess formats a successful Lambda response.
func GatewaySuccess(statusCode int, data interface{}) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return GatewayError(500, "internal server error"), err
	}
	return GatewayResponse(statusCode, string(body))
}

// GatewayError formats a Lambda error response.
func GatewayError(statusCode int, message string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(ErrorResponse{Error: message})
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
