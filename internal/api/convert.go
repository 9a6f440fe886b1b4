// Package api wires the orchestrator facade to the REST surface (§6):
// request/response conversion, validation, and the chi router itself.
package api

import (
	"sagaorchestrator/internal/saga"
	pkgapi "sagaorchestrator/pkg/api"
)

func stepsFromRequest(reqs []pkgapi.StepRequest) []saga.Step {
	steps := make([]saga.Step, len(reqs))
	for i, r := range reqs {
		steps[i] = saga.Step{
			Name:          r.Name,
			Order:         i,
			Type:          saga.StepType(r.Type),
			Status:        saga.StepStatusCreated,
			Config:        saga.StepConfig(r.Config),
			Required:      r.Required,
			Compensatable: r.Compensatable,
			TimeoutMs:     r.TimeoutMs,
			MaxRetries:    r.MaxRetries,
			RetryDelayMs:  r.RetryDelayMs,
		}
		if r.CompensationConfig != nil {
			steps[i].CompensationConfig = &saga.CompensationConfig{
				Type:     saga.StepType(r.CompensationConfig.Type),
				Config:   saga.StepConfig(r.CompensationConfig.Config),
				Required: r.CompensationConfig.Required,
			}
		}
	}
	return steps
}

func sagaToResponse(s *saga.Saga) pkgapi.SagaResponse {
	steps := make([]pkgapi.StepResponse, len(s.Steps))
	for i, st := range s.Steps {
		steps[i] = pkgapi.StepResponse{
			StepID:       st.StepID,
			Name:         st.Name,
			Order:        st.Order,
			Type:         string(st.Type),
			Status:       string(st.Status),
			RetryCount:   st.RetryCount,
			MaxRetries:   st.MaxRetries,
			ErrorMessage: st.ErrorMessage,
			StartedAt:    st.StartedAt,
			CompletedAt:  st.CompletedAt,
			DurationMs:   st.DurationMs,
		}
	}
	return pkgapi.SagaResponse{
		SagaID:           s.SagaID,
		Name:             s.Name,
		CorrelationID:    s.CorrelationID,
		Status:           string(s.Status),
		CurrentStepIndex: s.CurrentStepIndex,
		Steps:            steps,
		InputData:        s.InputData,
		OutputData:       s.OutputData,
		RetryCount:       s.RetryCount,
		MaxRetries:       s.MaxRetries,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
		ErrorMessage:     s.ErrorMessage,
	}
}

func sagasToListResponse(sagas []*saga.Saga) pkgapi.SagaListResponse {
	resp := pkgapi.SagaListResponse{Sagas: make([]pkgapi.SagaResponse, len(sagas))}
	for i, s := range sagas {
		resp.Sagas[i] = sagaToResponse(s)
	}
	resp.Count = len(resp.Sagas)
	return resp
}
