package model

import "time"

type CalculationResponse struct {
	CalculationMetadata CalculationMetadata `json:"calculation_metadata"`
	CalculationResult   CalculationResult   `json:"calculation_result"`
}

type CalculationMetadata struct {
	CalculationID          string    `json:"calculation_id"`
	TenantID               string    `json:"tenant_id"`
	CalculationStartedAt   time.Time `json:"calculation_started_at"`
	CalculationCompletedAt time.Time `json:"calculation_completed_at"`
	CalculationDurationMs  int64     `json:"calculation_duration_ms"`
	CalculationOutcome     string    `json:"calculation_outcome"`
}

type CalculationResult struct {
	Messages         []CalculationMessage `json:"messages"`
	Mutations        []ProcessedMutation  `json:"mutations"`
	EndSituation     SituationEnvelope    `json:"end_situation"`
	InitialSituation InitialSituation     `json:"initial_situation"`
}

// ProcessedMutation is the audit record for one mutation. Patches are only
// present when patch generation is enabled.
type ProcessedMutation struct {
	Mutation                  Mutation `json:"mutation"`
	CalculationMessageIndexes []int    `json:"calculation_message_indexes"`
	ForwardPatch              *Patch   `json:"forward_patch_to_situation_after_this_mutation,omitempty"`
	BackwardPatch             *Patch   `json:"backward_patch_to_situation_before_this_mutation,omitempty"`
}

type SituationEnvelope struct {
	MutationID    string    `json:"mutation_id"`
	MutationIndex int       `json:"mutation_index"`
	ActualAt      Date      `json:"actual_at"`
	Situation     Situation `json:"situation"`
}

type InitialSituation struct {
	ActualAt  Date      `json:"actual_at"`
	Situation Situation `json:"situation"`
}

type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailure = "FAILURE"
)
