package mutations

import (
	"context"

	"github.com/shopspring/decimal"

	"pension-calculation-engine/internal/model"
)

// DefaultAccrualRate applies whenever no scheme-specific rate is known.
var DefaultAccrualRate = decimal.RequireFromString("0.02")

// MutationHandler defines the contract for all mutation implementations.
//
// Execute returns the next situation and the messages produced. Business rule
// violations are reported as CRITICAL messages together with the unchanged
// input situation; handlers never return errors.
type MutationHandler interface {
	Execute(ctx context.Context, state model.Situation, mutation *model.Mutation) (model.Situation, []model.CalculationMessage)
}

// RateSource resolves accrual rates for a set of schemes. Every requested id
// is present in the result.
type RateSource interface {
	AccrualRates(ctx context.Context, schemeIDs []string) map[string]decimal.Decimal
}

// fail returns state unchanged together with a single critical message.
func fail(state model.Situation, code, format string, args ...any) (model.Situation, []model.CalculationMessage) {
	return state, []model.CalculationMessage{model.Critical(code, format, args...)}
}

// requirePolicies checks the precondition shared by the calculation mutations.
func requirePolicies(state model.Situation) (model.CalculationMessage, bool) {
	if state.Dossier == nil {
		return model.Critical("DOSSIER_NOT_FOUND", "No dossier exists in the situation"), false
	}
	if len(state.Dossier.Policies) == 0 {
		return model.Critical("NO_POLICIES", "Dossier has no policies"), false
	}
	return model.CalculationMessage{}, true
}
