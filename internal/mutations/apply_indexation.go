package mutations

import (
	"context"

	"github.com/shopspring/decimal"

	"pension-calculation-engine/internal/model"
)

type applyIndexationInput struct {
	Percentage decimal.Decimal
	// Optional filters; an unset filter matches every policy.
	SchemeID           string
	HasSchemeID        bool
	EffectiveBefore    model.Date
	HasEffectiveBefore bool
}

func decodeApplyIndexation(props model.Properties) applyIndexationInput {
	in := applyIndexationInput{Percentage: propDecimal(props, "percentage")}
	in.SchemeID, in.HasSchemeID = lookupString(props, "scheme_id")
	in.EffectiveBefore, in.HasEffectiveBefore = lookupDate(props, "effective_before")
	return in
}

func (in applyIndexationInput) hasFilter() bool {
	return in.HasSchemeID || in.HasEffectiveBefore
}

func (in applyIndexationInput) matches(p model.Policy) bool {
	if in.HasSchemeID && p.SchemeID != in.SchemeID {
		return false
	}
	if in.HasEffectiveBefore && !p.EmploymentStartDate.Before(in.EffectiveBefore) {
		return false
	}
	return true
}

type ApplyIndexationHandler struct{}

func (h *ApplyIndexationHandler) Execute(_ context.Context, state model.Situation, mutation *model.Mutation) (model.Situation, []model.CalculationMessage) {
	if msg, ok := requirePolicies(state); !ok {
		return state, []model.CalculationMessage{msg}
	}

	in := decodeApplyIndexation(mutation.MutationProperties)
	factor := decimal.NewFromInt(1).Add(in.Percentage)

	existing := state.Dossier.Policies
	policies := make([]model.Policy, len(existing))
	matched, clamped := 0, false

	for i, p := range existing {
		policies[i] = p
		if !in.matches(p) {
			continue
		}
		matched++
		salary := p.Salary.Mul(factor)
		if salary.IsNegative() {
			salary = decimal.Zero
			clamped = true
		}
		policies[i].Salary = salary
	}

	var msgs []model.CalculationMessage
	if matched == 0 && in.hasFilter() {
		msgs = append(msgs, model.Warning("NO_MATCHING_POLICIES",
			"Filters were provided but no policies match the criteria"))
	}
	if clamped {
		msgs = append(msgs, model.Warning("NEGATIVE_SALARY_CLAMPED",
			"After applying the percentage, one or more salaries would be negative. Salary is clamped to 0."))
	}

	return model.Situation{Dossier: state.Dossier.WithPolicies(policies)}, msgs
}
