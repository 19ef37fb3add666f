package mutations

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"pension-calculation-engine/internal/model"
)

type addPolicyInput struct {
	SchemeID            string
	EmploymentStartDate model.Date
	Salary              decimal.Decimal
	PartTimeFactor      decimal.Decimal
}

func decodeAddPolicy(props model.Properties) addPolicyInput {
	return addPolicyInput{
		SchemeID:            propString(props, "scheme_id"),
		EmploymentStartDate: propDate(props, "employment_start_date"),
		Salary:              propDecimal(props, "salary"),
		PartTimeFactor:      propDecimal(props, "part_time_factor"),
	}
}

type AddPolicyHandler struct{}

func (h *AddPolicyHandler) Execute(_ context.Context, state model.Situation, mutation *model.Mutation) (model.Situation, []model.CalculationMessage) {
	if state.Dossier == nil {
		return fail(state, "DOSSIER_NOT_FOUND", "No dossier exists in the situation")
	}

	in := decodeAddPolicy(mutation.MutationProperties)

	if in.Salary.IsNegative() {
		return fail(state, "INVALID_SALARY", "Salary cannot be negative")
	}
	if in.PartTimeFactor.IsNegative() || in.PartTimeFactor.GreaterThan(decimal.NewFromInt(1)) {
		return fail(state, "INVALID_PART_TIME_FACTOR", "Part-time factor must be between 0 and 1")
	}

	var msgs []model.CalculationMessage
	existing := state.Dossier.Policies
	if slices.ContainsFunc(existing, func(p model.Policy) bool {
		return p.SchemeID == in.SchemeID && p.EmploymentStartDate.Equal(in.EmploymentStartDate)
	}) {
		msgs = append(msgs, model.Warning("DUPLICATE_POLICY",
			"A policy with scheme_id %s and employment_start_date %s already exists", in.SchemeID, in.EmploymentStartDate))
	}

	policies := make([]model.Policy, len(existing), len(existing)+1)
	copy(policies, existing)
	policies = append(policies, model.Policy{
		PolicyID:            fmt.Sprintf("%s-%d", state.Dossier.DossierID, len(existing)+1),
		SchemeID:            in.SchemeID,
		EmploymentStartDate: in.EmploymentStartDate,
		Salary:              in.Salary,
		PartTimeFactor:      in.PartTimeFactor,
	})

	return model.Situation{Dossier: state.Dossier.WithPolicies(policies)}, msgs
}
