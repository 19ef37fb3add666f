package mutations

import (
	"context"

	"github.com/shopspring/decimal"

	"pension-calculation-engine/internal/model"
)

const (
	retirementAge          = 65
	minimumServiceForEarly = 40
)

type calcRetirementInput struct {
	RetirementDate model.Date
}

func decodeCalcRetirement(props model.Properties) calcRetirementInput {
	return calcRetirementInput{RetirementDate: propDate(props, "retirement_date")}
}

type CalculateRetirementBenefitHandler struct{}

func (h *CalculateRetirementBenefitHandler) Execute(_ context.Context, state model.Situation, mutation *model.Mutation) (model.Situation, []model.CalculationMessage) {
	if msg, ok := requirePolicies(state); !ok {
		return state, []model.CalculationMessage{msg}
	}

	in := decodeCalcRetirement(mutation.MutationProperties)
	dossier := state.Dossier
	participant, _ := dossier.Participant()
	age := participant.BirthDate.AgeAt(in.RetirementDate)

	var msgs []model.CalculationMessage
	for _, p := range dossier.Policies {
		if in.RetirementDate.Before(p.EmploymentStartDate) {
			msgs = append(msgs, model.Warning("RETIREMENT_BEFORE_EMPLOYMENT",
				"Retirement date is before employment start date for policy %s", p.PolicyID))
		}
	}

	years, totalYears := serviceYears(dossier.Policies, in.RetirementDate)

	// Eligibility: at least 65 years old or at least 40 years of service.
	if age < retirementAge && totalYears.LessThan(decimal.NewFromInt(minimumServiceForEarly)) {
		msgs = append(msgs, model.Critical("NOT_ELIGIBLE",
			"Participant is %d years old with %s years of service", age, totalYears.StringFixed(1)))
		return state, msgs
	}

	weightedAvg := weightedAverageSalary(dossier.Policies, years, totalYears)
	annualPension := weightedAvg.Mul(totalYears).Mul(DefaultAccrualRate)
	shares := distribute(annualPension, years, totalYears)

	policies := make([]model.Policy, len(dossier.Policies))
	for i, p := range dossier.Policies {
		p.AttainablePension = decimal.NewNullDecimal(shares[i])
		policies[i] = p
	}

	next := dossier.WithPolicies(policies)
	next.Status = model.StatusRetired
	retirementDate := in.RetirementDate
	next.RetirementDate = &retirementDate

	return model.Situation{Dossier: next}, msgs
}
