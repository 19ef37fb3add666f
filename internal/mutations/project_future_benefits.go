package mutations

import (
	"context"

	"github.com/shopspring/decimal"

	"pension-calculation-engine/internal/model"
)

type projectFutureBenefitsInput struct {
	StartDate      model.Date
	EndDate        model.Date
	IntervalMonths int
}

func decodeProjectFutureBenefits(props model.Properties) projectFutureBenefitsInput {
	return projectFutureBenefitsInput{
		StartDate:      propDate(props, "projection_start_date"),
		EndDate:        propDate(props, "projection_end_date"),
		IntervalMonths: propInt(props, "projection_interval_months"),
	}
}

// projectionDates returns start, start+interval, ... up to and including end.
// Each step adds the interval to the previous date.
func projectionDates(start, end model.Date, intervalMonths int) []model.Date {
	var dates []model.Date
	for d := start; !d.After(end); d = d.AddMonths(intervalMonths) {
		dates = append(dates, d)
	}
	return dates
}

type ProjectFutureBenefitsHandler struct {
	// Rates supplies per-scheme accrual rates. Nil means the default rate
	// for every scheme.
	Rates RateSource
}

func (h *ProjectFutureBenefitsHandler) Execute(ctx context.Context, state model.Situation, mutation *model.Mutation) (model.Situation, []model.CalculationMessage) {
	if msg, ok := requirePolicies(state); !ok {
		return state, []model.CalculationMessage{msg}
	}

	in := decodeProjectFutureBenefits(mutation.MutationProperties)

	if in.IntervalMonths <= 0 {
		return fail(state, "INVALID_PROJECTION_INTERVAL",
			"projection_interval_months must be positive, got %d", in.IntervalMonths)
	}
	if in.EndDate.Before(in.StartDate) {
		return fail(state, "INVALID_DATE_RANGE", "projection_end_date must not be before projection_start_date")
	}

	dossier := state.Dossier
	var msgs []model.CalculationMessage
	for _, p := range dossier.Policies {
		if in.StartDate.Before(p.EmploymentStartDate) {
			msgs = append(msgs, model.Warning("PROJECTION_BEFORE_EMPLOYMENT",
				"Projection start date is before employment start date for policy %s", p.PolicyID))
		}
	}

	rates := h.accrualRates(ctx, dossier.Policies)
	dates := projectionDates(in.StartDate, in.EndDate, in.IntervalMonths)

	projections := make([][]model.Projection, len(dossier.Policies))
	for i := range projections {
		projections[i] = make([]model.Projection, 0, len(dates))
	}

	for _, date := range dates {
		years, totalYears := serviceYears(dossier.Policies, date)

		annualPension := decimal.Zero
		for i, p := range dossier.Policies {
			annualPension = annualPension.Add(effectiveSalary(p).Mul(years[i]).Mul(rates[i]))
		}

		for i, share := range distribute(annualPension, years, totalYears) {
			projections[i] = append(projections[i], model.Projection{Date: date, ProjectedPension: share})
		}
	}

	policies := make([]model.Policy, len(dossier.Policies))
	for i, p := range dossier.Policies {
		p.Projections = projections[i]
		policies[i] = p
	}

	return model.Situation{Dossier: dossier.WithPolicies(policies)}, msgs
}

// accrualRates returns the rate for each policy, index-aligned with policies.
func (h *ProjectFutureBenefitsHandler) accrualRates(ctx context.Context, policies []model.Policy) []decimal.Decimal {
	out := make([]decimal.Decimal, len(policies))
	if h.Rates == nil {
		for i := range out {
			out[i] = DefaultAccrualRate
		}
		return out
	}

	ids := make([]string, 0, len(policies))
	seen := make(map[string]struct{}, len(policies))
	for _, p := range policies {
		if _, ok := seen[p.SchemeID]; !ok {
			seen[p.SchemeID] = struct{}{}
			ids = append(ids, p.SchemeID)
		}
	}

	byScheme := h.Rates.AccrualRates(ctx, ids)
	for i, p := range policies {
		rate, ok := byScheme[p.SchemeID]
		if !ok {
			rate = DefaultAccrualRate
		}
		out[i] = rate
	}
	return out
}
