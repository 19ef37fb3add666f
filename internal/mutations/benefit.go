package mutations

import (
	"github.com/shopspring/decimal"

	"pension-calculation-engine/internal/model"
)

var daysPerYear = decimal.RequireFromString("365.25")

// yearsOfService is the service time between start and end in years of
// 365.25 days. Negative spans count as zero.
func yearsOfService(start, end model.Date) decimal.Decimal {
	days := end.DayNumber() - start.DayNumber()
	if days <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(days).Div(daysPerYear)
}

// serviceYears computes yearsOfService for each policy at the given date,
// returning the per-policy years and their sum.
func serviceYears(policies []model.Policy, at model.Date) ([]decimal.Decimal, decimal.Decimal) {
	years := make([]decimal.Decimal, len(policies))
	total := decimal.Zero
	for i, p := range policies {
		years[i] = yearsOfService(p.EmploymentStartDate, at)
		total = total.Add(years[i])
	}
	return years, total
}

func effectiveSalary(p model.Policy) decimal.Decimal {
	return p.Salary.Mul(p.PartTimeFactor)
}

// weightedAverageSalary weights each policy's part-time adjusted salary by its
// service years. Zero when there is no service at all.
func weightedAverageSalary(policies []model.Policy, years []decimal.Decimal, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i, p := range policies {
		sum = sum.Add(effectiveSalary(p).Mul(years[i]))
	}
	return sum.Div(total)
}

// distribute splits annual over the policies in proportion to their share of
// the total service years.
func distribute(annual decimal.Decimal, years []decimal.Decimal, total decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(years))
	for i, y := range years {
		if total.IsPositive() {
			shares[i] = annual.Mul(y.Div(total))
		} else {
			shares[i] = decimal.Zero
		}
	}
	return shares
}
