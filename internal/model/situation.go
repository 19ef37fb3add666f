package model

import (
	"slices"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go on the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	StatusActive  = "ACTIVE"
	StatusRetired = "RETIRED"

	RoleParticipant = "PARTICIPANT"
)

// Situation is the complete state of a calculation at one point in the
// mutation sequence. A nil Dossier is the initial state.
//
// Situations are treated as immutable: handlers build new Dossier values
// instead of modifying the one they were given.
type Situation struct {
	Dossier *Dossier `json:"dossier"`
}

type Dossier struct {
	DossierID      string   `json:"dossier_id"`
	Status         string   `json:"status"`
	RetirementDate *Date    `json:"retirement_date"`
	Persons        []Person `json:"persons"`
	Policies       []Policy `json:"policies"`
}

type Person struct {
	PersonID  string `json:"person_id"`
	Role      string `json:"role"`
	Name      string `json:"name"`
	BirthDate Date   `json:"birth_date"`
}

type Policy struct {
	PolicyID            string              `json:"policy_id"`
	SchemeID            string              `json:"scheme_id"`
	EmploymentStartDate Date                `json:"employment_start_date"`
	Salary              decimal.Decimal     `json:"salary"`
	PartTimeFactor      decimal.Decimal     `json:"part_time_factor"`
	AttainablePension   decimal.NullDecimal `json:"attainable_pension"`
	Projections         []Projection        `json:"projections"`
}

type Projection struct {
	Date             Date            `json:"date"`
	ProjectedPension decimal.Decimal `json:"projected_pension"`
}

// Participant returns the person at index 0.
func (d *Dossier) Participant() (Person, bool) {
	if len(d.Persons) == 0 {
		return Person{}, false
	}
	return d.Persons[0], true
}

// WithPolicies returns a copy of d that owns its person list and uses the
// given policy list.
func (d *Dossier) WithPolicies(policies []Policy) *Dossier {
	next := *d
	next.Persons = slices.Clone(d.Persons)
	next.Policies = policies
	return &next
}

// Clone copies d including its lists. Projection slices are shared
// since they are never modified after construction.
func (d *Dossier) Clone() *Dossier {
	if d == nil {
		return nil
	}
	next := d.WithPolicies(slices.Clone(d.Policies))
	if d.RetirementDate != nil {
		rd := *d.RetirementDate
		next.RetirementDate = &rd
	}
	return next
}

func (p Person) Equal(o Person) bool {
	return p.PersonID == o.PersonID &&
		p.Role == o.Role &&
		p.Name == o.Name &&
		p.BirthDate.Equal(o.BirthDate)
}

func (p Policy) Equal(o Policy) bool {
	if p.PolicyID != o.PolicyID ||
		p.SchemeID != o.SchemeID ||
		!p.EmploymentStartDate.Equal(o.EmploymentStartDate) ||
		!p.Salary.Equal(o.Salary) ||
		!p.PartTimeFactor.Equal(o.PartTimeFactor) ||
		p.AttainablePension.Valid != o.AttainablePension.Valid {
		return false
	}
	if p.AttainablePension.Valid && !p.AttainablePension.Decimal.Equal(o.AttainablePension.Decimal) {
		return false
	}
	if (p.Projections == nil) != (o.Projections == nil) {
		return false
	}
	return slices.EqualFunc(p.Projections, o.Projections, func(a, b Projection) bool {
		return a.Date.Equal(b.Date) && a.ProjectedPension.Equal(b.ProjectedPension)
	})
}

func EqualDates(a, b *Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
