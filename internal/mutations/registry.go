package mutations

// Kind names a mutation definition.
type Kind string

const (
	KindCreateDossier              Kind = "create_dossier"
	KindAddPolicy                  Kind = "add_policy"
	KindApplyIndexation            Kind = "apply_indexation"
	KindCalculateRetirementBenefit Kind = "calculate_retirement_benefit"
	KindProjectFutureBenefits      Kind = "project_future_benefits"
)

// Kinds lists every supported mutation in registration order.
var Kinds = []Kind{
	KindCreateDossier,
	KindAddPolicy,
	KindApplyIndexation,
	KindCalculateRetirementBenefit,
	KindProjectFutureBenefits,
}

// Registry maps mutation definition names to handlers. It is filled once by
// NewRegistry and only read afterwards, so it is safe for concurrent use.
type Registry struct {
	handlers map[Kind]MutationHandler
}

func NewRegistry(rates RateSource) *Registry {
	return &Registry{handlers: map[Kind]MutationHandler{
		KindCreateDossier:              &CreateDossierHandler{},
		KindAddPolicy:                  &AddPolicyHandler{},
		KindApplyIndexation:            &ApplyIndexationHandler{},
		KindCalculateRetirementBenefit: &CalculateRetirementBenefitHandler{},
		KindProjectFutureBenefits:      &ProjectFutureBenefitsHandler{Rates: rates},
	}}
}

func (r *Registry) Get(name string) (MutationHandler, bool) {
	h, ok := r.handlers[Kind(name)]
	return h, ok
}
