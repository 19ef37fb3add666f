package mutations

import (
	"context"
	"strings"
	"time"

	"pension-calculation-engine/internal/model"
)

type createDossierInput struct {
	DossierID string
	PersonID  string
	Name      string
	BirthDate model.Date
}

func decodeCreateDossier(props model.Properties) createDossierInput {
	return createDossierInput{
		DossierID: propString(props, "dossier_id"),
		PersonID:  propString(props, "person_id"),
		Name:      propString(props, "name"),
		BirthDate: propDate(props, "birth_date"),
	}
}

type CreateDossierHandler struct {
	// Now overrides the wall clock used for the future birth date check.
	Now func() time.Time
}

func (h *CreateDossierHandler) Execute(_ context.Context, state model.Situation, mutation *model.Mutation) (model.Situation, []model.CalculationMessage) {
	if state.Dossier != nil {
		return fail(state, "DOSSIER_ALREADY_EXISTS", "A dossier already exists in the situation")
	}

	in := decodeCreateDossier(mutation.MutationProperties)

	if strings.TrimSpace(in.Name) == "" {
		return fail(state, "INVALID_NAME", "Name is empty or blank")
	}

	if in.BirthDate.After(h.today()) {
		return fail(state, "INVALID_BIRTH_DATE", "Birth date %s is in the future", in.BirthDate)
	}

	return model.Situation{Dossier: &model.Dossier{
		DossierID:      in.DossierID,
		Status:         model.StatusActive,
		RetirementDate: nil,
		Persons: []model.Person{{
			PersonID:  in.PersonID,
			Role:      model.RoleParticipant,
			Name:      in.Name,
			BirthDate: in.BirthDate,
		}},
		Policies: []model.Policy{},
	}}, nil
}

func (h *CreateDossierHandler) today() model.Date {
	if h.Now != nil {
		return model.DateOf(h.Now())
	}
	return model.Today()
}
