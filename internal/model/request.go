package model

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// requestValidate checks request envelopes at the transport boundary. Field
// names are reported by their JSON tags.
var requestValidate = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type CalculationRequest struct {
	TenantID                string                  `json:"tenant_id" validate:"required"`
	CalculationInstructions CalculationInstructions `json:"calculation_instructions"`
}

type CalculationInstructions struct {
	Mutations []Mutation `json:"mutations" validate:"required,min=1,dive"`
}

type Mutation struct {
	MutationID             string     `json:"mutation_id" validate:"required"`
	MutationDefinitionName string     `json:"mutation_definition_name" validate:"required"`
	MutationType           string     `json:"mutation_type"`
	ActualAt               Date       `json:"actual_at"`
	MutationProperties     Properties `json:"mutation_properties"`
	DossierID              string     `json:"dossier_id,omitempty"`
}

// Validate reports the first structural problem with the request, such as a
// missing tenant or an empty mutation list.
func (r *CalculationRequest) Validate() error {
	err := requestValidate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("invalid request: %w", err)
	}
	return fmt.Errorf("invalid request: %s", describeFieldError(fieldErrs[0]))
}

// describeFieldError renders a validator failure with its wire path, e.g.
// "calculation_instructions.mutations[0].mutation_id is required".
func describeFieldError(fe validator.FieldError) string {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "min":
		return fmt.Sprintf("%s must contain at least %s item(s)", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
	}
}

// Properties holds the untyped mutation payload. Values are whatever the wire
// delivered: strings, json.Number, or already typed Go values.
type Properties map[string]any

func (p *Properties) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*p = m
	return nil
}
