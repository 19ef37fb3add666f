package engine

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pension-calculation-engine/internal/jsonpatch"
	"pension-calculation-engine/internal/model"
	"pension-calculation-engine/internal/mutations"
)

const (
	testDossierID = "d2222222-2222-2222-2222-222222222222"
	testPersonID  = "p3333333-3333-3333-3333-333333333333"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(mode PatchMode) *Engine {
	return New(mutations.NewRegistry(nil), Options{PatchMode: mode, Logger: quietLogger()})
}

func mut(id, name, actualAt string, props model.Properties) model.Mutation {
	return model.Mutation{
		MutationID:             id,
		MutationDefinitionName: name,
		MutationType:           "DOSSIER",
		ActualAt:               model.MustParseDate(actualAt),
		MutationProperties:     props,
	}
}

func createDossier(id string) model.Mutation {
	return mut(id, "create_dossier", "2020-01-01", model.Properties{
		"dossier_id": testDossierID,
		"person_id":  testPersonID,
		"name":       "Jane Doe",
		"birth_date": "1960-06-15",
	})
}

func addPolicy(id, scheme, start, salary, ptf string) model.Mutation {
	return mut(id, "add_policy", "2020-01-01", model.Properties{
		"scheme_id":             scheme,
		"employment_start_date": start,
		"salary":                json.Number(salary),
		"part_time_factor":      json.Number(ptf),
	})
}

func request(muts ...model.Mutation) *model.CalculationRequest {
	return &model.CalculationRequest{
		TenantID:                "test-tenant",
		CalculationInstructions: model.CalculationInstructions{Mutations: muts},
	}
}

func messageCodes(msgs []model.CalculationMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Level + "/" + m.Code
	}
	return out
}

func TestCreateDossier(t *testing.T) {
	resp := newEngine(PatchNone).Process(context.Background(), request(createDossier("m1")))

	meta := resp.CalculationMetadata
	assert.Equal(t, model.OutcomeSuccess, meta.CalculationOutcome)
	assert.Equal(t, "test-tenant", meta.TenantID)
	assert.NotEmpty(t, meta.CalculationID)
	assert.False(t, meta.CalculationCompletedAt.Before(meta.CalculationStartedAt))

	res := resp.CalculationResult
	assert.Empty(t, res.Messages)
	require.Len(t, res.Mutations, 1)
	assert.Empty(t, res.Mutations[0].CalculationMessageIndexes)
	assert.Nil(t, res.Mutations[0].ForwardPatch)
	assert.Nil(t, res.Mutations[0].BackwardPatch)

	sit := res.EndSituation.Situation
	require.NotNil(t, sit.Dossier)
	assert.Equal(t, testDossierID, sit.Dossier.DossierID)
	assert.Equal(t, model.StatusActive, sit.Dossier.Status)
	require.Len(t, sit.Dossier.Persons, 1)
	assert.Equal(t, "Jane Doe", sit.Dossier.Persons[0].Name)
	assert.Empty(t, sit.Dossier.Policies)

	assert.Nil(t, res.InitialSituation.Situation.Dossier)
	assert.Equal(t, "2020-01-01", res.InitialSituation.ActualAt.String())
	assert.Equal(t, "m1", res.EndSituation.MutationID)
	assert.Equal(t, 0, res.EndSituation.MutationIndex)
}

func TestCreateDossierAlreadyExists(t *testing.T) {
	second := createDossier("m2")
	second.ActualAt = model.MustParseDate("2020-01-02")

	resp := newEngine(PatchNone).Process(context.Background(), request(createDossier("m1"), second))

	assert.Equal(t, model.OutcomeFailure, resp.CalculationMetadata.CalculationOutcome)
	res := resp.CalculationResult
	assert.Equal(t, []string{"CRITICAL/DOSSIER_ALREADY_EXISTS"}, messageCodes(res.Messages))
	require.Len(t, res.Mutations, 2)
	assert.Equal(t, []int{0}, res.Mutations[1].CalculationMessageIndexes)

	assert.Equal(t, "m1", res.EndSituation.MutationID)
	assert.Equal(t, "2020-01-01", res.EndSituation.ActualAt.String())
	require.NotNil(t, res.EndSituation.Situation.Dossier)
}

func TestFirstMutationFails(t *testing.T) {
	resp := newEngine(PatchNone).Process(context.Background(), request(
		addPolicy("m1", "S", "2000-01-01", "50000", "1"),
		createDossier("m2"),
	))

	res := resp.CalculationResult
	assert.Equal(t, model.OutcomeFailure, resp.CalculationMetadata.CalculationOutcome)
	assert.Equal(t, []string{"CRITICAL/DOSSIER_NOT_FOUND"}, messageCodes(res.Messages))
	require.Len(t, res.Mutations, 1)

	// With nothing applied the end snapshot carries the first mutation.
	assert.Equal(t, "m1", res.EndSituation.MutationID)
	assert.Equal(t, 0, res.EndSituation.MutationIndex)
	assert.Nil(t, res.EndSituation.Situation.Dossier)
}

func TestInvalidNameCreatesNoDossier(t *testing.T) {
	m := createDossier("m1")
	m.MutationProperties["name"] = "   "

	resp := newEngine(PatchNone).Process(context.Background(), request(m))

	assert.Equal(t, []string{"CRITICAL/INVALID_NAME"}, messageCodes(resp.CalculationResult.Messages))
	assert.Nil(t, resp.CalculationResult.EndSituation.Situation.Dossier)
}

func TestUnknownMutationHalts(t *testing.T) {
	resp := newEngine(PatchBoth).Process(context.Background(), request(
		createDossier("m1"),
		mut("m2", "transfer_pension", "2020-02-01", model.Properties{}),
		addPolicy("m3", "S", "2000-01-01", "50000", "1"),
	))

	res := resp.CalculationResult
	assert.Equal(t, model.OutcomeFailure, resp.CalculationMetadata.CalculationOutcome)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "UNKNOWN_MUTATION", res.Messages[0].Code)
	assert.Equal(t, "Unknown mutation: transfer_pension", res.Messages[0].Message)

	require.Len(t, res.Mutations, 2)
	assert.Equal(t, []int{0}, res.Mutations[1].CalculationMessageIndexes)
	assert.Nil(t, res.Mutations[1].ForwardPatch)
	assert.Equal(t, "m1", res.EndSituation.MutationID)
}

func TestMessageIDsAreDense(t *testing.T) {
	resp := newEngine(PatchNone).Process(context.Background(), request(
		createDossier("m1"),
		addPolicy("m2", "S", "2000-01-01", "50000", "1"),
		addPolicy("m3", "S", "2000-01-01", "60000", "1"),
		mut("m4", "apply_indexation", "2021-01-01", model.Properties{
			"percentage": json.Number("-2"),
			"scheme_id":  "S",
		}),
		mut("m5", "apply_indexation", "2021-01-01", model.Properties{
			"percentage": json.Number("0.01"),
			"scheme_id":  "OTHER",
		}),
	))

	res := resp.CalculationResult
	assert.Equal(t, model.OutcomeSuccess, resp.CalculationMetadata.CalculationOutcome)
	assert.Equal(t, []string{
		"WARNING/DUPLICATE_POLICY",
		"WARNING/NEGATIVE_SALARY_CLAMPED",
		"WARNING/NO_MATCHING_POLICIES",
	}, messageCodes(res.Messages))

	for i, m := range res.Messages {
		assert.Equal(t, i, m.ID)
	}

	var seen []int
	for _, pm := range res.Mutations {
		seen = append(seen, pm.CalculationMessageIndexes...)
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, []int{1}, res.Mutations[3].CalculationMessageIndexes)
}

func TestPolicyIDsAreSequential(t *testing.T) {
	resp := newEngine(PatchNone).Process(context.Background(), request(
		createDossier("m1"),
		addPolicy("m2", "A", "2000-01-01", "50000", "1"),
		addPolicy("m3", "B", "2005-01-01", "40000", "0.5"),
		addPolicy("m4", "C", "2010-01-01", "30000", "0.8"),
	))

	policies := resp.CalculationResult.EndSituation.Situation.Dossier.Policies
	require.Len(t, policies, 3)
	for i, p := range policies {
		assert.Equal(t, testDossierID+"-"+string(rune('1'+i)), p.PolicyID)
	}
}

func TestRejectedMutationCarriesEmptyPatches(t *testing.T) {
	resp := newEngine(PatchBoth).Process(context.Background(), request(
		createDossier("m1"),
		addPolicy("m2", "A", "2000-01-01", "-1", "1"),
	))

	res := resp.CalculationResult
	require.Len(t, res.Mutations, 2)
	rejected := res.Mutations[1]
	require.NotNil(t, rejected.ForwardPatch)
	require.NotNil(t, rejected.BackwardPatch)
	assert.Empty(t, *rejected.ForwardPatch)
	assert.Empty(t, *rejected.BackwardPatch)
}

func TestForwardOnlyPatchMode(t *testing.T) {
	resp := newEngine(PatchForward).Process(context.Background(), request(createDossier("m1")))

	pm := resp.CalculationResult.Mutations[0]
	require.NotNil(t, pm.ForwardPatch)
	assert.Nil(t, pm.BackwardPatch)
	require.Len(t, *pm.ForwardPatch, 1)
	assert.Equal(t, "/situation/dossier", (*pm.ForwardPatch)[0].Path)

	raw, err := json.Marshal(pm)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"forward_patch_to_situation_after_this_mutation"`)
	assert.NotContains(t, string(raw), `"backward_patch_to_situation_before_this_mutation"`)
}

func TestPatchesReplayEveryStep(t *testing.T) {
	resp := newEngine(PatchBoth).Process(context.Background(), request(
		createDossier("m1"),
		addPolicy("m2", "A", "2000-01-01", "50000", "1"),
		addPolicy("m3", "B", "2010-01-01", "40000", "0.5"),
		mut("m4", "apply_indexation", "2021-01-01", model.Properties{"percentage": json.Number("0.03")}),
		mut("m5", "project_future_benefits", "2021-01-01", model.Properties{
			"projection_start_date":      "2025-01-01",
			"projection_end_date":        "2026-01-01",
			"projection_interval_months": json.Number("12"),
		}),
		mut("m6", "calculate_retirement_benefit", "2025-07-01", model.Properties{
			"retirement_date": "2025-07-01",
		}),
	))
	require.Equal(t, model.OutcomeSuccess, resp.CalculationMetadata.CalculationOutcome)

	// Walk forward from the initial snapshot, then back again.
	states := []model.Situation{resp.CalculationResult.InitialSituation.Situation}
	for _, pm := range resp.CalculationResult.Mutations {
		next, err := jsonpatch.Apply(states[len(states)-1], *pm.ForwardPatch)
		require.NoError(t, err, pm.Mutation.MutationID)
		states = append(states, next)
	}
	assertSameJSON(t, resp.CalculationResult.EndSituation.Situation, states[len(states)-1])

	muts := resp.CalculationResult.Mutations
	for i := len(muts) - 1; i >= 0; i-- {
		prev, err := jsonpatch.Apply(states[i+1], *muts[i].BackwardPatch)
		require.NoError(t, err, muts[i].Mutation.MutationID)
		assertSameJSON(t, states[i], prev)
	}
}

type fixedRates map[string]decimal.Decimal

func (f fixedRates) AccrualRates(_ context.Context, ids []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(ids))
	for _, id := range ids {
		if r, ok := f[id]; ok {
			out[id] = r
		}
	}
	return out
}

func TestProjectionUsesSchemeRates(t *testing.T) {
	rates := fixedRates{"A": decimal.RequireFromString("0.03")}
	e := New(mutations.NewRegistry(rates), Options{Logger: quietLogger()})

	resp := e.Process(context.Background(), request(
		createDossier("m1"),
		addPolicy("m2", "A", "2015-01-01", "50000", "1"),
		mut("m3", "project_future_benefits", "2021-01-01", model.Properties{
			"projection_start_date":      "2025-01-01",
			"projection_end_date":        "2025-01-01",
			"projection_interval_months": json.Number("12"),
		}),
	))
	require.Equal(t, model.OutcomeSuccess, resp.CalculationMetadata.CalculationOutcome)

	projections := resp.CalculationResult.EndSituation.Situation.Dossier.Policies[0].Projections
	require.Len(t, projections, 1)

	// 2015-01-01 to 2025-01-01 is 3653 days.
	years := decimal.NewFromInt(3653).Div(decimal.RequireFromString("365.25"))
	want := decimal.NewFromInt(50000).Mul(years).Mul(decimal.RequireFromString("0.03"))
	assert.Equal(t, want.StringFixed(2), projections[0].ProjectedPension.StringFixed(2))
}

func TestEmptyMutationList(t *testing.T) {
	resp := newEngine(PatchBoth).Process(context.Background(), request())

	assert.Equal(t, model.OutcomeSuccess, resp.CalculationMetadata.CalculationOutcome)
	assert.Empty(t, resp.CalculationResult.Mutations)
	assert.False(t, resp.CalculationResult.InitialSituation.ActualAt.IsZero())
	assert.Nil(t, resp.CalculationResult.EndSituation.Situation.Dossier)
}

func TestProcessLogsThroughConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	e := New(mutations.NewRegistry(nil), Options{Logger: slog.New(slog.NewTextHandler(&buf, nil))})

	resp := e.Process(context.Background(), request(createDossier("m1")))

	out := buf.String()
	assert.Contains(t, out, "calculation completed")
	assert.Contains(t, out, resp.CalculationMetadata.CalculationID)
	assert.NotContains(t, out, "mutation applied", "debug lines are filtered by the configured level")
}

func TestParsePatchMode(t *testing.T) {
	tests := []struct {
		in   string
		want PatchMode
		err  bool
	}{
		{"", PatchNone, false},
		{"none", PatchNone, false},
		{"forward", PatchForward, false},
		{"BOTH", PatchBoth, false},
		{"true", PatchForward, false},
		{"1", PatchForward, false},
		{"false", PatchNone, false},
		{"sideways", PatchNone, true},
	}
	for _, tt := range tests {
		got, err := ParsePatchMode(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func assertSameJSON(t *testing.T, want, got model.Situation) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}

// --- scenario files ---

type scenarioPolicy struct {
	PolicyID          string   `json:"policy_id"`
	Salary            string   `json:"salary"`
	AttainablePension string   `json:"attainable_pension"`
	ProjectionDates   []string `json:"projection_dates"`
}

type scenario struct {
	Name     string                   `json:"name"`
	Request  model.CalculationRequest `json:"request"`
	Expected struct {
		Outcome            string           `json:"outcome"`
		Messages           []string         `json:"messages"`
		ProcessedMutations int              `json:"processed_mutations"`
		EndMutationID      string           `json:"end_mutation_id"`
		EndMutationIndex   int              `json:"end_mutation_index"`
		Status             string           `json:"status"`
		RetirementDate     string           `json:"retirement_date"`
		Policies           []scenarioPolicy `json:"policies"`
	} `json:"expected"`
}

func loadScenarios(t *testing.T) []scenario {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("testdata", "*.json"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	out := make([]scenario, 0, len(files))
	for _, f := range files {
		raw, err := os.ReadFile(f)
		require.NoError(t, err, f)
		var sc scenario
		require.NoError(t, json.Unmarshal(raw, &sc), f)
		if sc.Name == "" {
			sc.Name = strings.TrimSuffix(filepath.Base(f), ".json")
		}
		out = append(out, sc)
	}
	return out
}

func TestScenarios(t *testing.T) {
	for _, sc := range loadScenarios(t) {
		t.Run(sc.Name, func(t *testing.T) {
			require.NoError(t, sc.Request.Validate())

			resp := newEngine(PatchBoth).Process(context.Background(), &sc.Request)
			exp := sc.Expected
			res := resp.CalculationResult

			assert.Equal(t, exp.Outcome, resp.CalculationMetadata.CalculationOutcome)
			assert.Equal(t, exp.Messages, messageCodes(res.Messages))
			assert.Len(t, res.Mutations, exp.ProcessedMutations)
			assert.Equal(t, exp.EndMutationID, res.EndSituation.MutationID)
			assert.Equal(t, exp.EndMutationIndex, res.EndSituation.MutationIndex)

			d := res.EndSituation.Situation.Dossier
			require.NotNil(t, d)
			assert.Equal(t, exp.Status, d.Status)
			if exp.RetirementDate == "" {
				assert.Nil(t, d.RetirementDate)
			} else {
				require.NotNil(t, d.RetirementDate)
				assert.Equal(t, exp.RetirementDate, d.RetirementDate.String())
			}

			require.Len(t, d.Policies, len(exp.Policies))
			for i, want := range exp.Policies {
				got := d.Policies[i]
				assert.Equal(t, want.PolicyID, got.PolicyID)
				assert.Equal(t, want.Salary, got.Salary.String())
				if want.AttainablePension != "" {
					require.True(t, got.AttainablePension.Valid)
					assert.Equal(t, want.AttainablePension, got.AttainablePension.Decimal.StringFixed(2))
				}
				if want.ProjectionDates != nil {
					dates := make([]string, len(got.Projections))
					for j, p := range got.Projections {
						dates[j] = p.Date.String()
					}
					assert.Equal(t, want.ProjectionDates, dates)
				}
			}

			prev := res.InitialSituation.Situation
			for _, pm := range res.Mutations {
				if pm.ForwardPatch == nil {
					// Unknown mutations carry no patches.
					continue
				}
				next, err := jsonpatch.Apply(prev, *pm.ForwardPatch)
				require.NoError(t, err)
				back, err := jsonpatch.Apply(next, *pm.BackwardPatch)
				require.NoError(t, err)
				assertSameJSON(t, prev, back)
				prev = next
			}
			assertSameJSON(t, res.EndSituation.Situation, prev)
		})
	}
}
