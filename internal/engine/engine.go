// Package engine runs a calculation request: it threads a Situation through
// the request's mutations in order and assembles the audit trail.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pension-calculation-engine/internal/jsonpatch"
	"pension-calculation-engine/internal/metrics"
	"pension-calculation-engine/internal/model"
	"pension-calculation-engine/internal/mutations"
)

var tracer = otel.Tracer("pension-engine/engine")

// PatchMode selects which structural patches are attached to each processed
// mutation.
type PatchMode int

const (
	PatchNone PatchMode = iota
	PatchForward
	PatchBoth
)

func (m PatchMode) String() string {
	switch m {
	case PatchForward:
		return "forward"
	case PatchBoth:
		return "both"
	}
	return "none"
}

// ParsePatchMode accepts none, forward and both, plus boolean spellings
// (true means forward).
func ParsePatchMode(s string) (PatchMode, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "none":
		return PatchNone, nil
	case "forward":
		return PatchForward, nil
	case "both":
		return PatchBoth, nil
	default:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return PatchNone, fmt.Errorf("unknown patch mode %q", s)
		}
		if b {
			return PatchForward, nil
		}
		return PatchNone, nil
	}
}

type Options struct {
	PatchMode PatchMode
	Logger    *slog.Logger
}

type Engine struct {
	registry  *mutations.Registry
	patchMode PatchMode
	logger    *slog.Logger
	now       func() time.Time
}

func New(registry *mutations.Registry, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:  registry,
		patchMode: opts.PatchMode,
		logger:    logger,
		now:       time.Now,
	}
}

// Process evaluates every mutation of req in order, stopping at the first
// CRITICAL message. It never returns an error: business failures are reported
// as messages with a FAILURE outcome.
func (e *Engine) Process(ctx context.Context, req *model.CalculationRequest) *model.CalculationResponse {
	ctx, span := tracer.Start(ctx, "engine.Process")
	defer span.End()

	started := e.now().UTC()
	calculationID := uuid.NewString()
	muts := req.CalculationInstructions.Mutations

	firstActualAt := model.DateOf(started)
	if len(muts) > 0 {
		firstActualAt = muts[0].ActualAt
	}

	var state model.Situation
	messages := []model.CalculationMessage{}
	processed := make([]model.ProcessedMutation, 0, len(muts))
	outcome := model.OutcomeSuccess

	// Last successfully applied mutation; defaults to the first one.
	var lastID string
	var lastIndex int
	lastActual := firstActualAt
	anyApplied := false
	if len(muts) > 0 {
		lastID = muts[0].MutationID
	}

	for i := range muts {
		mut := &muts[i]
		handler, ok := e.registry.Get(mut.MutationDefinitionName)
		if !ok {
			msg := model.Critical("UNKNOWN_MUTATION", "Unknown mutation: %s", mut.MutationDefinitionName)
			msg.ID = len(messages)
			messages = append(messages, msg)
			processed = append(processed, model.ProcessedMutation{
				Mutation:                  *mut,
				CalculationMessageIndexes: []int{msg.ID},
			})
			metrics.MutationsTotal.WithLabelValues(metrics.MutationUnknown, metrics.MutationUnknown).Inc()
			metrics.MessagesTotal.WithLabelValues(msg.Level, msg.Code).Inc()
			outcome = model.OutcomeFailure
			break
		}

		next, produced := handler.Execute(ctx, state, mut)

		indexes := make([]int, 0, len(produced))
		for _, msg := range produced {
			msg.ID = len(messages)
			messages = append(messages, msg)
			indexes = append(indexes, msg.ID)
			metrics.MessagesTotal.WithLabelValues(msg.Level, msg.Code).Inc()
		}

		critical := model.HasCritical(produced)
		if critical {
			// The failing mutation leaves the situation where it was.
			next = state
		}

		record := model.ProcessedMutation{Mutation: *mut, CalculationMessageIndexes: indexes}
		e.attachPatches(&record, state, next)
		processed = append(processed, record)

		if critical {
			metrics.MutationsTotal.WithLabelValues(mut.MutationDefinitionName, metrics.MutationRejected).Inc()
			e.logger.DebugContext(ctx, "mutation rejected",
				"calculation_id", calculationID,
				"mutation_id", mut.MutationID,
				"mutation", mut.MutationDefinitionName,
				"messages", len(produced))
			outcome = model.OutcomeFailure
			break
		}

		metrics.MutationsTotal.WithLabelValues(mut.MutationDefinitionName, metrics.MutationApplied).Inc()
		e.logger.DebugContext(ctx, "mutation applied",
			"calculation_id", calculationID,
			"mutation_id", mut.MutationID,
			"mutation", mut.MutationDefinitionName,
			"messages", len(produced))

		state = next
		lastID, lastIndex, lastActual = mut.MutationID, i, mut.ActualAt
		anyApplied = true
	}

	completed := e.now().UTC()
	elapsed := completed.Sub(started)

	metrics.CalculationsTotal.WithLabelValues(outcome).Inc()
	metrics.CalculationDuration.Observe(elapsed.Seconds())

	span.SetAttributes(
		attribute.String("calculation.id", calculationID),
		attribute.String("calculation.tenant_id", req.TenantID),
		attribute.String("calculation.outcome", outcome),
		attribute.Int("calculation.mutations", len(processed)),
		attribute.Int("calculation.messages", len(messages)),
	)

	e.logger.InfoContext(ctx, "calculation completed",
		"calculation_id", calculationID,
		"tenant_id", req.TenantID,
		"outcome", outcome,
		"mutations", len(processed),
		"messages", len(messages),
		"applied", anyApplied,
		"duration_ms", elapsed.Milliseconds())

	return &model.CalculationResponse{
		CalculationMetadata: model.CalculationMetadata{
			CalculationID:          calculationID,
			TenantID:               req.TenantID,
			CalculationStartedAt:   started,
			CalculationCompletedAt: completed,
			CalculationDurationMs:  elapsed.Milliseconds(),
			CalculationOutcome:     outcome,
		},
		CalculationResult: model.CalculationResult{
			Messages:  messages,
			Mutations: processed,
			EndSituation: model.SituationEnvelope{
				MutationID:    lastID,
				MutationIndex: lastIndex,
				ActualAt:      lastActual,
				Situation:     state,
			},
			InitialSituation: model.InitialSituation{
				ActualAt:  firstActualAt,
				Situation: model.Situation{},
			},
		},
	}
}

func (e *Engine) attachPatches(record *model.ProcessedMutation, before, after model.Situation) {
	switch e.patchMode {
	case PatchForward:
		fwd := jsonpatch.Diff(before, after)
		record.ForwardPatch = &fwd
	case PatchBoth:
		fwd, bwd := jsonpatch.DiffBoth(before, after)
		record.ForwardPatch = &fwd
		record.BackwardPatch = &bwd
	}
}
