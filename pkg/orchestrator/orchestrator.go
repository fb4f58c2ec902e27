// Package orchestrator implements the run state machine of spec §4.10:
// preflight checks, the bounded-parallelism per-datapoint retrieve ->
// extract -> verify -> persist loop with plan-order merge, and the
// append-only RunEvent audit trail.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/extraction"
	"github.com/Atom1250/Compliance-App/pkg/retrieval"
	"github.com/Atom1250/Compliance-App/pkg/verification"
)

// Store is the persistence seam the orchestrator depends on; the SQL
// run-store, pkg/sqlstore.Store, implements it.
type Store interface {
	SaveAssessment(ctx context.Context, runID string, a domain.Assessment) error
	SaveDiagnostic(ctx context.Context, d domain.ExtractionDiagnostic) error
	AppendEvent(ctx context.Context, e domain.RunEvent) error
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, failureReason string) error
}

// Orchestrator runs one plan against one company's document index.
type Orchestrator struct {
	Store       Store
	Provider    extraction.Provider
	Index       *retrieval.Index
	Policy      retrieval.Policy
	Concurrency int
	Logger      *slog.Logger
}

// New constructs an Orchestrator with teacher-style defaults: bounded
// concurrency of 4 and slog.Default() as the logger.
func New(store Store, provider extraction.Provider, idx *retrieval.Index, policy retrieval.Policy) *Orchestrator {
	return &Orchestrator{
		Store:       store,
		Provider:    provider,
		Index:       idx,
		Policy:      policy,
		Concurrency: 4,
		Logger:      slog.Default(),
	}
}

// datapointOutcome is the result of one datapoint's retrieve/extract/
// verify pipeline, carried back to the plan-order merge stage.
type datapointOutcome struct {
	index      int
	assessment domain.Assessment
	diagnostic domain.ExtractionDiagnostic
	err        error
}

// Run executes the full plan: preflight, then the per-datapoint loop with
// bounded parallelism, merged back into plan order before persistence
// (spec §4.10 step 3's "bounded-parallelism with plan-order merge").
func (o *Orchestrator) Run(ctx context.Context, run domain.Run, plan *domain.CompiledPlan) error {
	if err := o.preflight(plan); err != nil {
		o.emit(ctx, run, "run.preflight_failed", map[string]interface{}{"error": err.Error()})
		_ = o.Store.UpdateRunStatus(ctx, run.RunID, domain.RunFailed, err.Error())
		return err
	}

	_ = o.Store.UpdateRunStatus(ctx, run.RunID, domain.RunRunning, "")
	o.emit(ctx, run, "run.started", map[string]interface{}{"datapoint_count": len(plan.Datapoints)})

	outcomes := o.processDatapoints(ctx, run, plan)

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	integrityWarning := false
	for _, oc := range outcomes {
		if oc.err != nil {
			integrityWarning = true
			o.emit(ctx, run, "datapoint.failed", map[string]interface{}{
				"datapoint_key": plan.Datapoints[oc.index].DatapointKey,
				"error":         oc.err.Error(),
			})
			continue
		}
		if err := o.Store.SaveAssessment(ctx, run.RunID, oc.assessment); err != nil {
			return fmt.Errorf("orchestrator: persist assessment %s: %w", oc.assessment.DatapointKey, err)
		}
		if err := o.Store.SaveDiagnostic(ctx, oc.diagnostic); err != nil {
			return fmt.Errorf("orchestrator: persist diagnostic %s: %w", oc.diagnostic.DatapointKey, err)
		}
	}

	finalStatus := domain.RunCompleted
	if integrityWarning {
		finalStatus = domain.RunIntegrityWarning
	}
	o.emit(ctx, run, "run.completed", map[string]interface{}{"status": string(finalStatus)})
	return o.Store.UpdateRunStatus(ctx, run.RunID, finalStatus, "")
}

// preflight enforces spec §4.10's fail-closed entry checks: a plan with
// zero datapoints never reaches the loop (it should already have failed
// at compile time with EMPTY_PLAN, but the orchestrator re-checks its own
// input defensively).
func (o *Orchestrator) preflight(plan *domain.CompiledPlan) error {
	if plan == nil || len(plan.Datapoints) == 0 {
		return domain.NewError(domain.KindEmptyPlan, string(domain.KindEmptyPlan), fmt.Errorf("orchestrator: plan has no datapoints"))
	}
	if o.Index == nil {
		return domain.NewError(domain.KindEmptyCorpus, string(domain.KindEmptyCorpus), fmt.Errorf("orchestrator: no retrieval index configured"))
	}
	return nil
}

// processDatapoints fans the plan's datapoints out across a bounded
// worker pool, each running the full retrieve -> extract -> verify chain
// independently; results are collected with their original plan index so
// the caller can re-impose plan order before persisting.
func (o *Orchestrator) processDatapoints(ctx context.Context, run domain.Run, plan *domain.CompiledPlan) []datapointOutcome {
	sem := make(chan struct{}, o.Concurrency)
	outcomes := make([]datapointOutcome, len(plan.Datapoints))
	var wg sync.WaitGroup

	for i, dp := range plan.Datapoints {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, dp domain.Datapoint) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = o.processOne(ctx, run, i, dp)
		}(i, dp)
	}

	wg.Wait()
	return outcomes
}

func (o *Orchestrator) processOne(ctx context.Context, run domain.Run, index int, dp domain.Datapoint) datapointOutcome {
	query := extraction.BuildQuery(dp)
	top, all := retrieval.Retrieve(ctx, o.Index, query, nil, o.Policy)

	assessment, _, err := extraction.Extract(ctx, o.Provider, dp, top)
	if err != nil {
		return datapointOutcome{index: index, err: err}
	}
	assessment.RunID = run.RunID
	assessment.RetrievalParams = domain.RetrievalParams{
		TopK:              o.Policy.TopK,
		LexicalWeight:     o.Policy.LexicalWeight,
		VectorWeight:      o.Policy.VectorWeight,
		NormalizationMode: o.Policy.NormalizationMode,
	}

	lookup := lookupFromResults(top)
	result := verification.Verify(dp, *assessment, lookup)
	assessment.Status = result.Status

	diagnostic := domain.ExtractionDiagnostic{
		RunID:               run.RunID,
		DatapointKey:        dp.DatapointKey,
		RetrievedChunkIDs:   chunkIDs(top),
		RetrievalCandidates: toCandidates(all, top),
		NumericMatchesFound: result.NumericMatchesFound,
		VerificationStatus:  string(result.Status),
		FailureReasonCode:   result.FailureReasonCode,
	}

	return datapointOutcome{index: index, assessment: *assessment, diagnostic: diagnostic}
}

func lookupFromResults(results []retrieval.Result) verification.ChunkLookup {
	byID := make(map[string]string, len(results))
	for _, r := range results {
		byID[r.Chunk.ChunkID] = r.Chunk.Text
	}
	return func(chunkID string) (string, bool) {
		text, ok := byID[chunkID]
		return text, ok
	}
}

func chunkIDs(results []retrieval.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.ChunkID
	}
	return out
}

func toCandidates(all, top []retrieval.Result) []domain.RetrievalCandidate {
	selected := make(map[string]bool, len(top))
	for _, r := range top {
		selected[r.Chunk.ChunkID] = true
	}
	out := make([]domain.RetrievalCandidate, len(all))
	for i, r := range all {
		out[i] = domain.RetrievalCandidate{
			ChunkID:       r.Chunk.ChunkID,
			LexicalScore:  r.LexicalScore,
			VectorScore:   r.VectorScore,
			CombinedScore: r.CombinedScore,
			Selected:      selected[r.Chunk.ChunkID],
		}
	}
	return out
}

func (o *Orchestrator) emit(ctx context.Context, run domain.Run, eventType string, payload map[string]interface{}) {
	if err := o.Store.AppendEvent(ctx, domain.RunEvent{
		RunID:     run.RunID,
		TenantID:  run.TenantID,
		EventType: eventType,
		Payload:   payload,
	}); err != nil {
		o.Logger.Warn("orchestrator: failed to append run event", "run_id", run.RunID, "event_type", eventType, "error", err)
	}
}
