package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Atom1250/Compliance-App/pkg/bundle"
	"github.com/Atom1250/Compliance-App/pkg/compiler"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/evidencepack"
)

// handleRunStatus implements spec §6.1's GET /runs/{id}/status.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	run, err := s.DB.GetRun(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// handleRunDiagnostics implements spec §6.1's GET /runs/{id}/diagnostics:
// the per-datapoint retrieval trail, including near-miss candidates.
func (s *Server) handleRunDiagnostics(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	runID := r.PathValue("id")
	if _, err := s.DB.GetRun(r.Context(), tenantID, runID); err != nil {
		WriteFromError(w, r, err)
		return
	}
	diagnostics, err := s.DB.ListDiagnostics(r.Context(), runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, diagnostics)
}

// handleRunEvents implements spec §6.1's GET /runs/{id}/events: the
// append-only RunEvent audit trail (state transitions, preflight
// failures, per-datapoint failures) emitted by the orchestrator.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	runID := r.PathValue("id")
	if _, err := s.DB.GetRun(r.Context(), tenantID, runID); err != nil {
		WriteFromError(w, r, err)
		return
	}
	events, err := s.DB.ListEvents(r.Context(), runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, events)
}

type runReportResponse struct {
	RunID       string                      `json:"run_id"`
	Assessments []domain.Assessment         `json:"assessments"`
	Coverage    []domain.ObligationCoverage `json:"coverage"`
}

// handleRunReport implements spec §6.1's GET /runs/{id}/report: 409 when
// the run has not yet reached a terminal status, never a partial report.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	runID := r.PathValue("id")

	run, err := s.DB.GetRun(r.Context(), tenantID, runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	if !isTerminal(run.Status) {
		WriteError(w, r, http.StatusConflict, "Conflict", "run has not completed", "RUN_NOT_COMPLETE")
		return
	}

	assessments, err := s.DB.ListAssessments(r.Context(), runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	coverageJSON, err := s.DB.GetCoverageJSON(r.Context(), runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	var cov []domain.ObligationCoverage
	if err := json.Unmarshal(coverageJSON, &cov); err != nil {
		WriteFromError(w, r, domain.NewError(domain.KindIntegrity, "", err))
		return
	}

	WriteJSON(w, http.StatusOK, runReportResponse{RunID: runID, Assessments: assessments, Coverage: cov})
}

// handleEvidencePack implements spec §6.1/§6.4's GET /runs/{id}/evidence-pack:
// a completed, deterministic tar.gz of manifest, assessments, evidence,
// coverage, and the underlying document bytes.
func (s *Server) handleEvidencePack(w http.ResponseWriter, r *http.Request) {
	s.writeEvidencePack(w, r, true)
}

// handleEvidencePackPreview implements GET /runs/{id}/evidence-pack-preview:
// the same archive without requiring the run to have reached a terminal
// status, for pipeline inspection before completion.
func (s *Server) handleEvidencePackPreview(w http.ResponseWriter, r *http.Request) {
	s.writeEvidencePack(w, r, false)
}

func (s *Server) writeEvidencePack(w http.ResponseWriter, r *http.Request, requireComplete bool) {
	tenantID, _ := TenantFromContext(r.Context())
	runID := r.PathValue("id")

	run, err := s.DB.GetRun(r.Context(), tenantID, runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	if requireComplete && !isTerminal(run.Status) {
		WriteError(w, r, http.StatusConflict, "Conflict", "run has not completed", "RUN_NOT_COMPLETE")
		return
	}

	manifest, err := s.DB.GetManifest(r.Context(), runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	assessments, err := s.DB.ListAssessments(r.Context(), runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	coverageJSON, err := s.DB.GetCoverageJSON(r.Context(), runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	var cov []domain.ObligationCoverage
	if err := json.Unmarshal(coverageJSON, &cov); err != nil {
		WriteFromError(w, r, domain.NewError(domain.KindIntegrity, "", err))
		return
	}

	_, chunks, _, err := s.buildCompanyIndex(r.Context(), tenantID, run.CompanyID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	byID := chunkTextByID(chunks)

	evidence := buildEvidenceRecords(assessments, byID)

	documents := make(map[string][]byte, len(manifest.DocumentHashes))
	for _, h := range manifest.DocumentHashes {
		data, err := s.Docs.Get(r.Context(), h)
		if err != nil {
			WriteFromError(w, r, err)
			return
		}
		documents[h] = data
	}

	// compiled_plan.json is recomputed from the persisted manifest rather
	// than stored verbatim, the same way handleRegulatoryPlan does it — a
	// mismatch between this recomputation and manifest.PlanHash would itself
	// be an integrity finding, not a reason to skip the entry (spec §4.12
	// requires compiled_plan.json in every archive).
	plan, err := s.recompilePlan(r.Context(), tenantID, run)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	archive, err := evidencepack.BuildArchive(evidencepack.ArchiveInput{
		Manifest:       *manifest,
		CompiledPlan:   plan,
		Assessments:    assessments,
		Evidence:       evidence,
		CoverageMatrix: cov,
		Documents:      documents,
	})
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+runID+`-evidence-pack.tar.gz"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func buildEvidenceRecords(assessments []domain.Assessment, byID map[string]domain.Chunk) []evidencepack.EvidenceRecord {
	seen := make(map[string]bool)
	var out []evidencepack.EvidenceRecord
	for _, a := range assessments {
		for _, chunkID := range a.EvidenceChunkIDs {
			if seen[chunkID] {
				continue
			}
			seen[chunkID] = true
			c, ok := byID[chunkID]
			if !ok {
				continue
			}
			out = append(out, evidencepack.EvidenceRecord{
				ChunkID:     c.ChunkID,
				DocHash:     c.DocHash,
				PageNumber:  c.PageNumber,
				StartOffset: c.StartOffset,
				EndOffset:   c.EndOffset,
				Text:        c.Text,
			})
		}
	}
	return out
}

// handleRegulatoryPlan implements spec §6.1's GET /runs/{id}/regulatory-plan:
// the compiled plan is recomputed from the run's persisted manifest
// (bundle_refs, plan_hash) rather than stored verbatim, since plan_hash
// already lets a caller verify the recomputation matches what actually
// ran.
func (s *Server) handleRegulatoryPlan(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	runID := r.PathValue("id")

	run, err := s.DB.GetRun(r.Context(), tenantID, runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	plan, err := s.recompilePlan(r.Context(), tenantID, run)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, plan)
}

// recompilePlan reconstructs the compiled plan behind a run from its
// persisted manifest (bundle_refs) rather than a stored copy: plan_hash
// already lets a caller verify the recomputation matches what actually ran,
// so the plan itself never needs a dedicated storage table.
func (s *Server) recompilePlan(ctx context.Context, tenantID string, run *domain.Run) (*domain.CompiledPlan, error) {
	manifest, err := s.DB.GetManifest(ctx, run.RunID)
	if err != nil {
		return nil, err
	}
	company, err := s.DB.GetCompany(ctx, tenantID, run.CompanyID)
	if err != nil {
		return nil, err
	}

	candidates := s.Bundles.ActiveBundles()
	var selected []*bundle.Bundle
	for _, ref := range manifest.BundleRefs {
		for _, b := range candidates {
			if b.Raw.BundleID == ref.BundleID && b.Raw.Version == ref.Version {
				selected = append(selected, b)
			}
		}
	}
	if len(selected) == 0 {
		return nil, domain.NewError(domain.KindNotFound, "", fmt.Errorf("none of run %s's bundles are still active", run.RunID))
	}

	return compiler.Compile(*company, company.ReportingYear, selected, nil)
}

func isTerminal(status domain.RunStatus) bool {
	switch status {
	case domain.RunCompleted, domain.RunFailed, domain.RunIntegrityWarning:
		return true
	default:
		return false
	}
}
