package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Atom1250/Compliance-App/pkg/bundle"
	"github.com/Atom1250/Compliance-App/pkg/compiler"
	"github.com/Atom1250/Compliance-App/pkg/coverage"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/evidencepack"
	"github.com/Atom1250/Compliance-App/pkg/orchestrator"
	"github.com/Atom1250/Compliance-App/pkg/retrieval"
	"github.com/Atom1250/Compliance-App/pkg/runcache"
	"github.com/google/uuid"
)

type createRunRequest struct {
	CompanyID string `json:"company_id"`
}

type createRunResponse struct {
	RunID  string           `json:"run_id"`
	Status domain.RunStatus `json:"status"`
}

// handleCreateRun implements spec §6.1's POST /runs: a run is created in
// queued status and only begins work on a subsequent execute call.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "Bad Request", "invalid JSON body", "")
		return
	}
	if req.CompanyID == "" {
		WriteError(w, r, http.StatusBadRequest, "Bad Request", "company_id is required", "")
		return
	}
	if _, err := s.DB.GetCompany(r.Context(), tenantID, req.CompanyID); err != nil {
		WriteFromError(w, r, err)
		return
	}

	run := domain.Run{
		RunID:     uuid.NewString(),
		TenantID:  tenantID,
		CompanyID: req.CompanyID,
		Status:    domain.RunQueued,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.DB.CreateRun(r.Context(), run); err != nil {
		WriteFromError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, createRunResponse{RunID: run.RunID, Status: run.Status})
}

type executeRunRequest struct {
	BundleID      string                  `json:"bundle_id"`
	BundleVersion string                  `json:"bundle_version"`
	ProviderID    string                  `json:"provider_id"`
	CompilerMode  string                  `json:"compiler_mode"`
	Materiality   []domain.RunMateriality `json:"materiality_overrides,omitempty"`
}

type executeRunResponse struct {
	RunID   string           `json:"run_id"`
	Status  domain.RunStatus `json:"status"`
	RunHash string           `json:"run_hash"`
	Replay  bool             `json:"replay"`
}

const (
	extractionTemplateVersion = "extract-v1"
	codeVersion               = "compliance-app-v1"
	reportTemplateVersion     = "report-v1"
)

// handleExecuteRun implements spec §6.1's POST /runs/{id}/execute and
// §4.11's idempotent run_hash replay: a second execute call with an
// identical fingerprint returns the cached result rather than re-running
// the pipeline.
func (s *Server) handleExecuteRun(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	runID := r.PathValue("id")

	run, err := s.DB.GetRun(r.Context(), tenantID, runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	var req executeRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "Bad Request", "invalid JSON body", "")
		return
	}
	if req.CompilerMode == "" {
		req.CompilerMode = "standard"
	}

	company, err := s.DB.GetCompany(r.Context(), tenantID, run.CompanyID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	candidates := s.Bundles.ActiveBundles()
	var selected []*bundle.Bundle
	if req.BundleID != "" {
		for _, b := range candidates {
			if b.Raw.BundleID == req.BundleID && (req.BundleVersion == "" || b.Raw.Version == req.BundleVersion) {
				selected = append(selected, b)
			}
		}
	} else {
		selected = compiler.SelectLatestBundles(compiler.SelectBundlesForCompany(*company, candidates))
	}
	if len(selected) == 0 {
		WriteError(w, r, http.StatusBadRequest, "Bad Request", "no matching bundle is active for this company", "NO_APPLICABLE_BUNDLE")
		return
	}

	plan, err := compiler.Compile(*company, company.ReportingYear, selected, req.Materiality)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	index, _, docHashes, err := s.buildCompanyIndex(r.Context(), tenantID, run.CompanyID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	providerIdentity := s.Provider.Identity()
	fp := runcache.Fingerprint{
		DocumentHashes:         docHashes,
		CompanyProfileSnapshot: companySnapshot(*company),
		MaterialitySnapshot:    req.Materiality,
		BundleRefs:             bundleRefs(selected),
		CompilerMode:           req.CompilerMode,
		RetrievalParams: domain.RetrievalParams{
			TopK: retrieval.DefaultPolicy.TopK, LexicalWeight: retrieval.DefaultPolicy.LexicalWeight,
			VectorWeight: retrieval.DefaultPolicy.VectorWeight, NormalizationMode: retrieval.DefaultPolicy.NormalizationMode,
		},
		ProviderIdentity:      providerIdentity,
		PromptTemplateVersion: extractionTemplateVersion,
		CodeVersion:           codeVersion,
	}
	runHash, err := runcache.RunHash(fp)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	if entry, err := s.Cache.Get(r.Context(), runHash); err == nil && entry != nil {
		_ = s.DB.SetRunHash(r.Context(), runID, runHash)
		_ = s.DB.UpdateRunStatus(r.Context(), runID, domain.RunCompleted, "")
		WriteJSON(w, http.StatusOK, executeRunResponse{RunID: runID, Status: domain.RunCompleted, RunHash: runHash, Replay: true})
		return
	}

	if err := s.DB.SetRunHash(r.Context(), runID, runHash); err != nil {
		WriteFromError(w, r, err)
		return
	}

	orch := orchestrator.New(s.DB, s.Provider, index, retrieval.DefaultPolicy)
	if err := orch.Run(r.Context(), *run, plan); err != nil {
		WriteFromError(w, r, err)
		return
	}

	finalRun, err := s.DB.GetRun(r.Context(), tenantID, runID)
	if err != nil {
		WriteFromError(w, r, err)
		return
	}

	if err := s.finalizeRun(r.Context(), *finalRun, plan, docHashes, selected, runHash, req.CompilerMode, providerIdentity); err != nil {
		WriteFromError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, executeRunResponse{RunID: runID, Status: finalRun.Status, RunHash: runHash, Replay: false})
}

func companySnapshot(c domain.Company) map[string]interface{} {
	data, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	_ = json.Unmarshal(data, &out)
	return out
}

func bundleRefs(bundles []*bundle.Bundle) []domain.BundleRef {
	out := make([]domain.BundleRef, len(bundles))
	for i, b := range bundles {
		out[i] = domain.BundleRef{BundleID: b.Raw.BundleID, Version: b.Raw.Version, Checksum: b.Checksum}
	}
	return out
}

func declaredStandards(plan *domain.CompiledPlan) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range plan.Obligations {
		if !seen[o.Standard] {
			seen[o.Standard] = true
			out = append(out, o.Standard)
		}
	}
	sort.Strings(out)
	return out
}

// finalizeRun builds and persists the run manifest and coverage matrix
// once the orchestrator loop has completed, then records the run_hash
// cache entry that makes a repeat execute call a replay (spec §4.11). The
// manifest, coverage, and assessments bytes are themselves stored
// content-addressed in the document store, so the cache entry's refs are
// ordinary doc_hashes rather than a bespoke blob format.
func (s *Server) finalizeRun(ctx context.Context, run domain.Run, plan *domain.CompiledPlan, docHashes []string, selected []*bundle.Bundle, runHash, compilerMode, providerIdentity string) error {
	assessments, err := s.DB.ListAssessments(ctx, run.RunID)
	if err != nil {
		return err
	}

	matrix := coverage.Build(plan, assessments, declaredStandards(plan))
	flat := flattenCoverage(matrix)
	if err := s.DB.SaveCoverage(ctx, run.RunID, matrix); err != nil {
		return err
	}

	manifest := domain.RunManifest{
		RunID:          run.RunID,
		RunHash:        runHash,
		DocumentHashes: sortedStrings(docHashes),
		BundleRefs:     bundleRefs(selected),
		PlanHash:       plan.PlanHash,
		CompilerMode:   compilerMode,
		RetrievalParams: domain.RetrievalParams{
			TopK: retrieval.DefaultPolicy.TopK, LexicalWeight: retrieval.DefaultPolicy.LexicalWeight,
			VectorWeight: retrieval.DefaultPolicy.VectorWeight, NormalizationMode: retrieval.DefaultPolicy.NormalizationMode,
		},
		ProviderIdentity:      providerIdentity,
		PromptTemplateVersion: extractionTemplateVersion,
		CodeVersion:           codeVersion,
		ReportTemplateVersion: reportTemplateVersion,
		GeneratedAt:           time.Now().UTC(),
	}
	if len(s.EvidenceSigningSeed) > 0 {
		signer, err := evidencepack.DeriveTenantSigner(s.EvidenceSigningSeed, run.TenantID)
		if err != nil {
			return fmt.Errorf("finalizeRun: derive tenant signer: %w", err)
		}
		if _, err := evidencepack.SignManifest(ctx, s.EvidenceRegistry, signer, &manifest); err != nil {
			return fmt.Errorf("finalizeRun: sign manifest: %w", err)
		}
		if err := s.signDecisionEvidence(ctx, run.RunID, signer, plan, assessments); err != nil {
			return fmt.Errorf("finalizeRun: sign decision evidence: %w", err)
		}
	}
	if err := s.DB.SaveManifest(ctx, manifest); err != nil {
		return err
	}

	manifestRef, err := s.blobRef(ctx, manifest)
	if err != nil {
		return err
	}
	assessmentsRef, err := s.blobRef(ctx, assessments)
	if err != nil {
		return err
	}
	coverageRef, err := s.blobRef(ctx, flat)
	if err != nil {
		return err
	}

	return s.Cache.Put(ctx, domain.RunCacheEntry{
		RunHash:        runHash,
		ManifestRef:    manifestRef,
		AssessmentsRef: assessmentsRef,
		CoverageRef:    coverageRef,
	})
}

// checkKindByReason maps a verification failure reason code (spec §4.9) to
// the VerificationCheck kind that raised it, for the signed per-check
// evidence envelope. Reasons outside the verification engine's own
// numeric/unit/year/baseline/citation checks (e.g. applicability outcomes)
// have no corresponding check record.
var checkKindByReason = map[domain.FailureReasonCode]string{
	domain.ReasonNumericMismatch: "NUMERIC",
	domain.ReasonUnitMismatch:    "UNIT",
	domain.ReasonYearMissing:     "YEAR",
	domain.ReasonBaselineMissing: "BASELINE",
	domain.ReasonChunkNotFound:   "CITATION",
	domain.ReasonEmptyChunk:      "CITATION",
}

// signDecisionEvidence signs and registers a TypeDecisionRecord envelope
// for every assessment and, where the verification engine ran a check
// against it, a TypeVerificationCheck envelope, so an auditor can fetch
// either the per-datapoint decision or the specific check it was held to
// without replaying the whole run (spec §4.9/§4.12).
func (s *Server) signDecisionEvidence(ctx context.Context, runID string, signer evidencepack.Signer, plan *domain.CompiledPlan, assessments []domain.Assessment) error {
	obligationByKey := make(map[string]string, len(plan.Datapoints))
	for _, dp := range plan.Datapoints {
		obligationByKey[dp.DatapointKey] = dp.ObligationCode
	}

	diagnostics, err := s.DB.ListDiagnostics(ctx, runID)
	if err != nil {
		return err
	}
	diagByKey := make(map[string]domain.ExtractionDiagnostic, len(diagnostics))
	for _, d := range diagnostics {
		diagByKey[d.DatapointKey] = d
	}

	for _, a := range assessments {
		rec := evidencepack.DecisionRecord{
			DatapointID:    a.DatapointKey,
			ObligationCode: obligationByKey[a.DatapointKey],
			PresenceState:  string(a.Status),
			CitedChunkIDs:  a.EvidenceChunkIDs,
			ExtractedValue: a.Value,
		}
		diag, ok := diagByKey[a.DatapointKey]
		if ok {
			rec.FailureReasonCode = string(diag.FailureReasonCode)
		}
		if _, err := evidencepack.SignDecisionRecord(ctx, s.EvidenceRegistry, signer, runID, rec); err != nil {
			return err
		}
		if !ok || diag.FailureReasonCode == "" {
			continue
		}

		kind, known := checkKindByReason[diag.FailureReasonCode]
		if !known {
			continue
		}
		var chunkID string
		if len(a.EvidenceChunkIDs) > 0 {
			chunkID = a.EvidenceChunkIDs[0]
		}
		check := evidencepack.VerificationCheck{
			DatapointID: a.DatapointKey,
			CheckKind:   kind,
			ChunkID:     chunkID,
			Passed:      false,
			Detail:      string(diag.FailureReasonCode),
		}
		if _, err := evidencepack.SignVerificationCheck(ctx, s.EvidenceRegistry, signer, runID, check); err != nil {
			return err
		}
	}
	return nil
}

// blobRef JSON-marshals v and stores it content-addressed, returning its
// doc_hash as a cache-entry ref.
func (s *Server) blobRef(ctx context.Context, v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return s.Docs.Put(ctx, data)
}

func flattenCoverage(m coverage.Matrix) []domain.ObligationCoverage {
	var out []domain.ObligationCoverage
	for _, sec := range m.Sections {
		out = append(out, sec.Obligations...)
	}
	return out
}

func sortedStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
