package domain

import "time"

// AssessmentStatus is a datapoint's compliance verdict (spec §3).
type AssessmentStatus string

const (
	StatusPresent     AssessmentStatus = "Present"
	StatusPartial     AssessmentStatus = "Partial"
	StatusAbsent      AssessmentStatus = "Absent"
	StatusNA          AssessmentStatus = "NA"
	StatusNeedsReview AssessmentStatus = "Needs-Review"
)

// RunStatus is the orchestrator's state-machine position (spec §4.10).
type RunStatus string

const (
	RunQueued           RunStatus = "queued"
	RunRunning          RunStatus = "running"
	RunCompleted        RunStatus = "completed"
	RunFailed           RunStatus = "failed"
	RunIntegrityWarning RunStatus = "integrity_warning"
)

// CoverageLevel is an obligation's rolled-up coverage state (spec §3).
type CoverageLevel string

const (
	CoverageFull    CoverageLevel = "Full"
	CoveragePartial CoverageLevel = "Partial"
	CoverageAbsent  CoverageLevel = "Absent"
	CoverageNA      CoverageLevel = "NA"
)

// DatapointType distinguishes metric datapoints (numeric value/unit/year,
// optionally a baseline) from narrative ones.
type DatapointType string

const (
	DatapointNarrative DatapointType = "narrative"
	DatapointMetric    DatapointType = "metric"
)

// Document is an immutable, content-addressed byte blob (spec §3, §4.1).
type Document struct {
	DocHash       string    `json:"doc_hash"`
	Size          int64     `json:"size"`
	ContentType   string    `json:"content_type"`
	ParserVersion string    `json:"parser_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// CompanyDocumentLink grants a company visibility into a document, scoped
// to a tenant. Retrieval must never cross this boundary (spec §4.1, TP9).
type CompanyDocumentLink struct {
	TenantID  string    `json:"tenant_id"`
	CompanyID string    `json:"company_id"`
	DocHash   string    `json:"doc_hash"`
	LinkedAt  time.Time `json:"linked_at"`
}

// Page is one page of extracted text from a Document (spec §3, §4.2).
type Page struct {
	DocHash       string `json:"doc_hash"`
	PageNumber    int    `json:"page_number"`
	Text          string `json:"text"`
	CharCount     int    `json:"char_count"`
	ParserVersion string `json:"parser_version"`
}

// Chunk is a fixed-rule substring of a page with a content-derived stable
// ID (spec §3, §4.3).
type Chunk struct {
	ChunkID     string    `json:"chunk_id"`
	DocHash     string    `json:"doc_hash"`
	PageNumber  int       `json:"page_number"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Text        string    `json:"text"`
	TokenCount  int       `json:"token_count"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// Company is the subject of an assessment run (original_source
// apps/api/app/db/models.py, supplemented per SPEC_FULL §3).
type Company struct {
	CompanyID               string   `json:"company_id"`
	TenantID                string   `json:"tenant_id"`
	Name                    string   `json:"name"`
	Employees               int      `json:"employees"`
	Turnover                float64  `json:"turnover"`
	ListedStatus            bool     `json:"listed_status"`
	ReportingYear           int      `json:"reporting_year"`
	ReportingYearStart      string   `json:"reporting_year_start"`
	ReportingYearEnd        string   `json:"reporting_year_end"`
	Jurisdictions           []string `json:"jurisdictions"`
	RegulatoryRegimes       []string `json:"regulatory_regimes"`
	RegulatoryJurisdictions []string `json:"regulatory_jurisdictions"`
}

// RunMateriality is a per-run, per-topic materiality override that can
// suppress otherwise-applicable datapoints under an immaterial topic
// (original_source apps/api/app/requirements/applicability.py).
type RunMateriality struct {
	Topic      string `json:"topic"`
	IsMaterial bool   `json:"is_material"`
}

// Obligation is a grouped set of datapoints within a compiled plan.
type Obligation struct {
	ObligationCode  string      `json:"obligation_code"`
	Name            string      `json:"name"`
	Standard        string      `json:"standard"` // e.g. "E1", "S1", "G1", "Cross-cutting"
	SourceRecordIDs []string    `json:"source_record_ids,omitempty"`
	Datapoints      []Datapoint `json:"datapoints"`
	ExcludedReason  string      `json:"excluded_reason,omitempty"`
}

// Datapoint is a single disclosure obligation evaluated independently.
type Datapoint struct {
	DatapointKey     string        `json:"datapoint_key"`
	ObligationCode   string        `json:"obligation_code"`
	Title            string        `json:"title"`
	DisclosureRef    string        `json:"disclosure_reference"`
	DatapointType    DatapointType `json:"datapoint_type"`
	RequiresBaseline bool          `json:"requires_baseline"`
	MaterialityTopic string        `json:"materiality_topic,omitempty"`
	Mandatory        bool          `json:"mandatory"`
	ExcludedReason   string        `json:"excluded_reason,omitempty"`
}

// CompiledPlan is the ordered, applicability-filtered obligation and
// datapoint set for one (company, year) (spec §3, §4.6).
type CompiledPlan struct {
	CompanyID     string       `json:"company_id"`
	ReportingYear int          `json:"reporting_year"`
	Regime        string       `json:"regime"`
	Cohort        string       `json:"cohort"`
	PhaseInFlags  []string     `json:"phase_in_flags"`
	Obligations   []Obligation `json:"obligation_list"`
	Datapoints    []Datapoint  `json:"datapoint_list"`
	PlanHash      string       `json:"plan_hash"`
}

// Run is one execution of the pipeline against a company (spec §3).
type Run struct {
	RunID         string    `json:"run_id"`
	TenantID      string    `json:"tenant_id"`
	CompanyID     string    `json:"company_id"`
	Status        RunStatus `json:"status"`
	CompilerMode  string    `json:"compiler_mode"`
	ProviderID    string    `json:"provider_id"`
	RunHash       string    `json:"run_hash"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	CompletedAt   time.Time `json:"completed_at,omitempty"`
}

// Assessment is a datapoint's persisted verdict (spec §3).
type Assessment struct {
	RunID            string           `json:"run_id"`
	DatapointKey     string           `json:"datapoint_key"`
	Status           AssessmentStatus `json:"status"`
	Value            string           `json:"value,omitempty"`
	Unit             string           `json:"unit,omitempty"`
	Year             int              `json:"year,omitempty"`
	BaselineYear     int              `json:"baseline_year,omitempty"`
	BaselineValue    string           `json:"baseline_value,omitempty"`
	Rationale        string           `json:"rationale"`
	EvidenceChunkIDs []string         `json:"evidence_chunk_ids"`
	PromptHash       string           `json:"prompt_hash"`
	RetrievalParams  RetrievalParams  `json:"retrieval_params"`
}

// RetrievalParams are the actual parameters used for one retrieval call,
// recorded so the retrieval state is replayable (spec §4.4).
type RetrievalParams struct {
	TopK              int     `json:"top_k"`
	LexicalWeight     float64 `json:"lexical_weight"`
	VectorWeight      float64 `json:"vector_weight"`
	NormalizationMode string  `json:"normalization_mode"`
}

// ExtractionDiagnostic records the per-datapoint retrieval/extraction
// trail, including near-miss candidates beyond the selected top-k
// (original_source run_registry_artifacts.persist_retrieval_trace_for_run).
type ExtractionDiagnostic struct {
	RunID               string               `json:"run_id"`
	DatapointKey        string               `json:"datapoint_key"`
	RetrievedChunkIDs   []string             `json:"retrieved_chunk_ids"`
	RetrievalCandidates []RetrievalCandidate `json:"retrieval_candidates,omitempty"`
	NumericMatchesFound int                  `json:"numeric_matches_found"`
	VerificationStatus  string               `json:"verification_status"`
	FailureReasonCode   FailureReasonCode    `json:"failure_reason_code,omitempty"`
}

// RetrievalCandidate is one ranked candidate considered for a datapoint,
// whether or not it made the final top-k cut.
type RetrievalCandidate struct {
	ChunkID       string  `json:"chunk_id"`
	LexicalScore  float64 `json:"lexical_score"`
	VectorScore   float64 `json:"vector_score"`
	CombinedScore float64 `json:"combined_score"`
	Selected      bool    `json:"selected"`
}

// ObligationCoverage is an obligation's rolled-up coverage state (spec §3, §4.13).
type ObligationCoverage struct {
	PlanHash       string        `json:"plan_id"`
	ObligationCode string        `json:"obligation_code"`
	Standard       string        `json:"standard"`
	Level          CoverageLevel `json:"level"`
}

// RunManifest captures every fingerprint that determines a run's output,
// written once at completion (spec §3, §4.11, §4.12).
type RunManifest struct {
	RunID                 string          `json:"run_id"`
	RunHash               string          `json:"run_hash"`
	DocumentHashes        []string        `json:"document_hashes"`
	BundleRefs            []BundleRef     `json:"bundle_refs"`
	PlanHash              string          `json:"plan_hash"`
	CompilerMode          string          `json:"compiler_mode"`
	RetrievalParams       RetrievalParams `json:"retrieval_params"`
	ProviderIdentity      string          `json:"provider_identity"`
	PromptTemplateVersion string          `json:"prompt_template_version"`
	CodeVersion           string          `json:"code_version"`
	ReportTemplateVersion string          `json:"report_template_version"`
	GitSHA                string          `json:"git_sha"`
	GeneratedAt           time.Time       `json:"generated_at"`
	Signature             string          `json:"signature,omitempty"`
	SignatureKeyID        string          `json:"signature_key_id,omitempty"`
	SignedEnvelopeRef     string          `json:"signed_envelope_ref,omitempty"`
	EvidenceMerkleRoot    string          `json:"evidence_merkle_root,omitempty"`
}

// BundleRef identifies one bundle version contributing to a run.
type BundleRef struct {
	BundleID string `json:"bundle_id"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
}

// RunCacheEntry is a write-once-per-run_hash pointer to a prior run's
// stored outputs (spec §3, §4.11).
type RunCacheEntry struct {
	RunHash        string `json:"run_hash"`
	ManifestRef    string `json:"manifest_ref"`
	AssessmentsRef string `json:"assessments_ref"`
	CoverageRef    string `json:"coverage_ref"`
}

// RunEvent is one entry in a run's append-only audit trail
// (original_source apps/api/app/services/audit.append_run_event).
type RunEvent struct {
	RunID     string                 `json:"run_id"`
	TenantID  string                 `json:"tenant_id"`
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
