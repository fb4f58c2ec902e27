package evidencepack

import (
	"encoding/json"
	"time"
)

// Evidence envelope types, one per manifest.json entry kind (spec.md §4.12).
const (
	TypeRunManifest       = "evidence/run-manifest"
	TypeDecisionRecord    = "evidence/decision-record"
	TypeRetrievalTrace    = "evidence/retrieval-trace"
	TypeCoverageMatrix    = "evidence/coverage-matrix"
	TypeVerificationCheck = "evidence/verification-check"
)

// Envelope is the signed wrapper a Registry stores, content-addressed, for
// one evidence record of a run; BuildArchive does not put envelopes in the
// tar archive. Signing lets a downstream auditor confirm a record was
// produced by this run and not substituted afterward.
type Envelope struct {
	Type           string          `json:"type"`
	SchemaVersion  string          `json:"schema_version"`
	RunID          string          `json:"run_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload"`
	Signature      string          `json:"signature"`
	SignatureKeyID string          `json:"signature_key_id"`
}

// DecisionRecord is the per-datapoint decision persisted alongside the
// run's coverage matrix: its presence state, the chunk(s) it was grounded
// on, and the downgrade reason if any (spec.md §4.9/§4.10).
type DecisionRecord struct {
	DatapointID       string   `json:"datapoint_id"`
	ObligationCode    string   `json:"obligation_code"`
	PresenceState     string   `json:"presence_state"` // a domain.AssessmentStatus: Present | Partial | Absent | NA | Needs-Review
	CitedChunkIDs     []string `json:"cited_chunk_ids"`
	FailureReasonCode string   `json:"failure_reason_code,omitempty"`
	ExtractedValue    string   `json:"extracted_value,omitempty"`
}

// VerificationCheck records one cross-check performed by the verification
// engine (numeric, unit, year, baseline, citation) against a cited chunk.
type VerificationCheck struct {
	DatapointID string `json:"datapoint_id"`
	CheckKind   string `json:"check_kind"` // NUMERIC | UNIT | YEAR | BASELINE | CITATION
	ChunkID     string `json:"chunk_id"`
	Passed      bool   `json:"passed"`
	Detail      string `json:"detail,omitempty"`
}
