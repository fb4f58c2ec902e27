// Package sqlstore is the concrete SQL-backed persistence layer behind
// pkg/httpapi and pkg/orchestrator.Store, grounded on the teacher's
// pkg/docstore/links.go schema-and-prepared-statement style (ON CONFLICT
// DO NOTHING for idempotent inserts, $1 placeholders, domain.NewError
// wrapping every *sql.DB failure as KindDependency).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// Store is the single SQL-backed persistence seam for companies,
// documents, runs, assessments, diagnostics, run events, manifests and
// coverage matrices. Works against either Postgres (lib/pq) or SQLite
// (modernc.org/sqlite), selected by the DSN the caller passed to
// sql.Open. The SQL is portable except for the SQLite-only AUTOINCREMENT
// column of run_events in the schema (see Init).
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS companies (
	company_id   TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	profile_json TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_companies_tenant ON companies(tenant_id);

CREATE TABLE IF NOT EXISTS documents (
	doc_hash       TEXT PRIMARY KEY,
	size           BIGINT NOT NULL,
	content_type   TEXT NOT NULL,
	parser_version TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	company_id     TEXT NOT NULL,
	status         TEXT NOT NULL,
	compiler_mode  TEXT NOT NULL,
	provider_id    TEXT NOT NULL,
	run_hash       TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	completed_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_tenant ON runs(tenant_id);

CREATE TABLE IF NOT EXISTS assessments (
	run_id             TEXT NOT NULL,
	datapoint_key      TEXT NOT NULL,
	status             TEXT NOT NULL,
	value              TEXT NOT NULL DEFAULT '',
	unit               TEXT NOT NULL DEFAULT '',
	year               INTEGER NOT NULL DEFAULT 0,
	baseline_year      INTEGER NOT NULL DEFAULT 0,
	baseline_value     TEXT NOT NULL DEFAULT '',
	rationale          TEXT NOT NULL DEFAULT '',
	evidence_chunk_ids TEXT NOT NULL DEFAULT '[]',
	prompt_hash        TEXT NOT NULL DEFAULT '',
	retrieval_params   TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (run_id, datapoint_key)
);

CREATE TABLE IF NOT EXISTS extraction_diagnostics (
	run_id                TEXT NOT NULL,
	datapoint_key         TEXT NOT NULL,
	retrieved_chunk_ids   TEXT NOT NULL DEFAULT '[]',
	retrieval_candidates  TEXT NOT NULL DEFAULT '[]',
	numeric_matches_found INTEGER NOT NULL DEFAULT 0,
	verification_status  TEXT NOT NULL DEFAULT '',
	failure_reason_code  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, datapoint_key)
);

CREATE TABLE IF NOT EXISTS run_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	tenant_id  TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);

CREATE TABLE IF NOT EXISTS run_manifests (
	run_id      TEXT PRIMARY KEY,
	manifest_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS coverage_matrices (
	run_id      TEXT PRIMARY KEY,
	matrix_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS api_keys (
	tenant_id  TEXT NOT NULL,
	key_hash   TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	revoked_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_api_keys_tenant ON api_keys(tenant_id);
`

// Init creates every table this store needs if absent. AUTOINCREMENT in
// run_events is SQLite syntax that Postgres rejects, so deployments
// targeting Postgres must swap that column to a SERIAL/IDENTITY in a
// migration; the dev default is SQLite and there is no runtime dialect
// switch.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return wrapDep("init schema", err)
	}
	return nil
}

func wrapDep(op string, err error) error {
	return domain.NewError(domain.KindDependency, "", fmt.Errorf("sqlstore: %s: %w", op, err))
}

// SaveCompany upserts a company profile by company_id; profiles are
// mutable (employee count, turnover, jurisdictions may change between
// runs), unlike documents and assessments.
func (s *Store) SaveCompany(ctx context.Context, c domain.Company) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal company: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO companies (company_id, tenant_id, profile_json, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (company_id) DO UPDATE SET profile_json = excluded.profile_json
	`, c.CompanyID, c.TenantID, string(data), time.Now().UTC())
	if err != nil {
		return wrapDep("save company", err)
	}
	return nil
}

// GetCompany fails with KindNotFound if companyID is unknown or belongs
// to a different tenant — cross-tenant reads must look identical to an
// absent record (spec §6.1: "Cross-tenant reads => 404, never a leak").
func (s *Store) GetCompany(ctx context.Context, tenantID, companyID string) (*domain.Company, error) {
	var profileJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_json FROM companies WHERE company_id = $1 AND tenant_id = $2
	`, companyID, tenantID).Scan(&profileJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "", fmt.Errorf("sqlstore: company %s", companyID))
	}
	if err != nil {
		return nil, wrapDep("get company", err)
	}
	var c domain.Company
	if err := json.Unmarshal([]byte(profileJSON), &c); err != nil {
		return nil, fmt.Errorf("sqlstore: unmarshal company: %w", err)
	}
	return &c, nil
}

// SaveDocument inserts document metadata idempotently by doc_hash; a
// second upload of identical bytes is a no-op, matching docstore's CAS
// idempotence (spec §4.1).
func (s *Store) SaveDocument(ctx context.Context, d domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (doc_hash, size, content_type, parser_version, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (doc_hash) DO NOTHING
	`, d.DocHash, d.Size, d.ContentType, d.ParserVersion, d.CreatedAt)
	if err != nil {
		return wrapDep("save document", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, docHash string) (*domain.Document, error) {
	var d domain.Document
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_hash, size, content_type, parser_version, created_at FROM documents WHERE doc_hash = $1
	`, docHash).Scan(&d.DocHash, &d.Size, &d.ContentType, &d.ParserVersion, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "", fmt.Errorf("sqlstore: document %s", docHash))
	}
	if err != nil {
		return nil, wrapDep("get document", err)
	}
	return &d, nil
}

func (s *Store) CreateRun(ctx context.Context, r domain.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, tenant_id, company_id, status, compiler_mode, provider_id, run_hash, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.RunID, r.TenantID, r.CompanyID, string(r.Status), r.CompilerMode, r.ProviderID, r.RunHash, r.FailureReason, r.CreatedAt)
	if err != nil {
		return wrapDep("create run", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, tenantID, runID string) (*domain.Run, error) {
	var r domain.Run
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, tenant_id, company_id, status, compiler_mode, provider_id, run_hash, failure_reason, created_at, completed_at
		FROM runs WHERE run_id = $1 AND tenant_id = $2
	`, runID, tenantID).Scan(&r.RunID, &r.TenantID, &r.CompanyID, &r.Status, &r.CompilerMode, &r.ProviderID, &r.RunHash, &r.FailureReason, &r.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "", fmt.Errorf("sqlstore: run %s", runID))
	}
	if err != nil {
		return nil, wrapDep("get run", err)
	}
	if completedAt.Valid {
		r.CompletedAt = completedAt.Time
	}
	return &r, nil
}

// UpdateRunStatus implements pkg/orchestrator.Store.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus, failureReason string) error {
	var completedAt interface{}
	if status == domain.RunCompleted || status == domain.RunFailed || status == domain.RunIntegrityWarning {
		completedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = $1, failure_reason = $2, completed_at = $3 WHERE run_id = $4
	`, string(status), failureReason, completedAt, runID)
	if err != nil {
		return wrapDep("update run status", err)
	}
	return nil
}

// SetRunHash records run_hash once the compiled plan and fingerprint are
// known, ahead of execution completing.
func (s *Store) SetRunHash(ctx context.Context, runID, runHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET run_hash = $1 WHERE run_id = $2`, runHash, runID)
	if err != nil {
		return wrapDep("set run hash", err)
	}
	return nil
}

// SaveAssessment implements pkg/orchestrator.Store.
func (s *Store) SaveAssessment(ctx context.Context, runID string, a domain.Assessment) error {
	evidence, err := json.Marshal(a.EvidenceChunkIDs)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal evidence chunk ids: %w", err)
	}
	params, err := json.Marshal(a.RetrievalParams)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal retrieval params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (run_id, datapoint_key, status, value, unit, year, baseline_year, baseline_value, rationale, evidence_chunk_ids, prompt_hash, retrieval_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, datapoint_key) DO UPDATE SET
			status = excluded.status, value = excluded.value, unit = excluded.unit,
			year = excluded.year, baseline_year = excluded.baseline_year, baseline_value = excluded.baseline_value,
			rationale = excluded.rationale, evidence_chunk_ids = excluded.evidence_chunk_ids,
			prompt_hash = excluded.prompt_hash, retrieval_params = excluded.retrieval_params
	`, runID, a.DatapointKey, string(a.Status), a.Value, a.Unit, a.Year, a.BaselineYear, a.BaselineValue,
		a.Rationale, string(evidence), a.PromptHash, string(params))
	if err != nil {
		return wrapDep("save assessment", err)
	}
	return nil
}

func (s *Store) ListAssessments(ctx context.Context, runID string) ([]domain.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT datapoint_key, status, value, unit, year, baseline_year, baseline_value, rationale, evidence_chunk_ids, prompt_hash, retrieval_params
		FROM assessments WHERE run_id = $1 ORDER BY datapoint_key ASC
	`, runID)
	if err != nil {
		return nil, wrapDep("list assessments", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Assessment
	for rows.Next() {
		var a domain.Assessment
		var evidence, params string
		if err := rows.Scan(&a.DatapointKey, &a.Status, &a.Value, &a.Unit, &a.Year, &a.BaselineYear, &a.BaselineValue, &a.Rationale, &evidence, &a.PromptHash, &params); err != nil {
			return nil, wrapDep("scan assessment", err)
		}
		_ = json.Unmarshal([]byte(evidence), &a.EvidenceChunkIDs)
		_ = json.Unmarshal([]byte(params), &a.RetrievalParams)
		a.RunID = runID
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveDiagnostic implements pkg/orchestrator.Store.
func (s *Store) SaveDiagnostic(ctx context.Context, d domain.ExtractionDiagnostic) error {
	chunkIDs, err := json.Marshal(d.RetrievedChunkIDs)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal retrieved chunk ids: %w", err)
	}
	candidates, err := json.Marshal(d.RetrievalCandidates)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal retrieval candidates: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO extraction_diagnostics (run_id, datapoint_key, retrieved_chunk_ids, retrieval_candidates, numeric_matches_found, verification_status, failure_reason_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, datapoint_key) DO UPDATE SET
			retrieved_chunk_ids = excluded.retrieved_chunk_ids, retrieval_candidates = excluded.retrieval_candidates,
			numeric_matches_found = excluded.numeric_matches_found, verification_status = excluded.verification_status,
			failure_reason_code = excluded.failure_reason_code
	`, d.RunID, d.DatapointKey, string(chunkIDs), string(candidates), d.NumericMatchesFound, d.VerificationStatus, string(d.FailureReasonCode))
	if err != nil {
		return wrapDep("save diagnostic", err)
	}
	return nil
}

func (s *Store) ListDiagnostics(ctx context.Context, runID string) ([]domain.ExtractionDiagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT datapoint_key, retrieved_chunk_ids, retrieval_candidates, numeric_matches_found, verification_status, failure_reason_code
		FROM extraction_diagnostics WHERE run_id = $1 ORDER BY datapoint_key ASC
	`, runID)
	if err != nil {
		return nil, wrapDep("list diagnostics", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.ExtractionDiagnostic
	for rows.Next() {
		var d domain.ExtractionDiagnostic
		var chunkIDs, candidates, reason string
		if err := rows.Scan(&d.DatapointKey, &chunkIDs, &candidates, &d.NumericMatchesFound, &d.VerificationStatus, &reason); err != nil {
			return nil, wrapDep("scan diagnostic", err)
		}
		_ = json.Unmarshal([]byte(chunkIDs), &d.RetrievedChunkIDs)
		_ = json.Unmarshal([]byte(candidates), &d.RetrievalCandidates)
		d.FailureReasonCode = domain.FailureReasonCode(reason)
		d.RunID = runID
		out = append(out, d)
	}
	return out, rows.Err()
}

// AppendEvent implements pkg/orchestrator.Store; run_events is
// append-only, never updated or deleted (spec §7 "Supplemented Features").
func (s *Store) AppendEvent(ctx context.Context, e domain.RunEvent) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, tenant_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.RunID, e.TenantID, e.EventType, string(payload), time.Now().UTC())
	if err != nil {
		return wrapDep("append event", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, tenant_id, event_type, payload, created_at FROM run_events WHERE run_id = $1 ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, wrapDep("list events", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.RunEvent
	for rows.Next() {
		var e domain.RunEvent
		var payload string
		if err := rows.Scan(&e.RunID, &e.TenantID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, wrapDep("scan event", err)
		}
		_ = json.Unmarshal([]byte(payload), &e.Payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SaveManifest(ctx context.Context, m domain.RunManifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal manifest: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_manifests (run_id, manifest_json) VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET manifest_json = excluded.manifest_json
	`, m.RunID, string(data))
	if err != nil {
		return wrapDep("save manifest", err)
	}
	return nil
}

func (s *Store) GetManifest(ctx context.Context, runID string) (*domain.RunManifest, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT manifest_json FROM run_manifests WHERE run_id = $1`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "", fmt.Errorf("sqlstore: manifest for run %s", runID))
	}
	if err != nil {
		return nil, wrapDep("get manifest", err)
	}
	var m domain.RunManifest
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("sqlstore: unmarshal manifest: %w", err)
	}
	return &m, nil
}

// SaveCoverage persists a coverage.Matrix by run_id; the caller marshals
// its own structure, this store is opaque to it.
func (s *Store) SaveCoverage(ctx context.Context, runID string, matrix interface{}) error {
	data, err := json.Marshal(matrix)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal coverage matrix: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coverage_matrices (run_id, matrix_json) VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET matrix_json = excluded.matrix_json
	`, runID, string(data))
	if err != nil {
		return wrapDep("save coverage", err)
	}
	return nil
}

func (s *Store) GetCoverageJSON(ctx context.Context, runID string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT matrix_json FROM coverage_matrices WHERE run_id = $1`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewError(domain.KindNotFound, "", fmt.Errorf("sqlstore: coverage for run %s", runID))
	}
	if err != nil {
		return nil, wrapDep("get coverage", err)
	}
	return []byte(data), nil
}

// SaveAPIKey registers keyHash (a SHA-256 hex digest, never the raw key)
// against tenantID. Raw keys are never persisted, matching the teacher's
// credentials package's refusal to store secrets unencrypted — here the
// secret is a bearer token the server only ever needs to compare, not
// decrypt, so a one-way hash serves instead of the teacher's AES vault.
func (s *Store) SaveAPIKey(ctx context.Context, tenantID, keyHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (tenant_id, key_hash, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (key_hash) DO NOTHING
	`, tenantID, keyHash, time.Now().UTC())
	if err != nil {
		return wrapDep("save api key", err)
	}
	return nil
}

// ValidateAPIKey reports whether keyHash is an active, unrevoked key
// bound to tenantID.
func (s *Store) ValidateAPIKey(ctx context.Context, tenantID, keyHash string) (bool, error) {
	var revokedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT revoked_at FROM api_keys WHERE tenant_id = $1 AND key_hash = $2
	`, tenantID, keyHash).Scan(&revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapDep("validate api key", err)
	}
	return !revokedAt.Valid, nil
}
