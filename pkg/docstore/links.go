package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// LinkStore persists CompanyDocumentLink rows and answers the
// company-scoped visibility queries that keep retrieval from crossing a
// tenant boundary (spec §4.1, testable property 9).
type LinkStore struct {
	db *sql.DB
}

// NewLinkStore wraps an already-open *sql.DB (Postgres via lib/pq in
// production, modernc.org/sqlite in dev/test — the driver is selected by
// the DSN the caller passed to sql.Open, not by this package).
func NewLinkStore(db *sql.DB) *LinkStore {
	return &LinkStore{db: db}
}

const linkSchema = `
CREATE TABLE IF NOT EXISTS company_document_links (
	tenant_id  TEXT NOT NULL,
	company_id TEXT NOT NULL,
	doc_hash   TEXT NOT NULL,
	linked_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (tenant_id, company_id, doc_hash)
);
CREATE INDEX IF NOT EXISTS idx_company_document_links_company
	ON company_document_links(tenant_id, company_id);
`

// Init creates the link table if it does not already exist.
func (s *LinkStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, linkSchema); err != nil {
		return domain.NewError(domain.KindDependency, "", fmt.Errorf("docstore: init link schema: %w", err))
	}
	return nil
}

// Link grants companyID (under tenantID) visibility into docHash. Re-
// linking the same triple is a no-op: CompanyDocumentLink rows, like
// Documents, are never mutated, only inserted.
func (s *LinkStore) Link(ctx context.Context, tenantID, companyID, docHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO company_document_links (tenant_id, company_id, doc_hash, linked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, company_id, doc_hash) DO NOTHING
	`, tenantID, companyID, docHash, time.Now().UTC())
	if err != nil {
		return domain.NewError(domain.KindDependency, "", fmt.Errorf("docstore: link: %w", err))
	}
	return nil
}

// IsLinked reports whether docHash is visible to companyID under tenantID.
func (s *LinkStore) IsLinked(ctx context.Context, tenantID, companyID, docHash string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM company_document_links
		WHERE tenant_id = $1 AND company_id = $2 AND doc_hash = $3
	`, tenantID, companyID, docHash).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, domain.NewError(domain.KindDependency, "", fmt.Errorf("docstore: is linked: %w", err))
	}
	return true, nil
}

// LinkedDocHashes returns every doc_hash linked to companyID under
// tenantID, ordered ascending so callers get a stable scope set.
func (s *LinkStore) LinkedDocHashes(ctx context.Context, tenantID, companyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_hash FROM company_document_links
		WHERE tenant_id = $1 AND company_id = $2
		ORDER BY doc_hash ASC
	`, tenantID, companyID)
	if err != nil {
		return nil, domain.NewError(domain.KindDependency, "", fmt.Errorf("docstore: linked doc hashes: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, domain.NewError(domain.KindDependency, "", fmt.Errorf("docstore: scan doc hash: %w", err))
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewError(domain.KindDependency, "", fmt.Errorf("docstore: iterate doc hashes: %w", err))
	}
	return hashes, nil
}
