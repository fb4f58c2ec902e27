// Package runcache implements the run-hash cache of spec §4.11: the
// run_hash fingerprint formula, and write-once-per-run_hash lookup/store
// semantics with a Redis fast path backed by SQL, grounded on the
// teacher's pkg/metering dual Postgres/SQLite backend style.
package runcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Atom1250/Compliance-App/pkg/canonicalize"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/redis/go-redis/v9"
)

// Fingerprint is the exact input set to run_hash (spec §4.11): every field
// that can change a run's output must appear here, nothing else may.
type Fingerprint struct {
	DocumentHashes         []string                `json:"document_hashes"`
	CompanyProfileSnapshot map[string]interface{}  `json:"company_profile_snapshot"`
	MaterialitySnapshot    []domain.RunMateriality `json:"materiality_snapshot"`
	BundleRefs             []domain.BundleRef      `json:"bundle_refs"`
	CompilerMode           string                  `json:"compiler_mode"`
	RetrievalParams        domain.RetrievalParams  `json:"retrieval_params"`
	ProviderIdentity       string                  `json:"provider_identity"`
	PromptTemplateVersion  string                  `json:"prompt_template_version"`
	CodeVersion            string                  `json:"code_version"`
}

// RunHash computes run_hash = SHA-256(canonical(fingerprint)), sorting
// DocumentHashes and BundleRefs first so caller-side ordering never leaks
// into the hash (the formula is defined over sets, not sequences).
func RunHash(fp Fingerprint) (string, error) {
	sorted := fp
	sorted.DocumentHashes = sortedCopy(fp.DocumentHashes)
	sorted.BundleRefs = sortedBundleRefs(fp.BundleRefs)
	sorted.MaterialitySnapshot = sortedMateriality(fp.MaterialitySnapshot)

	data, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("runcache: marshal fingerprint: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("runcache: unmarshal fingerprint: %w", err)
	}
	return canonicalize.CanonicalHash(generic)
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func sortedBundleRefs(in []domain.BundleRef) []domain.BundleRef {
	out := make([]domain.BundleRef, len(in))
	copy(out, in)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && key(out[j-1]) > key(out[j]); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func key(r domain.BundleRef) string { return r.BundleID + "@" + r.Version }

func sortedMateriality(in []domain.RunMateriality) []domain.RunMateriality {
	out := make([]domain.RunMateriality, len(in))
	copy(out, in)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Topic > out[j].Topic; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// ErrAlreadyCached signals a write-once violation: a second completion
// attempt for a run_hash that already has a stored entry is a no-op, not
// an overwrite (spec §4.11: "a second concurrent completion with the same
// run_hash is a no-op").
var ErrAlreadyCached = errors.New("runcache: entry already exists for run_hash")

// Store is the SQL-backed write-once cache; Redis (via Cache) sits in
// front of it as a read-through fast path.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS run_cache_entries (
	run_hash       TEXT PRIMARY KEY,
	manifest_ref   TEXT NOT NULL,
	assessments_ref TEXT NOT NULL,
	coverage_ref   TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL
);
`

func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Get looks up a cache entry by run_hash (spec §4.11: "Lookup by run_hash
// only").
func (s *Store) Get(ctx context.Context, runHash string) (*domain.RunCacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_hash, manifest_ref, assessments_ref, coverage_ref FROM run_cache_entries WHERE run_hash = $1`, runHash)

	var e domain.RunCacheEntry
	if err := row.Scan(&e.RunHash, &e.ManifestRef, &e.AssessmentsRef, &e.CoverageRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("runcache: get: %w", err)
	}
	return &e, nil
}

// Put inserts a cache entry, enforcing write-once: an existing row for
// the same run_hash is left untouched and ErrAlreadyCached is returned.
func (s *Store) Put(ctx context.Context, e domain.RunCacheEntry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_cache_entries (run_hash, manifest_ref, assessments_ref, coverage_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_hash) DO NOTHING`,
		e.RunHash, e.ManifestRef, e.AssessmentsRef, e.CoverageRef, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("runcache: put: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAlreadyCached
	}
	return nil
}

// Cache is the Redis-fronted read-through wrapper around Store, grounded
// on original_source's run-cache lookup preceding any orchestrator work
// (spec §4.11: "A cache lookup precedes any work").
type Cache struct {
	redis *redis.Client
	store *Store
	ttl   time.Duration
}

func NewCache(redisClient *redis.Client, store *Store, ttl time.Duration) *Cache {
	return &Cache{redis: redisClient, store: store, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, runHash string) (*domain.RunCacheEntry, error) {
	if c.redis != nil {
		val, err := c.redis.Get(ctx, redisKey(runHash)).Result()
		if err == nil {
			var e domain.RunCacheEntry
			if jsonErr := json.Unmarshal([]byte(val), &e); jsonErr == nil {
				return &e, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			// Redis unavailable: fall through to the SQL store rather
			// than fail the lookup (spec §9: cache is an optimization,
			// not a source of truth).
			_ = err
		}
	}

	entry, err := c.store.Get(ctx, runHash)
	if err != nil || entry == nil {
		return entry, err
	}

	if c.redis != nil {
		if data, jsonErr := json.Marshal(entry); jsonErr == nil {
			_ = c.redis.Set(ctx, redisKey(runHash), data, c.ttl).Err()
		}
	}
	return entry, nil
}

func (c *Cache) Put(ctx context.Context, e domain.RunCacheEntry) error {
	if err := c.store.Put(ctx, e); err != nil {
		return err
	}
	if c.redis != nil {
		if data, jsonErr := json.Marshal(e); jsonErr == nil {
			_ = c.redis.Set(ctx, redisKey(e.RunHash), data, c.ttl).Err()
		}
	}
	return nil
}

func redisKey(runHash string) string { return "runcache:" + runHash }
