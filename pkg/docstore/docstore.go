package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// DocStore is the taxonomy-aware façade over a content-addressed Store
// (spec §4.1): Put is idempotent by doc_hash, Get re-hashes on read and
// fails closed with INTEGRITY on mismatch instead of returning bytes that
// no longer match their own key.
type DocStore struct {
	store Store
}

// NewDocStore wraps a content-addressed Store.
func NewDocStore(store Store) *DocStore {
	return &DocStore{store: store}
}

// Put stores bytes and returns the bare hex doc_hash (no "sha256:" prefix,
// matching spec §3's doc_hash = SHA-256(bytes) definition exactly).
func (d *DocStore) Put(ctx context.Context, data []byte) (string, error) {
	prefixed, err := d.store.Store(ctx, data)
	if err != nil {
		return "", domain.NewError(domain.KindDependency, "STORAGE_UNAVAILABLE", err)
	}
	return strings.TrimPrefix(prefixed, "sha256:"), nil
}

// Get retrieves bytes by doc_hash, re-hashing to catch silent corruption.
func (d *DocStore) Get(ctx context.Context, docHash string) ([]byte, error) {
	data, err := d.store.Get(ctx, "sha256:"+docHash)
	if err != nil {
		return nil, domain.NewError(domain.KindNotFound, "", err)
	}

	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != docHash {
		return nil, domain.NewError(domain.KindIntegrity, "INTEGRITY_MISMATCH",
			fmt.Errorf("docstore: stored bytes for %s re-hash to %s", docHash, got))
	}
	return data, nil
}

// Exists reports whether docHash is present, without re-hashing.
func (d *DocStore) Exists(ctx context.Context, docHash string) (bool, error) {
	ok, err := d.store.Exists(ctx, "sha256:"+docHash)
	if err != nil {
		return false, domain.NewError(domain.KindDependency, "STORAGE_UNAVAILABLE", err)
	}
	return ok, nil
}
