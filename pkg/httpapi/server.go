package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/Atom1250/Compliance-App/pkg/docstore"
	"github.com/Atom1250/Compliance-App/pkg/evidencepack"
	"github.com/Atom1250/Compliance-App/pkg/extraction"
	"github.com/Atom1250/Compliance-App/pkg/policyloader"
	"github.com/Atom1250/Compliance-App/pkg/runcache"
	"github.com/Atom1250/Compliance-App/pkg/sqlstore"
)

// Server holds every dependency the HTTP surface needs, wired once at
// process start (cmd/compliance-server) and passed by reference to every
// handler — grounded on the teacher's cmd/helm/main.go composition-root
// style rather than a global registry.
type Server struct {
	DB       *sqlstore.Store
	Docs     *docstore.DocStore
	Links    *docstore.LinkStore
	Bundles  *policyloader.Loader
	Provider extraction.Provider
	Cache    *runcache.Cache
	JWT      JWTSecret
	Logger   *slog.Logger

	// EvidenceSigningSeed, when non-empty, enables per-tenant manifest
	// signing (spec §4.12 enrichment): finalizeRun derives a tenant signer
	// from this master seed via evidencepack.DeriveTenantSigner and
	// registers a signed envelope alongside the manifest. Nil disables
	// signing entirely — no signature fields are stamped.
	EvidenceSigningSeed []byte
	EvidenceRegistry    *evidencepack.Registry
}

// NewServer wires a Server with teacher-style defaults (a no-op logger
// falls back to slog.Default(), matching pkg/orchestrator.New). Evidence
// manifest signing is off by default; call EnableEvidenceSigning to turn
// it on.
func NewServer(db *sqlstore.Store, docs *docstore.DocStore, links *docstore.LinkStore, bundles *policyloader.Loader, provider extraction.Provider, cache *runcache.Cache, jwtSecret JWTSecret) *Server {
	return &Server{
		DB: db, Docs: docs, Links: links, Bundles: bundles,
		Provider: provider, Cache: cache, JWT: jwtSecret, Logger: slog.Default(),
	}
}

// EnableEvidenceSigning turns on per-tenant manifest signing, deriving keys
// from masterSeed and registering signed envelopes in the document store.
func (s *Server) EnableEvidenceSigning(masterSeed []byte) {
	s.EvidenceSigningSeed = masterSeed
	s.EvidenceRegistry = evidencepack.NewRegistry(s.Docs, nil)
}

// Routes builds the *http.ServeMux exposing spec §6.1's endpoint set,
// wrapped in tenant auth — the teacher's cmd/helm/main.go and
// pkg/console/server.go both compose a bare stdlib ServeMux rather than a
// third-party router, despite no router dependency anywhere in its go.mod.
func (s *Server) Routes() http.Handler {
	protected := http.NewServeMux()
	protected.HandleFunc("POST /companies", s.handleCreateCompany)
	protected.HandleFunc("POST /documents/upload", s.handleUploadDocument)
	protected.HandleFunc("POST /documents/auto-discover", s.handleAutoDiscover)
	protected.HandleFunc("POST /runs", s.handleCreateRun)
	protected.HandleFunc("POST /runs/{id}/execute", s.handleExecuteRun)
	protected.HandleFunc("GET /runs/{id}/status", s.handleRunStatus)
	protected.HandleFunc("GET /runs/{id}/diagnostics", s.handleRunDiagnostics)
	protected.HandleFunc("GET /runs/{id}/events", s.handleRunEvents)
	protected.HandleFunc("GET /runs/{id}/report", s.handleRunReport)
	protected.HandleFunc("GET /runs/{id}/evidence-pack", s.handleEvidencePack)
	protected.HandleFunc("GET /runs/{id}/evidence-pack-preview", s.handleEvidencePackPreview)
	protected.HandleFunc("GET /runs/{id}/regulatory-plan", s.handleRegulatoryPlan)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/", TenantAuth(s.DB, s.JWT)(protected))

	return mux
}
