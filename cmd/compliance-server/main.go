// Command compliance-server runs the tenant-scoped HTTP API of spec §6.1,
// wiring the document store, bundle loader, extraction provider, and run
// cache into a single composition root — grounded on the teacher's
// cmd/helm/main.go runServer.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Atom1250/Compliance-App/pkg/config"
	"github.com/Atom1250/Compliance-App/pkg/docstore"
	"github.com/Atom1250/Compliance-App/pkg/extraction"
	"github.com/Atom1250/Compliance-App/pkg/httpapi"
	"github.com/Atom1250/Compliance-App/pkg/llm"
	"github.com/Atom1250/Compliance-App/pkg/llm/modelpolicy"
	"github.com/Atom1250/Compliance-App/pkg/policyloader"
	"github.com/Atom1250/Compliance-App/pkg/runcache"
	"github.com/Atom1250/Compliance-App/pkg/sqlstore"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

func main() {
	cfg := config.Load()
	ctx := context.Background()
	logger := slog.Default()

	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("compliance-server: open database: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("compliance-server: ping database: %v", err)
	}

	store := sqlstore.New(db)
	if err := store.Init(ctx); err != nil {
		log.Fatalf("compliance-server: init schema: %v", err)
	}

	blobStore, err := docstore.NewStoreFromEnv(ctx)
	if err != nil {
		log.Fatalf("compliance-server: init artifact store: %v", err)
	}
	docs := docstore.NewDocStore(blobStore)

	links := docstore.NewLinkStore(db)
	if err := links.Init(ctx); err != nil {
		log.Fatalf("compliance-server: init link schema: %v", err)
	}

	bundles := policyloader.NewLoader(cfg.BundleDir)
	if _, err := bundles.Sync(policyloader.ModeSync); err != nil {
		logger.Warn("compliance-server: initial bundle sync failed", "error", err)
	}

	provider := buildProvider(cfg)

	cacheStore := runcache.NewStore(db)
	if err := cacheStore.Init(ctx); err != nil {
		log.Fatalf("compliance-server: init run cache schema: %v", err)
	}
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("compliance-server: parse redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
	}
	cache := runcache.NewCache(redisClient, cacheStore, 24*time.Hour)

	jwtSecret := httpapi.JWTSecret(os.Getenv("JWT_SECRET"))

	server := httpapi.NewServer(store, docs, links, bundles, provider, cache, jwtSecret)
	if cfg.EvidenceSigningSeed != "" {
		seed, err := hex.DecodeString(cfg.EvidenceSigningSeed)
		if err != nil {
			log.Fatalf("compliance-server: decode EVIDENCE_SIGNING_SEED: %v", err)
		}
		server.EnableEvidenceSigning(seed)
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("compliance-server: listening", "addr", addr, "database_driver", cfg.DatabaseDriver)
	if err := http.ListenAndServe(addr, server.Routes()); err != nil {
		log.Fatalf("compliance-server: serve: %v", err)
	}
}

// buildProvider selects the extraction provider per spec §4.8: the
// deterministic fallback when no extraction endpoint is configured or
// DETERMINISTIC_ONLY is set, otherwise either a bare-JSON HTTP provider or
// an OpenAI-compatible chat/tool-call provider (EXTRACTION_PROVIDER_BACKEND),
// both wrapped in the teacher's model-gateway policy enforcer.
func buildProvider(cfg *config.Config) extraction.Provider {
	if cfg.DeterministicOnly {
		return extraction.FallbackProvider{}
	}

	var inner extraction.Provider
	switch cfg.ExtractionBackend {
	case "openai":
		client := llm.NewOpenAIClient(cfg.ExtractionAPIKey, cfg.ExtractionModel)
		inner = extraction.NewLLMProvider(client, cfg.ExtractionModel)
	default:
		inner = extraction.NewHTTPProvider(cfg.ExtractionURL, cfg.ExtractionAPIKey, cfg.ExtractionModel, 30*time.Second, 3)
	}

	enforcer := modelpolicy.NewEnforcer()
	return extraction.NewGovernedProvider(inner, enforcer, "extraction", cfg.ExtractionModel)
}
