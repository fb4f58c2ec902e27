package config

import "os"

// Config holds server configuration, loaded from environment variables
// (spec §6.1/§6.6 ambient config surface).
type Config struct {
	Port              string
	LogLevel          string
	DatabaseURL       string
	DatabaseDriver    string // "postgres" | "sqlite"
	RedisURL          string
	ExtractionURL     string
	ExtractionAPIKey  string
	ExtractionBackend  string // "http" | "openai"
	ExtractionModel     string
	BundleDir           string
	DeterministicOnly   bool   // when true, never construct an HTTPProvider
	EvidenceSigningSeed string // hex-encoded master seed for per-tenant manifest signing; empty disables signing
}

// Load loads configuration from environment variables, with defaults
// suitable for local development against SQLite and the deterministic
// fallback extraction provider.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbDriver := os.Getenv("DATABASE_DRIVER")
	if dbDriver == "" {
		dbDriver = "sqlite"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		if dbDriver == "postgres" {
			dbURL = "postgres://compliance@localhost:5432/compliance?sslmode=disable"
		} else {
			dbURL = "compliance.db"
		}
	}

	redisURL := os.Getenv("REDIS_URL")

	extractionURL := os.Getenv("EXTRACTION_PROVIDER_URL")
	extractionKey := os.Getenv("EXTRACTION_PROVIDER_API_KEY")

	extractionBackend := os.Getenv("EXTRACTION_PROVIDER_BACKEND")
	if extractionBackend == "" {
		extractionBackend = "http"
	}
	extractionModel := os.Getenv("EXTRACTION_PROVIDER_MODEL")
	if extractionModel == "" {
		extractionModel = "default"
	}

	bundleDir := os.Getenv("BUNDLE_DIR")
	if bundleDir == "" {
		bundleDir = "./bundles"
	}

	deterministicOnly := os.Getenv("DETERMINISTIC_ONLY") == "true" || extractionURL == ""

	evidenceSigningSeed := os.Getenv("EVIDENCE_SIGNING_SEED")

	return &Config{
		Port:                port,
		LogLevel:            logLevel,
		DatabaseURL:         dbURL,
		DatabaseDriver:      dbDriver,
		RedisURL:            redisURL,
		ExtractionURL:       extractionURL,
		ExtractionAPIKey:    extractionKey,
		ExtractionBackend:   extractionBackend,
		ExtractionModel:     extractionModel,
		BundleDir:           bundleDir,
		DeterministicOnly:   deterministicOnly,
		EvidenceSigningSeed: evidenceSigningSeed,
	}
}
