// Command compliance is the operator CLI of spec §6.6: bundle sync/list/
// compile-preview against the policy loader, and run diagnose against the
// persisted run store. Dispatch style and exit codes follow the teacher's
// cmd/helm/main.go Run(args, stdout, stderr) int convention.
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Atom1250/Compliance-App/pkg/compiler"
	"github.com/Atom1250/Compliance-App/pkg/config"
	"github.com/Atom1250/Compliance-App/pkg/policyloader"
	"github.com/Atom1250/Compliance-App/pkg/sqlstore"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, exposed for testing the same way the
// teacher's cmd/helm/main.go exposes Run.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "bundles":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: compliance bundles <sync|list|compile-preview> [flags]")
			return 2
		}
		return runBundlesCmd(args[2], args[3:], stdout, stderr)
	case "run":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: compliance run <diagnose> [flags]")
			return 2
		}
		return runRunCmd(args[2], args[3:], stdout, stderr)
	case "apikeys":
		if len(args) < 3 {
			fmt.Fprintln(stderr, "Usage: compliance apikeys <create> [flags]")
			return 2
		}
		return runAPIKeysCmd(args[2], args[3:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "compliance <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  bundles sync --path <dir> --mode <merge|sync>")
	fmt.Fprintln(w, "  bundles list --path <dir>")
	fmt.Fprintln(w, "  bundles compile-preview --path <dir> --company <id> --tenant <id> --year <y>")
	fmt.Fprintln(w, "  run diagnose --run-id <id>")
	fmt.Fprintln(w, "  apikeys create --tenant <id>")
}

func runBundlesCmd(sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "sync":
		return runBundlesSync(args, stdout, stderr)
	case "list":
		return runBundlesList(args, stdout, stderr)
	case "compile-preview":
		return runBundlesCompilePreview(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown bundles subcommand: %s\n", sub)
		return 2
	}
}

func runBundlesSync(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bundles sync", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "bundle directory (required)")
	mode := fs.String("mode", "merge", "merge|sync")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		fmt.Fprintln(stderr, "Error: --path is required")
		return 2
	}
	if *mode != string(policyloader.ModeMerge) && *mode != string(policyloader.ModeSync) {
		fmt.Fprintf(stderr, "Error: --mode must be merge or sync, got %q\n", *mode)
		return 2
	}

	loader := policyloader.NewLoader(*path)
	entries, err := loader.Sync(policyloader.Mode(*mode))
	if err != nil {
		fmt.Fprintf(stderr, "Error: bundle sync failed: %v\n", err)
		return 3
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "%s  %s@%s  active=%t\n", e.FileName, e.Bundle.Raw.BundleID, e.Bundle.Raw.Version, e.Active)
	}
	return 0
}

func runBundlesList(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bundles list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "bundle directory (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" {
		fmt.Fprintln(stderr, "Error: --path is required")
		return 2
	}

	loader := policyloader.NewLoader(*path)
	if _, err := loader.Sync(policyloader.ModeMerge); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 4
	}
	pins := loader.Pins()
	for _, e := range loader.List() {
		pinned := ""
		if v, ok := pins[e.Bundle.Raw.BundleID]; ok {
			pinned = fmt.Sprintf("  pinned=%s", v)
		}
		fmt.Fprintf(stdout, "%s  %s@%s  active=%t%s\n", e.FileName, e.Bundle.Raw.BundleID, e.Bundle.Raw.Version, e.Active, pinned)
	}
	return 0
}

func runBundlesCompilePreview(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bundles compile-preview", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "bundle directory (required)")
	companyID := fs.String("company", "", "company ID (required)")
	tenantID := fs.String("tenant", "", "tenant ID (required)")
	year := fs.Int("year", 0, "reporting year (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *path == "" || *companyID == "" || *tenantID == "" || *year == 0 {
		fmt.Fprintln(stderr, "Error: --path, --company, --tenant, and --year are required")
		return 2
	}

	cfg := config.Load()
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open database: %v\n", err)
		return 4
	}
	ctx := context.Background()
	store := sqlstore.New(db)

	company, err := store.GetCompany(ctx, *tenantID, *companyID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	loader := policyloader.NewLoader(*path)
	if _, err := loader.Sync(policyloader.ModeMerge); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 4
	}

	selected := compiler.SelectLatestBundles(compiler.SelectBundlesForCompany(*company, loader.ActiveBundles()))
	if len(selected) == 0 {
		fmt.Fprintln(stderr, "Error: no active bundle matches this company's declared regimes/jurisdictions")
		return 2
	}

	plan, err := compiler.Compile(*company, *year, selected, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: compile failed: %v\n", err)
		return 3
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(plan)
	return 0
}

func runRunCmd(sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "diagnose":
		return runRunDiagnose(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown run subcommand: %s\n", sub)
		return 2
	}
}

func runRunDiagnose(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run diagnose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	runID := fs.String("run-id", "", "run ID (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *runID == "" {
		fmt.Fprintln(stderr, "Error: --run-id is required")
		return 2
	}

	cfg := config.Load()
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open database: %v\n", err)
		return 4
	}
	ctx := context.Background()
	store := sqlstore.New(db)

	diagnostics, err := store.ListDiagnostics(ctx, *runID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 4
	}
	if len(diagnostics) == 0 {
		fmt.Fprintln(stderr, "Error: no diagnostics found for this run ID")
		return 2
	}

	integrityFailure := false
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	for _, d := range diagnostics {
		if d.FailureReasonCode != "" {
			integrityFailure = true
		}
		_ = enc.Encode(d)
	}
	if integrityFailure {
		return 3
	}
	return 0
}

func runAPIKeysCmd(sub string, args []string, stdout, stderr io.Writer) int {
	switch sub {
	case "create":
		return runAPIKeysCreate(args, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown apikeys subcommand: %s\n", sub)
		return 2
	}
}

// runAPIKeysCreate provisions a tenant-scoped API key for the X-Tenant-ID/
// X-API-Key auth path of spec §6.1: a random 32-byte key is minted, only
// its SHA-256 hash is persisted (pkg/sqlstore.Store.SaveAPIKey), and the
// raw key is printed once — it cannot be recovered afterward.
func runAPIKeysCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("apikeys create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenantID := fs.String("tenant", "", "tenant ID (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *tenantID == "" {
		fmt.Fprintln(stderr, "Error: --tenant is required")
		return 2
	}

	rawKey, err := generateAPIKey()
	if err != nil {
		fmt.Fprintf(stderr, "Error: generate key: %v\n", err)
		return 4
	}

	cfg := config.Load()
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error: open database: %v\n", err)
		return 4
	}
	store := sqlstore.New(db)
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: init schema: %v\n", err)
		return 4
	}

	sum := sha256.Sum256([]byte(rawKey))
	if err := store.SaveAPIKey(ctx, *tenantID, hex.EncodeToString(sum[:])); err != nil {
		fmt.Fprintf(stderr, "Error: save api key: %v\n", err)
		return 4
	}

	fmt.Fprintf(stdout, "tenant_id=%s\napi_key=%s\n", *tenantID, rawKey)
	fmt.Fprintln(stdout, "Store this key now; only its hash is persisted and it cannot be displayed again.")
	return 0
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
