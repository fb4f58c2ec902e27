// Package extraction implements the extraction adapter of spec §4.8/§6.5:
// per-datapoint prompt construction, a schema-constrained provider call,
// and pre-persistence evidence gating. The provider contract is modeled
// directly on the teacher's pkg/llm.Client.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Atom1250/Compliance-App/pkg/canonicalize"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/retrieval"
)

// Record is the schema the provider's response must conform to exactly
// (spec §4.8 step 3): extra fields are ignored, missing required fields
// fail the call — never "fixed up" (spec §9).
type Record struct {
	Status           string   `json:"status"`
	Value            string   `json:"value,omitempty"`
	Unit             string   `json:"unit,omitempty"`
	Year             int      `json:"year,omitempty"`
	BaselineYear     int      `json:"baseline_year,omitempty"`
	BaselineValue    string   `json:"baseline_value,omitempty"`
	EvidenceChunkIDs []string `json:"evidence_chunk_ids"`
	Rationale        string   `json:"rationale"`
}

// Provider is the single-operation extraction contract of spec §6.5:
// extract(prompt, schema) -> structured_record.
type Provider interface {
	Extract(ctx context.Context, prompt Prompt) (*Record, error)
	// Identity returns the provider_id + model + prompt template
	// fingerprint that is a first-class input to run_hash (spec §6.5).
	Identity() string
}

// Prompt is the deterministic per-datapoint prompt struct whose
// canonical hash is prompt_hash (spec §4.8 step 6).
type Prompt struct {
	DatapointKey     string        `json:"datapoint_key"`
	Title            string        `json:"title"`
	DatapointType    string        `json:"datapoint_type"`
	RequiresBaseline bool          `json:"requires_baseline"`
	Chunks           []PromptChunk `json:"chunks"`
	TemplateVersion  string        `json:"template_version"`
}

// PromptChunk is one retrieved chunk rendered into the prompt, ordered as
// retrieved (descending combined score, chunk_id tie-break).
type PromptChunk struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
}

// TemplateVersion is the current prompt template's version, itself a
// first-class input to run_hash (spec §4.11).
const TemplateVersion = "extract-v1"

// BuildQuery constructs the deterministic retrieval query for a datapoint
// by concatenating its title and disclosure reference (spec §4.8 step 1).
func BuildQuery(dp domain.Datapoint) string {
	if dp.DisclosureRef == "" {
		return dp.Title
	}
	return dp.Title + " " + dp.DisclosureRef
}

// BuildPrompt composes the strict prompt of spec §4.8 step 3 from a
// datapoint and its retrieved chunks.
func BuildPrompt(dp domain.Datapoint, results []retrieval.Result) Prompt {
	chunks := make([]PromptChunk, len(results))
	for i, r := range results {
		chunks[i] = PromptChunk{ChunkID: r.Chunk.ChunkID, Text: r.Chunk.Text}
	}
	return Prompt{
		DatapointKey:     dp.DatapointKey,
		Title:            dp.Title,
		DatapointType:    string(dp.DatapointType),
		RequiresBaseline: dp.RequiresBaseline,
		Chunks:           chunks,
		TemplateVersion:  TemplateVersion,
	}
}

// PromptHash computes prompt_hash = SHA-256(canonical(prompt_struct))
// (spec §4.8 step 6).
func PromptHash(p Prompt) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("extraction: marshal prompt: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("extraction: unmarshal prompt: %w", err)
	}
	return canonicalize.CanonicalHash(generic)
}

// Extract runs one datapoint's extraction: calls the provider, validates
// the response schema, and enforces pre-persistence evidence gating
// (spec §4.8 steps 4-5). It never calls verification (C9) — that happens
// after, in the orchestrator.
func Extract(ctx context.Context, provider Provider, dp domain.Datapoint, results []retrieval.Result) (*domain.Assessment, string, error) {
	prompt := BuildPrompt(dp, results)
	promptHash, err := PromptHash(prompt)
	if err != nil {
		return nil, "", err
	}

	record, err := provider.Extract(ctx, prompt)
	if err != nil {
		return nil, promptHash, domain.NewError(domain.KindProviderSchema, "SCHEMA_VIOLATION", err)
	}
	if err := validateRecord(record); err != nil {
		return nil, promptHash, domain.NewError(domain.KindProviderSchema, "SCHEMA_VIOLATION", err)
	}

	status := domain.AssessmentStatus(record.Status)
	reason := ""
	if (status == domain.StatusPresent || status == domain.StatusPartial) && len(record.EvidenceChunkIDs) == 0 {
		status = domain.StatusAbsent
		reason = string(domain.ReasonEvidenceMissing)
	}

	assessment := &domain.Assessment{
		DatapointKey:     dp.DatapointKey,
		Status:           status,
		Value:            record.Value,
		Unit:             record.Unit,
		Year:             record.Year,
		BaselineYear:     record.BaselineYear,
		BaselineValue:    record.BaselineValue,
		Rationale:        rationaleOrFallback(record.Rationale, reason),
		EvidenceChunkIDs: record.EvidenceChunkIDs,
		PromptHash:       promptHash,
	}

	return assessment, promptHash, nil
}

func rationaleOrFallback(rationale, reason string) string {
	if reason == "" {
		return rationale
	}
	if rationale == "" {
		return "downgraded: " + reason
	}
	return rationale + " (downgraded: " + reason + ")"
}

func validateRecord(r *Record) error {
	if r == nil {
		return fmt.Errorf("extraction: nil record")
	}
	switch domain.AssessmentStatus(r.Status) {
	case domain.StatusPresent, domain.StatusPartial, domain.StatusAbsent, domain.StatusNA:
	default:
		return fmt.Errorf("extraction: unrecognized status %q", r.Status)
	}
	if r.EvidenceChunkIDs == nil {
		return fmt.Errorf("extraction: evidence_chunk_ids field missing")
	}
	return nil
}

// FallbackProvider is the deterministic-fallback provider of spec §4.8:
// never calls out, always emits Absent with a fixed rationale.
type FallbackProvider struct{}

func (FallbackProvider) Identity() string { return "deterministic-fallback:v1:" + TemplateVersion }

func (FallbackProvider) Extract(ctx context.Context, prompt Prompt) (*Record, error) {
	return &Record{
		Status:           string(domain.StatusAbsent),
		EvidenceChunkIDs: []string{},
		Rationale:        "deterministic-fallback: no external provider configured",
	}, nil
}

// fingerprintPrompt is used by HTTP-backed providers to embed a prompt
// fingerprint in transport logs without re-deriving PromptHash.
func fingerprintPrompt(p Prompt) string {
	data, _ := json.Marshal(p)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
