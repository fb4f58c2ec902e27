package extraction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Atom1250/Compliance-App/pkg/llm"
)

// extractToolName is the single function tool exposed to the chat model;
// the tool-call arguments are decoded directly as a Record (spec §4.8
// step 3 forces exactly this schema, no free-text fallback).
const extractToolName = "emit_extraction_record"

var extractToolSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"status":             map[string]any{"type": "string", "enum": []string{"Present", "Partial", "Absent", "NA"}},
		"value":              map[string]any{"type": "string"},
		"unit":               map[string]any{"type": "string"},
		"year":               map[string]any{"type": "integer"},
		"baseline_year":      map[string]any{"type": "integer"},
		"baseline_value":     map[string]any{"type": "string"},
		"evidence_chunk_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"rationale":          map[string]any{"type": "string"},
	},
	"required": []string{"status", "evidence_chunk_ids", "rationale"},
}

// LLMProvider adapts a pkg/llm.Client (OpenAIClient, Router, or any other
// chat-completion backend) to the Provider contract by forcing the single
// extraction tool call and decoding its arguments as a Record, rather than
// parsing free-text content — the deterministic, temperature=0, schema-
// constrained call spec §4.8 step 3 requires.
type LLMProvider struct {
	Client     llm.Client
	ModelLabel string
}

// NewLLMProvider wraps client for the extraction adapter. modelLabel
// identifies the backend in provider_identity (spec §4.11) without
// requiring the Client interface to expose its own model name.
func NewLLMProvider(client llm.Client, modelLabel string) *LLMProvider {
	return &LLMProvider{Client: client, ModelLabel: modelLabel}
}

func (p *LLMProvider) Identity() string {
	return fmt.Sprintf("llm:%s:%s", p.ModelLabel, TemplateVersion)
}

func (p *LLMProvider) Extract(ctx context.Context, prompt Prompt) (*Record, error) {
	promptJSON, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("extraction: marshal prompt for llm provider: %w", err)
	}

	messages := []llm.Message{
		{Role: "system", Content: "Extract the requested disclosure datapoint strictly from the provided chunks. Call " + extractToolName + " exactly once."},
		{Role: "user", Content: string(promptJSON)},
	}
	tools := []llm.ToolDefinition{{
		Name:        extractToolName,
		Description: "Emit the structured extraction record for one datapoint.",
		Parameters:  extractToolSchema,
	}}

	resp, err := p.Client.Chat(ctx, messages, tools, &llm.SamplingOptions{Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("extraction: llm provider call: %w", err)
	}

	for _, call := range resp.ToolCalls {
		if call.Name != extractToolName {
			continue
		}
		return decodeRecordArgs(call.Arguments)
	}
	return nil, fmt.Errorf("extraction: llm provider did not call %s", extractToolName)
}

func decodeRecordArgs(args map[string]any) (*Record, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("extraction: marshal tool call arguments: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("extraction: decode tool call arguments: %w", err)
	}
	return &record, nil
}
