package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPProvider calls an external JSON endpoint with temperature=0 and a
// bounded number of retries, modeled on the teacher's OpenAIClient.Chat
// transport shape but narrowed to the single Extract operation of spec
// §4.8. golang.org/x/time/rate paces retries instead of a fixed sleep, so
// repeated calls against a struggling provider don't thunder.
type HTTPProvider struct {
	Endpoint   string
	APIKey     string
	Model      string
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
	limiter    *rate.Limiter
}

// NewHTTPProvider constructs a provider whose retries wait on a limiter of
// one token per interval with a burst of 1, so bounded retries pace
// themselves rather than hammering a failing endpoint. The first attempt of
// each Extract call does not wait on the limiter.
func NewHTTPProvider(endpoint, apiKey, model string, interval time.Duration, maxRetries int) *HTTPProvider {
	return &HTTPProvider{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Model:      model,
		MaxRetries: maxRetries,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (p *HTTPProvider) Identity() string {
	return fmt.Sprintf("http:%s:%s", p.Model, TemplateVersion)
}

type httpRequest struct {
	Model       string  `json:"model"`
	Prompt      Prompt  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	Schema      string  `json:"response_schema"`
}

// responseSchemaName identifies the fixed extraction record schema to the
// provider; the schema itself lives in Record's json tags, not here.
const responseSchemaName = "extraction_record_v1"

func (p *HTTPProvider) Extract(ctx context.Context, prompt Prompt) (*Record, error) {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		record, err := p.doRequest(ctx, prompt)
		if err == nil {
			return record, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("extraction: http provider exhausted %d retries: %w", p.MaxRetries, lastErr)
}

func (p *HTTPProvider) doRequest(ctx context.Context, prompt Prompt) (*Record, error) {
	if p.Logger != nil {
		p.Logger.DebugContext(ctx, "extraction provider call",
			"datapoint_key", prompt.DatapointKey, "prompt_fingerprint", fingerprintPrompt(prompt))
	}

	body, err := json.Marshal(httpRequest{
		Model:       p.Model,
		Prompt:      prompt,
		Temperature: 0,
		Schema:      responseSchemaName,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("extraction: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction: transport: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("extraction: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extraction: provider status %d: %s", resp.StatusCode, string(respBody))
	}

	var record Record
	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&record); err != nil {
		// extra fields are ignored per spec, but we want structural
		// strictness on the *request* schema name; fall back to a
		// lenient decode for provider responses that add fields.
		var lenient Record
		if err2 := json.Unmarshal(respBody, &lenient); err2 != nil {
			return nil, fmt.Errorf("extraction: decode response: %w", err)
		}
		return &lenient, nil
	}
	return &record, nil
}
