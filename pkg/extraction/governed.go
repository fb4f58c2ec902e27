package extraction

import (
	"context"
	"fmt"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/llm/modelpolicy"
)

// GovernedProvider wraps a Provider with the teacher's model-gateway
// policy enforcer (pkg/llm/modelpolicy), so an operator can cap spend,
// request rate, and required determinism on extraction calls the same
// way the teacher gates any outbound model call.
type GovernedProvider struct {
	inner      Provider
	enforcer   *modelpolicy.Enforcer
	providerID string
	modelID    string
	// CostPerCall is a static per-call cost estimate; extraction calls
	// have no token-metered billing contract in this spec, so cost is
	// tracked as a flat per-call figure rather than derived from usage.
	CostPerCall float64
}

// NewGovernedProvider wraps inner with enforcer, identifying calls under
// providerID/modelID for policy matching.
func NewGovernedProvider(inner Provider, enforcer *modelpolicy.Enforcer, providerID, modelID string) *GovernedProvider {
	return &GovernedProvider{inner: inner, enforcer: enforcer, providerID: providerID, modelID: modelID}
}

func (g *GovernedProvider) Identity() string { return g.inner.Identity() }

func (g *GovernedProvider) Extract(ctx context.Context, prompt Prompt) (*Record, error) {
	g.enforcer.AcquireConcurrent()
	defer g.enforcer.ReleaseConcurrent()

	inputTokens := estimateTokens(prompt)
	result := g.enforcer.CheckRequest(ctx, g.providerID, g.modelID, inputTokens, 0, 0, g.CostPerCall)
	if !result.Allowed {
		return nil, domain.NewError(domain.KindDependency, "PROVIDER_POLICY_BLOCKED",
			fmt.Errorf("extraction: provider %s/%s blocked by policy: %v", g.providerID, g.modelID, result.Violations))
	}

	record, err := g.inner.Extract(ctx, prompt)
	if err != nil {
		return nil, err
	}

	g.enforcer.RecordUsage(g.CostPerCall, inputTokens)
	return record, nil
}

// estimateTokens is a coarse length-based estimate (a quarter of the byte
// length of the title and of each chunk's text); extraction calls
// have no tokenizer contract, so this feeds the policy's token-rate
// limits with a conservative approximation rather than an exact count.
func estimateTokens(p Prompt) int {
	total := len(p.Title) / 4
	for _, c := range p.Chunks {
		total += len(c.Text) / 4
	}
	return total
}
