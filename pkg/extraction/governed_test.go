package extraction_test

import (
	"context"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/extraction"
	"github.com/Atom1250/Compliance-App/pkg/llm/modelpolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGovernedProvider_AllowsWithinBudget(t *testing.T) {
	enforcer := modelpolicy.NewEnforcer()
	g := extraction.NewGovernedProvider(extraction.FallbackProvider{}, enforcer, "deterministic", "fallback-v1")

	r, err := g.Extract(context.Background(), extraction.Prompt{Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusAbsent), r.Status)
}

func TestGovernedProvider_BlocksOverBudget(t *testing.T) {
	enforcer := modelpolicy.NewEnforcer()
	require.NoError(t, enforcer.LoadPolicy(&modelpolicy.Policy{
		PolicyID: "p1",
		Version:  modelpolicy.PolicyVersion,
		Enabled:  true,
		BudgetConstraints: &modelpolicy.BudgetConstraints{
			PerRequestMaxUSD: 0.01,
			HardStopAtBudget: true,
		},
		Enforcement: modelpolicy.Enforcement{Mode: modelpolicy.EnforceModeEnforce, FailAction: modelpolicy.FailActionBlock},
	}))

	g := extraction.NewGovernedProvider(extraction.FallbackProvider{}, enforcer, "deterministic", "fallback-v1")
	g.CostPerCall = 5.00

	_, err := g.Extract(context.Background(), extraction.Prompt{Title: "t"})
	require.Error(t, err)
	assert.Equal(t, domain.KindDependency, domain.KindOf(err))
}
