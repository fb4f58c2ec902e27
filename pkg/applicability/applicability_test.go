package applicability_test

import (
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/applicability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_BasicComparison(t *testing.T) {
	ctx := applicability.Context{Employees: 600, ListedStatus: true}

	ok, _, err := applicability.Evaluate(`company.employees >= 500 && company.listed_status`, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_JurisdictionMembership(t *testing.T) {
	ctx := applicability.Context{Jurisdictions: []string{"DE", "FR"}}

	ok, _, err := applicability.Evaluate(`"DE" in company.jurisdictions`, ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = applicability.Evaluate(`"ES" in company.jurisdictions`, ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_MaterialityOverride(t *testing.T) {
	ctx := applicability.Context{Materiality: map[string]bool{"climate": false}}

	ok, _, err := applicability.Evaluate(`company.materiality["climate"]`, ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_UnknownSymbolFails(t *testing.T) {
	ctx := applicability.Context{}

	_, reason, err := applicability.Evaluate(`company.nonexistent_field > 0`, ctx)
	require.Error(t, err)
	assert.Equal(t, "UNKNOWN_SYMBOL", reason)
}

func TestEvaluate_NoSideEffectsOrCalls(t *testing.T) {
	ctx := applicability.Context{}

	_, _, err := applicability.Evaluate(`company.employees.someMethod()`, ctx)
	require.Error(t, err)
}

func TestValidateRule_RejectsNonWhitelisted(t *testing.T) {
	err := applicability.ValidateRule(`os.getenv("SECRET") == ""`)
	require.Error(t, err)
}

func TestValidateRule_AcceptsWhitelisted(t *testing.T) {
	err := applicability.ValidateRule(`company.reporting_year >= 2024`)
	require.NoError(t, err)
}

func TestValidateRule_RejectsNonBooleanOutput(t *testing.T) {
	err := applicability.ValidateRule(`company.employees`)
	require.Error(t, err)
}
