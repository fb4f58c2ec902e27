package bundle_test

import (
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/bundle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBundleJSON = `{
  "regime": "CSRD",
  "bundle_id": "esrs_mini",
  "version": "2026.01",
  "jurisdiction": "EU",
  "obligations": [
    {
      "obligation_code": "ESRS-E1",
      "name": "Climate Change",
      "standard": "E1",
      "applicability_rule": "company.reporting_year >= 2024",
      "datapoints": [
        {"datapoint_key": "ESRS-E1-1", "title": "Transition plan", "datapoint_type": "narrative", "mandatory": true},
        {"datapoint_key": "ESRS-E1-6", "title": "GHG emissions", "datapoint_type": "metric", "requires_baseline": true, "mandatory": true}
      ]
    }
  ]
}`

func TestParse_ValidBundle(t *testing.T) {
	b, err := bundle.Parse([]byte(validBundleJSON))
	require.NoError(t, err)
	assert.Equal(t, "esrs_mini", b.Raw.BundleID)
	assert.Len(t, b.Checksum, 64)
	assert.Equal(t, "esrs_mini@2026.01.json", b.FileName())
}

func TestParse_MissingRequiredField(t *testing.T) {
	_, err := bundle.Parse([]byte(`{"bundle_id": "x", "version": "1", "jurisdiction": "EU", "obligations": []}`))
	require.Error(t, err)
}

func TestParse_NonWhitelistedApplicabilityIdentifier(t *testing.T) {
	badJSON := `{
  "regime": "CSRD", "bundle_id": "x", "version": "1", "jurisdiction": "EU",
  "obligations": [{"obligation_code": "A", "name": "n", "standard": "E1", "applicability_rule": "os.getenv(\"X\") == \"\""}]
}`
	_, err := bundle.Parse([]byte(badJSON))
	require.Error(t, err)
}

func TestParse_DanglingOverlayTarget(t *testing.T) {
	badJSON := `{
  "regime": "CSRD", "bundle_id": "x", "version": "1", "jurisdiction": "EU",
  "obligations": [{"obligation_code": "A", "name": "n", "standard": "E1"}],
  "overlays": [{"jurisdiction": "DE", "op": "modify", "obligation_code": "NONEXISTENT"}]
}`
	_, err := bundle.Parse([]byte(badJSON))
	require.Error(t, err)
}

func TestChecksum_DependsOnlyOnCanonicalBytes(t *testing.T) {
	b1, err := bundle.Parse([]byte(validBundleJSON))
	require.NoError(t, err)

	// Re-parse the same bytes: checksum must be identical (idempotent).
	b2, err := bundle.Parse([]byte(validBundleJSON))
	require.NoError(t, err)

	assert.Equal(t, b1.Checksum, b2.Checksum)
}

func TestSortedOverlays_OrdersByJurisdictionAscending(t *testing.T) {
	overlays := []bundle.Overlay{
		{Jurisdiction: "FR", Op: "disable", ObligationCode: "A"},
		{Jurisdiction: "DE", Op: "add", ObligationCode: "B"},
	}
	sorted := bundle.SortedOverlays(overlays)
	assert.Equal(t, "DE", sorted[0].Jurisdiction)
	assert.Equal(t, "FR", sorted[1].Jurisdiction)
}
