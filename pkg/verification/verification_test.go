package verification_test

import (
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Atom1250/Compliance-App/pkg/verification"
	"github.com/stretchr/testify/assert"
)

func lookupFrom(m map[string]string) verification.ChunkLookup {
	return func(chunkID string) (string, bool) {
		text, ok := m[chunkID]
		return text, ok
	}
}

func metricDP(requiresBaseline bool) domain.Datapoint {
	return domain.Datapoint{DatapointKey: "D1", DatapointType: domain.DatapointMetric, RequiresBaseline: requiresBaseline}
}

func TestVerify_OrphanCitationDowngradesToAbsent(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPresent, EvidenceChunkIDs: []string{"DEADBEEF"}}
	r := verification.Verify(domain.Datapoint{DatapointType: domain.DatapointNarrative}, a, lookupFrom(nil))
	assert.Equal(t, domain.StatusAbsent, r.Status)
	assert.Equal(t, domain.ReasonChunkNotFound, r.FailureReasonCode)
}

func TestVerify_EmptyChunkTextDowngrades(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPresent, EvidenceChunkIDs: []string{"c1"}}
	r := verification.Verify(domain.Datapoint{DatapointType: domain.DatapointNarrative}, a, lookupFrom(map[string]string{"c1": "   "}))
	assert.Equal(t, domain.StatusAbsent, r.Status)
	assert.Equal(t, domain.ReasonEmptyChunk, r.FailureReasonCode)
}

func TestVerify_NumericMatchFound(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPresent, Value: "1,200", Unit: "tCO2e", Year: 2026, EvidenceChunkIDs: []string{"c1"}}
	r := verification.Verify(metricDP(false), a, lookupFrom(map[string]string{"c1": "Total emissions were 1200 tCO2e in 2026."}))
	assert.Equal(t, domain.StatusPresent, r.Status)
	assert.Equal(t, 1, r.NumericMatchesFound)
}

func TestVerify_NumericMismatchDowngradesFirstStrike(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPresent, Value: "999", Unit: "tCO2e", Year: 2026, EvidenceChunkIDs: []string{"c1"}}
	r := verification.Verify(metricDP(false), a, lookupFrom(map[string]string{"c1": "Total emissions were 1200 tCO2e."}))
	assert.Equal(t, domain.StatusPartial, r.Status)
	assert.Equal(t, domain.ReasonNumericMismatch, r.FailureReasonCode)
}

func TestVerify_NumericMismatchSecondStrikeGoesAbsent(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPartial, Value: "999", Unit: "tCO2e", Year: 2026, EvidenceChunkIDs: []string{"c1"}}
	r := verification.Verify(metricDP(false), a, lookupFrom(map[string]string{"c1": "Total emissions were 1200 tCO2e."}))
	assert.Equal(t, domain.StatusAbsent, r.Status)
}

func TestVerify_BaselineMissingDowngrades(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPresent, Value: "1200", Unit: "tCO2e", Year: 2026, EvidenceChunkIDs: []string{"c1"}}
	r := verification.Verify(metricDP(true), a, lookupFrom(map[string]string{"c1": "Total emissions were 1200 tCO2e."}))
	assert.Equal(t, domain.StatusPartial, r.Status)
	assert.Equal(t, domain.ReasonBaselineMissing, r.FailureReasonCode)
}

func TestVerify_UnitMismatchDowngrades(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPresent, Value: "1200", Unit: "furlongs", Year: 2026, EvidenceChunkIDs: []string{"c1"}}
	r := verification.Verify(metricDP(false), a, lookupFrom(map[string]string{"c1": "1200 furlongs"}))
	assert.Equal(t, domain.StatusPartial, r.Status)
	assert.Equal(t, domain.ReasonUnitMismatch, r.FailureReasonCode)
}

func TestVerify_PercentageVsFractionEquivalenceMatches(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusPresent, Value: "0.42", Unit: "fraction", Year: 2026, EvidenceChunkIDs: []string{"c1"}}
	r := verification.Verify(metricDP(false), a, lookupFrom(map[string]string{"c1": "42% of revenue."}))
	assert.Equal(t, domain.StatusPresent, r.Status)
}

func TestVerify_AbsentStatusSkipsAllChecks(t *testing.T) {
	a := domain.Assessment{Status: domain.StatusAbsent, EvidenceChunkIDs: []string{"missing"}}
	r := verification.Verify(metricDP(true), a, lookupFrom(nil))
	assert.Equal(t, domain.StatusAbsent, r.Status)
	assert.Empty(t, r.FailureReasonCode)
}
