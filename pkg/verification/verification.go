// Package verification implements the post-extraction verification and
// downgrade engine of spec §4.9: citation existence, numeric/unit/year
// cross-checks, and baseline-required checks, each emitting a
// FailureReasonCode and deterministically downgrading an assessment's
// status.
package verification

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// ChunkLookup resolves a chunk_id to its text, returning ok=false when the
// chunk does not exist in the run's retrieval universe.
type ChunkLookup func(chunkID string) (text string, ok bool)

// Result is the outcome of verifying one assessment: the (possibly
// downgraded) status plus the diagnostic fields persisted alongside it.
type Result struct {
	Status              domain.AssessmentStatus
	FailureReasonCode   domain.FailureReasonCode
	NumericMatchesFound int
}

// unitVocabulary is the small controlled vocabulary of spec §4.9: any
// declared unit outside this set is UNIT_MISMATCH.
var unitVocabulary = map[string]bool{
	"percent": true, "%": true, "fraction": true,
	"currency": true, "usd": true, "eur": true, "gbp": true,
	"tco2e": true, "tco2": true,
	"t": true, "kt": true, "mt": true, "gt": true,
	"kwh": true, "mwh": true, "gwh": true,
	"m3": true, "l": true,
}

// digitSequenceRE extracts runs of digits (with optional separators) for
// the tolerant numeric match of spec §4.9.
var digitSequenceRE = regexp.MustCompile(`[0-9][0-9,.\s]*[0-9]|[0-9]`)

// Verify applies the checks of spec §4.9 to one extracted assessment and
// returns its final status and diagnostic.
func Verify(dp domain.Datapoint, assessment domain.Assessment, lookup ChunkLookup) Result {
	status := assessment.Status
	if status == domain.StatusAbsent || status == domain.StatusNA {
		return Result{Status: status}
	}

	// Citation existence: every cited chunk must exist and be non-empty.
	for _, chunkID := range assessment.EvidenceChunkIDs {
		text, ok := lookup(chunkID)
		if !ok {
			return Result{Status: domain.StatusAbsent, FailureReasonCode: domain.ReasonChunkNotFound}
		}
		if strings.TrimSpace(text) == "" {
			return Result{Status: domain.StatusAbsent, FailureReasonCode: domain.ReasonEmptyChunk}
		}
	}

	if dp.DatapointType != domain.DatapointMetric {
		return Result{Status: status}
	}

	if assessment.Value == "" || assessment.Unit == "" || assessment.Year == 0 {
		return downgrade(status, domain.ReasonYearMissing)
	}

	if !isKnownUnit(assessment.Unit) {
		return downgrade(status, domain.ReasonUnitMismatch)
	}

	matches := countNumericMatches(assessment.Value, assessment.EvidenceChunkIDs, lookup)
	if matches == 0 {
		result := downgrade(status, domain.ReasonNumericMismatch)
		result.NumericMatchesFound = matches
		return result
	}

	if dp.RequiresBaseline && (assessment.BaselineYear == 0 || assessment.BaselineValue == "") {
		result := downgrade(status, domain.ReasonBaselineMissing)
		result.NumericMatchesFound = matches
		return result
	}

	return Result{Status: status, NumericMatchesFound: matches}
}

// downgrade applies the first-strike/second-strike rule of spec §4.9:
// Present -> Partial on first failure, Partial -> Absent on second.
func downgrade(status domain.AssessmentStatus, reason domain.FailureReasonCode) Result {
	switch status {
	case domain.StatusPresent:
		return Result{Status: domain.StatusPartial, FailureReasonCode: reason}
	default:
		return Result{Status: domain.StatusAbsent, FailureReasonCode: reason}
	}
}

func isKnownUnit(unit string) bool {
	return unitVocabulary[strings.ToLower(strings.TrimSpace(unit))]
}

// countNumericMatches reports how many cited chunks contain a digit
// sequence equal to value under tolerant normalization: thousand
// separators stripped, percentage vs. fraction handled by also checking
// value/100 and value*100 equivalents.
func countNumericMatches(value string, chunkIDs []string, lookup ChunkLookup) int {
	target := normalizeDigits(value)
	if target == "" {
		return 0
	}
	targetFloat, targetIsNumeric := parseNormalized(target)

	count := 0
	for _, chunkID := range chunkIDs {
		text, ok := lookup(chunkID)
		if !ok {
			continue
		}
		for _, candidate := range digitSequenceRE.FindAllString(text, -1) {
			norm := normalizeDigits(candidate)
			if norm == target {
				count++
				continue
			}
			if targetIsNumeric {
				if candFloat, ok := parseNormalized(norm); ok {
					if floatsEqual(candFloat, targetFloat) || floatsEqual(candFloat*100, targetFloat) || floatsEqual(candFloat, targetFloat*100) {
						count++
					}
				}
			}
		}
	}
	return count
}

func normalizeDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' || r == '.' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	intPart, fracPart, hasFrac := strings.Cut(digits, ".")
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	if !hasFrac {
		return intPart
	}
	fracPart = strings.TrimRight(fracPart, "0")
	if fracPart == "" {
		return intPart
	}
	return intPart + "." + fracPart
}

func parseNormalized(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func floatsEqual(a, b float64) bool {
	const epsilon = 1e-6
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}
