// Package coverage implements the coverage matrix aggregator of spec
// §4.13: per-obligation Full/Partial/Absent/NA roll-up, grouped by
// standard, with every declared section present even when empty.
package coverage

import (
	"sort"

	"github.com/Atom1250/Compliance-App/pkg/domain"
)

// Section is one standard/topic grouping of the coverage matrix, always
// present in the rendered output even with zero obligations (spec §4.13).
type Section struct {
	Standard    string                      `json:"standard"`
	Obligations []domain.ObligationCoverage `json:"obligations"`
}

// Matrix is the full coverage matrix for one compiled plan.
type Matrix struct {
	PlanHash string    `json:"plan_hash"`
	Sections []Section `json:"sections"`
}

// Build computes the coverage matrix for a plan given its assessments,
// rolling each obligation up to Full/Partial/Absent/NA per spec §3:
//   - Full: every mandatory datapoint is Present.
//   - Partial: at least one mandatory datapoint is Present or Partial,
//     but not all are Present.
//   - Absent: no mandatory datapoint is Present or Partial.
//   - NA: the obligation itself is not applicable, or has no mandatory
//     datapoints.
func Build(plan *domain.CompiledPlan, assessments []domain.Assessment, declaredStandards []string) Matrix {
	statusByKey := make(map[string]domain.AssessmentStatus, len(assessments))
	for _, a := range assessments {
		statusByKey[a.DatapointKey] = a.Status
	}

	byStandard := make(map[string][]domain.ObligationCoverage)
	for _, std := range declaredStandards {
		byStandard[std] = nil
	}

	for _, obl := range plan.Obligations {
		level := rollUp(obl, statusByKey)
		byStandard[obl.Standard] = append(byStandard[obl.Standard], domain.ObligationCoverage{
			PlanHash:       plan.PlanHash,
			ObligationCode: obl.ObligationCode,
			Standard:       obl.Standard,
			Level:          level,
		})
	}

	standards := make([]string, 0, len(byStandard))
	for std := range byStandard {
		standards = append(standards, std)
	}
	sort.Strings(standards)

	sections := make([]Section, 0, len(standards))
	for _, std := range standards {
		obligations := byStandard[std]
		sort.Slice(obligations, func(i, j int) bool { return obligations[i].ObligationCode < obligations[j].ObligationCode })
		sections = append(sections, Section{Standard: std, Obligations: obligations})
	}

	return Matrix{PlanHash: plan.PlanHash, Sections: sections}
}

func rollUp(obl domain.Obligation, statusByKey map[string]domain.AssessmentStatus) domain.CoverageLevel {
	if obl.ExcludedReason != "" {
		return domain.CoverageNA
	}

	var mandatory []domain.Datapoint
	for _, dp := range obl.Datapoints {
		if dp.ExcludedReason == "" && dp.Mandatory {
			mandatory = append(mandatory, dp)
		}
	}
	if len(mandatory) == 0 {
		return domain.CoverageNA
	}

	allPresent := true
	anyPresentOrPartial := false
	for _, dp := range mandatory {
		status := statusByKey[dp.DatapointKey]
		switch status {
		case domain.StatusPresent:
			anyPresentOrPartial = true
		case domain.StatusPartial:
			anyPresentOrPartial = true
			allPresent = false
		default:
			allPresent = false
		}
	}

	switch {
	case allPresent:
		return domain.CoverageFull
	case anyPresentOrPartial:
		return domain.CoveragePartial
	default:
		return domain.CoverageAbsent
	}
}
