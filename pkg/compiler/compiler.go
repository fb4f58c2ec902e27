// Package compiler implements the regulatory compiler of spec §4.6,
// grounded in original_source's
// apps/api/app/services/regulatory_compiler.py: bundle selection by
// (regime, jurisdiction), version selection, overlay application as an
// apply-list, applicability/phase-in evaluation, and plan_hash.
package compiler

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Atom1250/Compliance-App/pkg/applicability"
	"github.com/Atom1250/Compliance-App/pkg/bundle"
	"github.com/Atom1250/Compliance-App/pkg/canonicalize"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/Masterminds/semver/v3"
)

// SelectLatestBundles picks, for each distinct (regime, jurisdiction) pair
// present in candidates, the bundle with the highest version — mirroring
// regulatory_compiler.py's _pick_latest_bundles / _version_sort_key.
func SelectLatestBundles(candidates []*bundle.Bundle) []*bundle.Bundle {
	type key struct{ regime, jurisdiction string }
	best := make(map[key]*bundle.Bundle)

	for _, b := range candidates {
		k := key{b.Raw.Regime, b.Raw.Jurisdiction}
		existing, ok := best[k]
		if !ok || versionLess(existing.Raw.Version, b.Raw.Version) {
			best[k] = b
		}
	}

	out := make([]*bundle.Bundle, 0, len(best))
	for _, b := range best {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Raw.Regime != out[j].Raw.Regime {
			return out[i].Raw.Regime < out[j].Raw.Regime
		}
		return out[i].Raw.Jurisdiction < out[j].Raw.Jurisdiction
	})
	return out
}

// versionLess reports whether a < b, using semver comparison when both
// parse as semver and falling back to a lexicographic ordinal comparison
// otherwise (bundle versions like "2026.01" are not valid semver).
func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.LessThan(vb)
	}
	return a < b
}

// SelectBundlesForCompany filters candidates to those whose (regime,
// jurisdiction) the company has declared (spec §4.6 step 1).
func SelectBundlesForCompany(company domain.Company, candidates []*bundle.Bundle) []*bundle.Bundle {
	regimes := toSet(company.RegulatoryRegimes)
	jurisdictions := toSet(company.RegulatoryJurisdictions)

	var out []*bundle.Bundle
	for _, b := range candidates {
		if regimes[b.Raw.Regime] && jurisdictions[b.Raw.Jurisdiction] {
			out = append(out, b)
		}
	}
	return out
}

func toSet(vals []string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// Compile produces a CompiledPlan for (company, reportingYear, selected
// bundles), applying overlays, evaluating applicability and phase-in
// rules, and computing plan_hash (spec §4.6).
func Compile(company domain.Company, reportingYear int, selected []*bundle.Bundle, materiality []domain.RunMateriality) (*domain.CompiledPlan, error) {
	ctx := applicability.NewContextFromCompany(company, materiality)

	var obligations []domain.Obligation
	var regime string

	for _, b := range selected {
		regime = b.Raw.Regime
		rawObligations := applyOverlays(b.Raw.Obligations, b.Raw.Overlays)

		for _, ro := range rawObligations {
			obl := domain.Obligation{
				ObligationCode:  ro.ObligationCode,
				Name:            ro.Name,
				Standard:        ro.Standard,
				SourceRecordIDs: b.Raw.SourceRecordIDs,
			}

			if ro.ApplicabilityRule != "" {
				applicable, reason, err := applicability.Evaluate(ro.ApplicabilityRule, ctx)
				if err != nil || !applicable {
					obl.ExcludedReason = excludedReason(reason, err)
					obligations = append(obligations, obl)
					continue
				}
			}

			for _, rd := range ro.Datapoints {
				dp := domain.Datapoint{
					DatapointKey:     rd.DatapointKey,
					ObligationCode:   ro.ObligationCode,
					Title:            rd.Title,
					DisclosureRef:    rd.DisclosureRef,
					DatapointType:    domain.DatapointType(rd.DatapointType),
					RequiresBaseline: rd.RequiresBaseline,
					MaterialityTopic: rd.MaterialityTopic,
					Mandatory:        rd.Mandatory,
				}

				if ro.PhaseInRule != "" {
					inScope, _, err := applicability.Evaluate(ro.PhaseInRule, ctx)
					if err != nil || !inScope {
						dp.ExcludedReason = string(domain.ReasonPhaseIn)
						obl.Datapoints = append(obl.Datapoints, dp)
						continue
					}
				}

				if dp.MaterialityTopic != "" {
					if isMaterial, ok := ctx.Materiality[dp.MaterialityTopic]; ok && !isMaterial {
						dp.ExcludedReason = "IMMATERIAL"
						obl.Datapoints = append(obl.Datapoints, dp)
						continue
					}
				}

				obl.Datapoints = append(obl.Datapoints, dp)
			}

			obligations = append(obligations, obl)
		}
	}

	sort.Slice(obligations, func(i, j int) bool { return obligations[i].ObligationCode < obligations[j].ObligationCode })
	for i := range obligations {
		sort.Slice(obligations[i].Datapoints, func(a, b int) bool {
			return obligations[i].Datapoints[a].DatapointKey < obligations[i].Datapoints[b].DatapointKey
		})
	}

	var flatDatapoints []domain.Datapoint
	applicableObligationCount := 0
	for _, o := range obligations {
		if o.ExcludedReason != "" {
			continue
		}
		applicableObligationCount++
		for _, dp := range o.Datapoints {
			if dp.ExcludedReason == "" {
				flatDatapoints = append(flatDatapoints, dp)
			}
		}
	}

	if applicableObligationCount == 0 {
		return nil, domain.NewError(domain.KindEmptyPlan, string(domain.KindEmptyPlan),
			fmt.Errorf("compiler: company %s is in scope for regime %s but zero obligations are applicable", company.CompanyID, regime))
	}

	plan := &domain.CompiledPlan{
		CompanyID:     company.CompanyID,
		ReportingYear: reportingYear,
		Regime:        regime,
		Obligations:   obligations,
		Datapoints:    flatDatapoints,
	}

	planHash, err := PlanHash(plan)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "", fmt.Errorf("compiler: plan hash: %w", err))
	}
	plan.PlanHash = planHash

	return plan, nil
}

func excludedReason(celReason string, err error) string {
	if err != nil {
		return string(domain.ReasonUnknownSymbol)
	}
	return "NOT_APPLICABLE"
}

// applyOverlays applies add/modify/disable operations as an apply-list
// keyed by obligation_code — never mutating the bundle's own objects
// (spec §9). Order: (jurisdiction code ascending, overlay op index),
// already guaranteed by bundle.SortedOverlays.
func applyOverlays(base []bundle.RawObligation, overlays []bundle.Overlay) []bundle.RawObligation {
	byCode := make(map[string]bundle.RawObligation, len(base))
	var order []string
	for _, o := range base {
		byCode[o.ObligationCode] = o
		order = append(order, o.ObligationCode)
	}
	disabled := make(map[string]bool)

	for _, ov := range bundle.SortedOverlays(overlays) {
		switch ov.Op {
		case "add":
			if _, exists := byCode[ov.ObligationCode]; !exists {
				order = append(order, ov.ObligationCode)
			}
			byCode[ov.ObligationCode] = overlayToObligation(ov)
		case "modify":
			existing := byCode[ov.ObligationCode]
			byCode[ov.ObligationCode] = mergeOverlayFields(existing, ov.Fields)
		case "disable":
			disabled[ov.ObligationCode] = true
		}
	}

	out := make([]bundle.RawObligation, 0, len(order))
	for _, code := range order {
		if disabled[code] {
			continue
		}
		out = append(out, byCode[code])
	}
	return out
}

func overlayToObligation(ov bundle.Overlay) bundle.RawObligation {
	o := bundle.RawObligation{ObligationCode: ov.ObligationCode}
	return mergeOverlayFields(o, ov.Fields)
}

func mergeOverlayFields(o bundle.RawObligation, fields map[string]interface{}) bundle.RawObligation {
	if name, ok := fields["name"].(string); ok {
		o.Name = name
	}
	if standard, ok := fields["standard"].(string); ok {
		o.Standard = standard
	}
	if rule, ok := fields["applicability_rule"].(string); ok {
		o.ApplicabilityRule = rule
	}
	if rule, ok := fields["phase_in_rule"].(string); ok {
		o.PhaseInRule = rule
	}
	return o
}

// PlanHash computes SHA-256(canonical(plan)) excluding volatile fields
// (there are none on CompiledPlan itself — generated_at lives on the
// manifest, not the plan, matching regulatory_compiler.py's exclusion of
// generated_at from plan_hash).
func PlanHash(plan *domain.CompiledPlan) (string, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("compiler: marshal plan: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("compiler: unmarshal plan: %w", err)
	}
	// plan_hash itself is never part of its own input.
	if m, ok := generic.(map[string]interface{}); ok {
		delete(m, "plan_hash")
	}
	return canonicalize.CanonicalHash(generic)
}
