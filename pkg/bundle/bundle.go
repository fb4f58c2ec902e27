// Package bundle implements the bundle file format, structural + semantic
// validation, and canonicalization of spec §4.5/§6.2.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Atom1250/Compliance-App/pkg/applicability"
	"github.com/Atom1250/Compliance-App/pkg/canonicalize"
	"github.com/Atom1250/Compliance-App/pkg/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var compiledSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://compliance.local/bundle.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(bundleSchemaJSON)); err != nil {
		panic(fmt.Sprintf("bundle: failed to load embedded schema: %v", err))
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to compile embedded schema: %v", err))
	}
	compiledSchema = schema
}

// RawDatapoint is a datapoint exactly as authored in a bundle file (spec §6.2).
type RawDatapoint struct {
	DatapointKey     string `json:"datapoint_key"`
	Title            string `json:"title"`
	DisclosureRef    string `json:"disclosure_reference,omitempty"`
	DatapointType    string `json:"datapoint_type"`
	RequiresBaseline bool   `json:"requires_baseline,omitempty"`
	MaterialityTopic string `json:"materiality_topic,omitempty"`
	Mandatory        bool   `json:"mandatory,omitempty"`
}

// RawObligation is an obligation exactly as authored in a bundle file.
type RawObligation struct {
	ObligationCode    string         `json:"obligation_code"`
	Name              string         `json:"name"`
	Standard          string         `json:"standard"`
	ApplicabilityRule string         `json:"applicability_rule,omitempty"`
	PhaseInRule       string         `json:"phase_in_rule,omitempty"`
	Datapoints        []RawDatapoint `json:"datapoints,omitempty"`
}

// Overlay is a jurisdiction-scoped add/modify/disable operation (spec §4.6, §9).
type Overlay struct {
	Jurisdiction   string                 `json:"jurisdiction"`
	Op             string                 `json:"op"` // add | modify | disable
	ObligationCode string                 `json:"obligation_code"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
}

// RawBundle is the exact on-disk bundle file shape (spec §6.2).
type RawBundle struct {
	Regime             string            `json:"regime"`
	BundleID           string            `json:"bundle_id"`
	Version            string            `json:"version"`
	Jurisdiction       string            `json:"jurisdiction"`
	SourceRecordIDs    []string          `json:"source_record_ids,omitempty"`
	ApplicabilityRules map[string]string `json:"applicability_rules,omitempty"`
	Overlays           []Overlay         `json:"overlays,omitempty"`
	Obligations        []RawObligation   `json:"obligations"`
}

// Bundle is a validated, checksummed bundle ready for compilation.
type Bundle struct {
	Raw      RawBundle
	Checksum string
}

// Parse validates raw bundle JSON against the embedded schema and the
// semantic checks of spec §4.5, returning a checksummed Bundle.
func Parse(data []byte) (*Bundle, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.NewError(domain.KindValidation, "", fmt.Errorf("bundle: invalid JSON: %w", err))
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return nil, domain.NewError(domain.KindValidation, "", fmt.Errorf("bundle: schema validation failed: %w", err))
	}

	var raw RawBundle
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.NewError(domain.KindValidation, "", fmt.Errorf("bundle: decode failed: %w", err))
	}

	if err := validateSemantics(raw); err != nil {
		return nil, err
	}

	checksum, err := Checksum(raw)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, "", fmt.Errorf("bundle: checksum: %w", err))
	}

	return &Bundle{Raw: raw, Checksum: checksum}, nil
}

// validateSemantics enforces the checks beyond JSON Schema's reach:
// non-whitelisted applicability identifiers and dangling overlay targets.
func validateSemantics(raw RawBundle) error {
	knownObligations := make(map[string]bool, len(raw.Obligations))
	for _, o := range raw.Obligations {
		knownObligations[o.ObligationCode] = true

		if o.ApplicabilityRule != "" {
			if err := applicability.ValidateRule(o.ApplicabilityRule); err != nil {
				return domain.NewError(domain.KindValidation, string(domain.ReasonUnknownSymbol),
					fmt.Errorf("bundle: obligation %s applicability_rule: %w", o.ObligationCode, err))
			}
		}
		if o.PhaseInRule != "" {
			if err := applicability.ValidateRule(o.PhaseInRule); err != nil {
				return domain.NewError(domain.KindValidation, string(domain.ReasonUnknownSymbol),
					fmt.Errorf("bundle: obligation %s phase_in_rule: %w", o.ObligationCode, err))
			}
		}
		for _, dp := range o.Datapoints {
			if dp.DatapointType != string(domain.DatapointNarrative) && dp.DatapointType != string(domain.DatapointMetric) {
				return domain.Errorf(domain.KindValidation, "bundle: datapoint %s has unknown datapoint_type %q", dp.DatapointKey, dp.DatapointType)
			}
		}
	}

	for _, rule := range raw.ApplicabilityRules {
		if err := applicability.ValidateRule(rule); err != nil {
			return domain.NewError(domain.KindValidation, string(domain.ReasonUnknownSymbol), fmt.Errorf("bundle: applicability_rules entry: %w", err))
		}
	}

	for _, ov := range raw.Overlays {
		switch ov.Op {
		case "add", "modify", "disable":
		default:
			return domain.Errorf(domain.KindValidation, "bundle: overlay has unknown op %q", ov.Op)
		}
		if ov.Op != "add" && !knownObligations[ov.ObligationCode] {
			return domain.Errorf(domain.KindValidation, "bundle: overlay targets non-existent obligation %q", ov.ObligationCode)
		}
	}

	return nil
}

// Checksum computes SHA-256 over the canonical JSON of raw, per spec §3's
// checksum = SHA-256(canonical(payload)).
func Checksum(raw RawBundle) (string, error) {
	canonicalBytes, err := canonicalJSON(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON round-trips raw through encoding/json to a generic value
// before handing it to the JCS canonicalizer, so struct field order never
// leaks into the canonical byte sequence.
func canonicalJSON(raw RawBundle) ([]byte, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal for canonicalization: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal for canonicalization: %w", err)
	}
	return canonicalize.JCS(generic)
}

// FileName returns the <bundle_id>@<version>.json filename convention of
// spec §6.2.
func (b *Bundle) FileName() string {
	return fmt.Sprintf("%s@%s.json", b.Raw.BundleID, b.Raw.Version)
}

// SortedOverlays returns overlays ordered (jurisdiction code ascending,
// overlay op index) per spec §4.6 step 2.
func SortedOverlays(overlays []Overlay) []Overlay {
	sorted := make([]Overlay, len(overlays))
	copy(sorted, overlays)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Jurisdiction < sorted[j].Jurisdiction
	})
	return sorted
}
