package bundle

// bundleSchemaJSON is the embedded JSON Schema for the bundle file format
// of spec §6.2, validated via santhosh-tekuri/jsonschema/v5 the same way
// the teacher's pkg/firewall compiles tool-parameter schemas.
const bundleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["regime", "bundle_id", "version", "jurisdiction", "obligations"],
  "properties": {
    "regime": {"type": "string", "minLength": 1},
    "bundle_id": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "jurisdiction": {"type": "string", "minLength": 1},
    "source_record_ids": {"type": "array", "items": {"type": "string"}},
    "applicability_rules": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "overlays": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["jurisdiction", "op", "obligation_code"],
        "properties": {
          "jurisdiction": {"type": "string"},
          "op": {"type": "string", "enum": ["add", "modify", "disable"]},
          "obligation_code": {"type": "string"},
          "fields": {"type": "object"},
          "reason": {"type": "string"}
        }
      }
    },
    "obligations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["obligation_code", "name", "standard"],
        "properties": {
          "obligation_code": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "standard": {"type": "string"},
          "applicability_rule": {"type": "string"},
          "phase_in_rule": {"type": "string"},
          "datapoints": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["datapoint_key", "title", "datapoint_type"],
              "properties": {
                "datapoint_key": {"type": "string", "minLength": 1},
                "title": {"type": "string"},
                "disclosure_reference": {"type": "string"},
                "datapoint_type": {"type": "string", "enum": ["narrative", "metric"]},
                "requires_baseline": {"type": "boolean"},
                "materiality_topic": {"type": "string"},
                "mandatory": {"type": "boolean"}
              }
            }
          }
        }
      }
    }
  }
}`
