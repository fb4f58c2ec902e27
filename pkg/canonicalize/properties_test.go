//go:build property
// +build property

package canonicalize_test

import (
	"encoding/json"
	"testing"

	"github.com/Atom1250/Compliance-App/pkg/canonicalize"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genJSONObject() gopter.Gen {
	return gen.MapOf(gen.AlphaString(), gen.OneGenOf(gen.AlphaString(), gen.Int(), gen.Bool()))
}

// TestJCS_RoundTripIsStable locks spec §8 property 7:
// canonical(parse(canonical(b))) == canonical(b).
func TestJCS_RoundTripIsStable(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("re-canonicalizing canonical bytes is a fixed point", prop.ForAll(
		func(obj map[string]interface{}) bool {
			b1, err := canonicalize.JCS(obj)
			if err != nil {
				return false
			}

			var reparsed interface{}
			if err := json.Unmarshal(b1, &reparsed); err != nil {
				return false
			}

			b2, err := canonicalize.JCS(reparsed)
			if err != nil {
				return false
			}
			return string(b1) == string(b2)
		},
		genJSONObject(),
	))

	properties.TestingRun(t)
}

// TestJCS_KeyOrderDoesNotAffectOutput locks that canonical bytes (and
// therefore checksum) depend only on content, never on the input map's
// (arbitrary, Go-randomized) iteration order.
func TestJCS_KeyOrderDoesNotAffectOutput(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("checksum depends only on canonical bytes, not map construction order", prop.ForAll(
		func(keys []string, vals []int) bool {
			n := len(keys)
			if len(vals) < n {
				n = len(vals)
			}
			m1 := make(map[string]interface{}, n)
			m2 := make(map[string]interface{}, n)
			for i := 0; i < n; i++ {
				if keys[i] == "" {
					continue
				}
				m1[keys[i]] = vals[i]
				m2[keys[i]] = vals[i]
			}

			h1, err := canonicalize.CanonicalHash(m1)
			if err != nil {
				return false
			}
			h2, err := canonicalize.CanonicalHash(m2)
			if err != nil {
				return false
			}
			return h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
