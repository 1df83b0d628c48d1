package canon

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCanonicalProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("re-encoding canonical bytes is identity", prop.ForAll(
		func(keys []string, vals []string) bool {
			m := map[string]interface{}{}
			for i, k := range keys {
				if i < len(vals) {
					m[k] = vals[i]
				} else {
					m[k] = i
				}
			}
			first, err := Canonical(m)
			if err != nil {
				return false
			}
			var decoded interface{}
			if err := json.Unmarshal(first, &decoded); err != nil {
				return false
			}
			second, err := Canonical(decoded)
			if err != nil {
				return false
			}
			return string(first) == string(second)
		},
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.AnyString()),
	))

	properties.Property("normalization is idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizeString(s)
			return NormalizeString(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("digest is stable per input", prop.ForAll(
		func(data []byte) bool {
			return SHA256Hex(data) == SHA256Hex(data) && IsHex64(SHA256Hex(data))
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
