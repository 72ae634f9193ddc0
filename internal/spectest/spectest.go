// Package spectest provides the result-comparison helper the upstream
// WebAssembly spec test suite's assert_return family needs: for a float
// result, any NaN bit pattern is accepted as equal to any other NaN.
//
// The upstream suite distinguishes assert_return (exact value),
// assert_return_canonical_nan (result must be some canonical NaN) and
// assert_return_arithmetic_nan (result must be some NaN with the
// arithmetic-NaN payload bit set); original_source/tests/spec.rs stubs the
// latter two and, for the former, folds every NaN result and every NaN
// expectation to the same placeholder before comparing, so two NaNs always
// match regardless of payload. AssertReturn mirrors that same folding
// technique rather than reimplementing the stricter canonical/arithmetic
// bit-pattern checks the teacher's full spectest harness performs, per
// SPEC_FULL.md's "any NaN bit pattern is treated as equal to any other NaN
// for these two directive kinds" scope decision.
package spectest

import (
	"math"

	"github.com/akiomik-go/gowasm/api"
)

// AssertReturn reports whether got matches want for a function whose
// declared result types are resultTypes. i32/i64 results compare exactly;
// f32/f64 results compare exactly unless either side is NaN, in which case
// both must be NaN.
func AssertReturn(resultTypes []api.ValueType, got, want []uint64) bool {
	if len(got) != len(want) || len(got) != len(resultTypes) {
		return false
	}
	for i, t := range resultTypes {
		if !valueEqual(t, got[i], want[i]) {
			return false
		}
	}
	return true
}

func valueEqual(t api.ValueType, got, want uint64) bool {
	switch t {
	case api.ValueTypeF32:
		g, w := api.DecodeF32(got), api.DecodeF32(want)
		if math.IsNaN(float64(g)) || math.IsNaN(float64(w)) {
			return math.IsNaN(float64(g)) && math.IsNaN(float64(w))
		}
		return g == w
	case api.ValueTypeF64:
		g, w := api.DecodeF64(got), api.DecodeF64(want)
		if math.IsNaN(g) || math.IsNaN(w) {
			return math.IsNaN(g) && math.IsNaN(w)
		}
		return g == w
	default:
		return got == want
	}
}
