// Package testutil provides shared helpers for integration tests.
//
// The skip helpers call t.Skip with a clear human-readable reason when a
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    weights := testutil.RequireWeights(t)
//	    ...
//	}
package testutil

import (
	"math"
	"os"
	"testing"
)

// RequireWeights skips the test unless the SEANET_WEIGHTS environment
// variable points at an existing checkpoint file, and returns its path.
// Structural tests do not need weights; only parity tests against a real
// checkpoint do.
func RequireWeights(tb testing.TB) string {
	tb.Helper()

	path := os.Getenv("SEANET_WEIGHTS")
	if path == "" {
		tb.Skip("SEANET_WEIGHTS not set; skipping checkpoint-dependent test")
	}

	_, err := os.Stat(path)
	if err != nil {
		tb.Skipf("checkpoint not found at SEANET_WEIGHTS=%q: %v", path, err)
	}

	return path
}

// Sine returns n samples of a unit-amplitude sine at freq Hz sampled at
// sampleRate, the standard synthetic input for codec tests.
func Sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}

	return out
}

// Silence returns n zero samples.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// MaxAbsDiff returns the largest elementwise |a[i]-b[i]|. The slices must
// have equal length; callers assert on length first.
func MaxAbsDiff(tb testing.TB, a, b []float32) float64 {
	tb.Helper()

	if len(a) != len(b) {
		tb.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}

	var worst float64
	for i := range a {
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if d > worst {
			worst = d
		}
	}

	return worst
}
