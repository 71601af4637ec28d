package audio

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// dcBlockCutoffHz is the corner frequency of the DC-blocking high-pass.
// Low enough to leave speech fundamentals untouched.
const dcBlockCutoffHz = 20.0

// PeakNormalize scales samples in place so the peak amplitude reaches 1.0.
// Silence is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		return samples
	}

	scale := 1 / peak
	for i := range samples {
		samples[i] *= scale
	}

	return samples
}

// dcBlockCoefficients expresses the single-pole high-pass
// H(z) = (1 - z^-1) / (1 - R z^-1) in biquad form, with the pole radius R
// derived from the cutoff frequency.
func dcBlockCoefficients(cutoffHz, sampleRate float64) biquad.Coefficients {
	r := 1 - 2*math.Pi*cutoffHz/sampleRate
	if r < 0 {
		r = 0
	}

	return biquad.Coefficients{B0: 1, B1: -1, A1: -r}
}

// DCBlock removes DC offset from samples in place with a high-pass filter.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || sampleRate <= 0 {
		return samples
	}

	sec := biquad.NewSection(dcBlockCoefficients(dcBlockCutoffHz, float64(sampleRate)))
	for i, s := range samples {
		samples[i] = float32(sec.ProcessSample(float64(s)))
	}

	return samples
}

// FadeIn applies a linear fade-in ramp over the given duration in
// milliseconds, in place. The first sample always lands on zero.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	fadeSamples := fadeLength(len(samples), sampleRate, ms)
	if fadeSamples == 0 {
		return samples
	}

	for i := 0; i < fadeSamples; i++ {
		samples[i] *= float32(i) / float32(fadeSamples)
	}

	return samples
}

// FadeOut applies a linear fade-out ramp over the given duration in
// milliseconds, in place. The last sample always lands on zero.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	fadeSamples := fadeLength(len(samples), sampleRate, ms)
	if fadeSamples == 0 {
		return samples
	}

	last := len(samples) - 1
	for j := 0; j < fadeSamples; j++ {
		samples[last-j] *= float32(j) / float32(fadeSamples)
	}

	return samples
}

func fadeLength(n, sampleRate int, ms float64) int {
	if n == 0 || sampleRate <= 0 || ms <= 0 {
		return 0
	}

	fadeSamples := int(ms / 1000 * float64(sampleRate))
	if fadeSamples > n {
		fadeSamples = n
	}

	return fadeSamples
}
