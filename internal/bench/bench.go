// Package bench provides benchmarking primitives for the seanet bench
// command: timed encode/decode runs over synthetic PCM with aggregate
// statistics and an optional per-layer stage profile.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/example/go-seanet/internal/bench/stageprof"
	"github.com/example/go-seanet/internal/codec"
	"github.com/example/go-seanet/internal/runtime/tensor"
)

// ---------------------------------------------------------------------------
// Run results and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing of a single encode or decode forward.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (cold-start)
	Duration time.Duration
	AudioDur time.Duration
	RTF      float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
}

// ComputeStats calculates min/max/mean and empirical p50/p95 over a slice
// of durations. The slice must be non-empty for a meaningful result.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	secs := make([]float64, len(durations))
	for i, d := range durations {
		secs[i] = d.Seconds()
	}

	sort.Float64s(secs)

	toDur := func(s float64) time.Duration {
		return time.Duration(s * float64(time.Second))
	}

	return Stats{
		Min:  toDur(secs[0]),
		Max:  toDur(secs[len(secs)-1]),
		Mean: toDur(stat.Mean(secs, nil)),
		P50:  toDur(stat.Quantile(0.5, stat.Empirical, secs, nil)),
		P95:  toDur(stat.Quantile(0.95, stat.Empirical, secs, nil)),
	}
}

// CalcRTF returns processing_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(procDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(procDur) / float64(audioDur)
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Benchmark runner
// ---------------------------------------------------------------------------

// Options controls a benchmark run.
type Options struct {
	// Iters is the number of timed iterations (default 5).
	Iters int
	// Warmup is the number of untimed warmup iterations (default 1).
	Warmup int
	// Seconds is the synthetic input length (default 1.0); rounded up to a
	// whole number of hops.
	Seconds float64
	// StageProfile enables the per-layer timing pass.
	StageProfile bool
}

// Report is the outcome of one benchmark run.
type Report struct {
	SampleRate   int
	InputSamples int
	Frames       int64

	Encode      []RunResult
	Decode      []RunResult
	EncodeStats Stats
	DecodeStats Stats

	EncoderStages *stageprof.Profile
	DecoderStages *stageprof.Profile
}

// Run benchmarks c's encode and decode forwards over a synthetic sine input.
func Run(ctx context.Context, c *codec.Codec, opts Options) (*Report, error) {
	if c == nil {
		return nil, errors.New("bench: codec is required")
	}
	if opts.Iters <= 0 {
		opts.Iters = 5
	}
	if opts.Warmup < 0 {
		opts.Warmup = 0
	}
	if opts.Seconds <= 0 {
		opts.Seconds = 1.0
	}

	hop := c.HopLength()
	n := int64(opts.Seconds * float64(c.SampleRate()))
	if rem := n % hop; rem != 0 {
		n += hop - rem
	}

	pcm := sine(440, c.SampleRate(), int(n))
	audioDur := time.Duration(n) * time.Second / time.Duration(c.SampleRate())

	rep := &Report{
		SampleRate:   c.SampleRate(),
		InputSamples: int(n),
	}

	for range opts.Warmup {
		lat, err := c.Encode(ctx, pcm)
		if err != nil {
			return nil, fmt.Errorf("bench: warmup encode: %w", err)
		}
		if _, err := c.Decode(ctx, lat); err != nil {
			return nil, fmt.Errorf("bench: warmup decode: %w", err)
		}
	}

	var lastLatent *codec.Latent

	for i := range opts.Iters {
		start := time.Now()
		lat, err := c.Encode(ctx, pcm)
		if err != nil {
			return nil, fmt.Errorf("bench: encode run %d: %w", i+1, err)
		}
		encDur := time.Since(start)

		start = time.Now()
		if _, err := c.Decode(ctx, lat); err != nil {
			return nil, fmt.Errorf("bench: decode run %d: %w", i+1, err)
		}
		decDur := time.Since(start)

		cold := i == 0 && opts.Warmup == 0
		rep.Encode = append(rep.Encode, RunResult{
			Index: i, Cold: cold, Duration: encDur, AudioDur: audioDur, RTF: CalcRTF(encDur, audioDur),
		})
		rep.Decode = append(rep.Decode, RunResult{
			Index: i, Cold: cold, Duration: decDur, AudioDur: audioDur, RTF: CalcRTF(decDur, audioDur),
		})

		lastLatent = lat
	}

	rep.Frames = lastLatent.Frames
	rep.EncodeStats = ComputeStats(resultDurations(rep.Encode))
	rep.DecodeStats = ComputeStats(resultDurations(rep.Decode))

	if opts.StageProfile {
		if err := profileStages(ctx, c, pcm, lastLatent, rep); err != nil {
			return nil, err
		}
	}

	return rep, nil
}

func profileStages(ctx context.Context, c *codec.Codec, pcm []float32, lat *codec.Latent, rep *Report) error {
	rep.EncoderStages = stageprof.New()
	rep.DecoderStages = stageprof.New()

	// The bench input is already hop-aligned, so the towers see the same
	// shapes the timed runs did.
	x, err := tensor.New(append([]float32(nil), pcm...), []int64{1, 1, int64(len(pcm))})
	if err != nil {
		return fmt.Errorf("bench: stage profile input: %w", err)
	}

	enc := c.Encoder()
	if _, err := stageprof.RunTower(ctx, enc.Describe(), enc.Layers(), x, rep.EncoderStages); err != nil {
		return fmt.Errorf("bench: encoder stage profile: %w", err)
	}

	z, err := tensor.New(append([]float32(nil), lat.Data...), []int64{1, lat.Dim, lat.Frames})
	if err != nil {
		return fmt.Errorf("bench: stage profile latent: %w", err)
	}

	dec := c.Decoder()
	if _, err := stageprof.RunTower(ctx, dec.Describe(), dec.Layers(), z, rep.DecoderStages); err != nil {
		return fmt.Errorf("bench: decoder stage profile: %w", err)
	}

	return nil
}

func resultDurations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

func sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}

	return out
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(rep *Report, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "input: %d samples @ %d Hz (%d frames)\n\n", rep.InputSamples, rep.SampleRate, rep.Frames)

	writeRuns := func(label string, runs []RunResult, stats Stats) {
		fmt.Fprintf(sb, "%s\n", label)
		fmt.Fprintf(sb, "%-5s  %-5s  %10s  %8s\n", "Run", "Cold", "MS", "RTF")
		fmt.Fprintln(sb, strings.Repeat("-", 36))

		for _, r := range runs {
			cold := ""
			if r.Cold {
				cold = "yes"
			}
			fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %8.3f\n",
				r.Index+1, cold, r.Duration.Seconds()*1000, r.RTF)
		}

		fmt.Fprintln(sb, strings.Repeat("-", 36))
		fmt.Fprintf(sb, "min %.1fms  mean %.1fms  p50 %.1fms  p95 %.1fms  max %.1fms\n\n",
			stats.Min.Seconds()*1000,
			stats.Mean.Seconds()*1000,
			stats.P50.Seconds()*1000,
			stats.P95.Seconds()*1000,
			stats.Max.Seconds()*1000,
		)
	}

	writeRuns("encode", rep.Encode, rep.EncodeStats)
	writeRuns("decode", rep.Decode, rep.DecodeStats)

	if rep.EncoderStages != nil {
		fmt.Fprintln(sb, "encoder stages")
		rep.EncoderStages.WriteTable(sb)
		fmt.Fprintln(sb)
	}
	if rep.DecoderStages != nil {
		fmt.Fprintln(sb, "decoder stages")
		rep.DecoderStages.WriteTable(sb)
	}

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	SampleRate   int         `json:"sample_rate"`
	InputSamples int         `json:"input_samples"`
	Frames       int64       `json:"frames"`
	Encode       []jsonRun   `json:"encode"`
	Decode       []jsonRun   `json:"decode"`
	EncodeStats  jsonStats   `json:"encode_stats"`
	DecodeStats  jsonStats   `json:"decode_stats"`
	Stages       []jsonStage `json:"stages,omitempty"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	P50MS  float64 `json:"p50_ms"`
	P95MS  float64 `json:"p95_ms"`
	MaxMS  float64 `json:"max_ms"`
}

type jsonStage struct {
	Tower   string  `json:"tower"`
	Name    string  `json:"name"`
	Calls   int     `json:"calls"`
	TotalMS float64 `json:"total_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(rep *Report, w io.Writer) {
	jr := jsonReport{
		SampleRate:   rep.SampleRate,
		InputSamples: rep.InputSamples,
		Frames:       rep.Frames,
		Encode:       jsonRuns(rep.Encode),
		Decode:       jsonRuns(rep.Decode),
		EncodeStats:  toJSONStats(rep.EncodeStats),
		DecodeStats:  toJSONStats(rep.DecodeStats),
	}

	for tower, prof := range map[string]*stageprof.Profile{"encoder": rep.EncoderStages, "decoder": rep.DecoderStages} {
		if prof == nil {
			continue
		}
		for _, s := range prof.Stages() {
			jr.Stages = append(jr.Stages, jsonStage{
				Tower: tower, Name: s.Name, Calls: s.Count, TotalMS: s.Total.Seconds() * 1000,
			})
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}

func jsonRuns(runs []RunResult) []jsonRun {
	out := make([]jsonRun, len(runs))
	for i, r := range runs {
		out[i] = jsonRun{Index: r.Index, Cold: r.Cold, DurationMS: r.Duration.Seconds() * 1000, RTF: r.RTF}
	}

	return out
}

func toJSONStats(s Stats) jsonStats {
	return jsonStats{
		MinMS:  s.Min.Seconds() * 1000,
		MeanMS: s.Mean.Seconds() * 1000,
		P50MS:  s.P50.Seconds() * 1000,
		P95MS:  s.P95.Seconds() * 1000,
		MaxMS:  s.Max.Seconds() * 1000,
	}
}
