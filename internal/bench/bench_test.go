package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/example/go-seanet/internal/bench"
	"github.com/example/go-seanet/internal/codec"
	"github.com/example/go-seanet/internal/seanet"
)

// smallConfig is a tiny causal topology so benchmark tests stay fast: hop 4,
// dimension 2.
func smallConfig() seanet.Config {
	return seanet.Config{
		Channels:           1,
		Dimension:          2,
		NFilters:           1,
		NResidualLayers:    1,
		Ratios:             []int64{2, 2},
		Activation:         seanet.ActivationELU,
		ActivationParams:   map[string]float64{"alpha": 1.0},
		Norm:               seanet.NormNone,
		KernelSize:         3,
		LastKernelSize:     3,
		ResidualKernelSize: 3,
		DilationBase:       1,
		Causal:             true,
		PadMode:            seanet.PadConstant,
		TrueSkip:           true,
		Compress:           1,
		TrimRightRatio:     1.0,
	}
}

func newBenchCodec(t *testing.T) *codec.Codec {
	t.Helper()

	c, err := codec.New(smallConfig(), codec.WithSampleRate(100))
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}

	return c
}

// ---------------------------------------------------------------------------
// Stats aggregation
// ---------------------------------------------------------------------------

func TestComputeStats_MinMaxMean(t *testing.T) {
	durations := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}
	s := bench.ComputeStats(durations)

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}
	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}
	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}
}

func TestComputeStats_Quantiles(t *testing.T) {
	var durations []time.Duration
	for i := 1; i <= 100; i++ {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	s := bench.ComputeStats(durations)

	if s.P50 < 45*time.Millisecond || s.P50 > 55*time.Millisecond {
		t.Errorf("p50 = %v, want near 50ms", s.P50)
	}
	if s.P95 < 90*time.Millisecond || s.P95 > 100*time.Millisecond {
		t.Errorf("p95 = %v, want near 95ms", s.P95)
	}
	if s.P95 < s.P50 {
		t.Errorf("p95 %v must not be below p50 %v", s.P95, s.P50)
	}
}

func TestComputeStats_SingleRun(t *testing.T) {
	s := bench.ComputeStats([]time.Duration{150 * time.Millisecond})
	if s.Min != s.Max || s.Min != s.Mean || s.Min != s.P50 || s.Min != s.P95 {
		t.Errorf("single run: all stats should be equal, got %+v", s)
	}
}

func TestComputeStats_Empty(t *testing.T) {
	s := bench.ComputeStats(nil)
	if s != (bench.Stats{}) {
		t.Errorf("empty input should give zero stats, got %+v", s)
	}
}

// ---------------------------------------------------------------------------
// RTF
// ---------------------------------------------------------------------------

func TestCalcRTF(t *testing.T) {
	rtf := bench.CalcRTF(500*time.Millisecond, time.Second)
	if rtf < 0.499 || rtf > 0.501 {
		t.Errorf("want RTF near 0.5, got %.4f", rtf)
	}

	if got := bench.CalcRTF(time.Second, 0); got != 0 {
		t.Errorf("zero audio duration should give 0, got %v", got)
	}
}

func TestCheckRTFThreshold(t *testing.T) {
	if err := bench.CheckRTFThreshold(0.5, 1.0); err != nil {
		t.Errorf("RTF under threshold should pass: %v", err)
	}
	if err := bench.CheckRTFThreshold(1.5, 1.0); err == nil {
		t.Error("RTF over threshold should fail")
	}
	if err := bench.CheckRTFThreshold(99, 0); err != nil {
		t.Errorf("threshold 0 disables the gate: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRun_ProducesAllIterations(t *testing.T) {
	rep, err := bench.Run(context.Background(), newBenchCodec(t), bench.Options{
		Iters:   3,
		Warmup:  1,
		Seconds: 0.2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rep.Encode) != 3 || len(rep.Decode) != 3 {
		t.Fatalf("runs = %d/%d, want 3/3", len(rep.Encode), len(rep.Decode))
	}
	if rep.Encode[0].Cold {
		t.Error("first run after warmup should not be cold")
	}
	if rep.InputSamples%4 != 0 {
		t.Errorf("input %d samples not hop-aligned", rep.InputSamples)
	}
	if rep.Frames != int64(rep.InputSamples)/4 {
		t.Errorf("frames = %d, want %d", rep.Frames, rep.InputSamples/4)
	}
	if rep.EncodeStats.Mean <= 0 {
		t.Error("encode mean duration should be positive")
	}
	if rep.EncoderStages != nil {
		t.Error("stage profile should be nil unless requested")
	}
}

func TestRun_ColdFirstRunWithoutWarmup(t *testing.T) {
	rep, err := bench.Run(context.Background(), newBenchCodec(t), bench.Options{
		Iters:   2,
		Seconds: 0.2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !rep.Encode[0].Cold {
		t.Error("first run without warmup should be cold")
	}
	if rep.Encode[1].Cold {
		t.Error("second run should not be cold")
	}
}

func TestRun_StageProfile(t *testing.T) {
	rep, err := bench.Run(context.Background(), newBenchCodec(t), bench.Options{
		Iters:        1,
		Seconds:      0.2,
		StageProfile: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rep.EncoderStages == nil || rep.DecoderStages == nil {
		t.Fatal("stage profiles should be present when requested")
	}

	// smallConfig: initial conv + 2 ratio stages (resblock, act, conv each)
	// + final act + final conv = 9 encoder stages.
	if got := len(rep.EncoderStages.Stages()); got != 9 {
		t.Errorf("encoder stages = %d, want 9", got)
	}
	if rep.EncoderStages.Total() <= 0 {
		t.Error("encoder stage total should be positive")
	}
}

func TestRun_NilCodec(t *testing.T) {
	if _, err := bench.Run(context.Background(), nil, bench.Options{}); err == nil {
		t.Error("Run(nil codec) = nil; want error")
	}
}

// ---------------------------------------------------------------------------
// Formatters
// ---------------------------------------------------------------------------

func sampleReport(t *testing.T, stageProfile bool) *bench.Report {
	t.Helper()

	rep, err := bench.Run(context.Background(), newBenchCodec(t), bench.Options{
		Iters:        2,
		Seconds:      0.2,
		StageProfile: stageProfile,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	return rep
}

func TestFormatTable(t *testing.T) {
	var buf bytes.Buffer
	bench.FormatTable(sampleReport(t, true), &buf)

	out := buf.String()
	for _, want := range []string{"encode", "decode", "RTF", "p95", "encoder stages", "decoder stages"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	bench.FormatJSON(sampleReport(t, false), &buf)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	for _, key := range []string{"encode", "decode", "encode_stats", "decode_stats", "sample_rate"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON output missing key %q", key)
		}
	}
	if _, ok := decoded["stages"]; ok {
		t.Error("JSON output should omit stages when profiling is off")
	}
}
