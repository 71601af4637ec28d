package stageprof_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/example/go-seanet/internal/bench/stageprof"
	"github.com/example/go-seanet/internal/runtime/tensor"
	"github.com/example/go-seanet/internal/seanet"
)

func TestProfile_ObserveAccumulates(t *testing.T) {
	p := stageprof.New()
	p.Observe("conv", 10*time.Millisecond)
	p.Observe("act", 5*time.Millisecond)
	p.Observe("conv", 10*time.Millisecond)

	stages := p.Stages()
	if len(stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(stages))
	}
	if stages[0].Name != "conv" || stages[1].Name != "act" {
		t.Errorf("order = %q,%q; want first-observed order", stages[0].Name, stages[1].Name)
	}
	if stages[0].Total != 20*time.Millisecond || stages[0].Count != 2 {
		t.Errorf("conv = %v x%d, want 20ms x2", stages[0].Total, stages[0].Count)
	}
	if p.Total() != 25*time.Millisecond {
		t.Errorf("Total = %v, want 25ms", p.Total())
	}
}

func TestProfile_WriteTable(t *testing.T) {
	p := stageprof.New()
	p.Observe("00:conv 1x4 k7 s1", 10*time.Millisecond)
	p.Observe("01:activation/elu", 2*time.Millisecond)

	var sb strings.Builder
	p.WriteTable(&sb)

	out := sb.String()
	for _, want := range []string{"Stage", "00:conv", "01:activation/elu", "total"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRunTower_MatchesForward(t *testing.T) {
	cfg := seanet.Config{
		Channels:           1,
		Dimension:          2,
		NFilters:           1,
		NResidualLayers:    1,
		Ratios:             []int64{2},
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

	enc, err := seanet.NewEncoder(cfg)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	input := make([]float32, 8)
	for i := range input {
		input[i] = float32(i%5) / 5
	}

	x1, err := tensor.New(append([]float32(nil), input...), []int64{1, 1, 8})
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}
	want, err := enc.Forward(x1)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	x2, err := tensor.New(append([]float32(nil), input...), []int64{1, 1, 8})
	if err != nil {
		t.Fatalf("tensor.New: %v", err)
	}

	p := stageprof.New()
	got, err := stageprof.RunTower(context.Background(), enc.Describe(), enc.Layers(), x2, p)
	if err != nil {
		t.Fatalf("RunTower: %v", err)
	}

	wantData, gotData := want.RawData(), got.RawData()
	if len(wantData) != len(gotData) {
		t.Fatalf("output length %d, want %d", len(gotData), len(wantData))
	}
	for i := range wantData {
		if wantData[i] != gotData[i] {
			t.Fatalf("output[%d] = %v, want %v", i, gotData[i], wantData[i])
		}
	}

	if got := len(p.Stages()); got != len(enc.Layers()) {
		t.Errorf("stages = %d, want %d", got, len(enc.Layers()))
	}
}

func TestRunTower_InfoLayerMismatch(t *testing.T) {
	p := stageprof.New()
	_, err := stageprof.RunTower(context.Background(), nil, []seanet.Layer{seanet.Identity{}}, nil, p)
	if err == nil {
		t.Error("mismatched infos/layers should fail")
	}
}
