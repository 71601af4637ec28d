package seanet

import (
	"math"
	"strings"
	"testing"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

func seqDataT(n int) []float32 {
	out := make([]float32, n)
	for i := range n {
		out[i] = float32((i%17)-8) / 17
	}

	return out
}

func equalApprox(got, want []float32, tol float64) bool {
	if len(got) != len(want) {
		return false
	}

	for i := range got {
		diff := math.Abs(float64(got[i]) - float64(want[i]))
		if diff > tol {
			return false
		}
	}

	return true
}

func mustTensorT(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	tt, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("new tensor: %v", err)
	}

	return tt
}

func assertErrContains(t *testing.T, err error, substr string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error containing %q, got nil", substr)
	}

	if !strings.Contains(err.Error(), substr) {
		t.Fatalf("error %q does not contain %q", err.Error(), substr)
	}
}

// fillParams gives every parameter deterministic non-zero values so shape
// and streaming tests exercise real arithmetic.
func fillParams(params []*tensor.Tensor) {
	j := 0
	for _, p := range params {
		d := p.RawData()
		for i := range d {
			d[i] = float32((j%23)-11) / 23
			j++
		}
	}
}

// fillTower fills a tower's parameters and refreshes any pre-packed
// transpose kernels afterwards.
func fillTowerParams(params []*tensor.Tensor, entries []towerEntry) {
	fillParams(params)

	for _, ent := range entries {
		if tr, ok := ent.layer.(*StreamConvTranspose1d); ok {
			tr.repack()
		}
	}
}

// stepAll feeds x through a streaming tower in chunks and concatenates the
// emitted pieces.
func stepAll(t *testing.T, step func(*tensor.Tensor) (*tensor.Tensor, error), x *tensor.Tensor, chunks []int64) *tensor.Tensor {
	t.Helper()

	var outs []*tensor.Tensor

	offset := int64(0)
	for _, n := range chunks {
		part, err := x.Narrow(2, offset, n)
		if err != nil {
			t.Fatalf("narrow chunk: %v", err)
		}

		offset += n

		out, err := step(part)
		if err != nil {
			t.Fatalf("step: %v", err)
		}

		outs = append(outs, out)
	}

	if offset != x.Shape()[2] {
		t.Fatalf("chunks cover %d of %d samples", offset, x.Shape()[2])
	}

	joined, err := tensor.Concat(outs, 2)
	if err != nil {
		t.Fatalf("concat outputs: %v", err)
	}

	return joined
}
