package tensor

import (
	"strings"
	"testing"
)

func TestNewRejectsMismatchedData(t *testing.T) {
	_, err := New([]float32{1, 2, 3}, []int64{2, 2})
	if err == nil {
		t.Fatal("expected error for data/shape mismatch")
	}

	if !strings.Contains(err.Error(), "does not match shape") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRejectsNegativeDim(t *testing.T) {
	_, err := New(nil, []int64{-1, 3})
	if err == nil {
		t.Fatal("expected error for negative dimension")
	}
}

func TestReshapePreservesValues(t *testing.T) {
	x, err := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	y, err := x.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("reshape: %v", err)
	}
	if got := y.Shape(); !equalI64(got, []int64{3, 2}) {
		t.Fatalf("shape = %v, want [3 2]", got)
	}
	if got := y.Data(); !equalF32(got, []float32{1, 2, 3, 4, 5, 6}, 0) {
		t.Fatalf("data = %v", got)
	}
}

func TestReshapeRejectsElementMismatch(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	if _, err := x.Reshape([]int64{3, 2}); err == nil {
		t.Fatal("expected reshape error")
	}
}

func TestNarrow(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})
	out, err := x.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	if got := out.Shape(); !equalI64(got, []int64{2, 2}) {
		t.Fatalf("shape = %v, want [2 2]", got)
	}
	want := []float32{2, 3, 5, 6}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestNarrowLastDimOfRank3(t *testing.T) {
	x, _ := New([]float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, []int64{1, 2, 4})

	out, err := x.Narrow(2, 2, 2)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}

	want := []float32{3, 4, 7, 8}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestNarrowNegativeDim(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	out, err := x.Narrow(-1, 0, 1)
	if err != nil {
		t.Fatalf("narrow: %v", err)
	}
	want := []float32{1, 3}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestNarrowOutOfBounds(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	if _, err := x.Narrow(1, 1, 2); err == nil {
		t.Fatal("expected out-of-bounds error")
	}
}

func TestConcatDim1(t *testing.T) {
	a, _ := New([]float32{1, 2, 3, 4}, []int64{1, 2, 2})
	b, _ := New([]float32{5, 6, 7, 8}, []int64{1, 2, 2})
	out, err := Concat([]*Tensor{a, b}, 1)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if got := out.Shape(); !equalI64(got, []int64{1, 4, 2}) {
		t.Fatalf("shape = %v, want [1 4 2]", got)
	}
	want := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestConcatTimeDim(t *testing.T) {
	a, _ := New([]float32{1, 2, 10, 20}, []int64{1, 2, 2})
	b, _ := New([]float32{3, 30}, []int64{1, 2, 1})

	out, err := Concat([]*Tensor{a, b}, 2)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{1, 2, 3}) {
		t.Fatalf("shape = %v, want [1 2 3]", got)
	}

	want := []float32{1, 2, 3, 10, 20, 30}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestConcatShapeMismatch(t *testing.T) {
	a, _ := New([]float32{1, 2}, []int64{1, 2})
	b, _ := New([]float32{1, 2, 3}, []int64{1, 3})
	if _, err := Concat([]*Tensor{a, b}, 0); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	x, _ := New([]float32{1, 2}, []int64{2})
	y := x.Clone()
	y.RawData()[0] = 42

	if x.RawData()[0] != 1 {
		t.Fatal("clone shares data with original")
	}
}

func TestFull(t *testing.T) {
	x, err := Full([]int64{2, 3}, 0.5)
	if err != nil {
		t.Fatalf("full: %v", err)
	}

	for i, v := range x.Data() {
		if v != 0.5 {
			t.Fatalf("data[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestNilReceiverAccessors(t *testing.T) {
	var x *Tensor

	if x.Shape() != nil || x.Data() != nil || x.RawData() != nil {
		t.Fatal("nil tensor accessors must return nil")
	}

	if x.ElemCount() != 0 || x.Rank() != 0 {
		t.Fatal("nil tensor counts must be zero")
	}

	if x.Clone() != nil {
		t.Fatal("nil tensor clone must be nil")
	}
}
