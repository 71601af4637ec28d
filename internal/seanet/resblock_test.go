package seanet

import (
	"testing"
)

func TestResidualBlockIdentityAtZero(t *testing.T) {
	cfg := DefaultConfig()

	block, err := NewResidualBlock(cfg, 4, []int64{3, 1}, []int64{1, 1}, NormNone)
	if err != nil {
		t.Fatalf("NewResidualBlock: %v", err)
	}

	// With zero-initialized branch weights the block must be an exact
	// identity: the branch contributes nothing and the shortcut passes the
	// input through.
	data := seqDataT(24)
	x := mustTensorT(t, data, []int64{1, 4, 6})

	out, err := block.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if !equalShape(out.Shape(), x.Shape()) {
		t.Fatalf("Forward shape = %v, want %v", out.Shape(), x.Shape())
	}

	if got := out.Data(); !equalApprox(got, data, 0) {
		t.Fatalf("Forward = %v, want input unchanged", got)
	}
}

func TestResidualBlockLearnedShortcut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrueSkip = false

	block, err := NewResidualBlock(cfg, 2, []int64{3, 1}, []int64{1, 1}, NormNone)
	if err != nil {
		t.Fatalf("NewResidualBlock: %v", err)
	}

	shortcut, ok := block.shortcut.(*StreamConv1d)
	if !ok {
		t.Fatalf("shortcut is %T, want *StreamConv1d", block.shortcut)
	}

	x := mustTensorT(t, []float32{1, 2, 3, 4, 5, 6}, []int64{1, 2, 3})

	// All-zero weights include the shortcut, so the block collapses to
	// zero.
	out, err := block.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if got := out.Data(); !equalApprox(got, make([]float32, 6), 0) {
		t.Fatalf("Forward = %v, want zeros", got)
	}

	// A scaled-identity shortcut turns the block into a plain gain.
	copy(shortcut.weight.RawData(), []float32{2, 0, 0, 2})

	out, err = block.Forward(x)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	want := []float32{2, 4, 6, 8, 10, 12}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("Forward = %v, want %v", got, want)
	}
}

func TestResidualBlockBottleneck(t *testing.T) {
	cfg := DefaultConfig() // compress 2

	block, err := NewResidualBlock(cfg, 8, []int64{3, 1}, []int64{1, 1}, NormNone)
	if err != nil {
		t.Fatalf("NewResidualBlock: %v", err)
	}

	params := block.Parameters()
	if len(params) != 4 {
		t.Fatalf("Parameters() returned %d tensors, want 4", len(params))
	}

	first := params[0].Shape()
	if first[0] != 4 || first[1] != 8 || first[2] != 3 {
		t.Fatalf("first kernel shape = %v, want [4 8 3]", first)
	}

	last := params[2].Shape()
	if last[0] != 8 || last[1] != 4 || last[2] != 1 {
		t.Fatalf("last kernel shape = %v, want [8 4 1]", last)
	}
}

func TestResidualBlockErrors(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name    string
		run     func() error
		wantErr string
	}{
		{
			name: "kernel dilation mismatch",
			run: func() error {
				_, err := NewResidualBlock(cfg, 4, []int64{3, 1}, []int64{1}, NormNone)
				return err
			},
			wantErr: "kernel sizes but 1 dilations",
		},
		{
			name: "empty branch",
			run: func() error {
				_, err := NewResidualBlock(cfg, 4, nil, nil, NormNone)
				return err
			},
			wantErr: "at least one convolution",
		},
		{
			name: "compress exceeds width",
			run: func() error {
				narrow := cfg
				narrow.Compress = 4

				_, err := NewResidualBlock(narrow, 2, []int64{3, 1}, []int64{1, 1}, NormNone)
				return err
			},
			wantErr: "leaves no hidden channels",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assertErrContains(t, tc.run(), tc.wantErr)
		})
	}
}

func TestResidualBlockStreamingMatchesForward(t *testing.T) {
	cases := []struct {
		name      string
		dilations []int64
		chunks    []int64
	}{
		{name: "plain", dilations: []int64{1, 1}, chunks: []int64{3, 4, 5}},
		{name: "dilated short chunks", dilations: []int64{4, 1}, chunks: []int64{2, 2, 2, 2, 2, 2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := EnCodec24kHzConfig()
			cfg.PadMode = PadConstant

			block, err := NewResidualBlock(cfg, 4, []int64{3, 1}, tc.dilations, NormNone)
			if err != nil {
				t.Fatalf("NewResidualBlock: %v", err)
			}

			fillParams(block.Parameters())

			x := mustTensorT(t, seqDataT(48), []int64{1, 4, 12})

			want, err := block.Forward(x)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}

			got := stepAll(t, block.Step, x, tc.chunks)

			if !equalApprox(got.Data(), want.Data(), 0) {
				t.Fatalf("streamed output differs from forward")
			}

			block.Reset()

			again := stepAll(t, block.Step, x, tc.chunks)
			if !equalApprox(again.Data(), want.Data(), 0) {
				t.Fatalf("streamed output differs after Reset")
			}
		})
	}
}
