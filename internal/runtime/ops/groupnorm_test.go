package ops

import (
	"testing"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

func TestGroupNorm(t *testing.T) {
	input := mustTensorT(t, []float32{
		1, 2, 3, // ch0
		4, 5, 6, // ch1
	}, []int64{1, 2, 3})

	out, err := GroupNorm(input, nil, nil, 1, 0)
	if err != nil {
		t.Fatalf("groupnorm: %v", err)
	}

	// mean 3.5, population variance 17.5/6 over the single group.
	want := []float32{
		-1.4638501, -0.87831006, -0.29277002,
		0.29277002, 0.87831006, 1.4638501,
	}
	if got := out.Data(); !equalApprox(got, want, 1e-5) {
		t.Fatalf("groupnorm = %v, want %v", got, want)
	}

	if got := input.Data(); !equalApprox(got, []float32{1, 2, 3, 4, 5, 6}, 0) {
		t.Fatalf("groupnorm modified its input: %v", got)
	}
}

func TestGroupNormGroups(t *testing.T) {
	input := mustTensorT(t, []float32{
		1, 2, // ch0, group0
		3, 4, // ch1, group0
		10, 10, // ch2, group1
		10, 10, // ch3, group1
	}, []int64{1, 4, 2})

	out, err := GroupNorm(input, nil, nil, 2, 1e-5)
	if err != nil {
		t.Fatalf("groupnorm: %v", err)
	}

	want := []float32{
		-1.3416407, -0.4472136,
		0.4472136, 1.3416407,
		0, 0,
		0, 0,
	}
	if got := out.Data(); !equalApprox(got, want, 1e-4) {
		t.Fatalf("groupnorm(groups=2) = %v, want %v", got, want)
	}
}

func TestGroupNormAffine(t *testing.T) {
	input := mustTensorT(t, []float32{
		1, 2, 3,
		4, 5, 6,
	}, []int64{1, 2, 3})
	weight := mustTensorT(t, []float32{2, 0.5}, []int64{2})
	bias := mustTensorT(t, []float32{1, -1}, []int64{2})

	out, err := GroupNorm(input, weight, bias, 1, 0)
	if err != nil {
		t.Fatalf("groupnorm: %v", err)
	}

	want := []float32{
		-1.9277002, -0.75662013, 0.41445996,
		-0.853615, -0.56084496, -0.26807493,
	}
	if got := out.Data(); !equalApprox(got, want, 1e-5) {
		t.Fatalf("groupnorm(affine) = %v, want %v", got, want)
	}
}

func TestGroupNormPerBatchStats(t *testing.T) {
	base := []float32{1, 2, 3, 4}
	shifted := make([]float32, len(base))
	for i, v := range base {
		shifted[i] = v + 100
	}

	input := mustTensorT(t, append(append([]float32{}, base...), shifted...), []int64{2, 2, 2})

	out, err := GroupNorm(input, nil, nil, 1, 0)
	if err != nil {
		t.Fatalf("groupnorm: %v", err)
	}

	data := out.Data()
	if !equalApprox(data[:4], data[4:], 1e-5) {
		t.Fatalf("batch entries normalized differently: %v vs %v", data[:4], data[4:])
	}
}

func TestGroupNormErrors(t *testing.T) {
	valid := mustTensorT(t, make([]float32, 6), []int64{1, 2, 3})

	tests := []struct {
		name    string
		input   *tensor.Tensor
		weight  *tensor.Tensor
		bias    *tensor.Tensor
		groups  int64
		wantErr string
	}{
		{
			name:    "nil input",
			input:   nil,
			groups:  1,
			wantErr: "requires non-nil",
		},
		{
			name:    "invalid groups",
			input:   valid,
			groups:  0,
			wantErr: "must be > 0",
		},
		{
			name:    "rank mismatch",
			input:   mustTensorT(t, make([]float32, 6), []int64{2, 3}),
			groups:  1,
			wantErr: "rank 3",
		},
		{
			name:    "channels not divisible",
			input:   mustTensorT(t, make([]float32, 9), []int64{1, 3, 3}),
			groups:  2,
			wantErr: "not divisible by groups",
		},
		{
			name:    "weight shape mismatch",
			input:   valid,
			weight:  mustTensorT(t, make([]float32, 3), []int64{3}),
			groups:  1,
			wantErr: "weight shape",
		},
		{
			name:    "bias shape mismatch",
			input:   valid,
			bias:    mustTensorT(t, make([]float32, 3), []int64{3}),
			groups:  1,
			wantErr: "bias shape",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := GroupNorm(tc.input, tc.weight, tc.bias, tc.groups, 1e-5)
			assertErrContains(t, err, tc.wantErr)
		})
	}
}
