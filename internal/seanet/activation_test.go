package seanet

import (
	"testing"
)

func TestActivationForward(t *testing.T) {
	cases := []struct {
		name   string
		kind   ActivationKind
		params map[string]float64
		in     []float32
		want   []float32
	}{
		{
			name: "elu",
			kind: ActivationELU,
			in:   []float32{-1, 0, 1},
			want: []float32{-0.63212055, 0, 1},
		},
		{
			name:   "elu alpha 2",
			kind:   ActivationELU,
			params: map[string]float64{"alpha": 2},
			in:     []float32{-1, 1},
			want:   []float32{-1.2642411, 1},
		},
		{
			name: "relu",
			kind: ActivationReLU,
			in:   []float32{-1, 0, 2},
			want: []float32{0, 0, 2},
		},
		{
			name: "leaky relu default slope",
			kind: ActivationLeakyReLU,
			in:   []float32{-1, 2},
			want: []float32{-0.01, 2},
		},
		{
			name:   "leaky relu custom slope",
			kind:   ActivationLeakyReLU,
			params: map[string]float64{"negative_slope": 0.2},
			in:     []float32{-1, 2},
			want:   []float32{-0.2, 2},
		},
		{
			name: "gelu",
			kind: ActivationGELU,
			in:   []float32{-1, 0, 1},
			want: []float32{-0.15865526, 0, 0.84134474},
		},
		{
			name: "silu",
			kind: ActivationSiLU,
			in:   []float32{-1, 0, 1},
			want: []float32{-0.26894143, 0, 0.7310586},
		},
		{
			name: "tanh",
			kind: ActivationTanh,
			in:   []float32{-1, 0, 1},
			want: []float32{-0.7615942, 0, 0.7615942},
		},
		{
			name: "sigmoid",
			kind: ActivationSigmoid,
			in:   []float32{-1, 0, 1},
			want: []float32{0.26894143, 0.5, 0.7310586},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			act, err := newActivation(tc.kind, tc.params)
			if err != nil {
				t.Fatalf("newActivation(%q): %v", tc.kind, err)
			}

			x := mustTensorT(t, tc.in, []int64{1, 1, int64(len(tc.in))})

			out, err := act.Forward(x)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}

			if got := out.Data(); !equalApprox(got, tc.want, 1e-6) {
				t.Fatalf("%s(%v) = %v, want %v", tc.kind, tc.in, got, tc.want)
			}

			// Forward must not modify its input.
			if got := x.Data(); !equalApprox(got, tc.in, 0) {
				t.Fatalf("input modified: %v", got)
			}
		})
	}
}

func TestActivationUnknownKind(t *testing.T) {
	_, err := newActivation("swish", nil)
	assertErrContains(t, err, "unknown activation kind")
}

func TestActivationNilInput(t *testing.T) {
	act, err := newActivation(ActivationReLU, nil)
	if err != nil {
		t.Fatalf("newActivation: %v", err)
	}

	_, err = act.Forward(nil)
	assertErrContains(t, err, "non-nil input")
}
