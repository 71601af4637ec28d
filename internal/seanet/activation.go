package seanet

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

// ActivationKind names an elementwise nonlinearity. Kinds are resolved to
// concrete layers during construction so an unknown name fails the build
// instead of a later forward pass.
type ActivationKind string

const (
	ActivationELU       ActivationKind = "elu"
	ActivationReLU      ActivationKind = "relu"
	ActivationLeakyReLU ActivationKind = "leaky_relu"
	ActivationGELU      ActivationKind = "gelu"
	ActivationSiLU      ActivationKind = "silu"
	ActivationTanh      ActivationKind = "tanh"
	ActivationSigmoid   ActivationKind = "sigmoid"
)

type activation struct {
	kind  ActivationKind
	alpha float64 // elu
	slope float64 // leaky_relu
}

func newActivation(kind ActivationKind, params map[string]float64) (*activation, error) {
	a := &activation{kind: kind, alpha: 1.0, slope: 0.01}

	switch kind {
	case ActivationELU:
		if v, ok := params["alpha"]; ok {
			a.alpha = v
		}
	case ActivationLeakyReLU:
		if v, ok := params["negative_slope"]; ok {
			a.slope = v
		}
	case ActivationReLU, ActivationGELU, ActivationSiLU, ActivationTanh, ActivationSigmoid:
	default:
		return nil, fmt.Errorf("seanet: unknown activation kind %q", kind)
	}

	return a, nil
}

func (a *activation) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("seanet: activation requires non-nil input")
	}

	out := x.Clone()
	a.apply(out.RawData())

	return out, nil
}

func (a *activation) apply(d []float32) {
	switch a.kind {
	case ActivationELU:
		for i, v := range d {
			if v <= 0 {
				d[i] = float32(a.alpha * (math.Exp(float64(v)) - 1))
			}
		}
	case ActivationReLU:
		for i, v := range d {
			if v < 0 {
				d[i] = 0
			}
		}
	case ActivationLeakyReLU:
		slope := float32(a.slope)
		for i, v := range d {
			if v < 0 {
				d[i] = v * slope
			}
		}
	case ActivationGELU:
		for i, v := range d {
			fv := float64(v)
			d[i] = float32(0.5 * fv * (1 + math.Erf(fv/math.Sqrt2)))
		}
	case ActivationSiLU:
		for i, v := range d {
			d[i] = v / (1 + float32(math.Exp(float64(-v))))
		}
	case ActivationTanh:
		for i, v := range d {
			d[i] = float32(math.Tanh(float64(v)))
		}
	case ActivationSigmoid:
		for i, v := range d {
			d[i] = float32(1 / (1 + math.Exp(float64(-v))))
		}
	}
}

func (a *activation) Parameters() []*tensor.Tensor { return nil }
