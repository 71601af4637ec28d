package seanet

import (
	"errors"
	"fmt"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

func addSameShape(a, b *tensor.Tensor) (*tensor.Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("seanet: add requires non-nil tensors")
	}

	if !equalShape(a.Shape(), b.Shape()) {
		return nil, fmt.Errorf("seanet: add shape mismatch %v vs %v", a.Shape(), b.Shape())
	}

	out := a.Clone()
	od := out.RawData()

	bd := b.RawData()
	for i := range od {
		od[i] += bd[i]
	}

	return out, nil
}
