package seanet

import (
	"errors"
	"fmt"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

// ResidualBlock is the two-path unit inside a tower stage: a bottleneck
// branch of (activation, convolution) pairs added onto an identity or
// learned shortcut. Both paths preserve the channel count and sequence
// length, so the sum is shape-exact by construction.
type ResidualBlock struct {
	branch   []Layer
	shortcut Layer
}

// NewResidualBlock assembles a block for dim channels. kernelSizes and
// dilations run in parallel, one (activation, convolution) pair each. The
// branch narrows to dim/compress channels between its first and last
// convolution. norm is the effective normalization for this block, already
// resolved by the tower against its outer-block budget.
func NewResidualBlock(cfg Config, dim int64, kernelSizes, dilations []int64, norm NormKind) (*ResidualBlock, error) {
	if len(kernelSizes) != len(dilations) {
		return nil, fmt.Errorf("seanet: residual block has %d kernel sizes but %d dilations", len(kernelSizes), len(dilations))
	}

	if len(kernelSizes) == 0 {
		return nil, errors.New("seanet: residual block requires at least one convolution")
	}

	if cfg.Compress <= 0 {
		return nil, fmt.Errorf("seanet: compress must be > 0, got %d", cfg.Compress)
	}

	hidden := dim / cfg.Compress
	if hidden <= 0 {
		return nil, fmt.Errorf("seanet: compress %d leaves no hidden channels for width %d", cfg.Compress, dim)
	}

	rb := &ResidualBlock{}

	for i, k := range kernelSizes {
		inCh, outCh := hidden, hidden
		if i == 0 {
			inCh = dim
		}

		if i == len(kernelSizes)-1 {
			outCh = dim
		}

		act, err := newActivation(cfg.Activation, cfg.ActivationParams)
		if err != nil {
			return nil, err
		}

		conv, err := NewStreamConv1d(inCh, outCh, k, 1, dilations[i], norm, cfg.NormParams, cfg.Causal, cfg.PadMode)
		if err != nil {
			return nil, err
		}

		rb.branch = append(rb.branch, act, conv)
	}

	if cfg.TrueSkip {
		rb.shortcut = Identity{}
	} else {
		conv, err := NewStreamConv1d(dim, dim, 1, 1, 1, norm, cfg.NormParams, cfg.Causal, cfg.PadMode)
		if err != nil {
			return nil, err
		}

		rb.shortcut = conv
	}

	return rb, nil
}

func (rb *ResidualBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	u, err := rb.shortcut.Forward(x)
	if err != nil {
		return nil, err
	}

	v, err := forwardLayers(rb.branch, x)
	if err != nil {
		return nil, err
	}

	return addSameShape(u, v)
}

// Step advances both paths by one chunk. The branch convolutions have
// stride 1, so shortcut and branch emit the same number of frames per
// chunk once primed.
func (rb *ResidualBlock) Step(x *tensor.Tensor) (*tensor.Tensor, error) {
	u, err := stepLayer(rb.shortcut, x)
	if err != nil {
		return nil, err
	}

	v := x
	for _, l := range rb.branch {
		v, err = stepLayer(l, v)
		if err != nil {
			return nil, err
		}
	}

	return addSameShape(u, v)
}

func (rb *ResidualBlock) Reset() {
	for _, l := range rb.branch {
		resetLayer(l)
	}

	resetLayer(rb.shortcut)
}

func (rb *ResidualBlock) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, l := range rb.branch {
		params = append(params, l.Parameters()...)
	}

	return append(params, rb.shortcut.Parameters()...)
}
