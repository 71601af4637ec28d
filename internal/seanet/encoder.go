package seanet

import (
	"fmt"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

// Encoder maps raw audio [batch, channels, time] to latent frames
// [batch, dimension, time/hop]. It is an ordered pipeline: a wide initial
// convolution, one stage per ratio (residual blocks, then an activation and
// a strided downsampling convolution that doubles the channel width), and a
// final projection onto the latent dimension.
type Encoder struct {
	cfg     Config
	entries []towerEntry
	hop     int64
}

type encoderOptions struct {
	maskHook     Layer
	maskPosition int64
}

// EncoderOption customizes tower assembly.
type EncoderOption func(*encoderOptions)

// WithMaskHook splices an opaque transform into the pipeline: position 0
// places it after the initial convolution, position i after the i-th ratio
// stage. The hook consumes a pipeline slot like any other layer.
func WithMaskHook(hook Layer, position int64) EncoderOption {
	return func(o *encoderOptions) {
		o.maskHook = hook
		o.maskPosition = position
	}
}

func NewEncoder(cfg Config, opts ...EncoderOption) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o encoderOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.maskHook != nil && (o.maskPosition < 0 || o.maskPosition > int64(len(cfg.Ratios))) {
		return nil, fmt.Errorf("seanet: mask position %d outside [0, %d]", o.maskPosition, len(cfg.Ratios))
	}

	nBlocks := cfg.NBlocks()

	var b towerBuilder

	mult := int64(1)

	// Outer block 0: the initial convolution burns the first unit of the
	// norm-disable budget.
	initNorm := cfg.Norm
	if cfg.DisableNormOuterBlocks >= 1 {
		initNorm = NormNone
	}

	initConv, err := NewStreamConv1d(cfg.Channels, mult*cfg.NFilters, cfg.KernelSize, 1, 1, initNorm, cfg.NormParams, cfg.Causal, cfg.PadMode)
	if err != nil {
		return nil, err
	}

	b.add(initConv)

	if o.maskHook != nil && o.maskPosition == 0 {
		b.add(o.maskHook)
	}

	for i, ratio := range cfg.encoderRatios() {
		// Stage i is outer block i+1; block 0 already consumed budget "1".
		blockNorm := cfg.Norm
		if cfg.DisableNormOuterBlocks >= int64(i)+2 {
			blockNorm = NormNone
		}

		for j := range cfg.NResidualLayers {
			rb, err := NewResidualBlock(cfg, mult*cfg.NFilters,
				[]int64{cfg.ResidualKernelSize, 1},
				[]int64{powInt64(cfg.DilationBase, j), 1},
				blockNorm)
			if err != nil {
				return nil, err
			}

			b.add(rb)
		}

		act, err := newActivation(cfg.Activation, cfg.ActivationParams)
		if err != nil {
			return nil, err
		}

		down, err := NewStreamConv1d(mult*cfg.NFilters, mult*cfg.NFilters*2, ratio*2, ratio, 1, blockNorm, cfg.NormParams, cfg.Causal, cfg.PadMode)
		if err != nil {
			return nil, err
		}

		b.add(act, down)

		mult *= 2

		if o.maskHook != nil && o.maskPosition == int64(i)+1 {
			b.add(o.maskHook)
		}
	}

	finalNorm := cfg.Norm
	if cfg.DisableNormOuterBlocks == nBlocks {
		finalNorm = NormNone
	}

	act, err := newActivation(cfg.Activation, cfg.ActivationParams)
	if err != nil {
		return nil, err
	}

	finalConv, err := NewStreamConv1d(mult*cfg.NFilters, cfg.Dimension, cfg.LastKernelSize, 1, 1, finalNorm, cfg.NormParams, cfg.Causal, cfg.PadMode)
	if err != nil {
		return nil, err
	}

	b.add(act, finalConv)

	return &Encoder{cfg: cfg, entries: b.entries, hop: cfg.HopLength()}, nil
}

// Forward runs the pipeline over one whole sequence.
func (e *Encoder) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error

	for _, ent := range e.entries {
		x, err = ent.layer.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("seanet: encoder layer %d: %w", ent.index, err)
		}
	}

	return x, nil
}

// Step runs one causal chunk through the pipeline, letting each streaming
// layer carry its own state.
func (e *Encoder) Step(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error

	for _, ent := range e.entries {
		x, err = stepLayer(ent.layer, x)
		if err != nil {
			return nil, fmt.Errorf("seanet: encoder layer %d: %w", ent.index, err)
		}
	}

	return x, nil
}

// Reset clears all streaming state so the next Step starts a new stream.
func (e *Encoder) Reset() {
	for _, ent := range e.entries {
		resetLayer(ent.layer)
	}
}

// HopLength is the total temporal downsampling factor.
func (e *Encoder) HopLength() int64 { return e.hop }

// NBlocks is the number of outer structural blocks.
func (e *Encoder) NBlocks() int64 { return e.cfg.NBlocks() }

func (e *Encoder) Config() Config { return e.cfg }

func (e *Encoder) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, ent := range e.entries {
		params = append(params, ent.layer.Parameters()...)
	}

	return params
}
