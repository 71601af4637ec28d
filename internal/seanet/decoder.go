package seanet

import (
	"fmt"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

// Decoder maps latent frames [batch, dimension, time] back to audio
// [batch, channels, time*hop], mirroring the encoder's shape progression in
// reverse: a wide initial convolution from the latent dimension, one stage
// per ratio (an activation and a strided transposed convolution that halves
// the channel width, then residual blocks), a final projection onto the
// audio channel count, and an optional bounding nonlinearity.
type Decoder struct {
	cfg     Config
	entries []towerEntry
	hop     int64
}

func NewDecoder(cfg Config) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	nBlocks := cfg.NBlocks()

	var b towerBuilder

	mult := powInt64(2, int64(len(cfg.Ratios)))

	// The decoder's first block mirrors the encoder's last, so it is the
	// final unit of the norm-disable budget.
	initNorm := cfg.Norm
	if cfg.DisableNormOuterBlocks == nBlocks {
		initNorm = NormNone
	}

	initConv, err := NewStreamConv1d(cfg.Dimension, mult*cfg.NFilters, cfg.KernelSize, 1, 1, initNorm, cfg.NormParams, cfg.Causal, cfg.PadMode)
	if err != nil {
		return nil, err
	}

	b.add(initConv)

	for i, ratio := range cfg.Ratios {
		// Stage i mirrors encoder stage len(ratios)-1-i.
		blockNorm := cfg.Norm
		if cfg.DisableNormOuterBlocks >= nBlocks-int64(i+1) {
			blockNorm = NormNone
		}

		act, err := newActivation(cfg.Activation, cfg.ActivationParams)
		if err != nil {
			return nil, err
		}

		up, err := NewStreamConvTranspose1d(mult*cfg.NFilters, mult*cfg.NFilters/2, ratio*2, ratio, blockNorm, cfg.NormParams, cfg.Causal, cfg.TrimRightRatio)
		if err != nil {
			return nil, err
		}

		b.add(act, up)

		for j := range cfg.NResidualLayers {
			rb, err := NewResidualBlock(cfg, mult*cfg.NFilters/2,
				[]int64{cfg.ResidualKernelSize, 1},
				[]int64{powInt64(cfg.DilationBase, j), 1},
				blockNorm)
			if err != nil {
				return nil, err
			}

			b.add(rb)
		}

		mult /= 2
	}

	finalNorm := cfg.Norm
	if cfg.DisableNormOuterBlocks >= 1 {
		finalNorm = NormNone
	}

	act, err := newActivation(cfg.Activation, cfg.ActivationParams)
	if err != nil {
		return nil, err
	}

	finalConv, err := NewStreamConv1d(cfg.NFilters, cfg.Channels, cfg.LastKernelSize, 1, 1, finalNorm, cfg.NormParams, cfg.Causal, cfg.PadMode)
	if err != nil {
		return nil, err
	}

	b.add(act, finalConv)

	if cfg.FinalActivation != "" {
		fact, err := newActivation(cfg.FinalActivation, cfg.FinalActivationParams)
		if err != nil {
			return nil, err
		}

		b.add(fact)
	}

	return &Decoder{cfg: cfg, entries: b.entries, hop: cfg.HopLength()}, nil
}

// Forward runs the pipeline over one whole latent sequence.
func (d *Decoder) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error

	for _, ent := range d.entries {
		x, err = ent.layer.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("seanet: decoder layer %d: %w", ent.index, err)
		}
	}

	return x, nil
}

// Step runs one causal chunk through the pipeline, letting each streaming
// layer carry its own state.
func (d *Decoder) Step(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error

	for _, ent := range d.entries {
		x, err = stepLayer(ent.layer, x)
		if err != nil {
			return nil, fmt.Errorf("seanet: decoder layer %d: %w", ent.index, err)
		}
	}

	return x, nil
}

// Reset clears all streaming state so the next Step starts a new stream.
func (d *Decoder) Reset() {
	for _, ent := range d.entries {
		resetLayer(ent.layer)
	}
}

// HopLength is the total temporal upsampling factor.
func (d *Decoder) HopLength() int64 { return d.hop }

// NBlocks is the number of outer structural blocks.
func (d *Decoder) NBlocks() int64 { return d.cfg.NBlocks() }

func (d *Decoder) Config() Config { return d.cfg }

func (d *Decoder) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, ent := range d.entries {
		params = append(params, ent.layer.Parameters()...)
	}

	return params
}
