// Package seanet assembles the encoder and decoder towers of a SEANet-style
// convolutional audio codec. A Config deterministically expands into two
// mirror-image layer pipelines: the encoder downsamples raw audio into a
// latent sequence, the decoder upsamples it back, and both derive channel
// widths, dilation schedules and normalization placement from the same
// arithmetic so their shapes stay exact inverses.
package seanet

import (
	"errors"
	"fmt"
)

// ErrRecurrentUnsupported rejects configurations asking for the recurrent
// stage some SEANet variants place between the ratio stages.
var ErrRecurrentUnsupported = errors.New("seanet: recurrent stage is not supported")

// NormKind names the normalization applied inside a convolution layer.
type NormKind string

const (
	NormNone NormKind = "none"
	// NormWeightNorm is a reparameterization of the convolution weight; it
	// is folded into a plain kernel at load time and costs nothing at
	// forward time.
	NormWeightNorm NormKind = "weight_norm"
	// NormTimeGroupNorm applies a group normalization over the time axis
	// after the convolution. Incompatible with causal operation.
	NormTimeGroupNorm NormKind = "time_group_norm"
)

func (k NormKind) valid() bool {
	switch k {
	case NormNone, NormWeightNorm, NormTimeGroupNorm:
		return true
	}

	return false
}

// Config describes one encoder/decoder tower pair. It is read once during
// assembly; towers never consult it again after construction.
type Config struct {
	Channels  int64
	Dimension int64
	NFilters  int64
	// NResidualLayers is the number of residual blocks per ratio stage.
	NResidualLayers int64
	// Ratios lists the stage ratios in decoder (upsampling) order. The
	// encoder walks them in reverse so both towers share one physical
	// sequence and one hop length.
	Ratios []int64

	Activation       ActivationKind
	ActivationParams map[string]float64
	Norm             NormKind
	NormParams       map[string]float64

	KernelSize         int64
	LastKernelSize     int64
	ResidualKernelSize int64
	// DilationBase grows the residual dilation geometrically: block j of a
	// stage dilates its first convolution by DilationBase^j.
	DilationBase int64

	Causal  bool
	PadMode PadMode

	// TrueSkip selects an identity shortcut in residual blocks; false uses
	// a learned 1-wide convolution instead.
	TrueSkip bool
	// Compress divides the channel width inside residual branches.
	Compress int64
	// RecurrentLayers must be zero.
	RecurrentLayers int64
	// DisableNormOuterBlocks turns normalization off for the first N outer
	// blocks of the encoder and, symmetrically, the last N of the decoder.
	DisableNormOuterBlocks int64

	// FinalActivation optionally bounds the decoder output (tanh is the
	// usual choice). Empty means none. The encoder ignores both fields.
	FinalActivation       ActivationKind
	FinalActivationParams map[string]float64
	// TrimRightRatio sets how much of the transposed-convolution edge
	// artifact the decoder trims from the right under causal operation;
	// the remainder is trimmed from the left.
	TrimRightRatio float64
}

// DefaultConfig mirrors the reference SEANet topology: 24 kHz-scale ratios,
// ELU activations and reflect padding, norm off everywhere.
func DefaultConfig() Config {
	return Config{
		Channels:           1,
		Dimension:          128,
		NFilters:           32,
		NResidualLayers:    3,
		Ratios:             []int64{8, 5, 4, 2},
		Activation:         ActivationELU,
		ActivationParams:   map[string]float64{"alpha": 1.0},
		Norm:               NormNone,
		KernelSize:         7,
		LastKernelSize:     7,
		ResidualKernelSize: 3,
		DilationBase:       2,
		Causal:             false,
		PadMode:            PadReflect,
		TrueSkip:           true,
		Compress:           2,
		TrimRightRatio:     1.0,
	}
}

// EnCodec24kHzConfig is the streaming 24 kHz EnCodec topology: causal with
// weight-normalized convolutions and a single residual block per stage.
func EnCodec24kHzConfig() Config {
	cfg := DefaultConfig()
	cfg.NResidualLayers = 1
	cfg.Norm = NormWeightNorm
	cfg.Causal = true

	return cfg
}

// MimiConfig is the SEANet topology used by the Mimi codec: wider filters,
// a 512-channel latent and constant padding for streaming.
func MimiConfig() Config {
	cfg := DefaultConfig()
	cfg.Dimension = 512
	cfg.NFilters = 64
	cfg.NResidualLayers = 1
	cfg.Ratios = []int64{8, 6, 5, 4}
	cfg.Causal = true
	cfg.PadMode = PadConstant

	return cfg
}

// HopLength is the total temporal scaling factor of a tower built from this
// configuration: the product of all stage ratios.
func (c Config) HopLength() int64 {
	hop := int64(1)
	for _, r := range c.Ratios {
		hop *= r
	}

	return hop
}

// NBlocks counts the outer structural blocks of a tower: the initial
// convolution, one block per ratio, and the final convolution.
func (c Config) NBlocks() int64 {
	return int64(len(c.Ratios)) + 2
}

// Validate checks every constraint tower assembly relies on. Construction
// faults are configuration bugs; nothing here is recoverable at runtime.
func (c Config) Validate() error {
	if c.Channels <= 0 {
		return fmt.Errorf("seanet: channels must be > 0, got %d", c.Channels)
	}

	if c.Dimension <= 0 {
		return fmt.Errorf("seanet: dimension must be > 0, got %d", c.Dimension)
	}

	if c.NFilters <= 0 {
		return fmt.Errorf("seanet: n_filters must be > 0, got %d", c.NFilters)
	}

	if c.NResidualLayers < 0 {
		return fmt.Errorf("seanet: residual layer count must be >= 0, got %d", c.NResidualLayers)
	}

	if len(c.Ratios) == 0 {
		return errors.New("seanet: at least one ratio is required")
	}

	for i, r := range c.Ratios {
		if r <= 0 {
			return fmt.Errorf("seanet: ratio %d must be > 0, got %d", i, r)
		}
	}

	if _, err := newActivation(c.Activation, c.ActivationParams); err != nil {
		return err
	}

	if c.FinalActivation != "" {
		if _, err := newActivation(c.FinalActivation, c.FinalActivationParams); err != nil {
			return err
		}
	}

	if !c.Norm.valid() {
		return fmt.Errorf("seanet: unknown norm kind %q", c.Norm)
	}

	if c.Norm == NormTimeGroupNorm && c.Causal {
		return errors.New("seanet: time group norm does not support causal evaluation")
	}

	if c.KernelSize <= 0 || c.LastKernelSize <= 0 || c.ResidualKernelSize <= 0 {
		return fmt.Errorf("seanet: kernel sizes must be > 0, got %d/%d/%d", c.KernelSize, c.LastKernelSize, c.ResidualKernelSize)
	}

	if c.DilationBase <= 0 {
		return fmt.Errorf("seanet: dilation base must be > 0, got %d", c.DilationBase)
	}

	if !c.PadMode.valid() {
		return fmt.Errorf("seanet: unknown pad mode %q", c.PadMode)
	}

	if c.Compress <= 0 {
		return fmt.Errorf("seanet: compress must be > 0, got %d", c.Compress)
	}

	if c.RecurrentLayers != 0 {
		return ErrRecurrentUnsupported
	}

	if nb := c.NBlocks(); c.DisableNormOuterBlocks < 0 || c.DisableNormOuterBlocks > nb {
		return fmt.Errorf("seanet: disable_norm_outer_blocks %d outside [0, %d]", c.DisableNormOuterBlocks, nb)
	}

	if c.TrimRightRatio < 0 || c.TrimRightRatio > 1 {
		return fmt.Errorf("seanet: trim right ratio %g outside [0, 1]", c.TrimRightRatio)
	}

	if !c.Causal && c.TrimRightRatio != 1 {
		return errors.New("seanet: trim right ratio only applies to causal convolutions")
	}

	return nil
}

// encoderRatios returns the ratio walk order for the encoder, which
// consumes the configured sequence in reverse.
func (c Config) encoderRatios() []int64 {
	out := make([]int64, len(c.Ratios))
	for i, r := range c.Ratios {
		out[len(out)-1-i] = r
	}

	return out
}
