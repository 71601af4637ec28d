package seanet

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-seanet/internal/runtime/ops"
	"github.com/example/go-seanet/internal/runtime/tensor"
)

// normState holds the normalization resolved for one convolution layer.
// Weight norm has no forward-time component; group norm carries its affine
// parameters here and is applied to the convolution output.
type normState struct {
	kind   NormKind
	weight *tensor.Tensor
	bias   *tensor.Tensor
	groups int64
	eps    float64
}

func newNormState(kind NormKind, params map[string]float64, channels int64, causal bool) (normState, error) {
	ns := normState{kind: kind}

	switch kind {
	case NormNone, NormWeightNorm:
	case NormTimeGroupNorm:
		if causal {
			return normState{}, errors.New("seanet: time group norm does not support causal evaluation")
		}

		ns.groups = 1
		if v, ok := params["num_groups"]; ok {
			ns.groups = int64(v)
		}

		ns.eps = 1e-5
		if v, ok := params["eps"]; ok {
			ns.eps = v
		}

		var err error

		ns.weight, err = tensor.Full([]int64{channels}, 1)
		if err != nil {
			return normState{}, err
		}

		ns.bias, err = tensor.Zeros([]int64{channels})
		if err != nil {
			return normState{}, err
		}
	default:
		return normState{}, fmt.Errorf("seanet: unknown norm kind %q", kind)
	}

	return ns, nil
}

func (ns normState) apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if ns.kind != NormTimeGroupNorm {
		return x, nil
	}

	return ops.GroupNorm(x, ns.weight, ns.bias, ns.groups, ns.eps)
}

func (ns normState) parameters() []*tensor.Tensor {
	if ns.kind != NormTimeGroupNorm {
		return nil
	}

	return []*tensor.Tensor{ns.weight, ns.bias}
}

// StreamConv1d is the streaming-capable convolution used throughout the
// towers. Forward evaluates whole sequences with the padding policy implied
// by the causal flag; Step evaluates causal chunked streams, carrying the
// unconsumed input tail between calls. Weights are zero until filled by a
// checkpoint load.
type StreamConv1d struct {
	weight   *tensor.Tensor // [outCh, inCh, kernel]
	bias     *tensor.Tensor
	stride   int64
	dilation int64
	groups   int64

	causal  bool
	padMode PadMode
	norm    normState

	carry  *tensor.Tensor
	primed bool
}

func NewStreamConv1d(inCh, outCh, kernelSize, stride, dilation int64, norm NormKind, normParams map[string]float64, causal bool, padMode PadMode) (*StreamConv1d, error) {
	if inCh <= 0 || outCh <= 0 {
		return nil, fmt.Errorf("seanet: conv channels must be > 0, got %d -> %d", inCh, outCh)
	}

	if kernelSize <= 0 {
		return nil, fmt.Errorf("seanet: conv kernel size must be > 0, got %d", kernelSize)
	}

	if stride <= 0 {
		return nil, fmt.Errorf("seanet: conv stride must be > 0, got %d", stride)
	}

	if dilation <= 0 {
		return nil, fmt.Errorf("seanet: conv dilation must be > 0, got %d", dilation)
	}

	if !padMode.valid() {
		return nil, fmt.Errorf("seanet: unknown pad mode %q", padMode)
	}

	ns, err := newNormState(norm, normParams, outCh, causal)
	if err != nil {
		return nil, err
	}

	weight, err := tensor.Zeros([]int64{outCh, inCh, kernelSize})
	if err != nil {
		return nil, err
	}

	bias, err := tensor.Zeros([]int64{outCh})
	if err != nil {
		return nil, err
	}

	return &StreamConv1d{
		weight:   weight,
		bias:     bias,
		stride:   stride,
		dilation: dilation,
		groups:   1,
		causal:   causal,
		padMode:  padMode,
		norm:     ns,
	}, nil
}

func (c *StreamConv1d) effectiveKernel() int64 {
	return (c.weight.Shape()[2]-1)*c.dilation + 1
}

// extraPadding computes the extra right padding a strided convolution needs
// so the last window still sees a full frame and no trailing samples are
// dropped.
func extraPadding(length, effKernel, stride, padTotal int64) int64 {
	nFrames := float64(length-effKernel+padTotal)/float64(stride) + 1
	ideal := (int64(math.Ceil(nFrames))-1)*stride + effKernel - padTotal

	if ideal < length {
		return 0
	}

	return ideal - length
}

func (c *StreamConv1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("seanet: conv requires non-nil input")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("seanet: conv expects input rank 3, got %v", shape)
	}

	effKernel := c.effectiveKernel()
	padTotal := max(effKernel-c.stride, 0)
	extra := extraPadding(shape[2], effKernel, c.stride, padTotal)

	var left, right int64
	if c.causal {
		left, right = padTotal, extra
	} else {
		right = padTotal/2 + extra
		left = padTotal - padTotal/2
	}

	var (
		y   *tensor.Tensor
		err error
	)

	if c.padMode == PadConstant {
		y, err = ops.Conv1DPad(x, c.weight, c.bias, c.stride, left, right, c.dilation, c.groups)
	} else {
		padded, perr := pad1d(x, left, right, c.padMode)
		if perr != nil {
			return nil, perr
		}

		y, err = ops.Conv1DPad(padded, c.weight, c.bias, c.stride, 0, 0, c.dilation, c.groups)
	}

	if err != nil {
		return nil, err
	}

	return c.norm.apply(y)
}

// Step evaluates one causal chunk. Only complete frames are emitted; the
// unconsumed input tail is buffered for the next call. The first chunk gets
// the same left padding a one-shot causal Forward would apply, so feeding a
// stride-aligned stream chunk by chunk reproduces Forward exactly.
func (c *StreamConv1d) Step(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !c.causal {
		return nil, errors.New("seanet: streaming requires a causal convolution")
	}

	if x == nil {
		return nil, errors.New("seanet: conv requires non-nil input")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("seanet: conv expects input rank 3, got %v", shape)
	}

	effKernel := c.effectiveKernel()
	padTotal := max(effKernel-c.stride, 0)

	buf := x

	if !c.primed {
		padded, err := pad1d(x, padTotal, 0, c.padMode)
		if err != nil {
			return nil, err
		}

		buf = padded
		c.primed = true
	} else if c.carry != nil {
		joined, err := tensor.Concat([]*tensor.Tensor{c.carry, x}, 2)
		if err != nil {
			return nil, err
		}

		buf = joined
	}

	bufLen := buf.Shape()[2]

	nFrames := int64(0)
	if bufLen >= effKernel {
		nFrames = (bufLen-effKernel)/c.stride + 1
	}

	if nFrames == 0 {
		c.carry = buf

		return tensor.Zeros([]int64{shape[0], c.weight.Shape()[0], 0})
	}

	consumed := nFrames * c.stride

	tail, err := buf.Narrow(2, consumed, bufLen-consumed)
	if err != nil {
		return nil, err
	}

	c.carry = tail

	return ops.Conv1DPad(buf, c.weight, c.bias, c.stride, 0, 0, c.dilation, c.groups)
}

// Reset discards buffered streaming state so the next Step starts a fresh
// stream.
func (c *StreamConv1d) Reset() {
	c.carry = nil
	c.primed = false
}

func (c *StreamConv1d) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight, c.bias}

	return append(params, c.norm.parameters()...)
}

// StreamConvTranspose1d is the upsampling counterpart of StreamConv1d. The
// kernel introduces kernel-stride samples of edge artifact per sequence;
// Forward trims them per the causal flag and trim ratio, Step instead
// overlap-adds the kernel tail into the next chunk.
type StreamConvTranspose1d struct {
	weight  *tensor.Tensor // [inCh, outCh, kernel]
	bias    *tensor.Tensor
	stride  int64
	groups  int64
	kernelT []float32

	causal         bool
	trimRightRatio float64
	norm           normState

	carry *tensor.Tensor
}

func NewStreamConvTranspose1d(inCh, outCh, kernelSize, stride int64, norm NormKind, normParams map[string]float64, causal bool, trimRightRatio float64) (*StreamConvTranspose1d, error) {
	if inCh <= 0 || outCh <= 0 {
		return nil, fmt.Errorf("seanet: conv channels must be > 0, got %d -> %d", inCh, outCh)
	}

	if kernelSize <= 0 {
		return nil, fmt.Errorf("seanet: conv kernel size must be > 0, got %d", kernelSize)
	}

	if stride <= 0 {
		return nil, fmt.Errorf("seanet: conv stride must be > 0, got %d", stride)
	}

	if trimRightRatio < 0 || trimRightRatio > 1 {
		return nil, fmt.Errorf("seanet: trim right ratio %g outside [0, 1]", trimRightRatio)
	}

	if !causal && trimRightRatio != 1 {
		return nil, errors.New("seanet: trim right ratio only applies to causal convolutions")
	}

	ns, err := newNormState(norm, normParams, outCh, causal)
	if err != nil {
		return nil, err
	}

	weight, err := tensor.Zeros([]int64{inCh, outCh, kernelSize})
	if err != nil {
		return nil, err
	}

	bias, err := tensor.Zeros([]int64{outCh})
	if err != nil {
		return nil, err
	}

	c := &StreamConvTranspose1d{
		weight:         weight,
		bias:           bias,
		stride:         stride,
		groups:         1,
		causal:         causal,
		trimRightRatio: trimRightRatio,
		norm:           ns,
	}
	c.repack()

	return c, nil
}

// repack refreshes the pre-packed kernel after the weight tensor changes.
func (c *StreamConvTranspose1d) repack() {
	if c.groups == 1 {
		c.kernelT = ops.RepackConvTransposeKernel(c.weight)
	} else {
		c.kernelT = nil
	}
}

// trims returns how many output samples to drop on each side of a full
// (untrimmed) transposed convolution.
func (c *StreamConvTranspose1d) trims() (left, right int64) {
	padTotal := max(c.weight.Shape()[2]-c.stride, 0)

	if c.causal {
		right = int64(math.Ceil(float64(padTotal) * c.trimRightRatio))

		return padTotal - right, right
	}

	right = padTotal / 2

	return padTotal - right, right
}

func (c *StreamConvTranspose1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("seanet: conv requires non-nil input")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("seanet: conv expects input rank 3, got %v", shape)
	}

	trimLeft, trimRight := c.trims()

	if c.norm.kind == NormTimeGroupNorm {
		// The norm statistics cover the full output, edge artifact
		// included; trimming happens after.
		y, err := ops.ConvTranspose1DTrim(x, c.weight, c.bias, c.kernelT, c.stride, 1, c.groups, 0, 0)
		if err != nil {
			return nil, err
		}

		y, err = c.norm.apply(y)
		if err != nil {
			return nil, err
		}

		return unpad1d(y, trimLeft, trimRight)
	}

	return ops.ConvTranspose1DTrim(x, c.weight, c.bias, c.kernelT, c.stride, 1, c.groups, trimLeft, trimRight)
}

// Step upsamples one causal chunk, overlap-adding the kernel tail carried
// from the previous call. Each chunk of T frames emits exactly T*stride
// samples, so a stream fed whole matches Forward. Requires all edge
// trimming on the right (TrimRightRatio == 1): emitted samples must never
// change retroactively.
func (c *StreamConvTranspose1d) Step(x *tensor.Tensor) (*tensor.Tensor, error) {
	if !c.causal {
		return nil, errors.New("seanet: streaming requires a causal convolution")
	}

	if c.trimRightRatio != 1 {
		return nil, errors.New("seanet: streaming requires trim right ratio 1")
	}

	if x == nil {
		return nil, errors.New("seanet: conv requires non-nil input")
	}

	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("seanet: conv expects input rank 3, got %v", shape)
	}

	kernel := c.weight.Shape()[2]
	if kernel < c.stride {
		return nil, fmt.Errorf("seanet: streaming requires kernel >= stride, got %d < %d", kernel, c.stride)
	}

	outCh := c.weight.Shape()[1]

	if shape[2] == 0 {
		return tensor.Zeros([]int64{shape[0], outCh, 0})
	}

	// Bias is applied per emitted sample below; applying it inside the raw
	// convolution would double it on the overlap region.
	full, err := ops.ConvTranspose1DTrim(x, c.weight, nil, c.kernelT, c.stride, 1, c.groups, 0, 0)
	if err != nil {
		return nil, err
	}

	if c.carry != nil {
		if err := overlapAdd(full, c.carry); err != nil {
			return nil, err
		}
	}

	fullLen := full.Shape()[2]
	emit := shape[2] * c.stride

	out, err := full.Narrow(2, 0, emit)
	if err != nil {
		return nil, err
	}

	tail, err := full.Narrow(2, emit, fullLen-emit)
	if err != nil {
		return nil, err
	}

	c.carry = tail

	bias := c.bias.RawData()
	od := out.RawData()

	for bc := range shape[0] * outCh {
		b := bias[bc%outCh]

		row := od[bc*emit : (bc+1)*emit]
		for i := range row {
			row[i] += b
		}
	}

	return out, nil
}

// overlapAdd accumulates the carried tail into the head of the next full
// convolution output.
func overlapAdd(full, carry *tensor.Tensor) error {
	fs, cs := full.Shape(), carry.Shape()
	if fs[0] != cs[0] || fs[1] != cs[1] {
		return fmt.Errorf("seanet: streaming chunk shape %v does not match carried state %v", fs, cs)
	}

	if cs[2] > fs[2] {
		return fmt.Errorf("seanet: carried tail %d longer than chunk output %d", cs[2], fs[2])
	}

	fd := full.RawData()
	cd := carry.RawData()
	fullLen, carryLen := int(fs[2]), int(cs[2])

	for bc := range int(fs[0] * fs[1]) {
		frow := fd[bc*fullLen : bc*fullLen+carryLen]

		crow := cd[bc*carryLen : (bc+1)*carryLen]
		for i, v := range crow {
			frow[i] += v
		}
	}

	return nil
}

// Reset discards the carried overlap tail.
func (c *StreamConvTranspose1d) Reset() {
	c.carry = nil
}

func (c *StreamConvTranspose1d) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight, c.bias}

	return append(params, c.norm.parameters()...)
}
