package seanet

import (
	"fmt"
	"math"
	"strconv"

	"github.com/example/go-seanet/internal/runtime/tensor"
)

// Checkpoint layout: each pipeline entry lives under "model.<index>", with
// convolution tensors at ".conv", transposed ones at ".convtr", group-norm
// affine parameters at ".norm", and residual branch convolutions at
// ".block.<position>.conv". Weight loading walks the assembled entries, so
// the tower arithmetic is the single source of index truth.

// LoadEncoder assembles an encoder from cfg and fills its weights from vb,
// which must point at the tower root (the prefix holding "model.*").
func LoadEncoder(vb *VarBuilder, cfg Config, opts ...EncoderOption) (*Encoder, error) {
	enc, err := NewEncoder(cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := enc.LoadWeights(vb); err != nil {
		return nil, err
	}

	return enc, nil
}

// LoadDecoder assembles a decoder from cfg and fills its weights from vb.
func LoadDecoder(vb *VarBuilder, cfg Config) (*Decoder, error) {
	dec, err := NewDecoder(cfg)
	if err != nil {
		return nil, err
	}

	if err := dec.LoadWeights(vb); err != nil {
		return nil, err
	}

	return dec, nil
}

func (e *Encoder) LoadWeights(vb *VarBuilder) error {
	return loadEntries(vb, e.entries)
}

func (d *Decoder) LoadWeights(vb *VarBuilder) error {
	return loadEntries(vb, d.entries)
}

func loadEntries(vb *VarBuilder, entries []towerEntry) error {
	for _, ent := range entries {
		if err := loadLayer(vb.Path("model", strconv.Itoa(ent.index)), ent.layer); err != nil {
			return err
		}
	}

	return nil
}

func loadLayer(vb *VarBuilder, l Layer) error {
	switch t := l.(type) {
	case *StreamConv1d:
		return t.loadWeights(vb)
	case *StreamConvTranspose1d:
		return t.loadWeights(vb)
	case *ResidualBlock:
		return t.loadWeights(vb)
	default:
		// Activations, identities and mask hooks carry no checkpoint
		// tensors.
		return nil
	}
}

func (rb *ResidualBlock) loadWeights(vb *VarBuilder) error {
	for i, l := range rb.branch {
		conv, ok := l.(*StreamConv1d)
		if !ok {
			continue
		}

		if err := conv.loadWeights(vb.Path("block", strconv.Itoa(i))); err != nil {
			return err
		}
	}

	if conv, ok := rb.shortcut.(*StreamConv1d); ok {
		return conv.loadWeights(vb.Path("shortcut"))
	}

	return nil
}

func (c *StreamConv1d) loadWeights(vb *VarBuilder) error {
	if err := fillConvTensors(vb.Path("conv"), c.weight, c.bias); err != nil {
		return err
	}

	return c.norm.loadWeights(vb)
}

func (c *StreamConvTranspose1d) loadWeights(vb *VarBuilder) error {
	if err := fillConvTensors(vb.Path("convtr"), c.weight, c.bias); err != nil {
		return err
	}

	c.repack()

	return c.norm.loadWeights(vb)
}

func (ns normState) loadWeights(vb *VarBuilder) error {
	if ns.kind != NormTimeGroupNorm {
		return nil
	}

	nvb := vb.Path("norm")

	w, err := nvb.Tensor("weight", ns.weight.Shape()...)
	if err != nil {
		return err
	}

	copy(ns.weight.RawData(), w.RawData())

	b, err := nvb.Tensor("bias", ns.bias.Shape()...)
	if err != nil {
		return err
	}

	copy(ns.bias.RawData(), b.RawData())

	return nil
}

// fillConvTensors copies a checkpoint kernel and optional bias into the
// layer's existing tensors so pointers handed out by Parameters stay valid.
func fillConvTensors(vb *VarBuilder, weight, bias *tensor.Tensor) error {
	w, err := loadFoldedWeight(vb, weight.Shape())
	if err != nil {
		return err
	}

	copy(weight.RawData(), w.RawData())

	b, ok, err := vb.TensorMaybe("bias", bias.Shape()...)
	if err != nil {
		return err
	}

	if ok {
		copy(bias.RawData(), b.RawData())
	}

	return nil
}

// loadFoldedWeight reads a convolution weight, folding the
// weight_g/weight_v reparameterization into a plain kernel when the
// checkpoint stores one.
func loadFoldedWeight(vb *VarBuilder, wantShape []int64) (*tensor.Tensor, error) {
	if !vb.Has("weight_g") {
		return vb.Tensor("weight", wantShape...)
	}

	g, err := vb.Tensor("weight_g")
	if err != nil {
		return nil, err
	}

	v, err := vb.Tensor("weight_v", wantShape...)
	if err != nil {
		return nil, err
	}

	return foldWeightNorm(g, v)
}

// foldWeightNorm computes g * v / ||v|| with the norm taken over all axes
// but the first, the usual weight-norm convention for convolutions.
func foldWeightNorm(g, v *tensor.Tensor) (*tensor.Tensor, error) {
	vs := v.Shape()
	if len(vs) != 3 {
		return nil, fmt.Errorf("seanet: weight_v must be rank-3, got %v", vs)
	}

	gd := g.RawData()
	if int64(len(gd)) != vs[0] {
		return nil, fmt.Errorf("seanet: weight_g has %d scales for %d rows", len(gd), vs[0])
	}

	out := v.Clone()
	od := out.RawData()
	rowLen := int(vs[1] * vs[2])

	for o := range int(vs[0]) {
		row := od[o*rowLen : (o+1)*rowLen]

		var norm float64
		for _, val := range row {
			norm += float64(val) * float64(val)
		}

		scale := float32(0)
		if norm > 0 {
			scale = gd[o] / float32(math.Sqrt(norm))
		}

		for i := range row {
			row[i] *= scale
		}
	}

	return out, nil
}
