package seanet

import "github.com/example/go-seanet/internal/runtime/tensor"

// LayerInfo is the static description of one assembled pipeline entry:
// enough to print a topology table or label a per-layer timing without
// touching the layer's tensors.
type LayerInfo struct {
	// Index is the pipeline slot, identical to the checkpoint path segment.
	Index int
	// Kind is one of "conv", "convtr", "resblock", "activation", "identity"
	// or "hook" for caller-supplied mask transforms.
	Kind string
	// Detail carries the activation name for activation entries; empty
	// otherwise.
	Detail string

	InChannels  int64
	OutChannels int64
	Kernel      int64
	Stride      int64
	Dilation    int64

	// Norm is the effective normalization after the outer-block budget was
	// applied, so a disabled stage reports NormNone here even when the
	// configuration asks for one.
	Norm NormKind

	// ParamCount sums the elements of every tensor the entry owns.
	ParamCount int64
}

// Layers returns the assembled pipeline in forward order.
func (e *Encoder) Layers() []Layer { return entryLayers(e.entries) }

// Layers returns the assembled pipeline in forward order.
func (d *Decoder) Layers() []Layer { return entryLayers(d.entries) }

// Describe returns one LayerInfo per pipeline entry in forward order.
func (e *Encoder) Describe() []LayerInfo { return describeEntries(e.entries) }

// Describe returns one LayerInfo per pipeline entry in forward order.
func (d *Decoder) Describe() []LayerInfo { return describeEntries(d.entries) }

func entryLayers(entries []towerEntry) []Layer {
	out := make([]Layer, len(entries))
	for i, ent := range entries {
		out[i] = ent.layer
	}

	return out
}

func describeEntries(entries []towerEntry) []LayerInfo {
	out := make([]LayerInfo, len(entries))
	for i, ent := range entries {
		info := describeLayer(ent.layer)
		info.Index = ent.index
		out[i] = info
	}

	return out
}

func describeLayer(l Layer) LayerInfo {
	switch t := l.(type) {
	case *StreamConv1d:
		shape := t.weight.Shape()

		return LayerInfo{
			Kind:        "conv",
			InChannels:  shape[1],
			OutChannels: shape[0],
			Kernel:      shape[2],
			Stride:      t.stride,
			Dilation:    t.dilation,
			Norm:        t.norm.kind,
			ParamCount:  countParams(t.Parameters()),
		}
	case *StreamConvTranspose1d:
		shape := t.weight.Shape()

		return LayerInfo{
			Kind:        "convtr",
			InChannels:  shape[0],
			OutChannels: shape[1],
			Kernel:      shape[2],
			Stride:      t.stride,
			Dilation:    1,
			Norm:        t.norm.kind,
			ParamCount:  countParams(t.Parameters()),
		}
	case *ResidualBlock:
		// The block preserves its width; borrow kernel, dilation and norm
		// from the first branch convolution, which carries the interesting
		// schedule.
		info := LayerInfo{
			Kind:       "resblock",
			Norm:       NormNone,
			ParamCount: countParams(t.Parameters()),
		}

		for _, bl := range t.branch {
			conv, ok := bl.(*StreamConv1d)
			if !ok {
				continue
			}

			shape := conv.weight.Shape()
			info.InChannels = shape[1]
			info.OutChannels = shape[1]
			info.Kernel = shape[2]
			info.Stride = conv.stride
			info.Dilation = conv.dilation
			info.Norm = conv.norm.kind

			break
		}

		return info
	case *activation:
		return LayerInfo{Kind: "activation", Detail: string(t.kind)}
	case Identity:
		return LayerInfo{Kind: "identity"}
	default:
		return LayerInfo{Kind: "hook", ParamCount: countParams(l.Parameters())}
	}
}

func countParams(params []*tensor.Tensor) int64 {
	var n int64
	for _, p := range params {
		n += int64(p.ElemCount())
	}

	return n
}
