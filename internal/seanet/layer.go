package seanet

import "github.com/example/go-seanet/internal/runtime/tensor"

// Layer is a forward-capable pipeline unit over [batch, channels, time]
// tensors. Every layer owns its parameters exclusively; nothing is shared
// between tower instances.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
}

// Streamer is a Layer that supports chunked causal evaluation. Step carries
// buffered state across calls; Reset discards it between independent
// streams. A single Streamer must not be stepped concurrently.
type Streamer interface {
	Layer
	Step(x *tensor.Tensor) (*tensor.Tensor, error)
	Reset()
}

// Identity passes its input through unchanged.
type Identity struct{}

func (Identity) Forward(x *tensor.Tensor) (*tensor.Tensor, error) { return x, nil }

func (Identity) Parameters() []*tensor.Tensor { return nil }

func forwardLayers(layers []Layer, x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error

	for _, l := range layers {
		x, err = l.Forward(x)
		if err != nil {
			return nil, err
		}
	}

	return x, nil
}

// stepLayer advances a layer by one chunk. Stateless layers evaluate
// chunks exactly like whole sequences, so plain Forward is the fallback.
func stepLayer(l Layer, x *tensor.Tensor) (*tensor.Tensor, error) {
	if s, ok := l.(Streamer); ok {
		return s.Step(x)
	}

	return l.Forward(x)
}

func resetLayer(l Layer) {
	if s, ok := l.(Streamer); ok {
		s.Reset()
	}
}
