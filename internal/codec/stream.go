package codec

import (
	"fmt"

	"github.com/example/go-seanet/internal/runtime/tensor"
	"github.com/example/go-seanet/internal/seanet"
)

// EncodeStream feeds PCM through its own encoder tower instance, carrying
// receptive-field context between Step calls. Instances are independent;
// one stream must not be shared across goroutines.
type EncodeStream struct {
	enc        *seanet.Encoder
	dim        int64
	hop        int64
	sampleRate int64
}

// NewEncodeStream builds an encoder stream with fresh carry state. Weights
// loaded into the codec are loaded into the stream's tower too.
func (c *Codec) NewEncodeStream() (*EncodeStream, error) {
	if !c.cfg.Causal {
		return nil, ErrNotCausal
	}

	enc, err := c.newEncoder()
	if err != nil {
		return nil, err
	}

	return &EncodeStream{
		enc:        enc,
		dim:        c.cfg.Dimension,
		hop:        c.hop,
		sampleRate: int64(c.sampleRate),
	}, nil
}

// Step consumes pcm and returns the frames the accumulated context can emit,
// possibly none. Frames match a one-shot Encode of the concatenated input as
// long as the total length stays hop-aligned.
func (s *EncodeStream) Step(pcm []float32) (*Latent, error) {
	if len(pcm) == 0 {
		return s.emptyLatent(), nil
	}

	x, err := tensor.New(pcm, []int64{1, 1, int64(len(pcm))})
	if err != nil {
		return nil, fmt.Errorf("codec: stream input: %w", err)
	}

	y, err := s.enc.Step(x)
	if err != nil {
		return nil, fmt.Errorf("codec: encode step: %w", err)
	}

	shape := y.Shape()

	return &Latent{
		Data:       y.RawData(),
		Dim:        shape[1],
		Frames:     shape[2],
		Hop:        s.hop,
		SampleRate: s.sampleRate,
	}, nil
}

// Reset drops all carried context so the stream starts a new utterance.
func (s *EncodeStream) Reset() {
	s.enc.Reset()
}

func (s *EncodeStream) emptyLatent() *Latent {
	return &Latent{Dim: s.dim, Hop: s.hop, SampleRate: s.sampleRate}
}

// DecodeStream feeds latent frames through its own decoder tower instance.
// Instances are independent; one stream must not be shared across
// goroutines.
type DecodeStream struct {
	dec *seanet.Decoder
	dim int64
	hop int64
}

// NewDecodeStream builds a decoder stream with fresh carry state.
func (c *Codec) NewDecodeStream() (*DecodeStream, error) {
	if !c.cfg.Causal {
		return nil, ErrNotCausal
	}

	dec, err := c.newDecoder()
	if err != nil {
		return nil, err
	}

	return &DecodeStream{dec: dec, dim: c.cfg.Dimension, hop: c.hop}, nil
}

// Step consumes latent frames and returns the PCM the accumulated context
// can emit, possibly none.
func (s *DecodeStream) Step(lat *Latent) ([]float32, error) {
	if lat == nil {
		return nil, fmt.Errorf("codec: decode step: latent is nil")
	}
	if err := lat.Validate(); err != nil {
		return nil, err
	}
	if lat.Dim != s.dim {
		return nil, fmt.Errorf("%w: dimension %d, topology has %d", ErrLatentMismatch, lat.Dim, s.dim)
	}
	if lat.Frames == 0 {
		return nil, nil
	}

	x, err := tensor.New(lat.Data, []int64{1, lat.Dim, lat.Frames})
	if err != nil {
		return nil, fmt.Errorf("codec: stream input: %w", err)
	}

	y, err := s.dec.Step(x)
	if err != nil {
		return nil, fmt.Errorf("codec: decode step: %w", err)
	}

	return y.RawData(), nil
}

// Reset drops all carried context so the stream starts a new utterance.
func (s *DecodeStream) Reset() {
	s.dec.Reset()
}
