package codec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/go-seanet/internal/runtime/tensor"
	"github.com/example/go-seanet/internal/safetensors"
	"github.com/example/go-seanet/internal/seanet"
)

// DefaultSampleRate is the PCM rate the bundled topologies are built for.
const DefaultSampleRate = 24000

var (
	// ErrEmptyInput reports an encode call with no samples.
	ErrEmptyInput = errors.New("codec: input has no samples")
	// ErrNotCausal reports a streaming request on a topology that pads
	// around future samples and therefore cannot stream.
	ErrNotCausal = errors.New("codec: streaming requires a causal topology")
	// ErrLatentMismatch reports a latent whose recorded layout does not fit
	// the codec's topology. Callers can treat it as bad input rather than an
	// internal failure.
	ErrLatentMismatch = errors.New("codec: latent does not match topology")
)

type options struct {
	sampleRate  int
	weightsPath string
	store       *safetensors.Store
	encoderPath string
	decoderPath string
}

func defaultOptions() options {
	return options{
		sampleRate:  DefaultSampleRate,
		encoderPath: "encoder",
		decoderPath: "decoder",
	}
}

// Option adjusts codec construction.
type Option func(*options)

// WithSampleRate sets the PCM rate recorded in produced latents. Nothing is
// resampled; the rate is bookkeeping that Decode checks against.
func WithSampleRate(hz int) Option {
	return func(o *options) {
		o.sampleRate = hz
	}
}

// WithWeightsFile loads tower weights from a safetensors checkpoint.
func WithWeightsFile(path string) Option {
	return func(o *options) {
		o.weightsPath = path
	}
}

// WithWeightsStore loads tower weights from an already-open store. The
// caller keeps ownership of the store.
func WithWeightsStore(store *safetensors.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithTensorPaths overrides the checkpoint prefixes the towers load from.
// The defaults are "encoder" and "decoder".
func WithTensorPaths(encoder, decoder string) Option {
	return func(o *options) {
		o.encoderPath = encoder
		o.decoderPath = decoder
	}
}

// Codec couples an encoder and a decoder built from one shared topology.
//
// Forward passes touch no mutable tower state, so a single Codec is safe for
// concurrent Encode and Decode calls. Streaming carries per-stream context;
// obtain isolated instances with NewEncodeStream and NewDecodeStream.
type Codec struct {
	cfg        seanet.Config
	sampleRate int
	hop        int64

	enc *seanet.Encoder
	dec *seanet.Decoder

	// vb is retained so streams can build weighted tower instances of
	// their own. Nil when the codec was constructed without weights.
	vb      *seanet.VarBuilder
	encPath string
	decPath string
}

// New validates cfg, assembles both towers and, when a weights option is
// present, fills them from the checkpoint.
func New(cfg seanet.Config, opts ...Option) (*Codec, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.sampleRate <= 0 {
		return nil, fmt.Errorf("codec: sample rate %d is not positive", o.sampleRate)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var vb *seanet.VarBuilder
	switch {
	case o.store != nil:
		vb = seanet.NewVarBuilder(o.store)
	case o.weightsPath != "":
		opened, err := seanet.OpenVarBuilder(o.weightsPath, safetensors.StoreOptions{})
		if err != nil {
			return nil, fmt.Errorf("codec: open weights: %w", err)
		}
		vb = opened
	}

	c := &Codec{
		cfg:        cfg,
		sampleRate: o.sampleRate,
		hop:        cfg.HopLength(),
		vb:         vb,
		encPath:    o.encoderPath,
		decPath:    o.decoderPath,
	}

	enc, err := c.newEncoder()
	if err != nil {
		return nil, err
	}

	dec, err := c.newDecoder()
	if err != nil {
		return nil, err
	}

	c.enc, c.dec = enc, dec

	return c, nil
}

func (c *Codec) newEncoder() (*seanet.Encoder, error) {
	if c.vb != nil {
		return seanet.LoadEncoder(c.vb.Path(c.encPath), c.cfg)
	}

	return seanet.NewEncoder(c.cfg)
}

func (c *Codec) newDecoder() (*seanet.Decoder, error) {
	if c.vb != nil {
		return seanet.LoadDecoder(c.vb.Path(c.decPath), c.cfg)
	}

	return seanet.NewDecoder(c.cfg)
}

// Config returns the tower topology.
func (c *Codec) Config() seanet.Config { return c.cfg }

// Encoder exposes the encoder tower for introspection and profiling.
func (c *Codec) Encoder() *seanet.Encoder { return c.enc }

// Decoder exposes the decoder tower for introspection and profiling.
func (c *Codec) Decoder() *seanet.Decoder { return c.dec }

// SampleRate returns the PCM rate recorded in produced latents.
func (c *Codec) SampleRate() int { return c.sampleRate }

// HopLength returns the number of PCM samples one latent frame spans.
func (c *Codec) HopLength() int64 { return c.hop }

// Encode runs mono PCM through the encoder tower. The input is zero-padded
// on the right to the next hop multiple, so the result always holds
// ceil(len(pcm)/hop) frames.
func (c *Codec) Encode(ctx context.Context, pcm []float32) (*Latent, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyInput
	}
	if c.cfg.Channels != 1 {
		return nil, fmt.Errorf("codec: encode handles mono PCM, topology has %d channels", c.cfg.Channels)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart := time.Now()

	padded := padToHop(pcm, c.hop)
	x, err := tensor.New(padded, []int64{1, 1, int64(len(padded))})
	if err != nil {
		return nil, fmt.Errorf("codec: encode input: %w", err)
	}

	y, err := c.enc.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Forward output is freshly allocated, so the latent can own its
	// backing slice without copying.
	shape := y.Shape()
	lat := &Latent{
		Data:       y.RawData(),
		Dim:        shape[1],
		Frames:     shape[2],
		Hop:        c.hop,
		SampleRate: int64(c.sampleRate),
	}

	slog.Debug("encode complete",
		"ms", time.Since(stageStart).Milliseconds(),
		"samples", len(pcm),
		"frames", lat.Frames,
	)

	return lat, nil
}

// Decode runs latent frames through the decoder tower and returns PCM with
// Frames*hop samples. Hop and sample rate recorded in the latent must match
// the codec when present; zero values pass unchecked.
func (c *Codec) Decode(ctx context.Context, lat *Latent) ([]float32, error) {
	if lat == nil {
		return nil, fmt.Errorf("codec: decode: latent is nil")
	}
	if err := lat.Validate(); err != nil {
		return nil, err
	}
	if lat.Dim != c.cfg.Dimension {
		return nil, fmt.Errorf("%w: dimension %d, topology has %d", ErrLatentMismatch, lat.Dim, c.cfg.Dimension)
	}
	if lat.Hop != 0 && lat.Hop != c.hop {
		return nil, fmt.Errorf("%w: hop %d, topology has %d", ErrLatentMismatch, lat.Hop, c.hop)
	}
	if lat.SampleRate != 0 && lat.SampleRate != int64(c.sampleRate) {
		return nil, fmt.Errorf("%w: sample rate %d, codec has %d", ErrLatentMismatch, lat.SampleRate, c.sampleRate)
	}
	if lat.Frames == 0 {
		return []float32{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stageStart := time.Now()

	x, err := tensor.New(lat.Data, []int64{1, lat.Dim, lat.Frames})
	if err != nil {
		return nil, fmt.Errorf("codec: decode input: %w", err)
	}

	y, err := c.dec.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pcm := y.RawData()

	slog.Debug("decode complete",
		"ms", time.Since(stageStart).Milliseconds(),
		"frames", lat.Frames,
		"samples", len(pcm),
	)

	return pcm, nil
}

// Roundtrip encodes pcm and decodes the result, trimming the output back to
// the input length so the hop padding added by Encode does not leak out.
func (c *Codec) Roundtrip(ctx context.Context, pcm []float32) ([]float32, error) {
	lat, err := c.Encode(ctx, pcm)
	if err != nil {
		return nil, err
	}

	out, err := c.Decode(ctx, lat)
	if err != nil {
		return nil, err
	}

	if len(out) > len(pcm) {
		out = out[:len(pcm)]
	}

	return out, nil
}

// padToHop right-pads pcm with zeros to the next hop multiple. The input is
// returned as-is when already aligned.
func padToHop(pcm []float32, hop int64) []float32 {
	n := int64(len(pcm))
	rem := n % hop
	if rem == 0 {
		return pcm
	}

	out := make([]float32, n+hop-rem)
	copy(out, pcm)

	return out
}
