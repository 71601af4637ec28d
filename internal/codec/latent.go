package codec

import (
	"fmt"
	"os"
	"time"

	"github.com/example/go-seanet/internal/safetensors"
)

// Tensor names used by the latent safetensors layout. The metadata tensor
// carries hop length and sample rate so a decoder can refuse frames produced
// under a different topology.
const (
	latentTensorName = "latent"
	latentMetaName   = "latent_meta"
)

// Latent is one encoded feature sequence: Frames vectors of Dim values.
// Data is row-major [Dim][Frames], the tower layout.
type Latent struct {
	Data   []float32
	Dim    int64
	Frames int64

	// Hop and SampleRate describe the PCM the frames came from: one frame
	// spans Hop samples at SampleRate. Zero means unknown.
	Hop        int64
	SampleRate int64
}

// Validate checks the shape bookkeeping against the data length.
func (l *Latent) Validate() error {
	if l.Dim <= 0 {
		return fmt.Errorf("codec: latent dimension %d is not positive", l.Dim)
	}
	if l.Frames < 0 {
		return fmt.Errorf("codec: latent frame count %d is negative", l.Frames)
	}
	if want := l.Dim * l.Frames; int64(len(l.Data)) != want {
		return fmt.Errorf("codec: latent data holds %d values, shape [%d %d] expects %d", len(l.Data), l.Dim, l.Frames, want)
	}
	if l.Hop < 0 || l.SampleRate < 0 {
		return fmt.Errorf("codec: latent hop %d and sample rate %d must not be negative", l.Hop, l.SampleRate)
	}

	return nil
}

// Duration returns the span of PCM the frames describe. Zero when hop or
// sample rate are unknown.
func (l *Latent) Duration() time.Duration {
	if l.Hop <= 0 || l.SampleRate <= 0 {
		return 0
	}

	samples := l.Frames * l.Hop

	return time.Duration(samples) * time.Second / time.Duration(l.SampleRate)
}

// EncodeLatent serializes l as a safetensors payload: the frame tensor at
// "latent" plus the metadata tensor.
func EncodeLatent(l *Latent) ([]byte, error) {
	if l == nil {
		return nil, fmt.Errorf("codec: latent is nil")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}

	return safetensors.EncodeTensors([]safetensors.Tensor{
		{
			Name:  latentTensorName,
			Shape: []int64{1, l.Dim, l.Frames},
			Data:  l.Data,
		},
		{
			Name:  latentMetaName,
			Shape: []int64{2},
			Data:  []float32{float32(l.Hop), float32(l.SampleRate)},
		},
	})
}

// DecodeLatent parses a safetensors payload produced by EncodeLatent.
// Foreign dumps are accepted too: a single [D,T] or [1,D,T] tensor under any
// name loads with unknown hop and sample rate.
func DecodeLatent(data []byte) (*Latent, error) {
	store, err := safetensors.OpenStoreFromBytes(data, safetensors.StoreOptions{})
	if err != nil {
		return nil, fmt.Errorf("codec: read latent: %w", err)
	}
	defer store.Close()

	return latentFromStore(store)
}

func latentFromStore(store *safetensors.Store) (*Latent, error) {
	name := latentTensorName
	if !store.Has(name) {
		names := store.Names()
		if len(names) == 0 {
			return nil, fmt.Errorf("codec: latent payload holds no tensors")
		}
		name = names[0]
	}

	t, err := store.Tensor(name)
	if err != nil {
		return nil, fmt.Errorf("codec: read latent: %w", err)
	}

	dim, frames, err := latentDims(t.Shape)
	if err != nil {
		return nil, err
	}

	lat := &Latent{
		Data:   t.Data,
		Dim:    dim,
		Frames: frames,
	}

	if store.Has(latentMetaName) {
		meta, err := store.TensorWithShape(latentMetaName, []int64{2})
		if err != nil {
			return nil, fmt.Errorf("codec: read latent metadata: %w", err)
		}

		lat.Hop = int64(meta.Data[0])
		lat.SampleRate = int64(meta.Data[1])
	}

	if err := lat.Validate(); err != nil {
		return nil, err
	}

	return lat, nil
}

// latentDims accepts [D,T] and [1,D,T] shapes; anything else is rejected.
func latentDims(shape []int64) (dim, frames int64, err error) {
	switch len(shape) {
	case 2:
		return shape[0], shape[1], nil
	case 3:
		if shape[0] != 1 {
			return 0, 0, fmt.Errorf("codec: latent batch dimension must be 1, got shape %v", shape)
		}
		return shape[1], shape[2], nil
	default:
		return 0, 0, fmt.Errorf("codec: latent tensor must be rank 2 or 3, got shape %v", shape)
	}
}

// ConcatLatents joins frame sequences along the time axis. Data is
// row-major, so rows are merged per dimension rather than appended whole.
// Zero-frame parts are skipped; the rest must agree on dim, hop and rate.
func ConcatLatents(parts ...*Latent) (*Latent, error) {
	kept := make([]*Latent, 0, len(parts))
	for i, p := range parts {
		if p == nil {
			return nil, fmt.Errorf("codec: concat: part %d is nil", i)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("codec: concat part %d: %w", i, err)
		}
		if p.Frames == 0 {
			continue
		}

		kept = append(kept, p)
	}

	if len(kept) == 0 {
		return &Latent{}, nil
	}

	head := kept[0]
	total := int64(0)
	for _, p := range kept {
		if p.Dim != head.Dim || p.Hop != head.Hop || p.SampleRate != head.SampleRate {
			return nil, fmt.Errorf("codec: concat: mixed latent layouts [%d %d %d] and [%d %d %d]",
				head.Dim, head.Hop, head.SampleRate, p.Dim, p.Hop, p.SampleRate)
		}

		total += p.Frames
	}

	out := &Latent{
		Data:       make([]float32, head.Dim*total),
		Dim:        head.Dim,
		Frames:     total,
		Hop:        head.Hop,
		SampleRate: head.SampleRate,
	}

	off := int64(0)
	for _, p := range kept {
		for d := int64(0); d < p.Dim; d++ {
			copy(out.Data[d*total+off:], p.Data[d*p.Frames:(d+1)*p.Frames])
		}

		off += p.Frames
	}

	return out, nil
}

// WriteLatentFile writes l to path in the safetensors layout.
func WriteLatentFile(path string, l *Latent) error {
	data, err := EncodeLatent(l)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("codec: write latent: %w", err)
	}

	return nil
}

// ReadLatentFile loads a latent written by WriteLatentFile.
func ReadLatentFile(path string) (*Latent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codec: read latent: %w", err)
	}

	return DecodeLatent(data)
}
