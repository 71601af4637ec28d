package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

// EncodeTensors serializes float32 tensors into the safetensors wire format:
// an 8-byte little-endian header length, the JSON header, then the raw data
// region. Tensors are laid out in name order so identical inputs produce
// identical bytes.
func EncodeTensors(tensors []Tensor) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	sorted := make([]Tensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var dataBytes int
	for _, t := range sorted {
		dataBytes += len(t.Data) * 4
	}

	header := make(map[string]storeHeaderEntry, len(sorted))
	raw := make([]byte, 0, dataBytes)

	for _, t := range sorted {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}
		if _, exists := header[name]; exists {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		elemCount, err := shapeElementCount(t.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		if int64(len(t.Data)) != elemCount {
			return nil, fmt.Errorf("safetensors: tensor %q shape %v expects %d elements, got %d",
				name, t.Shape, elemCount, len(t.Data))
		}

		start := len(raw)
		raw = appendFloat32LE(raw, t.Data)

		header[name] = storeHeaderEntry{
			DType:   dtypeF32,
			Shape:   append([]int64(nil), t.Shape...),
			Offsets: [2]int{start, len(raw)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 8, 8+len(headerJSON)+len(raw))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

func appendFloat32LE(dst []byte, vals []float32) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, len(vals)*4)...)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(dst[start+i*4:], math.Float32bits(v))
	}

	return dst
}

// WriteFile writes float32 tensors into a .safetensors file. Used for latent
// output and test fixtures.
func WriteFile(path string, tensors []Tensor) error {
	data, err := EncodeTensors(tensors)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}
