package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"
)

// fixtureTensor describes one tensor in a synthetic checkpoint header.
type fixtureTensor struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

// buildSafetensors assembles a valid safetensors blob from name -> (dtype,
// shape, raw bytes) entries. Data offsets follow map iteration order, which
// is fine for the store tests since they look tensors up by name.
func buildSafetensors(t *testing.T, tensors map[string]struct {
	dtype string
	shape []int64
	data  []byte
}) []byte {
	t.Helper()

	header := make(map[string]fixtureTensor, len(tensors))
	var raw []byte
	for name, info := range tensors {
		start := len(raw)
		raw = append(raw, info.data...)
		header[name] = fixtureTensor{
			DType:   info.dtype,
			Shape:   info.shape,
			Offsets: [2]int{start, start + len(info.data)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	blob := make([]byte, 8, 8+len(headerJSON)+len(raw))
	binary.LittleEndian.PutUint64(blob, uint64(len(headerJSON)))
	blob = append(blob, headerJSON...)
	blob = append(blob, raw...)

	return blob
}

// float32Bytes converts float32 values to their little-endian byte layout.
func float32Bytes(vals []float32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	return buf
}
