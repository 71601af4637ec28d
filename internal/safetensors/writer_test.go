package safetensors

import (
	"path/filepath"
	"testing"
)

func TestWriteFile_RoundTripSingleTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latent.safetensors")

	want := Tensor{
		Name:  "latent",
		Shape: []int64{1, 3, 2},
		Data:  []float32{0.5, -1.25, 2.0, 4.5, -0.75, 8.0},
	}

	if err := WriteFile(path, []Tensor{want}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	got, err := store.Tensor("latent")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}

	if got.Name != want.Name {
		t.Fatalf("tensor name = %q, want %q", got.Name, want.Name)
	}

	if len(got.Shape) != 3 || got.Shape[0] != 1 || got.Shape[1] != 3 || got.Shape[2] != 2 {
		t.Fatalf("tensor shape = %v, want %v", got.Shape, want.Shape)
	}

	if len(got.Data) != len(want.Data) {
		t.Fatalf("tensor data length = %d, want %d", len(got.Data), len(want.Data))
	}

	for i := range got.Data {
		if got.Data[i] != want.Data[i] {
			t.Fatalf("data[%d] = %v, want %v", i, got.Data[i], want.Data[i])
		}
	}
}

func TestEncodeTensors_SortsByName(t *testing.T) {
	blob, err := EncodeTensors([]Tensor{
		{Name: "latent_meta", Shape: []int64{2}, Data: []float32{320, 24000}},
		{Name: "latent", Shape: []int64{1, 2}, Data: []float32{1, 2}},
	})
	if err != nil {
		t.Fatalf("EncodeTensors: %v", err)
	}

	store, err := OpenStoreFromBytes(blob, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	names := store.Names()
	if len(names) != 2 || names[0] != "latent" || names[1] != "latent_meta" {
		t.Fatalf("Names() = %v, want [latent latent_meta]", names)
	}

	meta, err := store.Tensor("latent_meta")
	if err != nil {
		t.Fatalf("Tensor(latent_meta): %v", err)
	}
	if meta.Data[0] != 320 || meta.Data[1] != 24000 {
		t.Fatalf("latent_meta data = %v, want [320 24000]", meta.Data)
	}
}

func TestEncodeTensors_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		tensors []Tensor
	}{
		{"no tensors", nil},
		{"empty tensor name", []Tensor{{Name: "", Shape: []int64{1}, Data: []float32{1}}}},
		{"duplicate tensor names", []Tensor{
			{Name: "x", Shape: []int64{1}, Data: []float32{1}},
			{Name: "x", Shape: []int64{1}, Data: []float32{2}},
		}},
		{"shape and data mismatch", []Tensor{{Name: "x", Shape: []int64{1, 2}, Data: []float32{1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeTensors(tt.tensors); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
