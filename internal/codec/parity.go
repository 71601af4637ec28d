package codec

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
)

const (
	ParityStatusOK      = "ok"
	ParityStatusSkipped = "skipped"
	ParityStatusError   = "error"
)

// Streaming tolerances. The encoder path reorders no arithmetic, so it must
// match bitwise; the decoder's overlap-add accumulates in a different order
// than the one-shot transpose and drifts within float32 rounding.
const (
	encodeParityTol = 0
	decodeParityTol = 1e-5
)

// ParityCase drives one one-shot versus streaming comparison on synthetic
// PCM. Samples should be a hop multiple; the harness aligns it when not.
type ParityCase struct {
	Name      string `json:"name"`
	Seed      int64  `json:"seed"`
	Samples   int    `json:"samples"`
	ChunkSize int    `json:"chunk_size"`
}

// ParitySnapshot records the comparison outcome in a diff-friendly form.
// PeakAbs, RMS and the hash describe the one-shot decoded PCM.
type ParitySnapshot struct {
	Case          string  `json:"case"`
	Seed          int64   `json:"seed"`
	SampleCount   int     `json:"sample_count"`
	ChunkSize     int     `json:"chunk_size"`
	FrameCount    int     `json:"frame_count"`
	EncodeMaxDiff float64 `json:"encode_max_diff"`
	DecodeMaxDiff float64 `json:"decode_max_diff"`
	PeakAbs       float64 `json:"peak_abs"`
	RMS           float64 `json:"rms"`
	PCMHashSHA256 string  `json:"pcm_hash_sha256"`
	Status        string  `json:"status"`
	Reason        string  `json:"reason,omitempty"`
}

// RunParityCase encodes and decodes the same synthetic signal once in full
// and once chunked, and reports how far the two paths drift apart.
// Non-causal topologies cannot stream and are marked as skipped.
func RunParityCase(ctx context.Context, c *Codec, pc ParityCase) ParitySnapshot {
	snap := ParitySnapshot{
		Case:      pc.Name,
		Seed:      pc.Seed,
		ChunkSize: pc.ChunkSize,
	}

	if !c.Config().Causal {
		snap.Status = ParityStatusSkipped
		snap.Reason = "non-causal topology cannot stream"
		return snap
	}

	samples := pc.Samples
	if samples <= 0 {
		samples = int(c.HopLength()) * 8
	}
	if rem := samples % int(c.HopLength()); rem != 0 {
		samples += int(c.HopLength()) - rem
	}
	snap.SampleCount = samples

	chunk := pc.ChunkSize
	if chunk <= 0 {
		chunk = int(c.HopLength())
	}

	rng := rand.New(rand.NewSource(pc.Seed))
	pcm := make([]float32, samples)
	for i := range pcm {
		pcm[i] = rng.Float32()*2 - 1
	}

	lat, err := c.Encode(ctx, pcm)
	if err != nil {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("encode: %v", err)
		return snap
	}
	snap.FrameCount = int(lat.Frames)

	streamed, err := streamEncode(c, pcm, chunk)
	if err != nil {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("stream encode: %v", err)
		return snap
	}

	if streamed.Frames != lat.Frames {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("frame count mismatch: one-shot %d, streamed %d", lat.Frames, streamed.Frames)
		return snap
	}
	snap.EncodeMaxDiff = maxAbsDiff(lat.Data, streamed.Data)

	pcmOut, err := c.Decode(ctx, lat)
	if err != nil {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("decode: %v", err)
		return snap
	}

	streamedPCM, err := streamDecode(c, lat)
	if err != nil {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("stream decode: %v", err)
		return snap
	}

	if len(streamedPCM) != len(pcmOut) {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("sample count mismatch: one-shot %d, streamed %d", len(pcmOut), len(streamedPCM))
		return snap
	}
	snap.DecodeMaxDiff = maxAbsDiff(pcmOut, streamedPCM)

	snap.PeakAbs = peakAbs(pcmOut)
	snap.RMS = rms(pcmOut)
	snap.PCMHashSHA256 = hashPCM(pcmOut)

	if snap.EncodeMaxDiff > encodeParityTol {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("encode drift %g exceeds %g", snap.EncodeMaxDiff, float64(encodeParityTol))
		return snap
	}
	if snap.DecodeMaxDiff > decodeParityTol {
		snap.Status = ParityStatusError
		snap.Reason = fmt.Sprintf("decode drift %g exceeds %g", snap.DecodeMaxDiff, float64(decodeParityTol))
		return snap
	}

	snap.Status = ParityStatusOK

	return snap
}

// RunParityCases runs every case against the same codec.
func RunParityCases(ctx context.Context, c *Codec, cases []ParityCase) ([]ParitySnapshot, error) {
	if len(cases) == 0 {
		return nil, errors.New("codec: at least one parity case is required")
	}

	snaps := make([]ParitySnapshot, 0, len(cases))
	for _, pc := range cases {
		snaps = append(snaps, RunParityCase(ctx, c, pc))
	}

	return snaps, nil
}

func streamEncode(c *Codec, pcm []float32, chunk int) (*Latent, error) {
	stream, err := c.NewEncodeStream()
	if err != nil {
		return nil, err
	}

	var parts []*Latent
	for start := 0; start < len(pcm); start += chunk {
		end := min(start+chunk, len(pcm))

		part, err := stream.Step(pcm[start:end])
		if err != nil {
			return nil, err
		}

		parts = append(parts, part)
	}

	return ConcatLatents(parts...)
}

func streamDecode(c *Codec, lat *Latent) ([]float32, error) {
	stream, err := c.NewDecodeStream()
	if err != nil {
		return nil, err
	}

	var out []float32
	for start := int64(0); start < lat.Frames; start++ {
		frame := &Latent{
			Data:       frameColumn(lat, start),
			Dim:        lat.Dim,
			Frames:     1,
			Hop:        lat.Hop,
			SampleRate: lat.SampleRate,
		}

		pcm, err := stream.Step(frame)
		if err != nil {
			return nil, err
		}

		out = append(out, pcm...)
	}

	return out, nil
}

// frameColumn extracts frame t as a [dim,1] column from row-major data.
func frameColumn(lat *Latent, t int64) []float32 {
	col := make([]float32, lat.Dim)
	for d := int64(0); d < lat.Dim; d++ {
		col[d] = lat.Data[d*lat.Frames+t]
	}

	return col
}

func SaveParitySnapshots(path string, snapshots []ParitySnapshot) error {
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return fmt.Errorf("codec: marshal parity snapshots: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("codec: write parity snapshots: %w", err)
	}
	return nil
}

func LoadParitySnapshots(path string) ([]ParitySnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codec: read parity snapshots: %w", err)
	}
	var snapshots []ParitySnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("codec: decode parity snapshots: %w", err)
	}
	return snapshots, nil
}

func maxAbsDiff(a, b []float32) float64 {
	var peak float64
	for i := range a {
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if d > peak {
			peak = d
		}
	}
	return peak
}

func peakAbs(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		v := math.Abs(float64(s))
		if v > peak {
			peak = v
		}
	}
	return peak
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func hashPCM(samples []float32) string {
	h := sha256.New()
	var b [4]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(s))
		_, _ = h.Write(b[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
