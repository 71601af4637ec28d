package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Hook is one post-processing step applied to decoded PCM before it is
// written out or played.
type Hook func(samples []float32) []float32

// ApplyHooks runs each hook over samples in order and returns the result.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// wavHeader builds the canonical 44-byte header for mono 16-bit PCM at the
// given rate. riffSize and dataSize may be 0xFFFFFFFF for streaming use.
func wavHeader(sampleRate int, riffSize, dataSize uint32) [44]byte {
	const channels = 1
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], riffSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)

	return hdr
}

// EncodeWAVPCM16 serializes samples as a mono 16-bit PCM WAV file at the
// given rate. Samples are clamped to [-1, 1].
func EncodeWAVPCM16(samples []float32, sampleRate int) ([]byte, error) {
	if sampleRate < 1 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	dataSize := len(samples) * 2
	riffSize := 4 + (8 + 16) + (8 + dataSize)
	hdr := wavHeader(sampleRate, uint32(riffSize), uint32(dataSize))

	buf := bytes.NewBuffer(make([]byte, 0, len(hdr)+dataSize))
	buf.Write(hdr[:])
	if _, err := WritePCM16Samples(buf, samples); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
