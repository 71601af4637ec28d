package audio

import (
	"encoding/binary"
	"io"
	"math"
)

// WriteWAVHeaderStreaming writes a 44-byte WAV header for streamed output
// where the total length is not known in advance. Both the RIFF chunk size
// and the data sub-chunk size carry 0xFFFFFFFF, the conventional marker for
// an unknown length.
//
// Format: 24 kHz, mono, 16-bit PCM (matching ExpectedSampleRate).
func WriteWAVHeaderStreaming(w io.Writer) (int, error) {
	hdr := wavHeader(ExpectedSampleRate, 0xFFFFFFFF, 0xFFFFFFFF)

	return w.Write(hdr[:])
}

// WritePCM16Samples encodes float32 samples as little-endian 16-bit signed
// integers and writes them to w. Samples are clamped to [-1, 1].
func WritePCM16Samples(w io.Writer, samples []float32) (int, error) {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, float64(s)))
		v := int16(clamped * 32767)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}

	return w.Write(buf)
}
