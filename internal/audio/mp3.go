package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes MP3 bytes and returns float32 mono PCM. The decoder
// always emits 16-bit stereo, so channels are downmixed by averaging.
// Nothing is resampled; input not at 24000 Hz is rejected.
func DecodeMP3(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, errors.New("empty MP3 input")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}

	if dec.SampleRate() != ExpectedSampleRate {
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrFormatMismatch, dec.SampleRate(), ExpectedSampleRate)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("reading MP3 frames: %w", err)
	}

	return downmixStereoPCM16(raw)
}

// downmixStereoPCM16 averages interleaved little-endian stereo int16 frames
// into mono float32.
func downmixStereoPCM16(raw []byte) ([]float32, error) {
	// 4 bytes per frame: left and right int16.
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("MP3 stream ends mid-frame (%d bytes)", len(raw))
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		l := int16(uint16(raw[i*4]) | uint16(raw[i*4+1])<<8)
		r := int16(uint16(raw[i*4+2]) | uint16(raw[i*4+3])<<8)

		samples[i] = (float32(l) + float32(r)) / 2 / 32768
	}

	return samples, nil
}
