package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// The process gets exactly one audio device context, initialized at the rate
// of the first Play call.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func playbackContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: ExpectedChannels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			otoErr = fmt.Errorf("opening audio device: %w", err)
			return
		}

		<-ready

		otoCtx = ctx
		otoRate = sampleRate
	})

	if otoErr != nil {
		return nil, otoErr
	}

	if sampleRate != otoRate {
		return nil, fmt.Errorf("audio device runs at %d Hz, cannot play %d Hz", otoRate, sampleRate)
	}

	return otoCtx, nil
}

// Play renders mono PCM through the default output device and blocks until
// playback finishes or ctx is canceled.
func Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return errors.New("no samples to play")
	}
	if sampleRate < 1 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	device, err := playbackContext(sampleRate)
	if err != nil {
		return err
	}

	var pcm bytes.Buffer
	if _, err := WritePCM16Samples(&pcm, samples); err != nil {
		return err
	}

	player := device.NewPlayer(bytes.NewReader(pcm.Bytes()))
	player.Play()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			_ = player.Close()
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	return player.Close()
}
