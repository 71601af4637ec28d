package main

import (
	"fmt"
	"os"

	"github.com/example/go-seanet/internal/audio"
	"github.com/example/go-seanet/internal/codec"
	"github.com/spf13/cobra"
)

// dspOptions collects the post-processing flags shared by decode and
// roundtrip.
type dspOptions struct {
	Normalize bool
	DCBlock   bool
	FadeInMS  float64
	FadeOutMS float64
}

func (o dspOptions) hooks(sampleRate int) []audio.Hook {
	var hooks []audio.Hook
	if o.DCBlock {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.DCBlock(s, sampleRate)
		})
	}
	if o.Normalize {
		hooks = append(hooks, audio.PeakNormalize)
	}
	if o.FadeInMS > 0 {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.FadeIn(s, sampleRate, o.FadeInMS)
		})
	}
	if o.FadeOutMS > 0 {
		hooks = append(hooks, func(s []float32) []float32 {
			return audio.FadeOut(s, sampleRate, o.FadeOutMS)
		})
	}

	return hooks
}

func registerDSPFlags(cmd *cobra.Command, o *dspOptions) {
	cmd.Flags().BoolVar(&o.Normalize, "normalize", false, "Peak-normalize the output")
	cmd.Flags().BoolVar(&o.DCBlock, "dc-block", false, "Apply a DC-blocking highpass")
	cmd.Flags().Float64Var(&o.FadeInMS, "fade-in-ms", 0, "Fade-in length in milliseconds")
	cmd.Flags().Float64Var(&o.FadeOutMS, "fade-out-ms", 0, "Fade-out length in milliseconds")
}

func newDecodeCmd() *cobra.Command {
	var in string
	var out string
	var play bool
	var dsp dspOptions

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode latent frames to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if in == "" {
				return fmt.Errorf("--in is required")
			}

			c, err := newCodec(cfg, false)
			if err != nil {
				return err
			}

			lat, err := codec.ReadLatentFile(in)
			if err != nil {
				return err
			}

			samples, err := c.Decode(cmd.Context(), lat)
			if err != nil {
				return err
			}
			samples = audio.ApplyHooks(samples, dsp.hooks(c.SampleRate())...)

			if out == "" {
				out = replaceExt(in, ".wav")
			}
			wavBytes, err := audio.EncodeWAVPCM16(samples, c.SampleRate())
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, wavBytes, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			_, _ = fmt.Fprintf(os.Stdout, "decoded %s -> %s (%d samples)\n", in, out, len(samples))

			if play {
				return audio.Play(cmd.Context(), samples, c.SampleRate())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input latent file (safetensors)")
	cmd.Flags().StringVar(&out, "out", "", "Output WAV path (default: input with .wav)")
	cmd.Flags().BoolVar(&play, "play", false, "Play the decoded audio after writing")
	registerDSPFlags(cmd, &dsp)

	return cmd
}
