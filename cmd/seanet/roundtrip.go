package main

import (
	"fmt"
	"os"

	"github.com/example/go-seanet/internal/audio"
	"github.com/spf13/cobra"
)

func newRoundtripCmd() *cobra.Command {
	var in string
	var out string
	var dsp dspOptions

	cmd := &cobra.Command{
		Use:   "roundtrip",
		Short: "Encode audio to latent frames and decode it back to WAV",
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

			pcm, err := readAudioFile(in)
			if err != nil {
				return err
			}

			samples, err := c.Roundtrip(cmd.Context(), pcm)
			if err != nil {
				return err
			}
			samples = audio.ApplyHooks(samples, dsp.hooks(c.SampleRate())...)

			if out == "" {
				out = replaceExt(in, ".roundtrip.wav")
			}
			wavBytes, err := audio.EncodeWAVPCM16(samples, c.SampleRate())
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, wavBytes, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			_, _ = fmt.Fprintf(os.Stdout, "roundtrip %s -> %s (%d samples in, %d out)\n", in, out, len(pcm), len(samples))
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input WAV or MP3 file")
	cmd.Flags().StringVar(&out, "out", "", "Output WAV path (default: input with .roundtrip.wav)")
	registerDSPFlags(cmd, &dsp)

	return cmd
}
