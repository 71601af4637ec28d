package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/example/go-seanet/internal/audio"
	"github.com/example/go-seanet/internal/codec"
	"github.com/spf13/cobra"
)

func newEncodeCmd() *cobra.Command {
	var in string
	var out string
	var workers int

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode WAV or MP3 audio to latent frames",
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

			info, err := os.Stat(in)
			if err != nil {
				return fmt.Errorf("input %s: %w", in, err)
			}
			if info.IsDir() {
				return encodeDir(cmd, c, in, out, workers)
			}

			pcm, err := readAudioFile(in)
			if err != nil {
				return err
			}

			lat, err := c.Encode(cmd.Context(), pcm)
			if err != nil {
				return err
			}

			if out == "" {
				out = replaceExt(in, ".st")
			}
			if err := codec.WriteLatentFile(out, lat); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "encoded %s -> %s (%d frames, dim %d)\n", in, out, lat.Frames, lat.Dim)
			return nil
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input WAV or MP3 file, or a directory of them")
	cmd.Flags().StringVar(&out, "out", "", "Output latent file, or a directory in batch mode (default: input with .st)")
	cmd.Flags().IntVar(&workers, "batch-workers", 2, "Concurrent encodes in directory batch mode")

	return cmd
}

// encodeDir encodes every WAV and MP3 file directly under dir.
func encodeDir(cmd *cobra.Command, c *codec.Codec, dir, outDir string, workers int) error {
	inputs, err := collectAudioFiles(dir)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no .wav or .mp3 files in %s", dir)
	}

	if outDir == "" {
		outDir = dir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	pcms := make([][]float32, len(inputs))
	for i, path := range inputs {
		pcms[i], err = readAudioFile(path)
		if err != nil {
			return err
		}
	}

	latents, err := c.EncodeBatch(cmd.Context(), pcms, workers)
	if err != nil {
		return err
	}

	for i, lat := range latents {
		outPath := filepath.Join(outDir, replaceExt(filepath.Base(inputs[i]), ".st"))
		if err := codec.WriteLatentFile(outPath, lat); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(os.Stdout, "encoded %s -> %s (%d frames)\n", inputs[i], outPath, lat.Frames)
	}

	return nil
}

func collectAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".wav", ".mp3":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	return files, nil
}

// readAudioFile decodes a WAV or MP3 file to mono float32 PCM.
func readAudioFile(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		pcm, err := audio.DecodeMP3(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return pcm, nil
	}

	pcm, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return pcm, nil
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
