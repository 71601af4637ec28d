package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/go-seanet/internal/safetensors"
	"github.com/example/go-seanet/internal/seanet"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the tower topology and, with weights, weight statistics",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			c, err := newCodec(cfg, false)
			if err != nil {
				return err
			}

			towerCfg := c.Config()
			_, _ = fmt.Fprintf(os.Stdout, "arch: %s\n", cfg.Codec.Arch)
			_, _ = fmt.Fprintf(os.Stdout, "sample rate: %d Hz\n", c.SampleRate())
			_, _ = fmt.Fprintf(os.Stdout, "hop: %d samples\n", towerCfg.HopLength())
			_, _ = fmt.Fprintf(os.Stdout, "n_blocks: %d\n\n", towerCfg.NBlocks())

			writeTopology(os.Stdout, "encoder", c.Encoder().Describe())
			writeTopology(os.Stdout, "decoder", c.Decoder().Describe())

			weightsPath := cfg.Paths.WeightsPath
			if weightsPath == "" {
				return nil
			}
			if _, statErr := os.Stat(weightsPath); statErr != nil {
				return nil
			}
			return writeWeightStats(os.Stdout, weightsPath)
		},
	}

	return cmd
}

// writeTopology prints one per-stage row for a tower.
func writeTopology(w io.Writer, label string, infos []seanet.LayerInfo) {
	fmt.Fprintf(w, "%s (%d stages)\n", label, len(infos))
	fmt.Fprintf(w, "%-3s  %-14s  %5s  %5s  %3s  %3s  %3s  %-15s  %10s\n",
		"Idx", "Kind", "In", "Out", "K", "S", "D", "Norm", "Params")
	fmt.Fprintln(w, strings.Repeat("-", 78))

	var totalParams int64
	for _, info := range infos {
		kind := info.Kind
		if info.Detail != "" {
			kind = kind + "/" + info.Detail
		}
		fmt.Fprintf(w, "%-3d  %-14s  %5d  %5d  %3d  %3d  %3d  %-15s  %10d\n",
			info.Index, kind,
			info.InChannels, info.OutChannels,
			info.Kernel, info.Stride, info.Dilation,
			string(info.Norm), info.ParamCount)
		totalParams += info.ParamCount
	}

	fmt.Fprintln(w, strings.Repeat("-", 78))
	fmt.Fprintf(w, "%-56s  %10d\n\n", "total", totalParams)
}

// writeWeightStats summarizes the checkpoint tensors grouped by tower.
func writeWeightStats(w io.Writer, path string) error {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return err
	}
	defer store.Close()

	groups := map[string][]float64{}
	for _, name := range store.Names() {
		t, err := store.Tensor(name)
		if err != nil {
			return err
		}

		group := "other"
		switch {
		case strings.HasPrefix(name, "encoder."):
			group = "encoder"
		case strings.HasPrefix(name, "decoder."):
			group = "decoder"
		}

		vals := groups[group]
		for _, v := range t.Data {
			vals = append(vals, float64(v))
		}
		groups[group] = vals
	}

	fmt.Fprintf(w, "weights: %s\n", path)
	fmt.Fprintf(w, "%-10s  %10s  %12s  %12s  %12s  %12s\n",
		"Group", "Values", "Mean", "StdDev", "Min", "Max")
	fmt.Fprintln(w, strings.Repeat("-", 78))

	for _, group := range []string{"encoder", "decoder", "other"} {
		vals := groups[group]
		if len(vals) == 0 {
			continue
		}

		mean := stat.Mean(vals, nil)
		std := stat.StdDev(vals, nil)
		minVal, maxVal := vals[0], vals[0]
		for _, v := range vals[1:] {
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}

		fmt.Fprintf(w, "%-10s  %10d  %12.6f  %12.6f  %12.6f  %12.6f\n",
			group, len(vals), mean, std, minVal, maxVal)
	}

	return nil
}
