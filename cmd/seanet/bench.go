package main

import (
	"fmt"
	"os"

	"github.com/example/go-seanet/internal/bench"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		iters        int
		warmup       int
		seconds      float64
		format       string
		rtfThreshold float64
		stageProfile bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark encode and decode latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if iters < 1 {
				return fmt.Errorf("--iters must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			c, err := newCodec(cfg, false)
			if err != nil {
				return err
			}

			rep, err := bench.Run(cmd.Context(), c, bench.Options{
				Iters:        iters,
				Warmup:       warmup,
				Seconds:      seconds,
				StageProfile: stageProfile,
			})
			if err != nil {
				return err
			}

			switch format {
			case "json":
				bench.FormatJSON(rep, os.Stdout)
			default:
				bench.FormatTable(rep, os.Stdout)
			}

			// The threshold gates on the mean RTF across every timed pass,
			// encode and decode alike.
			var totalRTF float64
			var n int
			for _, r := range rep.Encode {
				totalRTF += r.RTF
				n++
			}
			for _, r := range rep.Decode {
				totalRTF += r.RTF
				n++
			}
			if n == 0 {
				return nil
			}

			return bench.CheckRTFThreshold(totalRTF/float64(n), rtfThreshold)
		},
	}

	cmd.Flags().IntVar(&iters, "iters", 5, "Number of timed iterations")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Untimed warmup iterations before the timed runs")
	cmd.Flags().Float64Var(&seconds, "seconds", 1.0, "Synthetic input length in seconds")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().BoolVar(&stageProfile, "stage-profile", false, "Time each tower stage separately")

	return cmd
}
