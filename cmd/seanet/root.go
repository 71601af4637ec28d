package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/example/go-seanet/internal/codec"
	"github.com/example/go-seanet/internal/config"
	"github.com/example/go-seanet/internal/runtime/ops"
	"github.com/example/go-seanet/internal/seanet"
	"github.com/example/go-seanet/internal/server"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "seanet",
		Short: "SEANet codec command line",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			ops.SetConvWorkers(loaded.Codec.ConvWorkers)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newEncodeCmd())
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newRoundtripCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newModelCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Codec.Arch == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// archConfig maps a normalized architecture name to its tower preset.
func archConfig(arch string) (seanet.Config, error) {
	normalized, err := config.NormalizeArch(arch)
	if err != nil {
		return seanet.Config{}, err
	}

	switch normalized {
	case config.ArchMimi:
		return seanet.MimiConfig(), nil
	case config.ArchEnCodec24kHz:
		return seanet.EnCodec24kHzConfig(), nil
	default:
		return seanet.DefaultConfig(), nil
	}
}

// newCodec builds a codec from the active configuration. Weights load when
// the configured file exists; requireWeights turns a missing file into an
// error instead of a structural, randomly initialized codec.
func newCodec(cfg config.Config, requireWeights bool) (*codec.Codec, error) {
	towerCfg, err := archConfig(cfg.Codec.Arch)
	if err != nil {
		return nil, err
	}

	opts := []codec.Option{codec.WithSampleRate(cfg.Codec.SampleRate)}

	weightsPath := cfg.Paths.WeightsPath
	if weightsPath != "" {
		if _, statErr := os.Stat(weightsPath); statErr == nil {
			opts = append(opts, codec.WithWeightsFile(weightsPath))
		} else if requireWeights {
			return nil, fmt.Errorf("weights file %s: %w", weightsPath, statErr)
		} else {
			slog.Warn("weights file not found, using structural towers", "path", weightsPath)
		}
	} else if requireWeights {
		return nil, fmt.Errorf("no weights path configured")
	}

	return codec.New(towerCfg, opts...)
}
