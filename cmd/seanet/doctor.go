package main

import (
	"fmt"
	"os"

	"github.com/example/go-seanet/internal/doctor"
	"github.com/example/go-seanet/internal/safetensors"
	"github.com/example/go-seanet/internal/seanet"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local configuration and checkpoint checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dcfg := doctor.Config{
				ValidateConfig: func() (string, error) {
					towerCfg, err := archConfig(cfg.Codec.Arch)
					if err != nil {
						return "", err
					}
					if err := towerCfg.Validate(); err != nil {
						return "", err
					}
					return fmt.Sprintf("arch %s, hop %d, n_blocks %d",
						cfg.Codec.Arch, towerCfg.HopLength(), towerCfg.NBlocks()), nil
				},
				BuildTowers: func() (string, error) {
					towerCfg, err := archConfig(cfg.Codec.Arch)
					if err != nil {
						return "", err
					}
					enc, err := seanet.NewEncoder(towerCfg)
					if err != nil {
						return "", fmt.Errorf("encoder: %w", err)
					}
					dec, err := seanet.NewDecoder(towerCfg)
					if err != nil {
						return "", fmt.Errorf("decoder: %w", err)
					}
					return fmt.Sprintf("encoder %d stages, decoder %d stages",
						len(enc.Layers()), len(dec.Layers())), nil
				},
				WeightsPath: cfg.Paths.WeightsPath,
				VerifyWeights: func() (string, error) {
					store, err := safetensors.OpenStore(cfg.Paths.WeightsPath, safetensors.StoreOptions{})
					if err != nil {
						return "", err
					}
					defer store.Close()

					names := store.Names()
					if len(names) == 0 {
						return "", fmt.Errorf("checkpoint has no tensors")
					}
					return fmt.Sprintf("%d tensors", len(names)), nil
				},
			}

			result := doctor.Run(dcfg, os.Stdout)
			if result.Failed() {
				return fmt.Errorf("doctor found %d problem(s)", len(result.Failures()))
			}

			_, _ = fmt.Fprintln(os.Stdout, "all checks passed")
			return nil
		},
	}

	return cmd
}
