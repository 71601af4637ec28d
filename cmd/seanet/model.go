package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-seanet/internal/model"
	"github.com/spf13/cobra"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Checkpoint acquisition and verification commands",
	}

	cmd.AddCommand(newModelFetchCmd())
	cmd.AddCommand(newModelVerifyCmd())
	cmd.AddCommand(newModelInfoCmd())
	return cmd
}

// resolveRepo picks the explicit --hf-repo when given, otherwise the repo
// pinned for the configured architecture.
func resolveRepo(flagRepo, arch string) (string, error) {
	if flagRepo != "" {
		return flagRepo, nil
	}
	return model.RepoForArch(arch)
}

func newModelFetchCmd() *cobra.Command {
	var hfRepo string
	var outDir string
	var hfToken string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download checkpoint files from Hugging Face",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			repo, err := resolveRepo(hfRepo, cfg.Codec.Arch)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Paths.ModelDir
			}
			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}

			err = model.Download(model.DownloadOptions{
				Repo:    repo,
				OutDir:  outDir,
				HFToken: hfToken,
				Stdout:  os.Stdout,
				Stderr:  os.Stderr,
			})

			var denied *model.ErrAccessDenied
			if errors.As(err, &denied) && hfToken == "" {
				return fmt.Errorf("%w (set HF_TOKEN or pass --hf-token for gated repos)", err)
			}
			if err != nil {
				return fmt.Errorf("model fetch failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", "", "Hugging Face model repository (default: pinned repo for the configured arch)")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory where checkpoint files are stored (default: configured model dir)")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	var hfRepo string
	var dir string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify downloaded checkpoint files against the pinned manifest",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			repo, err := resolveRepo(hfRepo, cfg.Codec.Arch)
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Paths.ModelDir
			}

			return model.Verify(model.VerifyOptions{
				Repo:   repo,
				Dir:    dir,
				Stdout: os.Stdout,
				Stderr: os.Stderr,
			})
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", "", "Hugging Face model repository (default: pinned repo for the configured arch)")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the downloaded files (default: configured model dir)")

	return cmd
}

func newModelInfoCmd() *cobra.Command {
	var hfRepo string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the pinned checkpoint manifest for the configured arch",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			repo, err := resolveRepo(hfRepo, cfg.Codec.Arch)
			if err != nil {
				return err
			}

			manifest, err := model.PinnedManifest(repo)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "repo: %s\n", manifest.Repo)
			for _, f := range manifest.Files {
				checksum := f.SHA256
				if checksum == "" {
					checksum = "(resolved from upstream metadata on fetch)"
				}
				_, _ = fmt.Fprintf(os.Stdout, "  %s  revision=%s  sha256=%s\n", f.Filename, f.Revision, checksum)
			}

			weightsPath, err := model.WeightsPath(cfg.Paths.ModelDir, repo)
			if err == nil {
				_, _ = fmt.Fprintf(os.Stdout, "weights path: %s\n", weightsPath)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", "", "Hugging Face model repository (default: pinned repo for the configured arch)")

	return cmd
}
