package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-seanet/internal/safetensors"
)

type VerifyOptions struct {
	Repo   string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Verify re-hashes the downloaded checkpoint files under opts.Dir against
// the recorded lock manifest (falling back to pinned checksums) and checks
// that every .safetensors file parses. It reports PASS/FAIL per file and
// returns an error naming the failures.
func Verify(opts VerifyOptions) error {
	if opts.Repo == "" {
		return errors.New("repo is required")
	}
	if opts.Dir == "" {
		return errors.New("model dir is required")
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}

	manifest, err := PinnedManifest(opts.Repo)
	if err != nil {
		return err
	}

	lock := readLockManifest(filepath.Join(opts.Dir, lockFileName))

	var failures []string

	for _, f := range manifest.Files {
		path := filepath.Join(opts.Dir, filepath.FromSlash(f.Filename))

		err := verifyFile(path, f, lock)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "FAIL %s: %v\n", f.Filename, err)
			failures = append(failures, f.Filename)

			continue
		}

		fmt.Fprintf(opts.Stdout, "PASS %s\n", f.Filename)
	}

	if len(failures) > 0 {
		return fmt.Errorf("verify failed for %d file(s): %s", len(failures), strings.Join(failures, ", "))
	}

	return nil
}

func verifyFile(path string, f ModelFile, lock lockManifest) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("missing: %w", err)
	}
	if fi.IsDir() {
		return errors.New("expected file, found directory")
	}

	expected := strings.ToLower(f.SHA256)
	if expected == "" {
		if rec, ok := lock.Files[f.Filename]; ok && isSHA256Hex(rec.SHA256) {
			expected = strings.ToLower(rec.SHA256)
		}
	}

	if expected != "" {
		actual, err := fileSHA256(path)
		if err != nil {
			return err
		}
		if actual != expected {
			return fmt.Errorf("checksum mismatch: expected %s got %s", expected, actual)
		}
	}

	if strings.HasSuffix(f.Filename, ".safetensors") {
		store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
		if err != nil {
			return fmt.Errorf("unreadable checkpoint: %w", err)
		}
		names := store.Names()
		store.Close()

		if len(names) == 0 {
			return errors.New("checkpoint holds no tensors")
		}
	}

	return nil
}
