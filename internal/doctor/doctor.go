// Package doctor provides environment preflight checks for the codec CLI.
package doctor

import (
	"fmt"
	"io"
	"os"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// CheckFunc runs one preflight check and returns a short summary string or
// an error if the component is misconfigured or unavailable.
type CheckFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ValidateConfig resolves the configured architecture and validates the
	// resulting codec configuration.
	ValidateConfig CheckFunc
	// BuildTowers dry-runs encoder and decoder construction.
	BuildTowers CheckFunc
	// WeightsPath is the checkpoint file to check on disk; empty skips the
	// presence check (structural use needs no weights).
	WeightsPath string
	// VerifyWeights re-hashes and parses the checkpoint; nil skips
	// integrity checking even when WeightsPath is set.
	VerifyWeights CheckFunc
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- codec configuration ----------------------------------------------
	if cfg.ValidateConfig == nil {
		fmt.Fprintf(w, "%s codec config: skipped\n", PassMark)
	} else if summary, err := cfg.ValidateConfig(); err != nil {
		res.fail(fmt.Sprintf("codec config: %v", err))
		fmt.Fprintf(w, "%s codec config: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s codec config: %s\n", PassMark, summary)
	}

	// ---- tower construction -----------------------------------------------
	if cfg.BuildTowers == nil {
		fmt.Fprintf(w, "%s tower construction: skipped\n", PassMark)
	} else if summary, err := cfg.BuildTowers(); err != nil {
		res.fail(fmt.Sprintf("tower construction: %v", err))
		fmt.Fprintf(w, "%s tower construction: %v\n", FailMark, err)
	} else {
		fmt.Fprintf(w, "%s tower construction: %s\n", PassMark, summary)
	}

	// ---- checkpoint -------------------------------------------------------
	if cfg.WeightsPath == "" {
		fmt.Fprintf(w, "%s checkpoint: none configured (structural mode)\n", PassMark)

		return res
	}

	if _, err := os.Stat(cfg.WeightsPath); err != nil {
		res.fail(fmt.Sprintf("checkpoint %q: %v", cfg.WeightsPath, err))
		fmt.Fprintf(w, "%s checkpoint %s: not found\n", FailMark, cfg.WeightsPath)

		return res
	}

	fmt.Fprintf(w, "%s checkpoint: %s\n", PassMark, cfg.WeightsPath)

	if cfg.VerifyWeights != nil {
		if summary, err := cfg.VerifyWeights(); err != nil {
			res.fail(fmt.Sprintf("checkpoint integrity: %v", err))
			fmt.Fprintf(w, "%s checkpoint integrity: %v\n", FailMark, err)
		} else {
			fmt.Fprintf(w, "%s checkpoint integrity: %s\n", PassMark, summary)
		}
	}

	return res
}
