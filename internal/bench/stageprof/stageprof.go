// Package stageprof accumulates per-layer wall-clock timings across tower
// forward passes. Stage names double as pprof labels, so a CPU profile taken
// during a profiled run attributes samples to pipeline slots.
package stageprof

import (
	"context"
	"fmt"
	"io"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/example/go-seanet/internal/runtime/tensor"
	"github.com/example/go-seanet/internal/seanet"
)

// Profile holds accumulated timings keyed by stage name, in first-observed
// order.
type Profile struct {
	names  []string
	totals map[string]time.Duration
	counts map[string]int
}

func New() *Profile {
	return &Profile{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
	}
}

// Observe adds one timing sample for the named stage.
func (p *Profile) Observe(name string, d time.Duration) {
	if _, seen := p.totals[name]; !seen {
		p.names = append(p.names, name)
	}

	p.totals[name] += d
	p.counts[name]++
}

// Total returns the sum of all observed stage durations.
func (p *Profile) Total() time.Duration {
	var sum time.Duration
	for _, d := range p.totals {
		sum += d
	}

	return sum
}

// Stage holds the accumulated timing of one named stage.
type Stage struct {
	Name  string
	Total time.Duration
	Count int
}

// Stages returns all stages in first-observed order.
func (p *Profile) Stages() []Stage {
	out := make([]Stage, len(p.names))
	for i, name := range p.names {
		out[i] = Stage{Name: name, Total: p.totals[name], Count: p.counts[name]}
	}

	return out
}

// WriteTable writes a per-stage timing table with share-of-total columns.
func (p *Profile) WriteTable(w io.Writer) {
	total := p.Total()

	fmt.Fprintf(w, "%-28s  %6s  %12s  %7s\n", "Stage", "Calls", "Total(ms)", "Share")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, s := range p.Stages() {
		share := 0.0
		if total > 0 {
			share = 100 * float64(s.Total) / float64(total)
		}

		fmt.Fprintf(w, "%-28s  %6d  %12.2f  %6.2f%%\n",
			s.Name, s.Count, s.Total.Seconds()*1000, share)
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "%-28s  %6s  %12.2f\n", "total", "", total.Seconds()*1000)
}

// RunTower applies the tower's layers one at a time, timing each under a
// pprof stage label and recording the result into p. The output equals the
// tower's own Forward of the same input.
func RunTower(ctx context.Context, infos []seanet.LayerInfo, layers []seanet.Layer, x *tensor.Tensor, p *Profile) (*tensor.Tensor, error) {
	if len(infos) != len(layers) {
		return nil, fmt.Errorf("stageprof: %d layer infos for %d layers", len(infos), len(layers))
	}

	for i, l := range layers {
		name := stageName(infos[i])

		var err error

		pprof.Do(ctx, pprof.Labels("stage", name), func(context.Context) {
			start := time.Now()
			x, err = l.Forward(x)
			p.Observe(name, time.Since(start))
		})

		if err != nil {
			return nil, fmt.Errorf("stageprof: stage %s: %w", name, err)
		}
	}

	return x, nil
}

func stageName(info seanet.LayerInfo) string {
	kind := info.Kind
	if info.Detail != "" {
		kind = kind + "/" + info.Detail
	}

	switch info.Kind {
	case "conv", "convtr":
		return fmt.Sprintf("%02d:%s %dx%d k%d s%d", info.Index, kind, info.InChannels, info.OutChannels, info.Kernel, info.Stride)
	case "resblock":
		return fmt.Sprintf("%02d:%s %dch d%d", info.Index, kind, info.InChannels, info.Dilation)
	default:
		return fmt.Sprintf("%02d:%s", info.Index, kind)
	}
}
