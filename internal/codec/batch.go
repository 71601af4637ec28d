package codec

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EncodeBatch encodes independent inputs concurrently and returns latents in
// input order. At most workers encodes run at once; workers <= 0 means one
// per CPU. The first failure cancels the remaining work.
//
// Encode holds no mutable tower state, so the batch shares the codec's
// encoder instead of building per-worker towers.
func (c *Codec) EncodeBatch(ctx context.Context, inputs [][]float32, workers int) ([]*Latent, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]*Latent, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, pcm := range inputs {
		g.Go(func() error {
			lat, err := c.Encode(ctx, pcm)
			if err != nil {
				return fmt.Errorf("codec: batch input %d: %w", i, err)
			}

			out[i] = lat

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
