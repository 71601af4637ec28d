package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-seanet/internal/metrics"
	"github.com/example/go-seanet/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the codec HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			c, err := newCodec(cfg, false)
			if err != nil {
				return err
			}

			srv := server.New(cfg, c, metrics.New()).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	return cmd
}
