package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/pipecache/config"
	"github.com/jonwraymond/pipecache/server"
)

func newServeCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured mounts",
		Long: `Serve loads the configuration, opens stores and databases and serves
every mount until SIGINT or SIGTERM, then shuts down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if cfg.Observe.Version == "" {
				cfg.Observe.Version = version
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg)
			if err != nil {
				return err
			}
			runErr := srv.Run(ctx)
			if err := srv.Close(context.WithoutCancel(ctx)); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "pipecache.yaml", "configuration file")
	return cmd
}
