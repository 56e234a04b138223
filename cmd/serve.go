package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/xhad/autofill/internal/types"
	"github.com/xhad/autofill/server"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the crawl API and websocket progress stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var history types.History
			if a.history != nil {
				history = a.history
			}
			srv := server.New(a.builder, history, server.Config{
				RateLimit: cfg.Server.RateLimit,
				Burst:     cfg.Server.Burst,
			}, slog.Default())
			return srv.ListenAndServe(ctx, cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
