package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/agent-factory/internal/server"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  `Start an HTTP server that exposes job runs, stage execution and stored results.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := server.Config{
				Port:      a.cfg.Server.Port,
				RateLimit: a.cfg.Server.RateLimit,
				RateBurst: a.cfg.Server.RateBurst,
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return server.New(a.orch, a.store, cfg, a.logger).ListenAndServe(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	return cmd
}
