package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jurni-app/planner/observability"
	"github.com/jurni-app/planner/orchestrator"
	"github.com/jurni-app/planner/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the planner API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			logger := root.logger()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			minLevel := observability.LevelInfo
			if root.verbose {
				minLevel = observability.LevelVerbose
			}
			observer := observability.Fanout(
				observability.NewSlogObserver(logger, observability.WithMinLevel(minLevel)),
				observability.NewPrometheusObserver(reg, "planner"),
			)

			orch, err := orchestrator.New(&cfg.Orchestrator, orchestrator.WithObserver(observer))
			if err != nil {
				return fmt.Errorf("failed to create orchestrator: %w", err)
			}
			defer orch.Close()

			srv, err := server.New(cfg, orch,
				server.WithMetricsRegistry(reg),
				server.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
