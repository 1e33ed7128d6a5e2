package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"tgvtracker.dev/delays"
	"tgvtracker.dev/delays/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

var addr string

func init() {
	serveCmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, manager, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	manager.Metrics = delays.NewMetrics(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Not fatal: requests report the problem until the table shows up.
	manager.CheckTable(ctx, cfg.Delays.Table)

	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := server.New(server.Options{
		Manager:      manager,
		DefaultTable: cfg.Delays.Table,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Registry:     registry,
		Logger:       manager.Logger,
	})

	return srv.Run(ctx, addr)
}
