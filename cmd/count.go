package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Counts rows and unique stations in the delay table",
	Args:  cobra.NoArgs,
	RunE:  count,
}

func init() {
	rootCmd.AddCommand(countCmd)
}

func count(cmd *cobra.Command, args []string) error {
	cfg, manager, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	rows, err := manager.CountRows(ctx, cfg.Delays.Table)
	if err != nil {
		return err
	}

	stations, err := manager.UniqueStations(ctx, cfg.Delays.Table)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d rows, %d %s stations\n", cfg.Delays.Table, rows, stations.UniqueStations, stations.ServiceFilter)
	return nil
}
