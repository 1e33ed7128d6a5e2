package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tgvtracker.dev/delays"
	"tgvtracker.dev/delays/model"
)

var delaysCmd = &cobra.Command{
	Use:   "delays",
	Short: "Lists stations by average departure delay",
	Args:  cobra.NoArgs,
	RunE:  averageDelays,
}

var (
	limit int
	order string
)

func init() {
	delaysCmd.Flags().IntVarP(&limit, "limit", "l", delays.DefaultLimit, "Number of stations to list")
	delaysCmd.Flags().StringVarP(&order, "order", "o", "asc", "Sort order (asc or desc)")
	rootCmd.AddCommand(delaysCmd)
}

func averageDelays(cmd *cobra.Command, args []string) error {
	if err := delays.ValidateLimit(limit); err != nil {
		return err
	}
	o, err := model.ParseOrder(order)
	if err != nil {
		return err
	}

	cfg, manager, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	result, err := manager.AverageDelayByStation(ctx, cfg.Delays.Table, limit, o)
	if err != nil {
		return err
	}

	fmt.Println(result.Description)
	if result.Message != "" {
		fmt.Println(result.Message)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, s := range result.Data {
		fmt.Fprintf(w, "%d\t%s\t%.2f\n", i+1, s.Station, s.MeanDelay)
	}
	return w.Flush()
}
