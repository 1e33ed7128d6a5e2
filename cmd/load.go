package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tgvtracker.dev/delays/parse"
	"tgvtracker.dev/delays/storage"
)

var loadCmd = &cobra.Command{
	Use:   "load <file.csv>",
	Short: "Loads a delay CSV export into the configured table",
	Args:  cobra.ExactArgs(1),
	RunE:  load,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func load(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := cfg.OpenStorage(logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer s.Close()

	ws, ok := s.(storage.WritableStorage)
	if !ok {
		return fmt.Errorf("backend '%s' is read-only", cfg.Storage.Backend)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening %s: %w", args[0], err)
	}
	defer f.Close()

	writer, err := ws.Writer(cfg.Delays.Table)
	if err != nil {
		return fmt.Errorf("getting writer: %w", err)
	}

	n, err := parse.ParseDelays(writer, f)
	if err != nil {
		return fmt.Errorf("loading %s: %w", args[0], err)
	}

	logger.Info("loaded delay records", "table", cfg.Delays.Table, "rows", n, "file", args[0])
	return nil
}
