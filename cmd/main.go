package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tgvtracker.dev/delays"
	"tgvtracker.dev/delays/config"
	"tgvtracker.dev/delays/internal/logging"
	"tgvtracker.dev/delays/storage"
)

var rootCmd = &cobra.Command{
	Use:          "tgv",
	Short:        "TGV Tracker",
	Long:         "Serves and queries TGV departure delay statistics",
	SilenceUsage: true,
}

var (
	configPath string
	backend    string
	tableName  string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&backend, "backend", "b", "", "Storage backend (rest, postgres, sqlite, memory)")
	rootCmd.PersistentFlags().StringVarP(&tableName, "table", "t", "", "Delay table name")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Loads config, letting persistent flags override file and
// environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}
	if tableName != "" {
		cfg.Delays.Table = tableName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, nil, fmt.Errorf("setting up logging: %w", err)
	}
	return logger, closer, nil
}

// Config, logger and a Manager over the configured storage. The
// returned func releases storage and log file.
func setup() (*config.Config, *delays.Manager, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, closer, err := buildLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	s, err := cfg.OpenStorage(logger)
	if err != nil {
		closer.Close()
		return nil, nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	manager := newManager(cfg, s, logger)

	cleanup := func() {
		s.Close()
		closer.Close()
	}

	return cfg, manager, cleanup, nil
}

func newManager(cfg *config.Config, s storage.Storage, logger *slog.Logger) *delays.Manager {
	manager := delays.NewManager(s)
	manager.Columns = cfg.Delays.Columns
	manager.ServiceFilter = cfg.Delays.Service
	manager.Logger = logger
	return manager
}
