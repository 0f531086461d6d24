package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/ritza-co/bryntum-backend-guides/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "crudsync",
	Short: "Load and sync server for scheduling and grid clients",
	Long: `crudsync serves one backend (calendar, gantt, grid, scheduler,
schedulerpro or taskboard) over HTTP. Settings come from the environment,
optionally layered over a YAML file given with --config.

Run 'crudsync env' to list the environment variables.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file; environment variables override it")
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (config.Config, logr.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, logr.Discard(), err
	}
	stdr.SetVerbosity(cfg.LogVerbosity)
	return cfg, stdr.New(log.Default()), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
