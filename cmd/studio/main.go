package main

import (
	"fmt"
	"os"

	"github.com/reelsmith/studio/internal/config"
	"github.com/reelsmith/studio/internal/db"
	"github.com/reelsmith/studio/internal/logging"
	"github.com/spf13/cobra"
)

var Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "studio",
	Short:         "Reelsmith studio generation service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, checkChainCmd, doctorCmd)
}

// openDatabase loads config and opens the studio database for the one-shot
// commands. Logging stays at warn so command output is not drowned.
func openDatabase() (*config.EnvConfig, *db.DB, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	database, err := db.New(cfg.DBPath(), logging.NewLogger("warn"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return cfg, database, nil
}
