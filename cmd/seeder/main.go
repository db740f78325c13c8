//cmd/seeder/main.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unclebandit/warmup-engine/internal/config"
	"github.com/unclebandit/warmup-engine/internal/db"
)

var (
	cfgFile string
	seedDir string
)

func main() {
	root := &cobra.Command{
		Use:           "warmup-seeder",
		Short:         "Load demo sessions, contacts and a campaign into the database",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	root.Flags().StringVar(&seedDir, "dir", "seed", "directory holding the seed files")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	conn, err := db.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	// campaigns.sql references rows from the first two files
	seedFiles := []string{
		"sessions.sql",
		"contacts.sql",
		"campaigns.sql",
	}

	for _, name := range seedFiles {
		file := filepath.Join(seedDir, name)
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}

		if _, err := conn.ExecContext(cmd.Context(), string(content)); err != nil {
			return fmt.Errorf("execute %s: %w", file, err)
		}
		logger.Info("seeded", zap.String("file", file))
	}

	logger.Info("database seeding completed")
	return nil
}
