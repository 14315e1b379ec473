package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/postern-ai/postern/internal/config"
	"github.com/postern-ai/postern/internal/server"
)

func main() {
	var (
		cfgFile string
		dataDir string
	)

	rootCmd := &cobra.Command{
		Use:   "posternd",
		Short: "Postern daemon — secure Gmail/Calendar wrapper for autonomous agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := zerolog.New(
				zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
			).With().Timestamp().Logger()

			layout := config.ResolveLayout(dataDir)
			if cfgFile != "" {
				layout.ConfigPath = cfgFile
			}

			cfg, err := config.Load(layout.ConfigPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("validate config: %w", err)
			}

			d := server.NewDaemon(cfg, layout, logger)
			return d.Run()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.local/share/postern)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
