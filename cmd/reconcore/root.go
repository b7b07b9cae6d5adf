package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hakim/reconcore/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reconcore",
	Short: "Checkpointed recon scan orchestration engine",
	Long: `reconcore drives a fixed nine-stage reconnaissance pipeline —
subdomain enumeration through nuclei scanning — against one or more
targets, checkpointing after every stage so a crashed or paused scan
resumes without repeating finished work.

It exposes the same capability both as a one-shot CLI and, via 'serve',
as a long-running process fronted by a REST and WebSocket control
surface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		skipConfig := map[string]bool{
			"check":   true,
			"init":    true,
			"help":    true,
			"version": true,
		}
		if skipConfig[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "reconcore.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
