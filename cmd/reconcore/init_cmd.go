package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/storage"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize reconcore with default configuration",
	Long: `Creates a default configuration file (reconcore.yaml), the
working-directory layout (data/, logs/, reports/, wordlists/), and the
Artifact Store database.

This is typically the first command you run when setting up reconcore.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := "reconcore.yaml"
		if initDir != "." {
			configPath = filepath.Join(initDir, "reconcore.yaml")
		}

		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s. Use --force to overwrite", configPath)
		}

		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		fmt.Printf("Created %s with default configuration\n", configPath)

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		for _, dir := range []string{loaded.ScanDir, loaded.CheckpointDir, "logs", "reports", "wordlists"} {
			if err := storage.EnsureDir(dir); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			fmt.Printf("Created directory: %s\n", dir)
		}

		store, err := storage.Open(loaded.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()
		fmt.Printf("Initialized database: %s\n", loaded.DBPath)

		fmt.Println()
		fmt.Println("reconcore initialized successfully!")
		fmt.Println("Run 'reconcore check' to verify your tools.")

		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "output directory")
	rootCmd.AddCommand(initCmd)
}
