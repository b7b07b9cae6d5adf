package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/pipeline"
	"github.com/hakim/reconcore/internal/storage"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Manage scan targets",
}

var targetCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new scan target",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded. Run 'reconcore init' first")
		}
		name, _ := cmd.Flags().GetString("name")
		domain, _ := cmd.Flags().GetString("domain")
		include, _ := cmd.Flags().GetString("include")
		exclude, _ := cmd.Flags().GetString("exclude")
		ipRanges, _ := cmd.Flags().GetString("ip-ranges")

		if domain == "" {
			return fmt.Errorf("--domain is required")
		}
		if name == "" {
			name = domain
		}

		t := models.NewTarget(name, domain)
		t.Include = splitCSV(include)
		t.Exclude = splitCSV(exclude)
		t.IPRanges = splitCSV(ipRanges)

		scope := pipeline.ScopeFor(t)
		if err := scope.ValidateHost(t, t.Domain); err != nil {
			return err
		}

		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		if err := store.CreateTarget(t); err != nil {
			return fmt.Errorf("creating target: %w", err)
		}

		fmt.Printf("Created target %s (%s)\n", t.ID, t.Domain)
		return nil
	},
}

var targetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded. Run 'reconcore init' first")
		}
		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		targets, err := store.ListTargets()
		if err != nil {
			return fmt.Errorf("listing targets: %w", err)
		}
		if len(targets) == 0 {
			fmt.Println("No targets registered")
			return nil
		}
		for _, t := range targets {
			fmt.Printf("%s  %-30s  created %s\n", t.ID, t.Domain, t.CreatedAt.UTC().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// splitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty entries. Returns nil for an empty input.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	targetCreateCmd.Flags().String("name", "", "display name (defaults to domain)")
	targetCreateCmd.Flags().String("domain", "", "apex domain (required)")
	targetCreateCmd.Flags().String("include", "", "comma-separated include patterns, e.g. *.example.com")
	targetCreateCmd.Flags().String("exclude", "", "comma-separated exclude patterns")
	targetCreateCmd.Flags().String("ip-ranges", "", "comma-separated CIDR ranges")
	targetCreateCmd.MarkFlagRequired("domain")

	targetCmd.AddCommand(targetCreateCmd)
	targetCmd.AddCommand(targetListCmd)
	rootCmd.AddCommand(targetCmd)
}
