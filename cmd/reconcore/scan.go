package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hakim/reconcore/internal/checkpoint"
	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/pipeline"
	"github.com/hakim/reconcore/internal/registry"
	"github.com/hakim/reconcore/internal/stageengine"
	"github.com/hakim/reconcore/internal/storage"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run and control scans",
}

var scanRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the nine-stage scan DAG against a target, blocking until it finishes",
	Long: `Runs the full stage DAG in this process, synchronously, against an
already-registered target. Unlike 'reconcore serve', there is no control
surface to pause or resume this scan from another process. Every invocation
creates a new scan; a run interrupted with Ctrl-C is not resumed by a later
'scan run'.

Examples:
  reconcore scan run --target-id t_abc123
  reconcore scan run --target-id t_abc123 --preset quick-recon
  reconcore scan run --target-id t_abc123 --profile aggressive --skip fuzzing,nuclei_scan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded. Run 'reconcore init' first")
		}
		targetID, _ := cmd.Flags().GetString("target-id")
		profileFlag, _ := cmd.Flags().GetString("profile")
		skipFlag, _ := cmd.Flags().GetString("skip")
		stopOnError, _ := cmd.Flags().GetBool("stop-on-error")
		presetName, _ := cmd.Flags().GetString("preset")

		if targetID == "" {
			return fmt.Errorf("--target-id is required")
		}

		profile := models.Profile(profileFlag)
		skip := splitCSV(skipFlag)

		if presetName != "" {
			preset, err := pipeline.GetPreset(presetName)
			if err != nil {
				return err
			}
			fmt.Printf("[*] Using preset: %s — %s\n", preset.Name, preset.Description)
			if profileFlag == "" {
				profile = models.Profile(preset.Profile)
			}
			if skipFlag == "" {
				skip = preset.Skip
			}
			if !cmd.Flags().Changed("stop-on-error") {
				stopOnError = preset.StopOnError
			}
		}
		if profile == "" {
			profile = cfg.DefaultProfile
		}

		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		target, err := store.GetTarget(targetID)
		if err != nil {
			return fmt.Errorf("looking up target: %w", err)
		}
		if target == nil {
			return fmt.Errorf("no target with id %s — run 'reconcore target create' first", targetID)
		}

		checkpoints, err := checkpoint.New(cfg.CheckpointDir, store)
		if err != nil {
			return fmt.Errorf("initializing checkpoint store: %w", err)
		}

		reg, err := registry.Open(cfg.RegistryDBPath)
		if err != nil {
			return fmt.Errorf("opening tool registry: %w", err)
		}
		defer reg.Close()

		sc := models.NewScan(targetID, profile)
		sc.StopOnError = stopOnError
		sc.SkipStages = skip
		if err := store.CreateScan(sc); err != nil {
			return fmt.Errorf("creating scan: %w", err)
		}

		fmt.Printf("[*] Starting scan %s for %s (profile=%s)\n", sc.ID, target.Domain, sc.Profile)

		engine := stageengine.New(store, checkpoints, reg, cfg)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := engine.RunScan(ctx, sc.ID); err != nil {
			return fmt.Errorf("scan %s did not complete: %w", sc.ID, err)
		}

		fmt.Printf("[*] Scan %s completed\n", sc.ID)
		return nil
	},
}

func controlRequest(method, path string, body any) (*http.Response, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded. Run 'reconcore init' first")
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	url := fmt.Sprintf("http://%s%s", cfg.ControlAddr, path)
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func scanControlAction(scanID, action string) error {
	resp, err := controlRequest(http.MethodPost, fmt.Sprintf("/scans/%s/%s", scanID, action), nil)
	if err != nil {
		return fmt.Errorf("contacting control surface at %s: %w", cfg.ControlAddr, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("control surface returned %d: %s", resp.StatusCode, string(body))
	}
	fmt.Println(string(body))
	return nil
}

var scanPauseCmd = &cobra.Command{
	Use:   "pause [scan-id]",
	Short: "Pause a running scan via the control surface",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return scanControlAction(args[0], "pause") },
}

var scanResumeCmd = &cobra.Command{
	Use:   "resume [scan-id]",
	Short: "Resume a paused scan via the control surface",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return scanControlAction(args[0], "resume") },
}

var scanStopCmd = &cobra.Command{
	Use:   "stop [scan-id]",
	Short: "Stop a scan via the control surface",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return scanControlAction(args[0], "stop") },
}

var scanStatusCmd = &cobra.Command{
	Use:   "status [scan-id]",
	Short: "Show a scan's current status via the control surface",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := controlRequest(http.MethodGet, fmt.Sprintf("/scans/%s", args[0]), nil)
		if err != nil {
			return fmt.Errorf("contacting control surface at %s: %w", cfg.ControlAddr, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	scanRunCmd.Flags().String("target-id", "", "target to scan (required)")
	scanRunCmd.Flags().String("profile", "", "stealth|normal|aggressive (default: config default_profile)")
	scanRunCmd.Flags().String("skip", "", "comma-separated stage names to skip")
	scanRunCmd.Flags().Bool("stop-on-error", false, "fail the whole scan on the first absorbed stage error")
	scanRunCmd.Flags().String("preset", "", "named preset: bug-bounty, quick-recon, internal-pentest")
	scanRunCmd.MarkFlagRequired("target-id")

	scanCmd.AddCommand(scanRunCmd, scanPauseCmd, scanResumeCmd, scanStopCmd, scanStatusCmd)
	rootCmd.AddCommand(scanCmd)
}
