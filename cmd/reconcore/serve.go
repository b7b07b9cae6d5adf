package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hakim/reconcore/internal/checkpoint"
	"github.com/hakim/reconcore/internal/control"
	"github.com/hakim/reconcore/internal/logging"
	"github.com/hakim/reconcore/internal/pipeline"
	"github.com/hakim/reconcore/internal/registry"
	"github.com/hakim/reconcore/internal/resilience"
	"github.com/hakim/reconcore/internal/stageengine"
	"github.com/hakim/reconcore/internal/storage"
	"github.com/hakim/reconcore/internal/taskqueue"
	"github.com/hakim/reconcore/internal/triage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run reconcore as a long-running process with its control surface",
	Long: `Starts the Task Queue, the Resilience Monitor, and the REST/WebSocket
control surface together, and blocks until interrupted. Scans submitted via
'POST /scans' are driven to completion by a single worker goroutine,
pausing for network outages and resuming automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded. Run 'reconcore init' first")
		}
		webhookURL, _ := cmd.Flags().GetString("notify-webhook")

		log, err := logging.New(verbose)
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		defer log.Sync()

		store, err := storage.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer store.Close()

		checkpoints, err := checkpoint.New(cfg.CheckpointDir, store)
		if err != nil {
			return fmt.Errorf("initializing checkpoint store: %w", err)
		}

		reg, err := registry.Open(cfg.RegistryDBPath)
		if err != nil {
			return fmt.Errorf("opening tool registry: %w", err)
		}
		defer reg.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		missing, err := reg.MissingRequired(ctx)
		if err != nil {
			log.Warnw("tool registry check failed", "error", err)
		}
		for _, m := range missing {
			log.Warnw("required tool missing", "tool", m.Name, "install", m.InstallCmd)
		}

		engine := stageengine.New(store, checkpoints, reg, cfg)
		if !cfg.Triage.Disabled {
			engine.Triage = triage.New(cfg.Triage, log.Named("triage"))
		}

		notify := &pipeline.NotifyConfig{WebhookURL: webhookURL}
		queue := taskqueue.New(store, engine, notify, log.Named("taskqueue"))
		queue.Start(ctx)

		monitor := resilience.New(store, queue, cfg.Resilience, log.Named("resilience"))
		go monitor.Run(ctx)

		server := control.New(store, queue, monitor, log.Named("control"))
		httpServer := &http.Server{
			Addr:         cfg.ControlAddr,
			Handler:      server,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Infow("control surface listening", "addr", cfg.ControlAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Infow("shutting down", "signal", sig.String())
		case err := <-errCh:
			log.Errorw("control surface failed", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)

		cancel()
		queue.Shutdown()

		return nil
	},
}

func init() {
	serveCmd.Flags().String("notify-webhook", "", "optional webhook URL for scan completion notifications")
	rootCmd.AddCommand(serveCmd)
}
