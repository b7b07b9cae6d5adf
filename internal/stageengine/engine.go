// Package stageengine is the Stage Engine (C5): it drives the fixed
// 9-stage scan DAG end to end, checkpointing after every stage boundary
// and honoring pause/stop requests between stages, against
// models.StageOrder, the Artifact Store's relational Scan row, and the
// Checkpoint Store.
package stageengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hakim/reconcore/internal/checkpoint"
	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/registry"
	"github.com/hakim/reconcore/internal/storage"
	"github.com/hakim/reconcore/internal/triage"
)

// stageOrder returns the canonical stage name list as plain strings.
func stageOrder() []string {
	names := make([]string, len(models.StageOrder))
	for i, n := range models.StageOrder {
		names[i] = string(n)
	}
	return names
}

// StageFunc runs one stage of the DAG. cache holds every prior stage's
// JSON-encoded summary, keyed by stage name, so a later stage can recover
// an earlier stage's results without re-querying the store. It returns the
// JSON summary to merge into cache under this stage's own name.
type StageFunc func(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error)

// StageContext is everything a stage function needs about the scan it is
// running within.
type StageContext struct {
	ScanID   string
	TargetID string
	Domain   string
	Profile  config.StageProfile
	Cache    map[string]json.RawMessage
}

// Engine wires the Artifact Store, Checkpoint Store, and Tool Registry
// together and drives stage execution.
type Engine struct {
	Store       *storage.Store
	Checkpoints *checkpoint.Store
	Registry    *registry.Registry
	Config      *config.Config

	// Triage is the LLM Triage Adapter (C8), consulted best-effort by the
	// nuclei_scan stage. Nil disables triage entirely — the stage still
	// runs and still records findings, just without a second-pass review.
	Triage *triage.Adapter

	mu       sync.Mutex
	controls map[string]*Control
}

// New constructs an Engine from its three backing components plus config.
func New(store *storage.Store, checkpoints *checkpoint.Store, reg *registry.Registry, cfg *config.Config) *Engine {
	return &Engine{
		Store:       store,
		Checkpoints: checkpoints,
		Registry:    reg,
		Config:      cfg,
		controls:    make(map[string]*Control),
	}
}

// Control lets a caller (the Task Queue) pause, resume, or stop a scan
// that is currently executing. A pause/stop request is only honored at a
// stage boundary — stages themselves are not interruptible mid-flight.
type Control struct {
	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
	stopped  atomic.Bool
}

// NewControl returns a Control in the running state.
func NewControl() *Control {
	return &Control{resumeCh: make(chan struct{})}
}

// Pause requests that the scan suspend before its next stage.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume releases a paused scan to continue with its next stage.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		close(c.resumeCh)
		c.resumeCh = make(chan struct{})
	}
}

// Stop requests the scan halt before its next stage and not resume.
func (c *Control) Stop() {
	c.stopped.Store(true)
	c.Resume()
}

func (c *Control) isStopped() bool {
	return c.stopped.Load()
}

// waitIfPaused blocks the caller until Resume or Stop is called, or ctx is
// canceled, whichever comes first. A wake caused by Stop is reported as
// ErrStopRequested, not success — Stop() unblocks a paused waiter by
// calling Resume() internally, so the unblock alone can't tell the two
// apart; isStopped() is what distinguishes them.
func (c *Control) waitIfPaused(ctx context.Context) error {
	for {
		c.mu.Lock()
		paused := c.paused
		ch := c.resumeCh
		c.mu.Unlock()
		if c.isStopped() {
			return ErrStopRequested
		}
		if !paused {
			return ctx.Err()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// controlFor returns the Control registered for scanID, creating a fresh
// running one if none exists yet.
func (e *Engine) controlFor(scanID string) *Control {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.controls[scanID]
	if !ok {
		c = NewControl()
		e.controls[scanID] = c
	}
	return c
}

// ControlFor exposes the Control for scanID to external callers (the Task
// Queue) so they can Pause/Resume/Stop a scan already in flight.
func (e *Engine) ControlFor(scanID string) *Control {
	return e.controlFor(scanID)
}

var stageFuncs = map[string]StageFunc{
	"subdomain_enum": runSubdomainEnum,
	"dns_resolution": runDNSResolution,
	"http_probe":     runHTTPProbeStage,
	"port_scan":      runPortScanStage,
	"wayback_urls":   runWaybackStage,
	"js_analysis":    runJSAnalysisStage,
	"gf_patterns":    runGFPatternsStage,
	"fuzzing":        runFuzzingStage,
	"nuclei_scan":    runNucleiStage,
}

// RunScan drives scanID through every remaining stage of models.StageOrder,
// in order, persisting a checkpoint after each one. It resumes from the
// first stage not already recorded in the scan's checkpoint, or from
// stage 0 if there is no usable checkpoint (none saved, or digest
// mismatch — ErrCheckpointCorrupt forces a restart from the top rather
// than trusting a tampered or truncated payload).
func (e *Engine) RunScan(ctx context.Context, scanID string) error {
	scan, err := e.Store.GetScan(scanID)
	if err != nil {
		return fmt.Errorf("stageengine: loading scan %s: %w", scanID, err)
	}
	if scan == nil {
		return fmt.Errorf("stageengine: scan %s not found", scanID)
	}

	target, err := e.Store.GetTarget(scan.TargetID)
	if err != nil {
		return fmt.Errorf("stageengine: loading target %s: %w", scan.TargetID, err)
	}
	if target == nil {
		return fmt.Errorf("stageengine: target %s not found", scan.TargetID)
	}

	ctl := e.controlFor(scanID)

	// ── 1. Resolve resume position from the checkpoint, if any ──────────────
	startIdx := 0
	cache := make(map[string]json.RawMessage)
	var completed []string

	cp, err := e.Checkpoints.Load(scanID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCorrupt) {
			fmt.Printf("[!] Checkpoint for scan %s is corrupt — restarting from stage 0\n", scanID)
		} else {
			return fmt.Errorf("%w: %v", ErrCheckpointCorrupt, err)
		}
	} else if cp != nil {
		completed = cp.CompletedModules
		cache = cp.ResultsCache
		if cache == nil {
			cache = make(map[string]json.RawMessage)
		}
		startIdx = 0
		for _, name := range completed {
			if idx := stageIndexOf(name); idx+1 > startIdx {
				startIdx = idx + 1
			}
		}
		scan.Resumed = true
		fmt.Printf("[*] Resuming scan %s at stage %d/%d (%d stages already complete)\n",
			scanID, startIdx, len(stageOrder()), len(completed))
	}

	if err := e.Store.MarkStarted(scanID); err != nil {
		fmt.Printf("[!] Warning: could not mark scan %s started: %v\n", scanID, err)
	}
	if err := e.Store.UpdateScanState(scanID, models.StatusRunning, "", scan.Progress); err != nil {
		fmt.Printf("[!] Warning: could not update scan %s to running: %v\n", scanID, err)
	}

	profile := e.Config.Profiles.Resolve(scan.Profile)

	// ── 2. Execute remaining stages in canonical order ───────────────────────
	names := stageOrder()
	for i := startIdx; i < len(names); i++ {
		name := names[i]

		if ctl.isStopped() {
			fmt.Printf("[!] Scan %s stopped before stage %q\n", scanID, name)
			return ErrStopRequested
		}
		if err := ctl.waitIfPaused(ctx); err != nil {
			if errors.Is(err, ErrStopRequested) {
				fmt.Printf("[!] Scan %s stopped while paused before stage %q\n", scanID, name)
				return ErrStopRequested
			}
			return fmt.Errorf("stageengine: scan %s interrupted while paused: %w", scanID, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if isSkipped(name, scan.SkipStages) {
			fmt.Printf("[*] Skipping stage %q (%d/%d) — excluded by scan config\n", name, i+1, len(names))
			cache[name] = json.RawMessage(`{}`)
			completed = append(completed, name)
			if err := e.Store.AppendStageRun(scanID, name); err != nil {
				fmt.Printf("[!] Warning: could not record stage %q for scan %s: %v\n", name, scanID, err)
			}
			scan.Progress[name] = 100
			if err := e.Store.UpdateScanState(scanID, models.StatusRunning, name, scan.Progress); err != nil {
				fmt.Printf("[!] Warning: could not update progress for scan %s: %v\n", scanID, err)
			}
			var pending []string
			if i+1 < len(names) {
				pending = append(pending, names[i+1:]...)
			}
			if _, err := e.Checkpoints.Save(scanID, name, completed, pending, cache, nil); err != nil {
				fmt.Printf("[!] Warning: could not save checkpoint after stage %q: %v\n", name, err)
			}
			continue
		}

		stageFn, ok := stageFuncs[name]
		if !ok {
			return fmt.Errorf("stageengine: no implementation registered for stage %q", name)
		}

		sctx := &StageContext{
			ScanID:   scanID,
			TargetID: target.ID,
			Domain:   target.Domain,
			Profile:  profile,
			Cache:    cache,
		}

		fmt.Printf("[*] Running stage %q (%d/%d)\n", name, i+1, len(names))
		stageStart := time.Now()

		summary, stageErr := runStageIsolated(ctx, stageFn, e, sctx)
		elapsed := time.Since(stageStart)

		if stageErr != nil {
			// StopRequested and StoreWriteFailure are always fatal to the
			// scan — the former aborts the loop immediately, the latter
			// bubbles to the Task Queue worker. Every other error kind
			// (ToolSpawnFailed, StageException, ...) is absorbed unless the
			// scan opted into stop_on_error.
			if errors.Is(stageErr, ErrStopRequested) {
				fmt.Printf("[!] Scan %s stopped during stage %q\n", scanID, name)
				return stageErr
			}
			fatal := errors.Is(stageErr, ErrStoreWriteFailure) || scan.StopOnError
			if fatal {
				fmt.Printf("[!] Stage %q failed after %s: %v\n", name, elapsed.Round(time.Millisecond), stageErr)
				if err := e.Store.MarkTerminal(scanID, models.StatusFailed, stageErr.Error()); err != nil {
					fmt.Printf("[!] Warning: could not mark scan %s failed: %v\n", scanID, err)
				}
				return stageErr
			}

			fmt.Printf("[!] Stage %q failed after %s (absorbed, continuing): %v\n", name, elapsed.Round(time.Millisecond), stageErr)
			if err := e.Store.RecordStageError(scanID, name, stageErr.Error()); err != nil {
				fmt.Printf("[!] Warning: could not record stage error for scan %s: %v\n", scanID, err)
			}
			summary = json.RawMessage(`{}`)
		}

		cache[name] = summary
		completed = append(completed, name)
		fmt.Printf("[+] Stage %q complete (%s)\n", name, elapsed.Round(time.Millisecond))

		if err := e.Store.AppendStageRun(scanID, name); err != nil {
			fmt.Printf("[!] Warning: could not record stage %q for scan %s: %v\n", name, scanID, err)
		}

		scan.Progress[name] = 100
		if err := e.Store.UpdateScanState(scanID, models.StatusRunning, name, scan.Progress); err != nil {
			fmt.Printf("[!] Warning: could not update progress for scan %s: %v\n", scanID, err)
		}

		var pending []string
		if i+1 < len(names) {
			pending = append(pending, names[i+1:]...)
		}
		if _, err := e.Checkpoints.Save(scanID, name, completed, pending, cache, nil); err != nil {
			fmt.Printf("[!] Warning: could not save checkpoint after stage %q: %v\n", name, err)
		}
	}

	if err := e.Store.MarkTerminal(scanID, models.StatusCompleted, ""); err != nil {
		fmt.Printf("[!] Warning: could not mark scan %s completed: %v\n", scanID, err)
	}
	if err := e.Checkpoints.Clear(scanID); err != nil {
		fmt.Printf("[!] Warning: could not clear checkpoint for scan %s: %v\n", scanID, err)
	}

	fmt.Printf("[+] Scan %s complete\n", scanID)
	return nil
}

// runStageIsolated wraps a stage invocation in a deferred recover so a
// panicking stage is reported as an error rather than crashing the engine.
func runStageIsolated(ctx context.Context, fn StageFunc, e *Engine, sc *StageContext) (result json.RawMessage, retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("%w: stage panicked: %v", ErrStageException, r)
		}
	}()
	return fn(ctx, e, sc)
}

func isSkipped(name string, skip []string) bool {
	for _, s := range skip {
		if s == name {
			return true
		}
	}
	return false
}

func stageIndexOf(name string) int {
	for i, n := range stageOrder() {
		if n == name {
			return i
		}
	}
	return -1
}
