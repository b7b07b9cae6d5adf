// Package taskqueue implements the Task Queue (C6): a single-writer
// worker that admits scan requests, sequences them FIFO, and exposes
// pause/resume/stop per scan plus PauseAll/ResumeOutage, which the
// Resilience Monitor (C7) drives during an outage. Built on plain
// channels and mutex-guarded maps rather than a job-queue library —
// one in-process writer never needs more than that.
package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/pipeline"
	"github.com/hakim/reconcore/internal/stageengine"
	"github.com/hakim/reconcore/internal/storage"
)

// Engine is the minimal Stage Engine contract the queue drives a scan
// through. Satisfied by *stageengine.Engine.
type Engine interface {
	RunScan(ctx context.Context, scanID string) error
	ControlFor(scanID string) *stageengine.Control
}

// Status summarizes the queue's current occupancy, returned by
// QueueStatus().
type Status struct {
	Pending int
	Active  []string
	Paused  []string
}

// Queue is the Task Queue's single-writer worker.
type Queue struct {
	store  *storage.Store
	engine Engine
	notify *pipeline.NotifyConfig
	log    *zap.SugaredLogger

	tasks chan string

	mu         sync.Mutex
	pending    map[string]bool
	active     map[string]bool
	paused     map[string]bool
	outagePaused map[string]bool // scans this queue paused on the Resilience Monitor's behalf
	cancelled  map[string]bool

	sysPause atomic.Bool // process-wide pause gate checked before each scan runs; no code path sets it

	wg   sync.WaitGroup
	done chan struct{}
}

// New constructs a Task Queue bound to store and engine. notify may be nil
// to disable webhook completion notifications.
func New(store *storage.Store, engine Engine, notify *pipeline.NotifyConfig, log *zap.SugaredLogger) *Queue {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Queue{
		store:        store,
		engine:       engine,
		notify:       notify,
		log:          log,
		tasks:        make(chan string, 256),
		pending:      make(map[string]bool),
		active:       make(map[string]bool),
		paused:       make(map[string]bool),
		outagePaused: make(map[string]bool),
		cancelled:    make(map[string]bool),
		done:         make(chan struct{}),
	}
}

// Start launches the worker loop in the background. It returns immediately;
// call Stop or cancel ctx to shut it down.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.run(ctx)
}

// Shutdown blocks until the worker loop exits after ctx is done.
func (q *Queue) Shutdown() {
	q.wg.Wait()
}

// Add enqueues an already-persisted pending scan for execution. The scan
// row must already exist in the Artifact Store (callers create it via
// storage.CreateScan before calling Add).
func (q *Queue) Add(scanID string) {
	q.mu.Lock()
	q.pending[scanID] = true
	q.mu.Unlock()
	q.tasks <- scanID
}

// run is the worker loop: wait with a bounded timeout for an enqueued
// task, respect the process-wide pause gate after dequeuing it, then drive
// that scan to completion before accepting the next.
func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case scanID := <-q.tasks:
			q.waitWhileSystemPaused(ctx)
			if ctx.Err() != nil {
				return
			}
			q.runOne(ctx, scanID)
		case <-ticker.C:
			// No task ready; loop back to re-check ctx/pause state within a
			// bounded interval instead of blocking indefinitely on the channel.
		}
	}
}

func (q *Queue) waitWhileSystemPaused(ctx context.Context) {
	for q.sysPause.Load() {
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) runOne(ctx context.Context, scanID string) {
	q.mu.Lock()
	if q.cancelled[scanID] {
		delete(q.cancelled, scanID)
		delete(q.pending, scanID)
		q.mu.Unlock()
		return
	}
	delete(q.pending, scanID)
	q.active[scanID] = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		delete(q.active, scanID)
		delete(q.paused, scanID)
		delete(q.outagePaused, scanID)
		q.mu.Unlock()
	}()

	start := time.Now()
	err := q.engine.RunScan(ctx, scanID)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		q.log.Infow("scan completed", "scan_id", scanID, "elapsed", elapsed)
	case errors.Is(err, stageengine.ErrStopRequested):
		if merr := q.store.MarkTerminal(scanID, models.StatusFailed, "stopped by user"); merr != nil {
			q.log.Errorw("failed to record stop", "scan_id", scanID, "error", merr)
		}
		q.log.Infow("scan stopped by user", "scan_id", scanID, "elapsed", elapsed)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Process shutdown mid-scan: leave the row as-is. Its checkpoint
		// (if any stage boundary was crossed) lets a future RunScan resume.
		q.log.Warnw("scan interrupted by shutdown", "scan_id", scanID, "error", err)
		return
	default:
		q.log.Errorw("scan failed", "scan_id", scanID, "error", err, "elapsed", elapsed)
	}

	q.notifyCompletion(scanID, elapsed)
}

func (q *Queue) notifyCompletion(scanID string, elapsed time.Duration) {
	if q.notify == nil {
		return
	}
	sc, err := q.store.GetScan(scanID)
	if err != nil || sc == nil {
		return
	}
	result := &pipeline.PipelineResult{
		ScanID:      sc.ID,
		Status:      string(sc.Status),
		StagesRun:   sc.StagesRun,
		Elapsed:     elapsed,
		StageErrors: sc.StageErrors,
	}
	if t, terr := q.store.GetTarget(sc.TargetID); terr == nil && t != nil {
		result.Target = t.Domain
	}
	if nerr := q.notify.SendCompletion(result); nerr != nil {
		q.log.Warnw("completion webhook failed", "scan_id", scanID, "error", nerr)
	}
}

// Pause requests that an active scan suspend at its next stage boundary.
func (q *Queue) Pause(scanID string) error {
	q.mu.Lock()
	isActive := q.active[scanID]
	q.paused[scanID] = true
	q.mu.Unlock()
	if !isActive {
		return fmt.Errorf("taskqueue: scan %s is not active", scanID)
	}
	q.engine.ControlFor(scanID).Pause()
	return q.store.UpdateScanState(scanID, models.StatusPaused, "", nil)
}

// Resume releases a paused scan to continue.
func (q *Queue) Resume(scanID string) error {
	q.mu.Lock()
	wasPaused := q.paused[scanID]
	delete(q.paused, scanID)
	delete(q.outagePaused, scanID)
	q.mu.Unlock()
	if !wasPaused {
		return fmt.Errorf("taskqueue: scan %s is not paused", scanID)
	}
	q.engine.ControlFor(scanID).Resume()
	return q.store.UpdateScanState(scanID, models.StatusRunning, "", nil)
}

// Stop requests that a scan halt at its next boundary and not resume.
// A scan still waiting in the FIFO (never dequeued) is dropped instead.
func (q *Queue) Stop(scanID string) error {
	q.mu.Lock()
	isActive := q.active[scanID]
	isPending := q.pending[scanID]
	if isPending {
		q.cancelled[scanID] = true
	}
	q.mu.Unlock()

	if isPending && !isActive {
		return q.store.MarkTerminal(scanID, models.StatusFailed, "stopped by user")
	}
	if !isActive {
		return fmt.Errorf("taskqueue: scan %s is not running or queued", scanID)
	}
	q.engine.ControlFor(scanID).Stop()
	return nil
}

// PauseAll pauses every currently active scan — used by the Resilience
// Monitor when an outage crosses its threshold. It records which scans it
// paused so ResumeOutage can resume exactly those, not scans a user paused
// independently.
func (q *Queue) PauseAll() {
	q.mu.Lock()
	ids := make([]string, 0, len(q.active))
	for id := range q.active {
		if !q.paused[id] {
			ids = append(ids, id)
			q.outagePaused[id] = true
		}
	}
	q.mu.Unlock()

	for _, id := range ids {
		if err := q.Pause(id); err != nil {
			q.log.Warnw("outage pause failed", "scan_id", id, "error", err)
		}
	}
}

// ResumeOutage resumes every scan PauseAll suspended due to a network
// outage, leaving user-initiated pauses untouched.
func (q *Queue) ResumeOutage() {
	q.mu.Lock()
	ids := make([]string, 0, len(q.outagePaused))
	for id := range q.outagePaused {
		ids = append(ids, id)
	}
	q.mu.Unlock()

	for _, id := range ids {
		if err := q.Resume(id); err != nil {
			q.log.Warnw("outage resume failed", "scan_id", id, "error", err)
		}
	}
}

// QueueStatus reports the queue's current occupancy.
func (q *Queue) QueueStatus() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Status{Pending: len(q.pending)}
	for id := range q.active {
		st.Active = append(st.Active, id)
	}
	for id := range q.paused {
		st.Paused = append(st.Paused, id)
	}
	return st
}
