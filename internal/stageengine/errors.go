package stageengine

import (
	"errors"
	"fmt"

	"github.com/hakim/reconcore/internal/supervisor"
)

// The stage engine's error taxonomy. A stage function returns one of
// these (wrapped with fmt.Errorf("...: %w", ...) for context) so the
// engine's run loop and the Control Surface above it can branch on
// errors.Is without parsing strings.
var (
	// ErrTransientNetwork marks a transient network failure — e.g. a DNS
	// timeout. No stage returns it today and the run loop has no retry for
	// it: like any other stage error it is absorbed or, with stop_on_error,
	// fails the scan. Network outages are handled by the Resilience
	// Monitor pausing active scans.
	ErrTransientNetwork = errors.New("stageengine: transient network error")

	// ErrToolSpawnFailed means the external binary could not be started at
	// all (missing binary, permission denied).
	ErrToolSpawnFailed = errors.New("stageengine: tool spawn failed")

	// ErrToolExitNonZero means the binary ran but returned a non-zero exit
	// code.
	ErrToolExitNonZero = errors.New("stageengine: tool exited non-zero")

	// ErrToolTimeout means the binary did not finish within its configured
	// timeout and was killed.
	ErrToolTimeout = errors.New("stageengine: tool timed out")

	// ErrCheckpointCorrupt surfaces the Checkpoint Store's digest mismatch
	// signal so the run loop can restart the scan from stage 0.
	ErrCheckpointCorrupt = errors.New("stageengine: checkpoint corrupt")

	// ErrStageException wraps a panic recovered inside a stage function.
	ErrStageException = errors.New("stageengine: stage raised an exception")

	// ErrStopRequested is returned when Stop was called on a running scan.
	// It is not recorded as a stage error; the Task Queue marks the scan
	// failed with the message "stopped by user".
	ErrStopRequested = errors.New("stageengine: stop requested")

	// ErrStoreWriteFailure wraps an Artifact Store write error encountered
	// mid-stage.
	ErrStoreWriteFailure = errors.New("stageengine: artifact store write failed")
)

// classifyToolError maps a tool-invocation failure onto the stage engine's
// own taxonomy, unwrapping the Process Supervisor's sentinels (errors.Is
// sees through the %w chain every tools.* wrapper preserves) so a timed-out
// nuclei run is recorded as ErrToolTimeout rather than a generic spawn
// failure, and a user-requested stop during the subprocess is not recorded
// as a stage failure at all.
func classifyToolError(stage string, err error) error {
	switch {
	case errors.Is(err, supervisor.ErrStopped):
		return ErrStopRequested
	case errors.Is(err, supervisor.ErrTimeout):
		return fmt.Errorf("%w: %s: %v", ErrToolTimeout, stage, err)
	case errors.Is(err, supervisor.ErrSpawnFailed):
		return fmt.Errorf("%w: %s: %v", ErrToolSpawnFailed, stage, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrToolExitNonZero, stage, err)
	}
}
