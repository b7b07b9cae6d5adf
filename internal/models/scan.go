package models

import "time"

// Scan is a single execution of the stage DAG against one target.
type Scan struct {
	ID             string            `json:"id"`
	TargetID       string            `json:"target_id"`
	Profile        Profile           `json:"profile"`
	Status         ScanStatus        `json:"status"`
	Progress       map[string]int    `json:"progress"`
	CurrentStage   string            `json:"current_stage,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Resumed        bool              `json:"resumed"`
	CreatedAt      time.Time         `json:"created_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CheckpointData []byte            `json:"-"`
	StagesRun      []string          `json:"stages_run,omitempty"`
	ToolVersions   map[string]string `json:"tool_versions,omitempty"`

	// StopOnError gates how a stage error is handled: when false (the
	// default), a stage that returns an error not in {StoreWriteFailure,
	// StopRequested} is logged and absorbed, and the engine proceeds to
	// the next stage; when true, the same error fails the scan outright.
	StopOnError bool `json:"stop_on_error"`

	// SkipStages names stages to bypass entirely, as a closed list rather
	// than ad hoc slicing. A skipped stage is recorded in StagesRun with
	// an empty result so checkpoint resume still advances past it.
	SkipStages []string `json:"skip_stages,omitempty"`

	// StageErrors records the absorbed error text for any stage that failed
	// but did not halt the scan (stop_on_error=false), keyed by stage name.
	StageErrors map[string]string `json:"stage_errors,omitempty"`
}

// NewScan creates a pending scan for target with the given profile.
func NewScan(targetID string, profile Profile) *Scan {
	if profile == "" {
		profile = ProfileNormal
	}
	return &Scan{
		ID:          newID(),
		TargetID:    targetID,
		Profile:     profile,
		Status:      StatusPending,
		Progress:    make(map[string]int),
		CreatedAt:   now(),
		StageErrors: make(map[string]string),
	}
}

// HasCheckpoint reports whether at least one stage boundary has been
// crossed.
func (s *Scan) HasCheckpoint() bool {
	return len(s.CheckpointData) > 0
}
