package models

import (
	"encoding/json"
	"time"
)

// Checkpoint is a durable per-scan snapshot of pipeline progress, written at
// every stage boundary and consulted on resume.
type Checkpoint struct {
	ScanID          string                     `json:"scan_id"`
	Timestamp       time.Time                  `json:"timestamp"`
	CurrentModule   string                     `json:"current_module"`
	CompletedModules []string                  `json:"completed_modules"`
	PendingModules  []string                   `json:"pending_modules"`
	ModuleState     map[string]any             `json:"module_state,omitempty"`
	ResultsCache    map[string]json.RawMessage `json:"results_cache,omitempty"`
	Checksum        string                     `json:"checksum"`
}
