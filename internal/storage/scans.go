package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hakim/reconcore/internal/models"
)

// CreateScan persists a new Scan row in its initial state.
func (s *Store) CreateScan(sc *models.Scan) error {
	progress, err := json.Marshal(sc.Progress)
	if err != nil {
		return fmt.Errorf("storage: marshaling progress: %w", err)
	}
	stagesRun, err := json.Marshal(sc.StagesRun)
	if err != nil {
		return fmt.Errorf("storage: marshaling stages_run: %w", err)
	}
	toolVersions, err := json.Marshal(sc.ToolVersions)
	if err != nil {
		return fmt.Errorf("storage: marshaling tool_versions: %w", err)
	}
	skipStages, err := json.Marshal(sc.SkipStages)
	if err != nil {
		return fmt.Errorf("storage: marshaling skip_stages: %w", err)
	}
	stageErrors, err := json.Marshal(sc.StageErrors)
	if err != nil {
		return fmt.Errorf("storage: marshaling stage_errors: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO scans (id, target_id, profile, status, progress, current_stage,
			error_message, resumed, stop_on_error, skip_stages, stage_errors,
			stages_run, tool_versions, checkpoint_data, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID, sc.TargetID, string(sc.Profile), string(sc.Status), string(progress), sc.CurrentStage,
		nullString(sc.ErrorMessage), sc.Resumed, sc.StopOnError, string(skipStages), string(stageErrors),
		string(stagesRun), string(toolVersions), sc.CheckpointData,
		sc.CreatedAt, sc.StartedAt, sc.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: inserting scan %s: %w", sc.ID, err)
	}
	return nil
}

// RecordStageError persists the absorbed error text for a stage that failed
// without halting the scan (stop_on_error=false).
func (s *Store) RecordStageError(id, stageName, errText string) error {
	sc, err := s.GetScan(id)
	if err != nil {
		return err
	}
	if sc == nil {
		return fmt.Errorf("storage: scan %s not found", id)
	}
	if sc.StageErrors == nil {
		sc.StageErrors = make(map[string]string)
	}
	sc.StageErrors[stageName] = errText
	data, err := json.Marshal(sc.StageErrors)
	if err != nil {
		return fmt.Errorf("storage: marshaling stage_errors: %w", err)
	}
	_, err = s.db.Exec(`UPDATE scans SET stage_errors = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("storage: recording stage error for scan %s: %w", id, err)
	}
	return nil
}

// GetScan retrieves a Scan by ID. Returns nil, nil if not found.
func (s *Store) GetScan(id string) (*models.Scan, error) {
	row := s.db.QueryRow(`
		SELECT id, target_id, profile, status, progress, current_stage, error_message,
			resumed, stop_on_error, skip_stages, stage_errors,
			stages_run, tool_versions, checkpoint_data, created_at, started_at, completed_at
		FROM scans WHERE id = ?`, id)
	return scanScan(row)
}

// ListScansForTarget returns all scans for a target, newest first.
func (s *Store) ListScansForTarget(targetID string) ([]*models.Scan, error) {
	rows, err := s.db.Query(`
		SELECT id, target_id, profile, status, progress, current_stage, error_message,
			resumed, stop_on_error, skip_stages, stage_errors,
			stages_run, tool_versions, checkpoint_data, created_at, started_at, completed_at
		FROM scans WHERE target_id = ? ORDER BY created_at DESC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("storage: listing scans for target %s: %w", targetID, err)
	}
	defer rows.Close()

	var out []*models.Scan
	for rows.Next() {
		sc, err := scanScan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpdateScanState atomically writes status, current stage, and per-stage
// progress for a scan. The WHERE clause freezes a terminal scan's row
// except for checkpoint clearance — once status is completed/failed,
// further state writes are no-ops.
func (s *Store) UpdateScanState(id string, status models.ScanStatus, currentStage string, progress map[string]int) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("storage: marshaling progress: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE scans SET status = ?, current_stage = ?, progress = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		string(status), currentStage, string(data), id,
	)
	if err != nil {
		return fmt.Errorf("storage: updating scan state %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: checking rows affected for scan %s: %w", id, err)
	}
	if n == 0 {
		// Either the scan does not exist, or it is already terminal — both
		// are legitimate no-ops from the caller's perspective, matching the
		// "terminal states are absorbing" invariant.
		return nil
	}
	return nil
}

// MarkStarted sets started_at the first time a scan transitions to running.
func (s *Store) MarkStarted(id string) error {
	now := time.Now()
	_, err := s.db.Exec(`UPDATE scans SET started_at = ? WHERE id = ? AND started_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("storage: marking scan %s started: %w", id, err)
	}
	return nil
}

// MarkTerminal sets status, error_message, and completed_at for a scan
// reaching completed or failed.
func (s *Store) MarkTerminal(id string, status models.ScanStatus, errMsg string) error {
	now := time.Now()
	_, err := s.db.Exec(`
		UPDATE scans SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?`, string(status), nullString(errMsg), now, id)
	if err != nil {
		return fmt.Errorf("storage: marking scan %s terminal: %w", id, err)
	}
	return nil
}

// AppendStageRun records a completed stage name in the scan's stages_run
// list (idempotent — a name already present is not duplicated).
func (s *Store) AppendStageRun(id, stageName string) error {
	sc, err := s.GetScan(id)
	if err != nil {
		return err
	}
	if sc == nil {
		return fmt.Errorf("storage: scan %s not found", id)
	}
	for _, existing := range sc.StagesRun {
		if existing == stageName {
			return nil
		}
	}
	sc.StagesRun = append(sc.StagesRun, stageName)
	data, err := json.Marshal(sc.StagesRun)
	if err != nil {
		return fmt.Errorf("storage: marshaling stages_run: %w", err)
	}
	_, err = s.db.Exec(`UPDATE scans SET stages_run = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("storage: appending stage run for scan %s: %w", id, err)
	}
	return nil
}

// SaveCheckpointBlob writes the opaque checkpoint payload onto the scan row.
func (s *Store) SaveCheckpointBlob(id string, blob []byte) error {
	_, err := s.db.Exec(`UPDATE scans SET checkpoint_data = ? WHERE id = ?`, blob, id)
	if err != nil {
		return fmt.Errorf("storage: saving checkpoint blob for scan %s: %w", id, err)
	}
	return nil
}

// ClearCheckpointBlob removes the checkpoint payload after a scan completes.
func (s *Store) ClearCheckpointBlob(id string) error {
	_, err := s.db.Exec(`UPDATE scans SET checkpoint_data = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: clearing checkpoint blob for scan %s: %w", id, err)
	}
	return nil
}

func scanScan(row rowScanner) (*models.Scan, error) {
	var sc models.Scan
	var profile, status, progress, skipStages, stageErrors, stagesRun, toolVersions string
	var currentStage, errMsg sql.NullString
	var checkpointData []byte
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&sc.ID, &sc.TargetID, &profile, &status, &progress, &currentStage, &errMsg,
		&sc.Resumed, &sc.StopOnError, &skipStages, &stageErrors,
		&stagesRun, &toolVersions, &checkpointData, &sc.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: scanning scan row: %w", err)
	}

	sc.Profile = models.Profile(profile)
	sc.Status = models.ScanStatus(status)
	sc.CurrentStage = currentStage.String
	sc.ErrorMessage = errMsg.String
	sc.CheckpointData = checkpointData
	if startedAt.Valid {
		sc.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		sc.CompletedAt = &completedAt.Time
	}

	sc.Progress = make(map[string]int)
	if err := json.Unmarshal([]byte(progress), &sc.Progress); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling progress: %w", err)
	}
	if err := json.Unmarshal([]byte(stagesRun), &sc.StagesRun); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling stages_run: %w", err)
	}
	sc.ToolVersions = make(map[string]string)
	if err := json.Unmarshal([]byte(toolVersions), &sc.ToolVersions); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling tool_versions: %w", err)
	}
	if err := json.Unmarshal([]byte(skipStages), &sc.SkipStages); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling skip_stages: %w", err)
	}
	sc.StageErrors = make(map[string]string)
	if err := json.Unmarshal([]byte(stageErrors), &sc.StageErrors); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling stage_errors: %w", err)
	}

	return &sc, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
