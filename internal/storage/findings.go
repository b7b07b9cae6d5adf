package storage

import (
	"fmt"

	"github.com/hakim/reconcore/internal/models"
)

// AddFinding inserts a candidate vulnerability finding for a scan.
func (s *Store) AddFinding(f *models.Finding) error {
	_, err := s.db.Exec(`
		INSERT INTO findings (scan_id, id, title, severity, cvss, url, parameter,
			evidence, repro_command, tool_source, template_id, false_positive, rationale)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ScanID, f.ID, f.Title, string(f.Severity), f.CVSS, f.URL, f.Parameter,
		f.Evidence, f.ReproCommand, f.ToolSource, f.TemplateID, f.FalsePositive, f.Rationale,
	)
	if err != nil {
		return fmt.Errorf("storage: inserting finding %s: %w", f.ID, err)
	}
	return nil
}

// UpdateFindingTriage records the LLM Triage Adapter's decision for a finding.
func (s *Store) UpdateFindingTriage(id string, falsePositive bool, severity models.Severity, rationale string) error {
	_, err := s.db.Exec(`
		UPDATE findings SET false_positive = ?, severity = ?, rationale = ? WHERE id = ?`,
		falsePositive, string(severity), rationale, id,
	)
	if err != nil {
		return fmt.Errorf("storage: updating triage for finding %s: %w", id, err)
	}
	return nil
}

// ListFindings returns every finding recorded for a scan.
func (s *Store) ListFindings(scanID string) ([]*models.Finding, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, id, title, severity, cvss, url, parameter, evidence,
			repro_command, tool_source, template_id, false_positive, rationale
		FROM findings WHERE scan_id = ? ORDER BY severity, title`, scanID)
	if err != nil {
		return nil, fmt.Errorf("storage: listing findings for scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []*models.Finding
	for rows.Next() {
		var f models.Finding
		var severity string
		if err := rows.Scan(&f.ScanID, &f.ID, &f.Title, &severity, &f.CVSS, &f.URL, &f.Parameter,
			&f.Evidence, &f.ReproCommand, &f.ToolSource, &f.TemplateID, &f.FalsePositive, &f.Rationale); err != nil {
			return nil, fmt.Errorf("storage: scanning finding row: %w", err)
		}
		f.Severity = models.Severity(severity)
		out = append(out, &f)
	}
	return out, rows.Err()
}
