package storage

import (
	"encoding/json"
	"fmt"

	"github.com/hakim/reconcore/internal/models"
)

// AddEndpoint upserts a discovered Endpoint for a scan.
func (s *Store) AddEndpoint(ep *models.Endpoint) error {
	params, err := json.Marshal(ep.Params)
	if err != nil {
		return fmt.Errorf("storage: marshaling params: %w", err)
	}
	matches, err := json.Marshal(ep.PatternMatches)
	if err != nil {
		return fmt.Errorf("storage: marshaling pattern matches: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO endpoints (scan_id, url, method, status, content_type, content_length, params, pattern_matches, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, url) DO UPDATE SET
			method=excluded.method, status=excluded.status, content_type=excluded.content_type,
			content_length=excluded.content_length, params=excluded.params,
			pattern_matches=excluded.pattern_matches, source=excluded.source`,
		ep.ScanID, ep.URL, ep.Method, ep.Status, ep.ContentType, ep.ContentLength, string(params), string(matches), ep.Source,
	)
	if err != nil {
		return fmt.Errorf("storage: upserting endpoint %s/%s: %w", ep.ScanID, ep.URL, err)
	}
	return nil
}

// ListEndpoints returns every endpoint recorded for a scan.
func (s *Store) ListEndpoints(scanID string) ([]*models.Endpoint, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, url, method, status, content_type, content_length, params, pattern_matches, source
		FROM endpoints WHERE scan_id = ? ORDER BY url`, scanID)
	if err != nil {
		return nil, fmt.Errorf("storage: listing endpoints for scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []*models.Endpoint
	for rows.Next() {
		var ep models.Endpoint
		var params, matches string
		if err := rows.Scan(&ep.ScanID, &ep.URL, &ep.Method, &ep.Status, &ep.ContentType,
			&ep.ContentLength, &params, &matches, &ep.Source); err != nil {
			return nil, fmt.Errorf("storage: scanning endpoint row: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &ep.Params); err != nil {
			return nil, fmt.Errorf("storage: unmarshaling params: %w", err)
		}
		if err := json.Unmarshal([]byte(matches), &ep.PatternMatches); err != nil {
			return nil, fmt.Errorf("storage: unmarshaling pattern matches: %w", err)
		}
		out = append(out, &ep)
	}
	return out, rows.Err()
}
