package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hakim/reconcore/internal/models"
)

// CreateTarget persists a new Target row.
func (s *Store) CreateTarget(t *models.Target) error {
	include, err := json.Marshal(t.Include)
	if err != nil {
		return fmt.Errorf("storage: marshaling include list: %w", err)
	}
	exclude, err := json.Marshal(t.Exclude)
	if err != nil {
		return fmt.Errorf("storage: marshaling exclude list: %w", err)
	}
	ipRanges, err := json.Marshal(t.IPRanges)
	if err != nil {
		return fmt.Errorf("storage: marshaling ip ranges: %w", err)
	}
	asns, err := json.Marshal(t.ASNs)
	if err != nil {
		return fmt.Errorf("storage: marshaling asns: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO targets (id, name, domain, include, exclude, ip_ranges, asns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Domain, string(include), string(exclude), string(ipRanges), string(asns), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: inserting target %s: %w", t.ID, err)
	}
	return nil
}

// GetTarget retrieves a Target by ID. Returns nil, nil if not found.
func (s *Store) GetTarget(id string) (*models.Target, error) {
	row := s.db.QueryRow(`
		SELECT id, name, domain, include, exclude, ip_ranges, asns, created_at
		FROM targets WHERE id = ?`, id)
	return scanTarget(row)
}

// ListTargets returns all targets, newest first.
func (s *Store) ListTargets() ([]*models.Target, error) {
	rows, err := s.db.Query(`
		SELECT id, name, domain, include, exclude, ip_ranges, asns, created_at
		FROM targets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: listing targets: %w", err)
	}
	defer rows.Close()

	var out []*models.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*models.Target, error) {
	var t models.Target
	var include, exclude, ipRanges, asns string

	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &include, &exclude, &ipRanges, &asns, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: scanning target row: %w", err)
	}

	if err := json.Unmarshal([]byte(include), &t.Include); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling include list: %w", err)
	}
	if err := json.Unmarshal([]byte(exclude), &t.Exclude); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling exclude list: %w", err)
	}
	if err := json.Unmarshal([]byte(ipRanges), &t.IPRanges); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling ip ranges: %w", err)
	}
	if err := json.Unmarshal([]byte(asns), &t.ASNs); err != nil {
		return nil, fmt.Errorf("storage: unmarshaling asns: %w", err)
	}

	return &t, nil
}
