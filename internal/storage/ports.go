package storage

import (
	"fmt"

	"github.com/hakim/reconcore/internal/models"
)

// AddPort upserts an open-port observation for a scan.
func (s *Store) AddPort(p *models.Port) error {
	_, err := s.db.Exec(`
		INSERT INTO ports (scan_id, ip, number, protocol, service, version, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, ip, number, protocol) DO UPDATE SET
			service=excluded.service, version=excluded.version, state=excluded.state`,
		p.ScanID, p.IP, p.Number, p.Protocol, p.Service, p.Version, string(p.State),
	)
	if err != nil {
		return fmt.Errorf("storage: upserting port %s/%s:%d: %w", p.ScanID, p.IP, p.Number, err)
	}
	return nil
}

// ListPorts returns every port recorded for a scan.
func (s *Store) ListPorts(scanID string) ([]*models.Port, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, ip, number, protocol, service, version, state
		FROM ports WHERE scan_id = ? ORDER BY ip, number`, scanID)
	if err != nil {
		return nil, fmt.Errorf("storage: listing ports for scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []*models.Port
	for rows.Next() {
		var p models.Port
		var state string
		if err := rows.Scan(&p.ScanID, &p.IP, &p.Number, &p.Protocol, &p.Service, &p.Version, &state); err != nil {
			return nil, fmt.Errorf("storage: scanning port row: %w", err)
		}
		p.State = models.PortState(state)
		out = append(out, &p)
	}
	return out, rows.Err()
}
