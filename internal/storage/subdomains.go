package storage

import (
	"encoding/json"
	"fmt"

	"github.com/hakim/reconcore/internal/models"
)

// AddSubdomain upserts a discovered Subdomain for a scan.
func (s *Store) AddSubdomain(sub *models.Subdomain) error {
	ips, err := json.Marshal(sub.IPs)
	if err != nil {
		return fmt.Errorf("storage: marshaling ips: %w", err)
	}
	records, err := json.Marshal(sub.DNSRecords)
	if err != nil {
		return fmt.Errorf("storage: marshaling dns records: %w", err)
	}
	tech, err := json.Marshal(sub.Tech)
	if err != nil {
		return fmt.Errorf("storage: marshaling tech: %w", err)
	}
	sources, err := json.Marshal(sub.Sources)
	if err != nil {
		return fmt.Errorf("storage: marshaling sources: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO subdomains (scan_id, name, domain, resolved, ips, dns_records, live,
			last_status, title, tech, sources, is_cdn, cdn_provider, is_dangling)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, name) DO UPDATE SET
			domain=excluded.domain, resolved=excluded.resolved, ips=excluded.ips,
			dns_records=excluded.dns_records, live=excluded.live, last_status=excluded.last_status,
			title=excluded.title, tech=excluded.tech, sources=excluded.sources,
			is_cdn=excluded.is_cdn, cdn_provider=excluded.cdn_provider, is_dangling=excluded.is_dangling`,
		sub.ScanID, sub.Name, sub.Domain, sub.Resolved, string(ips), string(records), sub.Live,
		nullableInt(sub.LastStatus), sub.Title, string(tech), string(sources), sub.IsCDN, sub.CDNProvider, sub.IsDangling,
	)
	if err != nil {
		return fmt.Errorf("storage: upserting subdomain %s/%s: %w", sub.ScanID, sub.Name, err)
	}
	return nil
}

// ListSubdomains returns every subdomain recorded for a scan.
func (s *Store) ListSubdomains(scanID string) ([]*models.Subdomain, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, name, domain, resolved, ips, dns_records, live, last_status,
			title, tech, sources, is_cdn, cdn_provider, is_dangling
		FROM subdomains WHERE scan_id = ? ORDER BY name`, scanID)
	if err != nil {
		return nil, fmt.Errorf("storage: listing subdomains for scan %s: %w", scanID, err)
	}
	defer rows.Close()

	var out []*models.Subdomain
	for rows.Next() {
		var sub models.Subdomain
		var ips, records, tech, sources string
		var lastStatus *int

		if err := rows.Scan(&sub.ScanID, &sub.Name, &sub.Domain, &sub.Resolved, &ips, &records,
			&sub.Live, &lastStatus, &sub.Title, &tech, &sources, &sub.IsCDN, &sub.CDNProvider, &sub.IsDangling); err != nil {
			return nil, fmt.Errorf("storage: scanning subdomain row: %w", err)
		}
		if lastStatus != nil {
			sub.LastStatus = *lastStatus
		}
		if err := json.Unmarshal([]byte(ips), &sub.IPs); err != nil {
			return nil, fmt.Errorf("storage: unmarshaling ips: %w", err)
		}
		if err := json.Unmarshal([]byte(records), &sub.DNSRecords); err != nil {
			return nil, fmt.Errorf("storage: unmarshaling dns records: %w", err)
		}
		if err := json.Unmarshal([]byte(tech), &sub.Tech); err != nil {
			return nil, fmt.Errorf("storage: unmarshaling tech: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &sub.Sources); err != nil {
			return nil, fmt.Errorf("storage: unmarshaling sources: %w", err)
		}
		out = append(out, &sub)
	}
	return out, rows.Err()
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
