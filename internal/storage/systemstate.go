package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hakim/reconcore/internal/models"
)

// UpsertSystemState writes the single process-wide health snapshot row.
// Calling it twice with the same values leaves exactly one row (the row is
// pinned to id=1 by the schema's CHECK constraint).
func (s *Store) UpsertSystemState(st *models.SystemState) error {
	st.UpdatedAt = time.Now()
	_, err := s.db.Exec(`
		INSERT INTO system_state (id, network_status, tunnel_url, tunnel_service, battery_level,
			charging, temperature_c, llm_model_loaded, available_mem_mb, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			network_status=excluded.network_status, tunnel_url=excluded.tunnel_url,
			tunnel_service=excluded.tunnel_service, battery_level=excluded.battery_level,
			charging=excluded.charging, temperature_c=excluded.temperature_c,
			llm_model_loaded=excluded.llm_model_loaded, available_mem_mb=excluded.available_mem_mb,
			updated_at=excluded.updated_at`,
		string(st.NetworkStatus), st.TunnelURL, st.TunnelService, st.BatteryLevel,
		st.Charging, st.TemperatureC, st.LLMModelLoaded, st.AvailableMemMB, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: upserting system state: %w", err)
	}
	return nil
}

// GetSystemState reads the single system-state row. Returns nil, nil if the
// row has never been written.
func (s *Store) GetSystemState() (*models.SystemState, error) {
	var st models.SystemState
	var network string

	err := s.db.QueryRow(`
		SELECT network_status, tunnel_url, tunnel_service, battery_level, charging,
			temperature_c, llm_model_loaded, available_mem_mb, updated_at
		FROM system_state WHERE id = 1`).Scan(
		&network, &st.TunnelURL, &st.TunnelService, &st.BatteryLevel, &st.Charging,
		&st.TemperatureC, &st.LLMModelLoaded, &st.AvailableMemMB, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: reading system state: %w", err)
	}
	st.NetworkStatus = models.NetworkStatus(network)
	return &st, nil
}
