package models

import "time"

// SystemState is the single-row process-wide health snapshot. Only the
// Resilience Monitor writes it, and it sets only NetworkStatus and
// UpdatedAt; no component sets the other fields.
type SystemState struct {
	NetworkStatus   NetworkStatus `json:"network_status"`
	TunnelURL       string        `json:"tunnel_url,omitempty"`
	TunnelService   string        `json:"tunnel_service,omitempty"`
	BatteryLevel    *int          `json:"battery_level,omitempty"`
	Charging        bool          `json:"charging"`
	TemperatureC    *float64      `json:"temperature_c,omitempty"`
	LLMModelLoaded  string        `json:"llm_model_loaded,omitempty"`
	AvailableMemMB  int           `json:"available_mem_mb"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
