package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hakim/reconcore/internal/models"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		ScanDir:        "data/scans",
		DBPath:         "data/reconcore.db",
		CheckpointDir:  "data/checkpoints",
		RegistryDBPath: "data/registry.db",
		ControlAddr:    "127.0.0.1:8088",
		DefaultProfile: models.ProfileNormal,
		Tools: ToolsConfig{
			Subfinder:   ToolConfig{Path: "subfinder", Args: []string{"-silent"}, Timeout: "5m"},
			Tlsx:        ToolConfig{Path: "tlsx", Args: []string{"-silent"}, Timeout: "5m"},
			Dig:         ToolConfig{Path: "dig", Args: []string{"+short"}, Timeout: "5m"},
			Masscan:     ToolConfig{Path: "masscan", Args: []string{"-p1-65535", "--rate=1000"}, Timeout: "5m"},
			Nmap:        ToolConfig{Path: "nmap", Args: []string{"-sV", "-Pn"}, Timeout: "5m"},
			Httpx:       ToolConfig{Path: "httpx", Args: []string{"-silent"}, Timeout: "5m"},
			Gowitness:   ToolConfig{Path: "gowitness", Args: []string{"scan", "file"}, Timeout: "5m"},
			Cdncheck:    ToolConfig{Path: "cdncheck", Args: []string{"-silent"}, Timeout: "5m"},
			Nuclei:      ToolConfig{Path: "nuclei", Args: []string{"-silent"}, Timeout: "10m"},
			Waybackurls: ToolConfig{Path: "waybackurls", Timeout: "3m"},
			Gf:          ToolConfig{Path: "gf", Timeout: "2m"},
			Ffuf:        ToolConfig{Path: "ffuf", Args: []string{"-s"}, Timeout: "5m"},
		},
		RateLimits: RateLimitConfig{
			SubfinderThreads: 10,
			MasscanRate:      1000,
			NmapMaxParallel:  5,
			HttpxThreads:     25,
			NucleiThreads:    10,
			NucleiRateLimit:  150,
			FfufRate:         150,
		},
		Stages: StagesConfig{
			Enable: []string{},
			Skip:   []string{},
		},
		Profiles: ProfilesConfig{
			Stealth: StageProfile{
				SubfinderThreads: 3,
				MasscanRate:      100,
				HttpxThreads:     5,
				NucleiRateLimit:  20,
				FfufRate:         20,
			},
			Normal: StageProfile{
				SubfinderThreads: 10,
				MasscanRate:      1000,
				HttpxThreads:     25,
				NucleiRateLimit:  150,
				FfufRate:         150,
			},
			Aggressive: StageProfile{
				SubfinderThreads: 50,
				MasscanRate:      5000,
				HttpxThreads:     100,
				NucleiRateLimit:  500,
				FfufRate:         500,
			},
		},
		Triage: TriageConfig{
			Models: []ModelTier{
				{ThresholdMB: 8192, Model: "claude-sonnet-4-5-20250929"},
				{ThresholdMB: 4096, Model: "claude-3-5-haiku-20241022"},
				{ThresholdMB: 0, Model: "claude-3-haiku-20240307"},
			},
			IdleUnloadAfter: "5m",
		},
		Resilience: ResilienceConfig{
			Probes:        []string{"1.1.1.1:53", "8.8.8.8:53", "9.9.9.9:53"},
			OutageAfter:   "30s",
			ResumeDelay:   "10s",
			ProbeInterval: "10s",
			ProbeTimeout:  "3s",
		},
	}
}

// WriteDefault writes a default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing config file: %w", err)
	}

	return nil
}
