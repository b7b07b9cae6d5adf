package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/hakim/reconcore/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config represents the application configuration.
type Config struct {
	ScanDir         string          `mapstructure:"scan_dir"`
	DBPath          string          `mapstructure:"db_path"`
	CheckpointDir   string          `mapstructure:"checkpoint_dir"`
	RegistryDBPath  string          `mapstructure:"registry_db_path"`
	ControlAddr     string          `mapstructure:"control_addr" validate:"omitempty,hostname_port|ip4_addr|cidrv4"`
	Tools           ToolsConfig     `mapstructure:"tools"`
	RateLimits      RateLimitConfig `mapstructure:"rate_limits"`
	Stages          StagesConfig    `mapstructure:"stages"`
	Profiles        ProfilesConfig  `mapstructure:"profiles"`
	DefaultProfile  models.Profile  `mapstructure:"default_profile"`
	Triage          TriageConfig    `mapstructure:"triage"`
	Resilience      ResilienceConfig `mapstructure:"resilience"`
}

// ToolConfig represents configuration for a single tool.
type ToolConfig struct {
	Path    string   `mapstructure:"path"`
	Args    []string `mapstructure:"args"`
	Timeout string   `mapstructure:"timeout"`
}

// ToolsConfig contains configuration for all external tools.
type ToolsConfig struct {
	Subfinder   ToolConfig `mapstructure:"subfinder"`
	Tlsx        ToolConfig `mapstructure:"tlsx"`
	Dig         ToolConfig `mapstructure:"dig"`
	Masscan     ToolConfig `mapstructure:"masscan"`
	Nmap        ToolConfig `mapstructure:"nmap"`
	Httpx       ToolConfig `mapstructure:"httpx"`
	Gowitness   ToolConfig `mapstructure:"gowitness"`
	Cdncheck    ToolConfig `mapstructure:"cdncheck"`
	Nuclei      ToolConfig `mapstructure:"nuclei"`
	Waybackurls ToolConfig `mapstructure:"waybackurls"`
	Gf          ToolConfig `mapstructure:"gf"`
	Ffuf        ToolConfig `mapstructure:"ffuf"`
}

// RateLimitConfig contains rate limiting settings for tools, validated by
// a hand-rolled Validate() rather than folded into the validator-tag
// struct.
type RateLimitConfig struct {
	SubfinderThreads int `mapstructure:"subfinder_threads"`
	MasscanRate      int `mapstructure:"masscan_rate"`
	NmapMaxParallel  int `mapstructure:"nmap_max_parallel"`
	HttpxThreads     int `mapstructure:"httpx_threads"`
	NucleiThreads    int `mapstructure:"nuclei_threads"`
	NucleiRateLimit  int `mapstructure:"nuclei_rate_limit"`
	FfufRate         int `mapstructure:"ffuf_rate"`
}

// StagesConfig controls which pipeline stages to run.
type StagesConfig struct {
	Enable []string `mapstructure:"enable"`
	Skip   []string `mapstructure:"skip"`
}

// StageProfile is a closed, per-profile set of the knobs that scale
// aggressiveness. The stage engine uses the selected profile's values as
// they are; they are not merged with RateLimits, and a zero field stays
// zero. NmapMaxParallel and NucleiThreads still come from RateLimits.
type StageProfile struct {
	SubfinderThreads int `mapstructure:"subfinder_threads" validate:"gte=0"`
	MasscanRate      int `mapstructure:"masscan_rate" validate:"gte=0"`
	HttpxThreads     int `mapstructure:"httpx_threads" validate:"gte=0"`
	NucleiRateLimit  int `mapstructure:"nuclei_rate_limit" validate:"gte=0"`
	FfufRate         int `mapstructure:"ffuf_rate" validate:"gte=0"`
}

// ProfilesConfig maps each Profile to its StageProfile overrides.
type ProfilesConfig struct {
	Stealth   StageProfile `mapstructure:"stealth"`
	Normal    StageProfile `mapstructure:"normal"`
	Aggressive StageProfile `mapstructure:"aggressive"`
}

// Resolve returns the StageProfile for p, falling back to Normal for an
// unrecognized or empty profile.
func (pc ProfilesConfig) Resolve(p models.Profile) StageProfile {
	switch p {
	case models.ProfileStealth:
		return pc.Stealth
	case models.ProfileAggressive:
		return pc.Aggressive
	default:
		return pc.Normal
	}
}

// ModelTier maps a minimum available-memory threshold to the model that may
// run at or above it. TriageConfig.Models holds a fixed list of these.
type ModelTier struct {
	ThresholdMB int64  `mapstructure:"threshold_mb" validate:"gte=0"`
	Model       string `mapstructure:"model" validate:"required"`
}

// TriageConfig configures the LLM Triage Adapter.
type TriageConfig struct {
	Models          []ModelTier `mapstructure:"models"`
	IdleUnloadAfter string      `mapstructure:"idle_unload_after"`
	Disabled        bool        `mapstructure:"disabled"`
}

// ResilienceConfig configures the Resilience Monitor's TCP dial probes.
type ResilienceConfig struct {
	Probes         []string `mapstructure:"probes" validate:"dive,hostname_port|ip4_addr"`
	OutageAfter    string   `mapstructure:"outage_after"`
	ResumeDelay    string   `mapstructure:"resume_delay"`
	ProbeInterval  string   `mapstructure:"probe_interval"`
	ProbeTimeout   string   `mapstructure:"probe_timeout"`
}

// Load reads and parses configuration from a YAML file. If path is empty,
// it searches for reconcore.yaml in the current directory and
// ~/.config/reconcore/.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("reconcore")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "reconcore"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate runs both the hand-rolled rate-limit checks and the
// validator-tag checks over the profile/triage/resilience surface.
func (c *Config) Validate() error {
	var errs []error

	if c.ScanDir == "" {
		errs = append(errs, errors.New("scan_dir cannot be empty"))
	}
	if c.RateLimits.SubfinderThreads <= 0 {
		errs = append(errs, errors.New("subfinder_threads must be positive"))
	}
	if c.RateLimits.MasscanRate <= 0 {
		errs = append(errs, errors.New("masscan_rate must be positive"))
	}
	if c.RateLimits.NmapMaxParallel <= 0 {
		errs = append(errs, errors.New("nmap_max_parallel must be positive"))
	}
	if c.RateLimits.HttpxThreads <= 0 {
		errs = append(errs, errors.New("httpx_threads must be positive"))
	}
	if c.RateLimits.NucleiThreads <= 0 {
		errs = append(errs, errors.New("nuclei_threads must be positive"))
	}
	if c.RateLimits.NucleiRateLimit <= 0 {
		errs = append(errs, errors.New("nuclei_rate_limit must be positive"))
	}

	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
