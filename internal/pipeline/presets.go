package pipeline

import "fmt"

// Preset defines a named scan template: a profile plus the set of DAG
// stages to skip. "bug-bounty" doesn't pick a stage list from scratch —
// it picks how aggressively to run all nine stages.
type Preset struct {
	Name        string
	Description string
	Profile     string   // models.Profile value: stealth, normal, aggressive
	Skip        []string // stage names to exclude from the DAG
	StopOnError bool
}

// builtinPresets is the registry of all known presets.
var builtinPresets = map[string]Preset{
	"bug-bounty": {
		Name:        "bug-bounty",
		Description: "Full nine-stage DAG at normal rate limits, tuned for public bug-bounty scope",
		Profile:     "normal",
		Skip:        nil,
		StopOnError: false,
	},
	"quick-recon": {
		Name:        "quick-recon",
		Description: "Fast surface-area mapping — subdomain/DNS/HTTP only, no fuzzing or vuln scanning",
		Profile:     "stealth",
		Skip:        []string{"port_scan", "wayback_urls", "js_analysis", "gf_patterns", "fuzzing", "nuclei_scan"},
		StopOnError: false,
	},
	"internal-pentest": {
		Name:        "internal-pentest",
		Description: "Deep scan for internal networks — all nine stages at aggressive rate limits",
		Profile:     "aggressive",
		Skip:        nil,
		StopOnError: true,
	},
}

// BuiltinPresets returns the available preset templates.
func BuiltinPresets() map[string]Preset {
	// Return a copy so callers cannot mutate the registry.
	out := make(map[string]Preset, len(builtinPresets))
	for k, v := range builtinPresets {
		out[k] = v
	}
	return out
}

// GetPreset returns a preset by name, or an error if not found.
func GetPreset(name string) (*Preset, error) {
	p, ok := builtinPresets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q — available: bug-bounty, quick-recon, internal-pentest", name)
	}
	cp := p
	return &cp, nil
}
