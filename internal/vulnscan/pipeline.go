package vulnscan

import (
	"context"
	"fmt"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/tools"
)

// VulnScanConfig contains configuration for the vulnerability scanning pipeline
type VulnScanConfig struct {
	NucleiPath string
	Severity   string // comma-separated: "critical,high,medium"
	Threads    int
	RateLimit  int
	SkipNuclei bool
}

// VulnScanResult contains the complete results of vulnerability scanning
type VulnScanResult struct {
	Target         string            `json:"target"`
	Findings       []*models.Finding `json:"findings"`
	TotalCount     int               `json:"total_count"`
	SeverityCounts map[string]int    `json:"severity_counts"`
}

// RunVulnScan orchestrates the full vulnerability scanning pipeline.
// It runs nuclei against all HTTP probe URLs, subdomain names, and IP addresses,
// deduplicates findings, and returns structured results with severity counts.
func RunVulnScan(ctx context.Context, scanID string, hosts []models.Host, probes []models.HTTPProbe, cfg VulnScanConfig) (*VulnScanResult, error) {
	result := &VulnScanResult{
		SeverityCounts: make(map[string]int),
	}

	if len(hosts) > 0 && len(hosts[0].Subdomains) > 0 {
		result.Target = hosts[0].Subdomains[0]
	}

	seen := make(map[string]bool)
	var targets []string

	addTarget := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}

	for _, probe := range probes {
		addTarget(probe.URL)
	}
	for _, host := range hosts {
		for _, sub := range host.Subdomains {
			addTarget(sub)
		}
	}
	for _, host := range hosts {
		addTarget(host.IP)
	}

	if len(targets) == 0 {
		return result, nil
	}

	fmt.Printf("[*] Running nuclei against %d targets...\n", len(targets))

	nucleiResults, err := tools.RunNuclei(ctx, targets, cfg.Severity, cfg.Threads, cfg.RateLimit, cfg.NucleiPath)
	if err != nil {
		return nil, fmt.Errorf("nuclei execution failed: %w", err)
	}

	type dedupKey struct {
		templateID string
		host       string
	}
	seenFindings := make(map[dedupKey]bool)

	for _, nr := range nucleiResults {
		key := dedupKey{templateID: nr.TemplateID, host: nr.Host}
		if seenFindings[key] {
			continue
		}
		seenFindings[key] = true

		finding := tools.NucleiResultToFinding(scanID, nr)
		result.Findings = append(result.Findings, finding)
		result.SeverityCounts[string(finding.Severity)]++
	}

	result.TotalCount = len(result.Findings)

	fmt.Printf("[+] Vulnerability scan complete: %d findings\n", result.TotalCount)

	return result, nil
}
