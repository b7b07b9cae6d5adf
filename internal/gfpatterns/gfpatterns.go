// Package gfpatterns classifies URLs against a fixed set of vulnerability-
// indicator patterns (XSS/SQLi/SSRF/LFI/RCE/IDOR/...). Matches are marked
// FalsePositive=true by default — the triage stage's LLM pass is the only
// component authorized to clear that flag.
package gfpatterns

import (
	"context"
	"fmt"
	"regexp"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/tools"
)

type pattern struct {
	re          *regexp.Regexp
	severity    models.Severity
	description string
}

var patterns = map[string]pattern{
	"xss": {
		re:          regexp.MustCompile(`(?i)[?&][^=]*=[^&]*(<|>|%3C|%3E)`),
		severity:    models.SeverityHigh,
		description: "Potential XSS - reflected special characters in parameter",
	},
	"sqli": {
		re:          regexp.MustCompile(`(?i)[?&][^=]*=[^&]*(union|select|insert|update|delete|drop|--|%23|and|or)`),
		severity:    models.SeverityCritical,
		description: "Potential SQL injection - SQL keywords in parameter",
	},
	"ssrf": {
		re:          regexp.MustCompile(`(?i)(url|path|dest|redirect|uri|src|next|continue)=[^&]*`),
		severity:    models.SeverityHigh,
		description: "Potential SSRF - URL-like parameter name",
	},
	"lfi": {
		re:          regexp.MustCompile(`(?i)[?&][^=]*=[^&]*(\.\.|%2e%2e|/etc/|/var/|/proc/)`),
		severity:    models.SeverityHigh,
		description: "Potential LFI - path traversal pattern",
	},
	"rce": {
		re:          regexp.MustCompile(`(?i)[?&][^=]*=[^&]*(;|` + "`" + `|\$\(|&&|\|\||wget|curl|bash)`),
		severity:    models.SeverityCritical,
		description: "Potential RCE - command injection pattern",
	},
	"idor": {
		re:          regexp.MustCompile(`(?i)[?&](id|user|account|order|item|profile|doc|file)=[0-9]+`),
		severity:    models.SeverityMedium,
		description: "Potential IDOR - numeric ID parameter",
	},
	"api_key": {
		re:          regexp.MustCompile(`(?i)[?&](api[_-]?key|token|secret|password|pwd|auth)=[^&]{8,}`),
		severity:    models.SeverityCritical,
		description: "Potential API key or credential in URL",
	},
}

// Match is one pattern hit against a URL.
type Match struct {
	URL         string
	Pattern     string
	Severity    models.Severity
	Description string
}

// Run classifies urls against the built-in pattern set, then — if gf is
// installed — additionally runs the external gf tool against a fixed
// subset of patterns for cross-validation.
func Run(ctx context.Context, urls []string, gfPath string, gfAvailable bool) []Match {
	var matches []Match
	for _, u := range urls {
		for name, p := range patterns {
			if p.re.MatchString(u) {
				matches = append(matches, Match{URL: u, Pattern: name, Severity: p.severity, Description: p.description})
			}
		}
	}

	if gfAvailable {
		extra, err := tools.RunGf(ctx, urls, []string{"xss", "sqli", "ssrf", "lfi", "rce"}, gfPath)
		if err != nil {
			fmt.Printf("[!] Warning: gf tool run failed: %v\n", err)
		} else {
			for name, hits := range extra {
				p := patterns[name]
				for _, u := range hits {
					matches = append(matches, Match{URL: u, Pattern: name, Severity: p.severity, Description: p.description})
				}
			}
		}
	}

	fmt.Printf("[+] gf_patterns: %d matches across %d URLs\n", len(matches), len(urls))
	return matches
}

// ToFindings converts matches into candidate Findings, all pre-flagged
// FalsePositive until the LLM Triage Adapter reviews them.
func ToFindings(scanID string, matches []Match) []*models.Finding {
	out := make([]*models.Finding, 0, len(matches))
	for _, m := range matches {
		f := models.NewFinding(scanID, fmt.Sprintf("Potential %s - pattern match", m.Pattern), m.Severity)
		f.URL = m.URL
		f.Evidence = m.Description
		f.ToolSource = "gf"
		f.FalsePositive = true
		out = append(out, f)
	}
	return out
}
