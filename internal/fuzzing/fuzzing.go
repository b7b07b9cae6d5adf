// Package fuzzing performs directory, file, and API-path discovery against
// live HTTP targets with ffuf (and a lightweight httpx probe for API
// paths).
package fuzzing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/tools"
)

// maxTargets mirrors fuzzer.py's targets[:5] cap.
const maxTargets = 5

var apiPaths = []string{"v1", "v2", "api", "rest", "graphql", "swagger", "openapi.json"}

// Config controls wordlist locations and tool invocation.
type Config struct {
	WordlistDir string // directory created at startup, e.g. "wordlists"
	FfufPath    string
	HttpxPath   string
	Rate        int
}

// Result is everything the fuzzing stage discovered.
type Result struct {
	TargetsFuzzed int
	Endpoints     []*models.Endpoint
}

// Run fuzzes up to maxTargets live URLs (filtered to interesting status
// codes, same as fuzzer.py) for directories, files, and — when the URL
// looks API-shaped — common API paths.
func Run(ctx context.Context, scanID string, probes []models.HTTPProbe, cfg Config) (*Result, error) {
	targets := selectTargets(probes)
	if len(targets) == 0 {
		fmt.Printf("[!] Warning: no live hosts to fuzz\n")
		return &Result{}, nil
	}
	if len(targets) > maxTargets {
		targets = targets[:maxTargets]
	}

	fmt.Printf("[*] Fuzzing %d targets...\n", len(targets))

	result := &Result{TargetsFuzzed: len(targets)}

	dirWordlist := wordlistPath(cfg.WordlistDir, "directories")
	fileWordlist := wordlistPath(cfg.WordlistDir, "files")

	for _, target := range targets {
		if dirWordlist != "" {
			hits, err := tools.RunFfuf(ctx, target+"/FUZZ", dirWordlist, "200,301,302,403", cfg.Rate, cfg.FfufPath)
			if err != nil {
				fmt.Printf("[!] Warning: directory fuzzing of %s failed: %v\n", target, err)
			} else {
				result.Endpoints = append(result.Endpoints, toEndpoints(scanID, hits, "ffuf-dir")...)
			}
		}

		if fileWordlist != "" {
			hits, err := tools.RunFfuf(ctx, target+"/FUZZ", fileWordlist, "200", cfg.Rate, cfg.FfufPath)
			if err != nil {
				fmt.Printf("[!] Warning: file fuzzing of %s failed: %v\n", target, err)
			} else {
				result.Endpoints = append(result.Endpoints, toEndpoints(scanID, hits, "ffuf-file")...)
			}
		}

		if looksLikeAPI(target) {
			result.Endpoints = append(result.Endpoints, fuzzAPI(ctx, scanID, target, cfg.HttpxPath)...)
		}
	}

	fmt.Printf("[+] Fuzzing found %d endpoints\n", len(result.Endpoints))
	return result, nil
}

func selectTargets(probes []models.HTTPProbe) []string {
	statusOK := map[int]bool{200: true, 301: true, 302: true, 403: true, 401: true}
	var primary, fallback []string
	for _, p := range probes {
		if statusOK[p.StatusCode] {
			primary = append(primary, p.URL)
		} else if p.StatusCode > 0 {
			fallback = append(fallback, p.URL)
		}
	}
	if len(primary) > 0 {
		return primary
	}
	return fallback
}

func looksLikeAPI(target string) bool {
	lower := strings.ToLower(target)
	return strings.Contains(lower, "api") || strings.Contains(lower, "rest") || strings.Contains(lower, "graphql")
}

func fuzzAPI(ctx context.Context, scanID, target, httpxPath string) []*models.Endpoint {
	var out []*models.Endpoint
	for _, path := range apiPaths {
		url := fmt.Sprintf("%s/%s", strings.TrimRight(target, "/"), path)
		results, err := tools.RunHttpx(ctx, []string{url}, 1, httpxPath)
		if err != nil || len(results) == 0 {
			continue
		}
		if results[0].StatusCode == 200 {
			out = append(out, &models.Endpoint{
				ScanID: scanID,
				URL:    url,
				Method: "GET",
				Status: results[0].StatusCode,
				Source: "fuzzer-api",
			})
		}
	}
	return out
}

func toEndpoints(scanID string, hits []tools.FfufResultEntry, source string) []*models.Endpoint {
	out := make([]*models.Endpoint, 0, len(hits))
	for _, h := range hits {
		out = append(out, &models.Endpoint{
			ScanID:        scanID,
			URL:           h.URL,
			Method:        "GET",
			Status:        h.Status,
			ContentLength: h.Length,
			ContentType:   h.ContentType,
			Source:        source,
		})
	}
	return out
}

// wordlistPath resolves a named wordlist (e.g. "directories", "files")
// against dir, trying a handful of conventional filenames. Returns "" if
// none exist, matching WordlistManager.get_wordlist_path's "skip this
// fuzz pass" behavior when nothing is installed.
func wordlistPath(dir, name string) string {
	if dir == "" {
		return ""
	}
	candidates := map[string][]string{
		"directories": {"directories.txt", "common-directories.txt", "dirs.txt"},
		"files":       {"files.txt", "common-files.txt"},
	}
	for _, fname := range candidates[name] {
		p := filepath.Join(dir, fname)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}
