// Package jsanalysis downloads JavaScript files reachable from live HTTP
// probes and scans them for hardcoded secrets and API endpoint references.
package jsanalysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/hakim/reconcore/internal/models"
)

// secretPatterns are named regexes for credential-shaped substrings.
var secretPatterns = map[string]*regexp.Regexp{
	"aws_access_key":  regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	"google_api_key":  regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	"github_token":    regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	"slack_token":     regexp.MustCompile(`xox[baprs]-[0-9]{10,13}-[0-9]{10,13}(-[a-zA-Z0-9]{24})?`),
	"private_key":     regexp.MustCompile(`-----BEGIN (RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`),
	"jwt_token":       regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`),
	"api_key_generic": regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"][a-z0-9]{16,}['"]`),
	"password":        regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*['"][^'"]{8,}['"]`),
}

// endpointPatterns are substrings that look like an API path or a
// fetch/axios/ajax call target.
var endpointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`['"](/api/[a-zA-Z0-9/_-]+)['"]`),
	regexp.MustCompile(`['"](/v[0-9]+/[a-zA-Z0-9/_-]+)['"]`),
	regexp.MustCompile(`fetch\(['"]([^'"]+)['"]`),
	regexp.MustCompile(`url:\s*['"]([^'"]+)['"]`),
}

// commonJSPaths are well-known filenames probed relative to each live
// host, since no crawler enumerates <script src> tags here.
var commonJSPaths = []string{
	"/js/main.js", "/js/app.js", "/static/js/app.js",
	"/assets/js/app.js", "/scripts/main.js", "/main.js", "/app.js", "/bundle.js",
}

const maxFilesPerScan = 20

// Secret is one credential-shaped match found in a downloaded JS file.
type Secret struct {
	Type    string
	File    string
	Context string
}

// Result is everything jsanalysis discovered across the probed JS files.
type Result struct {
	FilesAnalyzed int
	Secrets       []Secret
	Endpoints     []*models.Endpoint
}

// Run downloads up to maxFilesPerScan JS files derived from liveURLs (one
// set of common paths per base URL) and scans each for secrets and
// endpoint references.
func Run(ctx context.Context, scanID string, liveURLs []string, client *http.Client) (*Result, error) {
	if client == nil {
		client = &http.Client{}
	}
	if len(liveURLs) == 0 {
		return &Result{}, nil
	}

	seen := make(map[string]bool)
	var jsURLs []string
	for _, base := range liveURLs {
		for _, path := range commonJSPaths {
			full := joinURL(base, path)
			if full != "" && !seen[full] {
				seen[full] = true
				jsURLs = append(jsURLs, full)
			}
		}
	}

	result := &Result{}

	for i, jsURL := range jsURLs {
		if i >= maxFilesPerScan {
			break
		}
		content, ok := download(ctx, client, jsURL)
		if !ok {
			continue
		}
		result.FilesAnalyzed++
		result.Secrets = append(result.Secrets, findSecrets(content, jsURL)...)
		result.Endpoints = append(result.Endpoints, findEndpoints(scanID, content, jsURL)...)
	}

	fmt.Printf("[+] JS analysis: %d files, %d secrets, %d endpoints\n",
		result.FilesAnalyzed, len(result.Secrets), len(result.Endpoints))

	return result, nil
}

// ToFindings converts discovered secrets into critical-severity Findings,
// matching js_analyzer.py's "hardcoded secret" vulnerability entries.
func ToFindings(scanID string, secrets []Secret) []*models.Finding {
	out := make([]*models.Finding, 0, len(secrets))
	for _, s := range secrets {
		f := models.NewFinding(scanID, fmt.Sprintf("Hardcoded %s in JavaScript", s.Type), models.SeverityCritical)
		f.URL = s.File
		f.Evidence = s.Context
		f.ToolSource = "js_analyzer"
		out = append(out, f)
	}
	return out
}

func joinURL(base, path string) string {
	parsed, err := url.Parse(base)
	if err != nil {
		return ""
	}
	rel, err := url.Parse(path)
	if err != nil {
		return ""
	}
	return parsed.ResolveReference(rel).String()
}

func download(ctx context.Context, client *http.Client, jsURL string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jsURL, nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", false
	}
	content := string(body)
	if len(content) < 100 {
		return "", false
	}
	if !strings.Contains(content, "function") && !strings.Contains(content, "var") && !strings.Contains(content, "const") {
		return "", false
	}
	return content, true
}

func findSecrets(content, sourceURL string) []Secret {
	var out []Secret
	for secretType, re := range secretPatterns {
		for _, match := range re.FindAllString(content, -1) {
			out = append(out, Secret{Type: secretType, File: sourceURL, Context: truncate(match, 80)})
		}
	}
	return out
}

func findEndpoints(scanID, content, sourceURL string) []*models.Endpoint {
	base, err := url.Parse(sourceURL)
	seen := make(map[string]bool)
	var out []*models.Endpoint
	for _, re := range endpointPatterns {
		for _, match := range re.FindAllStringSubmatch(content, -1) {
			if len(match) < 2 {
				continue
			}
			candidate := match[1]
			if seen[candidate] {
				continue
			}
			seen[candidate] = true

			full := candidate
			if strings.HasPrefix(candidate, "/") && err == nil {
				full = fmt.Sprintf("%s://%s%s", base.Scheme, base.Host, candidate)
			}
			out = append(out, &models.Endpoint{
				ScanID: scanID,
				URL:    full,
				Method: "GET",
				Source: "js_analyzer",
			})
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
