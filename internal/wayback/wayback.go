// Package wayback discovers historical URLs for a domain via waybackurls
// and the Wayback Machine's CDX API directly. gau is not wired in: it is
// not in this module's tool registry.
package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/tools"
)

// Config controls how Run discovers historical URLs.
type Config struct {
	WaybackurlsPath string
	UseCDXAPI       bool
	HTTPClient      *http.Client
}

// Result is the discovered URL set plus extracted parameter names, the
// same shape the gf_patterns and fuzzing stages consume downstream.
type Result struct {
	URLs       []string
	Parameters []string
}

// Run discovers historical URLs for domain from waybackurls and, unless
// disabled, the CDX API directly.
func Run(ctx context.Context, domain string, cfg Config) (*Result, error) {
	seen := make(map[string]bool)
	var urls []string

	add := func(u string) {
		u = strings.TrimSpace(u)
		if u == "" || !strings.HasPrefix(u, "http") || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	wbURLs, err := tools.RunWaybackurls(ctx, domain, cfg.WaybackurlsPath)
	if err != nil {
		fmt.Printf("[!] Warning: waybackurls failed: %v\n", err)
	} else {
		for _, u := range wbURLs {
			add(u)
		}
	}

	if cfg.UseCDXAPI {
		cdxURLs, err := queryCDX(ctx, domain, cfg.HTTPClient)
		if err != nil {
			fmt.Printf("[!] Warning: wayback CDX query failed: %v\n", err)
		} else {
			for _, u := range cdxURLs {
				add(u)
			}
		}
	}

	fmt.Printf("[+] Wayback discovery: %d URLs\n", len(urls))

	return &Result{
		URLs:       urls,
		Parameters: extractParameters(urls),
	}, nil
}

// queryCDX hits the Wayback Machine's CDX search API directly for every
// archived URL path under domain and its subdomains.
func queryCDX(ctx context.Context, domain string, client *http.Client) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	endpoint := fmt.Sprintf(
		"https://web.archive.org/cdx/search/cdx?url=*.%s/*&output=json&fl=original&collapse=urlkey",
		url.QueryEscape(domain),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wayback: building CDX request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wayback: querying CDX API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wayback: CDX API returned status %d", resp.StatusCode)
	}

	var rows [][]string
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("wayback: decoding CDX response: %w", err)
	}

	if len(rows) <= 1 {
		return nil, nil
	}

	urls := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] { // first row is the header
		if len(row) > 0 {
			urls = append(urls, row[0])
		}
	}
	return urls, nil
}

// extractParameters collects the unique query-parameter names across urls.
func extractParameters(urls []string) []string {
	seen := make(map[string]bool)
	var params []string
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for key := range parsed.Query() {
			if !seen[key] {
				seen[key] = true
				params = append(params, key)
			}
		}
	}
	return params
}

// ToEndpoints converts discovered URLs into Endpoint rows ready for the
// Artifact Store, tagged with their discovery source.
func ToEndpoints(scanID string, r *Result) []*models.Endpoint {
	out := make([]*models.Endpoint, 0, len(r.URLs))
	for _, u := range r.URLs {
		ep := &models.Endpoint{
			ScanID: scanID,
			URL:    u,
			Method: "GET",
			Source: "wayback",
		}
		if parsed, err := url.Parse(u); err == nil {
			for key := range parsed.Query() {
				ep.Params = append(ep.Params, key)
			}
		}
		out = append(out, ep)
	}
	return out
}
