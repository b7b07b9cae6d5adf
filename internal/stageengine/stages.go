package stageengine

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/hakim/reconcore/internal/discovery"
	"github.com/hakim/reconcore/internal/fuzzing"
	"github.com/hakim/reconcore/internal/gfpatterns"
	"github.com/hakim/reconcore/internal/httpprobe"
	"github.com/hakim/reconcore/internal/jsanalysis"
	"github.com/hakim/reconcore/internal/models"
	"github.com/hakim/reconcore/internal/pipeline"
	"github.com/hakim/reconcore/internal/portscan"
	"github.com/hakim/reconcore/internal/tools"
	"github.com/hakim/reconcore/internal/vulnscan"
	"github.com/hakim/reconcore/internal/wayback"
)

// gfToolRequirement builds the registry lookup key for the optional gf
// binary, using the path configured for it rather than re-deriving one
// from tools.DefaultTools().
func gfToolRequirement(e *Engine) tools.ToolRequirement {
	binary := e.Config.Tools.Gf.Path
	if binary == "" {
		binary = "gf"
	}
	return tools.ToolRequirement{Name: "gf", Binary: binary, Required: false}
}

// runSubdomainEnum discovers subdomains via subfinder/tlsx and resolves
// their DNS records, persisting each as an upserted Subdomain row.
func runSubdomainEnum(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	t := e.Config.Tools
	result, err := discovery.RunDiscovery(ctx, sc.Domain, discovery.DiscoveryConfig{
		SubfinderThreads: sc.Profile.SubfinderThreads,
		SubfinderPath:    t.Subfinder.Path,
		TlsxPath:         t.Tlsx.Path,
		DigPath:          t.Dig.Path,
	})
	if err != nil {
		return nil, classifyToolError("subdomain_enum", err)
	}

	target, err := e.Store.GetTarget(sc.TargetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
	}
	scope := pipeline.ScopeFor(target)

	kept := result.Subdomains[:0]
	for i := range result.Subdomains {
		sub := result.Subdomains[i]
		sub.ScanID = sc.ScanID
		if err := scope.ValidateHost(target, sub.Name); err != nil {
			fmt.Printf("[*] dropping out-of-scope subdomain %s: %v\n", sub.Name, err)
			continue
		}
		if err := e.Store.AddSubdomain(&sub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
		kept = append(kept, sub)
	}
	result.Subdomains = kept

	return json.Marshal(result)
}

// runDNSResolution classifies the already-resolved subdomains for dangling
// CNAMEs (takeover candidates) and low-priority stale DNS, surfacing the
// high-priority set as Findings.
func runDNSResolution(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	rows, err := e.Store.ListSubdomains(sc.ScanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
	}

	flat := make([]models.Subdomain, len(rows))
	for i, r := range rows {
		flat[i] = *r
	}

	high, low := discovery.ClassifyDangling(flat)

	highNames := make(map[string]bool, len(high))
	for _, s := range high {
		highNames[s.Name] = true
	}

	for i := range flat {
		if !highNames[flat[i].Name] {
			continue
		}
		flat[i].IsDangling = true
		if err := e.Store.AddSubdomain(&flat[i]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}

		f := models.NewFinding(sc.ScanID, fmt.Sprintf("Possible subdomain takeover: %s", flat[i].Name), models.SeverityHigh)
		f.Evidence = "dangling CNAME with no resolving A/AAAA record"
		f.ToolSource = "dns_resolution"
		f.FalsePositive = true
		if err := e.Store.AddFinding(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}

	summary := struct {
		HighPriority int `json:"high_priority"`
		LowPriority  int `json:"low_priority"`
	}{len(high), len(low)}

	fmt.Printf("[+] DNS resolution: %d dangling (high priority), %d stale (low priority)\n", len(high), len(low))
	return json.Marshal(summary)
}

// runHTTPProbeStage probes every resolved IP on the standard web ports,
// since port_scan (which would supply a richer port list) has not run
// yet in the canonical stage order. Port_scan's own discoveries get a
// further, more targeted nuclei pass at the end of the DAG.
func runHTTPProbeStage(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	subs, err := e.Store.ListSubdomains(sc.ScanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
	}

	hostByIP := make(map[string]*models.Host)
	for _, s := range subs {
		if !s.Resolved || len(s.IPs) == 0 {
			continue
		}
		for _, ip := range s.IPs {
			h, ok := hostByIP[ip]
			if !ok {
				h = &models.Host{
					IP:    ip,
					Ports: []models.Port{{Number: 80, Protocol: "tcp"}, {Number: 443, Protocol: "tcp"}},
				}
				hostByIP[ip] = h
			}
			h.Subdomains = append(h.Subdomains, s.Name)
		}
	}

	hosts := make([]models.Host, 0, len(hostByIP))
	for _, h := range hostByIP {
		hosts = append(hosts, *h)
	}

	t := e.Config.Tools
	result, err := httpprobe.RunHTTPProbe(ctx, hosts, httpprobe.HTTPProbeConfig{
		HttpxPath:       t.Httpx.Path,
		GowitnessPath:   t.Gowitness.Path,
		HttpxThreads:    sc.Profile.HttpxThreads,
		ScreenshotDir:   filepath.Join(e.Config.ScanDir, sc.ScanID, "screenshots"),
		SkipScreenshots: t.Gowitness.Path == "",
	})
	if err != nil {
		return nil, classifyToolError("http_probe", err)
	}

	for _, p := range result.Probes {
		ep := &models.Endpoint{
			ScanID:        sc.ScanID,
			URL:           p.URL,
			Method:        "GET",
			Status:        p.StatusCode,
			ContentLength: p.ContentLength,
			Source:        "http_probe",
		}
		if err := e.Store.AddEndpoint(ep); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}

	return json.Marshal(result)
}

// runPortScanStage runs the full CDN-aware masscan/nmap sweep and
// persists both the discovered ports and the refreshed CDN tags on each
// affected subdomain.
func runPortScanStage(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	rows, err := e.Store.ListSubdomains(sc.ScanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
	}
	subs := make([]models.Subdomain, len(rows))
	for i, r := range rows {
		subs[i] = *r
	}

	t := e.Config.Tools
	result, err := portscan.RunPortScan(ctx, subs, portscan.PortScanConfig{
		CdncheckPath:    t.Cdncheck.Path,
		MasscanPath:     t.Masscan.Path,
		NmapPath:        t.Nmap.Path,
		MasscanRate:     sc.Profile.MasscanRate,
		NmapMaxParallel: e.Config.RateLimits.NmapMaxParallel,
		SkipCDNCheck:    t.Cdncheck.Path == "",
	})
	if err != nil {
		return nil, classifyToolError("port_scan", err)
	}

	subByName := make(map[string]*models.Subdomain, len(rows))
	for _, r := range rows {
		subByName[r.Name] = r
	}

	for _, h := range result.Hosts {
		for i := range h.Ports {
			p := h.Ports[i]
			p.ScanID = sc.ScanID
			p.IP = h.IP
			if err := e.Store.AddPort(&p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
			}
		}
		for _, name := range h.Subdomains {
			s, ok := subByName[name]
			if !ok || (!h.IsCDN && s.IsCDN == h.IsCDN) {
				continue
			}
			s.IsCDN = h.IsCDN
			s.CDNProvider = h.CDNProvider
			if err := e.Store.AddSubdomain(s); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
			}
		}
	}

	return json.Marshal(result)
}

// runWaybackStage pulls historical URLs for the target domain and stores
// them as Endpoints.
func runWaybackStage(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	result, err := wayback.Run(ctx, sc.Domain, wayback.Config{
		WaybackurlsPath: e.Config.Tools.Waybackurls.Path,
		UseCDXAPI:       true,
	})
	if err != nil {
		return nil, classifyToolError("wayback_urls", err)
	}

	for _, ep := range wayback.ToEndpoints(sc.ScanID, result) {
		if err := e.Store.AddEndpoint(ep); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}

	return json.Marshal(result)
}

// runJSAnalysisStage downloads JS assets from live hosts and flags
// hardcoded secrets as Findings and discovered API calls as Endpoints.
func runJSAnalysisStage(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	liveURLs, err := liveProbeURLs(e, sc.ScanID)
	if err != nil {
		return nil, err
	}

	result, err := jsanalysis.Run(ctx, sc.ScanID, liveURLs, nil)
	if err != nil {
		return nil, classifyToolError("js_analysis", err)
	}

	for _, f := range jsanalysis.ToFindings(sc.ScanID, result.Secrets) {
		if err := e.Store.AddFinding(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}
	for _, ep := range result.Endpoints {
		if err := e.Store.AddEndpoint(ep); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}

	return json.Marshal(result)
}

// runGFPatternsStage classifies every URL gathered so far (live probes,
// wayback history) against the built-in vulnerability-indicator patterns
// and, if gf is installed, the external tool too.
func runGFPatternsStage(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	endpoints, err := e.Store.ListEndpoints(sc.ScanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
	}
	urls := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		urls = append(urls, ep.URL)
	}

	gfResult, gfErr := e.Registry.Ensure(ctx, gfToolRequirement(e))
	gfAvailable := gfErr == nil && gfResult.Found

	matches := gfpatterns.Run(ctx, urls, e.Config.Tools.Gf.Path, gfAvailable)

	for _, f := range gfpatterns.ToFindings(sc.ScanID, matches) {
		if err := e.Store.AddFinding(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}

	matchedURLs := make(map[string]bool)
	for _, m := range matches {
		matchedURLs[m.URL] = true
	}
	for _, ep := range endpoints {
		if !matchedURLs[ep.URL] {
			continue
		}
		var patterns []string
		for _, m := range matches {
			if m.URL == ep.URL {
				patterns = append(patterns, m.Pattern)
			}
		}
		ep.PatternMatches = patterns
		if err := e.Store.AddEndpoint(ep); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}

	return json.Marshal(struct {
		MatchCount int `json:"match_count"`
	}{len(matches)})
}

// runFuzzingStage runs directory/file/API fuzzing against a sample of the
// live hosts found so far.
func runFuzzingStage(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	probes, err := cachedProbes(e, sc)
	if err != nil {
		return nil, err
	}

	result, err := fuzzing.Run(ctx, sc.ScanID, probes, fuzzing.Config{
		WordlistDir: "wordlists",
		FfufPath:    e.Config.Tools.Ffuf.Path,
		HttpxPath:   e.Config.Tools.Httpx.Path,
		Rate:        sc.Profile.FfufRate,
	})
	if err != nil {
		return nil, classifyToolError("fuzzing", err)
	}

	for _, ep := range result.Endpoints {
		if err := e.Store.AddEndpoint(ep); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
	}

	return json.Marshal(result)
}

// runNucleiStage runs nuclei against live probes, subdomains, and scanned
// IPs, recorded from the port_scan stage's cached result.
func runNucleiStage(ctx context.Context, e *Engine, sc *StageContext) (json.RawMessage, error) {
	probes, err := cachedProbes(e, sc)
	if err != nil {
		return nil, err
	}

	var hosts []models.Host
	if raw, ok := sc.Cache["port_scan"]; ok {
		var psResult portscan.PortScanResult
		if err := json.Unmarshal(raw, &psResult); err == nil {
			hosts = psResult.Hosts
		}
	}

	result, err := vulnscan.RunVulnScan(ctx, sc.ScanID, hosts, probes, vulnscan.VulnScanConfig{
		NucleiPath: e.Config.Tools.Nuclei.Path,
		Severity:   "critical,high,medium,low,info",
		Threads:    e.Config.RateLimits.NucleiThreads,
		RateLimit:  sc.Profile.NucleiRateLimit,
	})
	if err != nil {
		return nil, classifyToolError("nuclei_scan", err)
	}

	for _, f := range result.Findings {
		if err := e.Store.AddFinding(f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
		}
		if e.Triage != nil {
			verdict := e.Triage.Triage(ctx, f)
			if verdict.Rationale != "" {
				sev := verdict.Severity
				if sev == "" {
					sev = f.Severity
				}
				if err := e.Store.UpdateFindingTriage(f.ID, verdict.FalsePositive, sev, verdict.Rationale); err != nil {
					fmt.Printf("[!] Warning: could not record triage verdict for finding %s: %v\n", f.ID, err)
				}
			}
		}
	}

	return json.Marshal(result)
}

// liveProbeURLs derives a flat URL list from the endpoints table, keeping
// only rows the http_probe stage recorded; the cached http_probe result is
// not consulted.
func liveProbeURLs(e *Engine, scanID string) ([]string, error) {
	endpoints, err := e.Store.ListEndpoints(scanID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailure, err)
	}
	urls := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Source == "http_probe" {
			urls = append(urls, ep.URL)
		}
	}
	return urls, nil
}

// cachedProbes recovers the http_probe stage's []models.HTTPProbe from the
// checkpoint-backed results cache.
func cachedProbes(e *Engine, sc *StageContext) ([]models.HTTPProbe, error) {
	raw, ok := sc.Cache["http_probe"]
	if !ok {
		return nil, nil
	}
	var hpResult httpprobe.HTTPProbeResult
	if err := json.Unmarshal(raw, &hpResult); err != nil {
		return nil, fmt.Errorf("stageengine: decoding cached http_probe result: %w", err)
	}
	return hpResult.Probes, nil
}
