package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
)

// RunWaybackurls executes waybackurls for the given domain and returns the
// historical URLs the Wayback Machine has archived for it and its
// subdomains. Output is plain text, one URL per line.
func RunWaybackurls(ctx context.Context, domain string, binaryPath string) ([]string, error) {
	binary := "waybackurls"
	if binaryPath != "" {
		binary = binaryPath
	}

	result, err := RunTool(ctx, binary, domain)
	if err != nil {
		return nil, fmt.Errorf("waybackurls execution failed: %w", err)
	}

	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(result.Stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waybackurls output: %w", err)
	}
	return urls, nil
}
