package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FfufResultEntry is a single hit from ffuf's JSON report.
type FfufResultEntry struct {
	URL             string `json:"url"`
	Status          int    `json:"status"`
	Length          int64  `json:"length"`
	ContentType     string `json:"content-type"`
	Words           int    `json:"words"`
	Lines           int    `json:"lines"`
	ResultFile      string `json:"resultfile"`
	Input           map[string]string `json:"input"`
}

type ffufReport struct {
	Results []FfufResultEntry `json:"results"`
}

// RunFfuf fuzzes baseURL with wordlist, substituting FUZZ, and returns the
// entries ffuf reports after status-code filtering. It writes ffuf's JSON
// report to a temp file (ffuf's -o/-of pairing) rather than parsing stdout,
// matching how the other file-output tool adapters in this package work.
func RunFfuf(ctx context.Context, baseURL, wordlist string, matchCodes string, rate int, binaryPath string) ([]FfufResultEntry, error) {
	binary := "ffuf"
	if binaryPath != "" {
		binary = binaryPath
	}
	if rate <= 0 {
		rate = 150
	}
	if matchCodes == "" {
		matchCodes = "200,204,301,302,307,401,403,405"
	}

	outputFile, err := os.CreateTemp("", "ffuf-output-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create output temp file: %w", err)
	}
	outputFile.Close()
	defer os.Remove(outputFile.Name())

	args := []string{
		"-u", baseURL,
		"-w", wordlist,
		"-mc", matchCodes,
		"-rate", fmt.Sprintf("%d", rate),
		"-of", "json",
		"-o", outputFile.Name(),
		"-s",
	}

	_, err = RunTool(ctx, binary, args...)
	if err != nil {
		return nil, fmt.Errorf("ffuf execution failed: %w", err)
	}

	data, err := os.ReadFile(outputFile.Name())
	if err != nil {
		if os.IsNotExist(err) {
			return []FfufResultEntry{}, nil
		}
		return nil, fmt.Errorf("failed to read ffuf output: %w", err)
	}
	if len(data) == 0 {
		return []FfufResultEntry{}, nil
	}

	var report ffufReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse ffuf JSON: %w", err)
	}
	return report.Results, nil
}
