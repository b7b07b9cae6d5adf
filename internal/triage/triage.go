// Package triage implements the LLM Triage Adapter (C8): a best-effort
// second pass over raw findings that asks a language model whether each
// one looks like a false positive, and if not, sanity-checks its severity.
// Selects a model by currently available memory, coalesces switches under
// an idle-unload timer, and never surfaces an error to the Stage Engine —
// a triage failure degrades to "leave the finding as-is".
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/pbnjay/memory"
	"go.uber.org/zap"

	"github.com/hakim/reconcore/internal/config"
	"github.com/hakim/reconcore/internal/models"
)

// Result is the adapter's verdict for one finding.
type Result struct {
	FalsePositive bool
	Severity      models.Severity
	Rationale     string
}

// Adapter wraps an Anthropic client with memory-aware model selection and
// idle-unload bookkeeping.
type Adapter struct {
	client *anthropic.Client
	cfg    config.TriageConfig
	log    *zap.SugaredLogger

	mu           sync.Mutex
	currentModel string
	idleTimer    *time.Timer
	idleAfter    time.Duration
}

// New constructs an Adapter. Disabled per cfg.Disabled short-circuits every
// Triage call to a no-op zero Result.
func New(cfg config.TriageConfig, log *zap.SugaredLogger) *Adapter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	idleAfter, err := time.ParseDuration(cfg.IdleUnloadAfter)
	if err != nil || idleAfter <= 0 {
		idleAfter = 5 * time.Minute
	}
	return &Adapter{
		client:    anthropic.NewClient(),
		cfg:       cfg,
		log:       log,
		idleAfter: idleAfter,
	}
}

// autoScale selects the model to use for this call based on currently
// available system memory, mirroring select_optimal_model's
// largest-fitting-model-wins policy: among the configured tiers whose
// threshold the current available memory clears, the one with the highest
// threshold wins. The lowest-threshold tier is the floor — it always
// qualifies — so a correctly configured tier list never comes up empty.
func (a *Adapter) autoScale() string {
	tiers := a.cfg.Models
	if len(tiers) == 0 {
		return "claude-sonnet-4-5-20250929"
	}

	availMB := int64(memory.FreeMemory() / (1024 * 1024))

	floor := tiers[0]
	best := tiers[0]
	qualified := false
	for _, t := range tiers {
		if t.ThresholdMB < floor.ThresholdMB {
			floor = t
		}
		if availMB >= t.ThresholdMB && (!qualified || t.ThresholdMB > best.ThresholdMB) {
			best = t
			qualified = true
		}
	}
	if !qualified {
		// availMB couldn't clear any threshold (e.g. FreeMemory() returned 0,
		// unsupported on this platform) — fall back to the lowest tier.
		return floor.Model
	}
	return best.Model
}

// switchModel records the model this call will use and resets the idle
// unload timer, idempotently — concurrent calls racing on the same model
// only ever do one log line's worth of switching work.
func (a *Adapter) switchModel(model string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.currentModel != model {
		a.log.Infow("triage: switching model", "from", a.currentModel, "to", model)
		a.currentModel = model
	}

	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	a.idleTimer = time.AfterFunc(a.idleAfter, a.unload)
}

func (a *Adapter) unload() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentModel != "" {
		a.log.Infow("triage: unloading idle model", "model", a.currentModel)
		a.currentModel = ""
	}
}

// triageResponse is the structured shape the prompt asks the model to
// return, so the reply can be parsed without a free-form regex scrape.
type triageResponse struct {
	FalsePositive bool   `json:"false_positive"`
	Severity      string `json:"severity"`
	Rationale     string `json:"rationale"`
}

// Triage asks the model to review one finding's evidence. Best-effort: any
// failure (network, malformed reply, disabled adapter) returns the zero
// Result and a nil error — callers never need to branch on triage failing.
func (a *Adapter) Triage(ctx context.Context, f *models.Finding) Result {
	if a.cfg.Disabled || f == nil {
		return Result{}
	}

	model := a.autoScale()
	a.switchModel(model)

	prompt := fmt.Sprintf(`You are reviewing an automated vulnerability scan finding for false positives.

Title: %s
Severity: %s
URL: %s
Parameter: %s
Evidence: %s
Tool: %s

Reply with a single JSON object: {"false_positive": bool, "severity": "critical|high|medium|low|info", "rationale": "one sentence"}`,
		f.Title, f.Severity, f.URL, f.Parameter, f.Evidence, f.ToolSource)

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		a.log.Warnw("triage: model call failed", "finding", f.ID, "error", err)
		return Result{}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	var parsed triageResponse
	if err := json.Unmarshal([]byte(extractJSON(text.String())), &parsed); err != nil {
		a.log.Warnw("triage: malformed model reply", "finding", f.ID, "error", err)
		return Result{}
	}

	return Result{
		FalsePositive: parsed.FalsePositive,
		Severity:      models.Severity(parsed.Severity),
		Rationale:     parsed.Rationale,
	}
}

// extractJSON trims any leading/trailing prose around a JSON object, since
// models occasionally wrap their answer in a sentence despite instructions.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
