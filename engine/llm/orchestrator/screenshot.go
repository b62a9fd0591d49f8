package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// screenshotRecovery patches over a common model failure: the user asked to
// see a page, the model navigated there, then answered in prose without ever
// capturing the screen. When that happens the loop takes one screenshot on
// the model's behalf, out of band, so the post-processor can extract the
// image during finalization. The pass runs at most once per request.
type screenshotRecovery struct {
	registry ToolRegistry
	executor ToolExecutor
	delay    time.Duration
}

func newScreenshotRecovery(registry ToolRegistry, executor ToolExecutor, cfg settings) *screenshotRecovery {
	return &screenshotRecovery{registry: registry, executor: executor, delay: cfg.screenshotDelay}
}

var screenshotIntentPhrases = []string{
	"screenshot",
	"screen shot",
	"capture the page",
	"capture the screen",
}

// wantsScreenshot reports whether the prompt asks for a visual of a page.
func wantsScreenshot(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, phrase := range screenshotIntentPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if strings.Contains(lower, "show me") || strings.Contains(lower, "look like") {
		for _, subject := range []string{"page", "site", "website", ".com", ".org", ".net"} {
			if strings.Contains(lower, subject) {
				return true
			}
		}
	}
	return false
}

func isNavigationTool(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "navigate") || strings.Contains(lower, "goto") || strings.Contains(lower, "open_url")
}

func isScreenshotTool(name string) bool {
	return strings.Contains(strings.ToLower(name), "screenshot")
}

func (r *screenshotRecovery) shouldInject(state *loopState) bool {
	if state == nil {
		return false
	}
	return state.wantsScreenshot && state.navigated && !state.screenshotTaken && !state.screenshotInjected
}

// inject performs the recovery: wait for the page to settle, run the
// screenshot tool, and record the synthetic call and its result in the
// accumulated loop state. No further model call is made; the result exists
// for the post-processor. Returns false when recovery could not run.
func (r *screenshotRecovery) inject(ctx context.Context, loopCtx *LoopContext) bool {
	log := logger.FromContext(ctx)
	loopCtx.State.screenshotInjected = true

	toolName := r.findScreenshotTool(ctx)
	if toolName == "" {
		log.Debug("No screenshot tool available for recovery")
		return false
	}
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return false
		}
	}
	call := llmadapter.ToolCall{
		ID:        "call_" + uuid.NewString(),
		Name:      toolName,
		Arguments: json.RawMessage("{}"),
	}
	results, err := r.executor.Execute(ctx, []llmadapter.ToolCall{call})
	if err != nil || len(results) == 0 {
		log.Warn("Screenshot recovery failed", "tool", toolName, "error", err)
		return false
	}
	log.Info("Injected recovery screenshot", "tool", toolName)
	loopCtx.State.recordRound([]llmadapter.ToolCall{call}, results)
	return true
}

func (r *screenshotRecovery) findScreenshotTool(ctx context.Context) string {
	tools, err := r.registry.ListAll(ctx)
	if err != nil {
		logger.FromContext(ctx).Debug("Tool listing failed during screenshot recovery", "error", err)
		return ""
	}
	for _, t := range tools {
		if isScreenshotTool(t.Name()) {
			return t.Name()
		}
	}
	return ""
}
