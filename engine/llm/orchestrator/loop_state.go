package orchestrator

import (
	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
)

// loopState accumulates what happened across loop iterations: every tool
// call the model issued, every result that came back, and the bookkeeping
// for the one-shot screenshot recovery pass.
type loopState struct {
	toolCalls   []llmadapter.ToolCall
	toolResults []llmadapter.ToolResult

	wantsScreenshot    bool
	navigated          bool
	screenshotTaken    bool
	screenshotInjected bool
}

func newLoopState(wantsScreenshot bool) *loopState {
	return &loopState{wantsScreenshot: wantsScreenshot}
}

func (s *loopState) recordRound(calls []llmadapter.ToolCall, results []llmadapter.ToolResult) {
	s.toolCalls = append(s.toolCalls, calls...)
	s.toolResults = append(s.toolResults, results...)
	for _, call := range calls {
		if isNavigationTool(call.Name) {
			s.navigated = true
		}
		if isScreenshotTool(call.Name) {
			s.screenshotTaken = true
		}
	}
}

func (s *loopState) callSummaries() []ToolCallSummary {
	out := make([]ToolCallSummary, 0, len(s.toolCalls))
	for _, c := range s.toolCalls {
		out = append(out, ToolCallSummary{
			ID:        c.ID,
			Name:      c.Name,
			Arguments: c.Arguments,
		})
	}
	return out
}

func (s *loopState) summaries() []ToolResultSummary {
	out := make([]ToolResultSummary, 0, len(s.toolResults))
	for _, r := range s.toolResults {
		out = append(out, ToolResultSummary{
			CallID:   r.ID,
			ToolName: r.Name,
			Content:  r.Content,
		})
	}
	return out
}
