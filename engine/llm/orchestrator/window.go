package orchestrator

import (
	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
)

// WindowMessages trims history to at most the last maxRecent messages while
// keeping tool-call/tool-result pairs intact. The start of the naive tail
// slice is walked backward while it lands on a tool message, so a tool
// result never enters the window without the assistant message that
// requested it. If the adjusted window then opens on an assistant message
// carrying tool calls, the user message immediately before it (when there
// is one) is pulled in as well for context continuity.
//
// The function is pure: it returns a contiguous tail of the input in
// original order and never inspects content beyond roles and tool-call
// presence.
func WindowMessages(history []llmadapter.Message, maxRecent int) []llmadapter.Message {
	if maxRecent <= 0 {
		maxRecent = defaultHistoryWindow
	}
	if len(history) <= maxRecent {
		return history
	}
	start := len(history) - maxRecent
	for start > 0 && history[start].Role == llmadapter.RoleTool {
		start--
	}
	if start > 0 &&
		history[start].Role == llmadapter.RoleAssistant &&
		len(history[start].ToolCalls) > 0 &&
		history[start-1].Role == llmadapter.RoleUser {
		start--
	}
	return history[start:]
}
