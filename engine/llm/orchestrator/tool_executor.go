package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/loopline-ai/loopline/engine/core"
	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// ToolExecutionResult is the JSON envelope returned to the model when a
// tool invocation fails. Failures are content: the model sees the error and
// decides how to proceed, the loop keeps running.
type ToolExecutionResult struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ToolError `json:"error,omitempty"`
}

type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type ToolExecutor interface {
	Execute(ctx context.Context, toolCalls []llmadapter.ToolCall) ([]llmadapter.ToolResult, error)
}

type toolExecutor struct {
	registry ToolRegistry
	cfg      settings
}

func NewToolExecutor(registry ToolRegistry, cfg settings) ToolExecutor {
	return &toolExecutor{registry: registry, cfg: cfg}
}

// Execute runs every tool call concurrently, bounded by the configured
// limit. Results land at the index of their originating call so the
// reply order matches the model's call order regardless of completion
// order. Individual failures never abort the batch; only context
// cancellation does.
func (e *toolExecutor) Execute(ctx context.Context, toolCalls []llmadapter.ToolCall) ([]llmadapter.ToolResult, error) {
	if len(toolCalls) == 0 {
		return nil, nil
	}
	log := logger.FromContext(ctx)
	log.Debug("Executing tool calls", "tool_calls_count", len(toolCalls), "tools", extractToolNames(toolCalls))

	limit := e.cfg.maxConcurrentTools
	if limit <= 0 {
		limit = defaultMaxConcurrentTools
	}
	sem := make(chan struct{}, limit)
	results := make([]llmadapter.ToolResult, len(toolCalls))
	g, ctx := errgroup.WithContext(ctx)

	for i := range toolCalls {
		i := i
		call := toolCalls[i]
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}
			results[i] = e.executeSingle(ctx, call)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug("All tool calls completed", "results_count", len(results))
	return results, nil
}

func (e *toolExecutor) executeSingle(ctx context.Context, call llmadapter.ToolCall) llmadapter.ToolResult {
	log := logger.FromContext(ctx)

	t, found := e.registry.Find(ctx, call.Name)
	if !found || t == nil {
		log.Debug("Tool not found", "tool_name", call.Name, "tool_call_id", call.ID)
		return errorResult(call, ToolError{
			Code:    ErrCodeToolExecution,
			Message: fmt.Sprintf("tool not found: %s", call.Name),
		})
	}

	log.Debug("Executing tool", "tool_name", call.Name, "tool_call_id", call.ID)
	raw, err := t.Call(ctx, string(call.Arguments))
	if err != nil {
		log.Debug(
			"Tool execution failed",
			"tool_name", call.Name,
			"tool_call_id", call.ID,
			"error", core.RedactError(err),
		)
		return errorResult(call, ToolError{
			Code:    ErrCodeToolExecution,
			Message: "Tool execution failed",
			Details: core.RedactError(err),
		})
	}

	var jsonContent json.RawMessage
	if json.Valid([]byte(raw)) {
		jsonContent = json.RawMessage(raw)
	}
	return llmadapter.ToolResult{ID: call.ID, Name: call.Name, Content: raw, JSONContent: jsonContent}
}

func errorResult(call llmadapter.ToolCall, toolErr ToolError) llmadapter.ToolResult {
	envelope := ToolExecutionResult{Success: false, Error: &toolErr}
	b, err := json.Marshal(envelope)
	if err != nil {
		fallback := `{"success":false,"error":{"code":"TOOL_EXECUTION_ERROR","message":"Tool execution failed"}}`
		return llmadapter.ToolResult{ID: call.ID, Name: call.Name, Content: fallback}
	}
	return llmadapter.ToolResult{ID: call.ID, Name: call.Name, Content: string(b), JSONContent: json.RawMessage(b)}
}

func extractToolNames(toolCalls []llmadapter.ToolCall) []string {
	names := make([]string, len(toolCalls))
	for i, call := range toolCalls {
		names[i] = call.Name
	}
	return names
}
