package orchestrator

import (
	"context"
	"encoding/json"
)

// Request is one conversational turn submitted by a caller. Each request is
// stateless: it carries its full history. History entries stay in wire form
// until the request builder normalizes them; clients have shipped several
// tool-call field layouts over time and the coercion lives in one place.
type Request struct {
	Prompt       string
	ImageURL     string
	SystemPrompt string
	History      []json.RawMessage
	// ToolOptions is opaque per-request configuration forwarded to tool
	// implementations through the invocation context.
	ToolOptions map[string]any
	Options     RequestOptions
}

// RequestOptions overrides provider settings for a single request. Zero
// values fall through to the configured defaults.
type RequestOptions struct {
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// ToolCallSummary is the caller-facing view of one tool call the model
// issued over the turn.
type ToolCallSummary struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolResultSummary is the caller-facing view of one tool invocation.
type ToolResultSummary struct {
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Content  string `json:"content"`
}

// Output is the final result of a request.
type Output struct {
	Content      string              `json:"content"`
	ImageDataURI string              `json:"image_data_uri,omitempty"`
	Model        string              `json:"model"`
	ToolCalls    []ToolCallSummary   `json:"tool_calls"`
	ToolResults  []ToolResultSummary `json:"tool_results"`
}

// ToolRegistry is the orchestrator's view of the tool bridge.
type ToolRegistry interface {
	Find(ctx context.Context, name string) (RegistryTool, bool)
	ListAll(ctx context.Context) ([]RegistryTool, error)
	Close() error
}

// RegistryTool is a single callable tool.
type RegistryTool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
	ParameterSchema() map[string]any
}
