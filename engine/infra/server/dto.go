package server

import (
	"encoding/json"

	"github.com/loopline-ai/loopline/engine/llm/orchestrator"
)

// ChatRequest is the wire shape of one conversational turn. History entries
// stay raw so the orchestrator can normalize legacy layouts itself.
type ChatRequest struct {
	Prompt       string            `json:"prompt"`
	ImageURL     string            `json:"image_url,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	History      []json.RawMessage `json:"history,omitempty"`
	ToolOptions  map[string]any    `json:"tool_options,omitempty"`
	Options      ChatOptions       `json:"options,omitempty"`
}

type ChatOptions struct {
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

func (r *ChatRequest) toOrchestratorRequest() orchestrator.Request {
	return orchestrator.Request{
		Prompt:       r.Prompt,
		ImageURL:     r.ImageURL,
		SystemPrompt: r.SystemPrompt,
		History:      r.History,
		ToolOptions:  r.ToolOptions,
		Options: orchestrator.RequestOptions{
			Model:       r.Options.Model,
			APIKey:      r.Options.APIKey,
			BaseURL:     r.Options.BaseURL,
			Temperature: r.Options.Temperature,
			MaxTokens:   r.Options.MaxTokens,
		},
	}
}

// ChatResponse is returned only for fully successful turns; failures carry
// an ErrorResponse instead, never partial results.
type ChatResponse struct {
	Content      string                           `json:"content"`
	ImageDataURI string                           `json:"image_data_uri,omitempty"`
	Model        string                           `json:"model"`
	ToolCalls    []orchestrator.ToolCallSummary   `json:"tool_calls,omitempty"`
	ToolResults  []orchestrator.ToolResultSummary `json:"tool_results,omitempty"`
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}
