package llm

import (
	"encoding/json"
	"strings"
)

// Error codes for tool operations
const (
	ErrCodeToolExecution    = "TOOL_EXECUTION_ERROR"
	ErrCodeToolInvalidInput = "TOOL_INVALID_INPUT"
	ErrCodeMCPConnection    = "MCP_CONNECTION_ERROR"
	ErrCodeInvalidConfig    = "INVALID_CONFIGURATION"
)

// ToolExecutionResult represents the result of a tool execution
type ToolExecutionResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   *ToolError     `json:"error,omitempty"`
}

// ToolError represents a structured tool execution error
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// IsToolExecutionError checks if a tool result indicates an error
func IsToolExecutionError(result string) (*ToolError, bool) {
	var structuredResult ToolExecutionResult
	if err := json.Unmarshal([]byte(result), &structuredResult); err == nil {
		if !structuredResult.Success && structuredResult.Error != nil {
			return structuredResult.Error, true
		}
		return nil, false
	}
	if containsErrorIndicators(result) {
		return &ToolError{
			Code:    ErrCodeToolExecution,
			Message: "Tool execution failed",
			Details: result,
		}, true
	}
	return nil, false
}

func containsErrorIndicators(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range []string{
		"error:",
		"failed:",
		"failure:",
		"exception:",
		"not found:",
		"unauthorized:",
	} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
