package orchestrator

import (
	"github.com/loopline-ai/loopline/engine/core"
)

const (
	ErrCodeLLMGeneration   = "LLM_GENERATION_ERROR"
	ErrCodeToolExecution   = "TOOL_EXECUTION_ERROR"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidConfig   = "INVALID_CONFIGURATION"
	ErrCodeLoopInterrupted = "LOOP_INTERRUPTED"
)

func NewLLMError(err error, code string, details map[string]any) error {
	return core.NewError(err, code, details)
}

func NewValidationError(err error, field string, value any) error {
	return core.NewError(err, ErrCodeInvalidRequest, map[string]any{
		"field": field,
		"value": value,
	})
}
