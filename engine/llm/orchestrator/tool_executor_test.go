package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
)

type stubTool struct {
	name        string
	description string
	schema      map[string]any
	call        func(ctx context.Context, input string) (string, error)
}

func (t *stubTool) Name() string                    { return t.name }
func (t *stubTool) Description() string             { return t.description }
func (t *stubTool) ParameterSchema() map[string]any { return t.schema }
func (t *stubTool) Call(ctx context.Context, input string) (string, error) {
	return t.call(ctx, input)
}

type stubRegistry struct {
	tools []RegistryTool
}

func (r *stubRegistry) Find(_ context.Context, name string) (RegistryTool, bool) {
	for _, t := range r.tools {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

func (r *stubRegistry) ListAll(context.Context) ([]RegistryTool, error) {
	out := make([]RegistryTool, len(r.tools))
	copy(out, r.tools)
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (r *stubRegistry) Close() error { return nil }

func TestToolExecutorExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return nil for an empty batch", func(t *testing.T) {
		executor := NewToolExecutor(&stubRegistry{}, buildSettings(&Config{}))
		results, err := executor.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, results)
	})

	t.Run("Should keep results in call order", func(t *testing.T) {
		registry := &stubRegistry{tools: []RegistryTool{
			&stubTool{name: "echo", call: func(_ context.Context, input string) (string, error) {
				return input, nil
			}},
		}}
		executor := NewToolExecutor(registry, buildSettings(&Config{MaxConcurrentTools: 2}))
		calls := make([]llmadapter.ToolCall, 8)
		for i := range calls {
			calls[i] = llmadapter.ToolCall{
				ID:        fmt.Sprintf("call_%d", i),
				Name:      "echo",
				Arguments: json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
			}
		}
		results, err := executor.Execute(ctx, calls)
		require.NoError(t, err)
		require.Len(t, results, 8)
		for i, result := range results {
			assert.Equal(t, fmt.Sprintf("call_%d", i), result.ID)
			assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), result.Content)
		}
	})

	t.Run("Should isolate a failing tool from the rest of the batch", func(t *testing.T) {
		registry := &stubRegistry{tools: []RegistryTool{
			&stubTool{name: "ok", call: func(context.Context, string) (string, error) {
				return `{"done":true}`, nil
			}},
			&stubTool{name: "boom", call: func(context.Context, string) (string, error) {
				return "", errors.New("kaboom")
			}},
		}}
		executor := NewToolExecutor(registry, buildSettings(&Config{}))
		calls := []llmadapter.ToolCall{
			{ID: "1", Name: "ok", Arguments: json.RawMessage("{}")},
			{ID: "2", Name: "boom", Arguments: json.RawMessage("{}")},
			{ID: "3", Name: "ok", Arguments: json.RawMessage("{}")},
		}
		results, err := executor.Execute(ctx, calls)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.JSONEq(t, `{"done":true}`, results[0].Content)
		assert.JSONEq(t, `{"done":true}`, results[2].Content)

		var envelope ToolExecutionResult
		require.NoError(t, json.Unmarshal([]byte(results[1].Content), &envelope))
		assert.False(t, envelope.Success)
		require.NotNil(t, envelope.Error)
		assert.Equal(t, ErrCodeToolExecution, envelope.Error.Code)
		assert.Contains(t, envelope.Error.Details, "kaboom")
	})

	t.Run("Should report an unknown tool as an error result", func(t *testing.T) {
		executor := NewToolExecutor(&stubRegistry{}, buildSettings(&Config{}))
		results, err := executor.Execute(ctx, []llmadapter.ToolCall{
			{ID: "1", Name: "missing", Arguments: json.RawMessage("{}")},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		var envelope ToolExecutionResult
		require.NoError(t, json.Unmarshal([]byte(results[0].Content), &envelope))
		assert.False(t, envelope.Success)
		assert.Contains(t, envelope.Error.Message, "missing")
	})

	t.Run("Should bound concurrency at the configured limit", func(t *testing.T) {
		var mu sync.Mutex
		active, peak := 0, 0
		registry := &stubRegistry{tools: []RegistryTool{
			&stubTool{name: "probe", call: func(context.Context, string) (string, error) {
				mu.Lock()
				active++
				if active > peak {
					peak = active
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return "{}", nil
			}},
		}}
		executor := NewToolExecutor(registry, buildSettings(&Config{MaxConcurrentTools: 2}))
		calls := make([]llmadapter.ToolCall, 10)
		for i := range calls {
			calls[i] = llmadapter.ToolCall{ID: fmt.Sprintf("call_%d", i), Name: "probe", Arguments: json.RawMessage("{}")}
		}
		_, err := executor.Execute(ctx, calls)
		require.NoError(t, err)
		assert.LessOrEqual(t, peak, 2)
	})
}
