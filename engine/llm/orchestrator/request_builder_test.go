package orchestrator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
)

func rawHistory(entries ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, json.RawMessage(e))
	}
	return out
}

// encodeWire renders a canonical message back into the canonical wire shape,
// so normalization can be checked for idempotence.
func encodeWire(t *testing.T, msg llmadapter.Message) json.RawMessage {
	t.Helper()
	entry := map[string]any{"role": msg.Role}
	switch msg.Role {
	case llmadapter.RoleTool:
		require.Len(t, msg.ToolResults, 1)
		entry["tool_call_id"] = msg.ToolResults[0].ID
		entry["name"] = msg.ToolResults[0].Name
		entry["content"] = msg.ToolResults[0].Content
	default:
		entry["content"] = msg.Content
		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				calls = append(calls, map[string]any{
					"id":   call.ID,
					"type": "function",
					"function": map[string]any{
						"name":      call.Name,
						"arguments": string(call.Arguments),
					},
				})
			}
			entry["tool_calls"] = calls
		}
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	return data
}

func TestNormalizeHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("Should normalize flat legacy tool call fields", func(t *testing.T) {
		history := rawHistory(
			`{"role":"assistant","content":"","tool_calls":[{"call_id":"abc","tool_name":"browser","args":{"url":"https://example.com"}}]}`,
		)
		got := NormalizeHistory(ctx, history)
		require.Len(t, got, 1)
		require.Len(t, got[0].ToolCalls, 1)
		call := got[0].ToolCalls[0]
		assert.Equal(t, "abc", call.ID)
		assert.Equal(t, "browser", call.Name)
		assert.JSONEq(t, `{"url":"https://example.com"}`, string(call.Arguments))
	})

	t.Run("Should normalize function-nested tool calls with string arguments", func(t *testing.T) {
		history := rawHistory(
			`{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"search","arguments":"{\"q\":\"go\"}"}}]}`,
		)
		got := NormalizeHistory(ctx, history)
		require.Len(t, got, 1)
		call := got[0].ToolCalls[0]
		assert.Equal(t, "call_1", call.ID)
		assert.Equal(t, "search", call.Name)
		assert.JSONEq(t, `{"q":"go"}`, string(call.Arguments))
	})

	t.Run("Should synthesize a call id when none is present", func(t *testing.T) {
		history := rawHistory(
			`{"role":"assistant","tool_calls":[{"function":{"name":"search","arguments":"{}"}}]}`,
		)
		got := NormalizeHistory(ctx, history)
		require.Len(t, got, 1)
		require.Len(t, got[0].ToolCalls, 1)
		assert.True(t, strings.HasPrefix(got[0].ToolCalls[0].ID, "call_"))
	})

	t.Run("Should accept call id aliases on tool messages", func(t *testing.T) {
		history := rawHistory(
			`{"role":"tool","call_id":"abc","tool_name":"browser","result":{"ok":true}}`,
		)
		got := NormalizeHistory(ctx, history)
		require.Len(t, got, 1)
		require.Len(t, got[0].ToolResults, 1)
		res := got[0].ToolResults[0]
		assert.Equal(t, "abc", res.ID)
		assert.Equal(t, "browser", res.Name)
		assert.JSONEq(t, `{"ok":true}`, res.Content)
	})

	t.Run("Should drop tool messages without a resolvable call id", func(t *testing.T) {
		history := rawHistory(
			`{"role":"user","content":"hi"}`,
			`{"role":"tool","content":"orphan"}`,
		)
		got := NormalizeHistory(ctx, history)
		require.Len(t, got, 1)
		assert.Equal(t, llmadapter.RoleUser, got[0].Role)
	})

	t.Run("Should skip system messages and unknown roles", func(t *testing.T) {
		history := rawHistory(
			`{"role":"system","content":"be nice"}`,
			`{"role":"robot","content":"beep"}`,
			`{"role":"user","content":"hi"}`,
		)
		got := NormalizeHistory(ctx, history)
		require.Len(t, got, 1)
		assert.Equal(t, llmadapter.RoleUser, got[0].Role)
	})

	t.Run("Should attach image parts to user messages", func(t *testing.T) {
		history := rawHistory(
			`{"role":"user","content":"look","image_url":"https://example.com/a.png"}`,
		)
		got := NormalizeHistory(ctx, history)
		require.Len(t, got, 1)
		require.Len(t, got[0].Parts, 2)
		assert.Equal(t, llmadapter.TextPart{Text: "look"}, got[0].Parts[0])
		assert.Equal(t, llmadapter.ImageURLPart{URL: "https://example.com/a.png"}, got[0].Parts[1])
	})

	t.Run("Should be idempotent on already-canonical history", func(t *testing.T) {
		history := rawHistory(
			`{"role":"user","content":"open example.com"}`,
			`{"role":"assistant","content":"","tool_calls":[{"id":"call_9","function":{"name":"browser_navigate","arguments":"{\"url\":\"https://example.com\"}"}}]}`,
			`{"role":"tool","tool_call_id":"call_9","name":"browser_navigate","content":"ok"}`,
			`{"role":"assistant","content":"done"}`,
		)
		first := NormalizeHistory(ctx, history)
		reencoded := make([]json.RawMessage, 0, len(first))
		for _, msg := range first {
			reencoded = append(reencoded, encodeWire(t, msg))
		}
		second := NormalizeHistory(ctx, reencoded)
		require.Len(t, second, len(first))
		for i := range first {
			assert.Equal(t, first[i].Role, second[i].Role)
			assert.Equal(t, first[i].Content, second[i].Content)
			require.Len(t, second[i].ToolCalls, len(first[i].ToolCalls))
			for j := range first[i].ToolCalls {
				assert.Equal(t, first[i].ToolCalls[j].ID, second[i].ToolCalls[j].ID)
				assert.Equal(t, first[i].ToolCalls[j].Name, second[i].ToolCalls[j].Name)
				assert.JSONEq(t, string(first[i].ToolCalls[j].Arguments), string(second[i].ToolCalls[j].Arguments))
			}
			assert.Equal(t, first[i].ToolResults, second[i].ToolResults)
		}
	})
}

func TestDropOrphanToolMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("Should keep tool results paired with the preceding assistant", func(t *testing.T) {
		messages := []llmadapter.Message{
			{Role: llmadapter.RoleAssistant, ToolCalls: []llmadapter.ToolCall{{ID: "a", Name: "t"}}},
			{Role: llmadapter.RoleTool, ToolResults: []llmadapter.ToolResult{{ID: "a", Name: "t", Content: "ok"}}},
		}
		got := dropOrphanToolMessages(ctx, messages)
		assert.Equal(t, messages, got)
	})

	t.Run("Should drop tool results whose assistant was truncated away", func(t *testing.T) {
		messages := []llmadapter.Message{
			{Role: llmadapter.RoleUser, Content: "hi"},
			{Role: llmadapter.RoleTool, ToolResults: []llmadapter.ToolResult{{ID: "stale", Content: "ok"}}},
			{Role: llmadapter.RoleAssistant, Content: "hello"},
		}
		got := dropOrphanToolMessages(ctx, messages)
		require.Len(t, got, 2)
		assert.Equal(t, llmadapter.RoleUser, got[0].Role)
		assert.Equal(t, llmadapter.RoleAssistant, got[1].Role)
	})

	t.Run("Should drop results referencing unknown call ids", func(t *testing.T) {
		messages := []llmadapter.Message{
			{Role: llmadapter.RoleAssistant, ToolCalls: []llmadapter.ToolCall{{ID: "a"}}},
			{Role: llmadapter.RoleTool, ToolResults: []llmadapter.ToolResult{{ID: "b", Content: "ok"}}},
		}
		got := dropOrphanToolMessages(ctx, messages)
		require.Len(t, got, 1)
		assert.Equal(t, llmadapter.RoleAssistant, got[0].Role)
	})
}

func TestRequestBuilderBuild(t *testing.T) {
	ctx := context.Background()
	builder := NewRequestBuilder(buildSettings(&Config{}))

	t.Run("Should append the user turn after normalized history", func(t *testing.T) {
		req := &Request{
			Prompt:       "and now?",
			SystemPrompt: "you are terse",
			History: rawHistory(
				`{"role":"user","content":"hi"}`,
				`{"role":"assistant","content":"hello"}`,
			),
		}
		llmReq, err := builder.Build(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "you are terse", llmReq.SystemPrompt)
		require.Len(t, llmReq.Messages, 3)
		assert.Equal(t, "hi", llmReq.Messages[0].Content)
		assert.Equal(t, "hello", llmReq.Messages[1].Content)
		last := llmReq.Messages[2]
		assert.Equal(t, llmadapter.RoleUser, last.Role)
		assert.Equal(t, "and now?", last.Content)
	})

	t.Run("Should build multimodal parts for an image request", func(t *testing.T) {
		req := &Request{
			Prompt:   "what is on this page",
			ImageURL: "data:image/png;base64,AAAA",
		}
		llmReq, err := builder.Build(ctx, req)
		require.NoError(t, err)
		require.Len(t, llmReq.Messages, 1)
		require.Len(t, llmReq.Messages[0].Parts, 2)
		assert.Equal(t, llmadapter.ImageURLPart{URL: "data:image/png;base64,AAAA"}, llmReq.Messages[0].Parts[1])
	})

	t.Run("Should build an image-only user message without a text part", func(t *testing.T) {
		req := &Request{ImageURL: "https://example.com/a.png"}
		llmReq, err := builder.Build(ctx, req)
		require.NoError(t, err)
		require.Len(t, llmReq.Messages, 1)
		require.Len(t, llmReq.Messages[0].Parts, 1)
	})
}
