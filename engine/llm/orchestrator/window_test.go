package orchestrator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
)

func msg(role string, toolCalls int) llmadapter.Message {
	m := llmadapter.Message{Role: role, Content: role}
	for i := 0; i < toolCalls; i++ {
		m.ToolCalls = append(m.ToolCalls, llmadapter.ToolCall{
			ID:   fmt.Sprintf("call_%d", i),
			Name: "tool",
		})
	}
	return m
}

func TestWindowMessages(t *testing.T) {
	t.Run("Should return short histories unchanged", func(t *testing.T) {
		history := []llmadapter.Message{msg("user", 0), msg("assistant", 0)}
		got := WindowMessages(history, 20)
		assert.Equal(t, history, got)
	})

	t.Run("Should take the naive tail when no pair is split", func(t *testing.T) {
		var history []llmadapter.Message
		for i := 0; i < 10; i++ {
			history = append(history, msg("user", 0), msg("assistant", 0))
		}
		got := WindowMessages(history, 4)
		require.Len(t, got, 4)
		assert.Equal(t, history[16:], got)
	})

	t.Run("Should walk back over tool messages at the window start", func(t *testing.T) {
		history := []llmadapter.Message{
			msg("user", 0),      // 0
			msg("assistant", 2), // 1  requests two tools
			msg("tool", 0),      // 2
			msg("tool", 0),      // 3
			msg("assistant", 0), // 4
		}
		// Naive window of 3 starts at the second tool message.
		got := WindowMessages(history, 3)
		assert.NotEqual(t, llmadapter.RoleTool, got[0].Role)
		// Walks back over both tool results to the assistant, then pulls in
		// the triggering user message.
		assert.Equal(t, history[0:], got)
	})

	t.Run("Should include triggering user message before a tool-calling assistant", func(t *testing.T) {
		history := []llmadapter.Message{
			msg("assistant", 0), // 0
			msg("user", 0),      // 1
			msg("assistant", 1), // 2
			msg("tool", 0),      // 3
			msg("assistant", 0), // 4
		}
		got := WindowMessages(history, 3)
		assert.Equal(t, history[1:], got)
	})

	t.Run("Should not extend past a non-user predecessor", func(t *testing.T) {
		history := []llmadapter.Message{
			msg("assistant", 0), // 0
			msg("assistant", 1), // 1
			msg("tool", 0),      // 2
			msg("assistant", 0), // 3
		}
		got := WindowMessages(history, 2)
		assert.Equal(t, history[1:], got)
	})

	t.Run("Should fall back to default window for non-positive sizes", func(t *testing.T) {
		var history []llmadapter.Message
		for i := 0; i < 50; i++ {
			history = append(history, msg("user", 0))
		}
		got := WindowMessages(history, 0)
		assert.Len(t, got, defaultHistoryWindow)
	})

	t.Run("Should never split a tool from its assistant for random histories", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for trial := 0; trial < 200; trial++ {
			history := randomHistory(rng, 1+rng.Intn(40))
			size := 1 + rng.Intn(25)
			got := WindowMessages(history, size)
			if len(got) == 0 {
				continue
			}
			first := got[0]
			if first.Role == llmadapter.RoleTool {
				// Acceptable only when the history itself opens with
				// orphan tool messages that have no assistant at all.
				start := len(history) - len(got)
				for i := start - 1; i >= 0; i-- {
					require.Equal(t, llmadapter.RoleTool, history[i].Role,
						"window start landed on a tool message with its assistant excluded (trial %d)", trial)
				}
			}
		}
	})
}

func randomHistory(rng *rand.Rand, n int) []llmadapter.Message {
	var history []llmadapter.Message
	for len(history) < n {
		switch rng.Intn(3) {
		case 0:
			history = append(history, msg("user", 0))
		case 1:
			history = append(history, msg("assistant", 0))
		default:
			calls := 1 + rng.Intn(3)
			history = append(history, msg("assistant", calls))
			for i := 0; i < calls; i++ {
				history = append(history, msg("tool", 0))
			}
		}
	}
	return history
}
