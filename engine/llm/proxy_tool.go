package llm

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/loopline-ai/loopline/engine/core"
	"github.com/loopline-ai/loopline/engine/mcp"
)

// proxyTool exposes a tool advertised by an MCP server through the
// registry's Tool interface.
type proxyTool struct {
	name        string
	description string
	inputSchema map[string]any
	server      string
	proxy       *mcp.Manager
}

func newProxyTool(def mcp.ToolDefinition, proxy *mcp.Manager) Tool {
	return &proxyTool{
		name:        def.Name,
		description: def.Description,
		inputSchema: def.InputSchema,
		server:      def.Server,
		proxy:       proxy,
	}
}

func (t *proxyTool) Name() string                    { return t.name }
func (t *proxyTool) Description() string             { return t.description }
func (t *proxyTool) ParameterSchema() map[string]any { return t.inputSchema }

// Call executes the tool on its MCP server. Text-only results are returned
// as plain text; results carrying images or other structured items are
// returned as a JSON object with a content array so downstream processing
// can extract them.
func (t *proxyTool) Call(ctx context.Context, input string) (string, error) {
	if input == "" {
		input = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", core.NewError(
			fmt.Errorf("failed to parse tool arguments: %w", err),
			ErrCodeToolInvalidInput,
			map[string]any{"tool": t.name},
		)
	}
	result, err := t.proxy.CallTool(ctx, t.name, args)
	if err != nil {
		return "", core.NewError(
			fmt.Errorf("failed to execute tool %q on MCP server %q: %w", t.name, t.server, err),
			ErrCodeToolExecution,
			map[string]any{"tool": t.name, "server": t.server},
		)
	}
	if result.IsError {
		return "", core.NewError(
			fmt.Errorf("tool %q reported an error: %s", t.name, mcp.FlattenContent(result)),
			ErrCodeToolExecution,
			map[string]any{"tool": t.name, "server": t.server},
		)
	}
	return renderCallResult(result)
}

func renderCallResult(result *mcpgo.CallToolResult) (string, error) {
	textOnly := true
	for _, item := range result.Content {
		switch item.(type) {
		case mcpgo.TextContent, *mcpgo.TextContent:
		default:
			textOnly = false
		}
	}
	if textOnly {
		text := mcp.FlattenContent(result)
		// Some servers report failures as an ordinary text payload instead
		// of setting IsError; surface those uniformly.
		if toolErr, isErr := IsToolExecutionError(text); isErr {
			return "", core.NewError(
				fmt.Errorf("%s", toolErr.Message),
				toolErr.Code,
				map[string]any{"details": toolErr.Details},
			)
		}
		return text, nil
	}
	b, err := json.Marshal(map[string]any{"content": result.Content})
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return string(b), nil
}
