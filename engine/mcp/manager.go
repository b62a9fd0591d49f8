package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/loopline-ai/loopline/pkg/logger"
)

const defaultRequestTimeout = 30 * time.Second

// ToolDefinition describes one tool advertised by a connected MCP server.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Server      string
}

// Manager maintains connections to a set of MCP servers over streamable
// HTTP and routes tool calls to the server that advertised the tool.
type Manager struct {
	timeout time.Duration

	mu      sync.RWMutex
	clients map[string]*mcpclient.Client
	// tool name -> server URL, refreshed on ListAllTools
	routes map[string]string
}

func NewManager(serverURLs []string, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	m := &Manager{
		timeout: timeout,
		clients: make(map[string]*mcpclient.Client, len(serverURLs)),
		routes:  make(map[string]string),
	}
	for _, url := range serverURLs {
		if url == "" {
			continue
		}
		m.clients[url] = nil
	}
	return m
}

// Connect establishes sessions with all configured servers. Per-server
// failures are logged and skipped; the manager stays usable with the
// servers that did connect.
func (m *Manager) Connect(ctx context.Context) {
	log := logger.FromContext(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	for url := range m.clients {
		if m.clients[url] != nil {
			continue
		}
		client, err := m.dial(ctx, url)
		if err != nil {
			log.Warn("Failed to connect MCP server, skipping", "server", url, "error", err)
			continue
		}
		m.clients[url] = client
		log.Debug("Connected MCP server", "server", url)
	}
}

func (m *Manager) dial(ctx context.Context, url string) (*mcpclient.Client, error) {
	client, err := mcpclient.NewStreamableHttpClient(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}
	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP transport: %w", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "loopline", Version: "0.1.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}
	return client, nil
}

// ListAllTools returns the union of tools advertised by every connected
// server. A server that fails to answer is skipped with a warning.
func (m *Manager) ListAllTools(ctx context.Context) ([]ToolDefinition, error) {
	log := logger.FromContext(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []ToolDefinition
	for url, client := range m.clients {
		if client == nil {
			continue
		}
		listCtx, cancel := context.WithTimeout(ctx, m.timeout)
		result, err := client.ListTools(listCtx, mcp.ListToolsRequest{})
		cancel()
		if err != nil {
			log.Warn("Failed to list tools for MCP server, skipping", "server", url, "error", err)
			continue
		}
		for i := range result.Tools {
			tool := &result.Tools[i]
			all = append(all, ToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: schemaToMap(tool.InputSchema),
				Server:      url,
			})
			m.routes[tool.Name] = url
		}
		log.Debug("Listed tools for MCP server", "server", url, "tool_count", len(result.Tools))
	}
	return all, nil
}

// CallTool executes a tool on the server that advertised it.
func (m *Manager) CallTool(ctx context.Context, toolName string, arguments map[string]any) (*mcp.CallToolResult, error) {
	m.mu.RLock()
	url, routed := m.routes[toolName]
	client := m.clients[url]
	m.mu.RUnlock()
	if !routed || client == nil {
		return nil, fmt.Errorf("no MCP server advertises tool %q", toolName)
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = arguments
	result, err := client.CallTool(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("tool execution failed: %w", err)
	}
	return result, nil
}

// Close shuts down every client session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for url, client := range m.clients {
		if client == nil {
			continue
		}
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.clients[url] = nil
	}
	return firstErr
}

// schemaToMap converts a typed MCP input schema into the generic JSON-schema
// map the provider adapter expects.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// FlattenContent renders a CallToolResult's content items into one string.
// Text items are concatenated; image items are summarized by MIME type so
// base64 payloads never leak into the conversation transcript.
func FlattenContent(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var out string
	for _, item := range result.Content {
		switch v := item.(type) {
		case mcp.TextContent:
			out += v.Text
		case *mcp.TextContent:
			out += v.Text
		case mcp.ImageContent:
			out += fmt.Sprintf("[image %s]", v.MIMEType)
		case *mcp.ImageContent:
			out += fmt.Sprintf("[image %s]", v.MIMEType)
		}
	}
	return out
}
