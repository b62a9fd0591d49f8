package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loopline-ai/loopline/engine/core"
	"github.com/loopline-ai/loopline/engine/mcp"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// ToolRegistry manages tool discovery and lookup across local tools and
// tools advertised by MCP servers.
type ToolRegistry interface {
	// Register registers a local tool. Local tools shadow MCP tools of the
	// same name.
	Register(ctx context.Context, tool Tool) error
	// Find finds a tool by name, checking local tools first, then MCP tools.
	Find(ctx context.Context, name string) (Tool, bool)
	// ListAll returns all available tools (local + MCP), sorted by name.
	ListAll(ctx context.Context) ([]Tool, error)
	// Close cleans up resources.
	Close() error
}

// Tool represents a unified tool interface
type Tool interface {
	Name() string
	Description() string
	Call(ctx context.Context, input string) (string, error)
	ParameterSchema() map[string]any
}

type toolRegistry struct {
	proxy *mcp.Manager

	localMu    sync.RWMutex
	localTools map[string]Tool

	mcpMu        sync.RWMutex
	mcpToolIndex map[string]Tool
}

// NewToolRegistry creates a registry. The MCP manager may be nil, in which
// case only locally registered tools are served.
func NewToolRegistry(proxy *mcp.Manager) ToolRegistry {
	return &toolRegistry{
		proxy:        proxy,
		localTools:   make(map[string]Tool),
		mcpToolIndex: make(map[string]Tool),
	}
}

func (r *toolRegistry) Register(_ context.Context, tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return core.NewError(fmt.Errorf("cannot register unnamed tool"), ErrCodeInvalidConfig, nil)
	}
	r.localMu.Lock()
	defer r.localMu.Unlock()
	if _, exists := r.localTools[tool.Name()]; exists {
		return core.NewError(
			fmt.Errorf("tool already registered: %s", tool.Name()),
			ErrCodeInvalidConfig,
			map[string]any{"tool": tool.Name()},
		)
	}
	r.localTools[tool.Name()] = tool
	return nil
}

func (r *toolRegistry) Find(ctx context.Context, name string) (Tool, bool) {
	r.localMu.RLock()
	local, ok := r.localTools[name]
	r.localMu.RUnlock()
	if ok {
		return local, true
	}
	r.mcpMu.RLock()
	proxied, ok := r.mcpToolIndex[name]
	r.mcpMu.RUnlock()
	if ok {
		return proxied, true
	}
	// The index may be stale if ListAll has not run this session; refresh once.
	if _, err := r.ListAll(ctx); err != nil {
		return nil, false
	}
	r.mcpMu.RLock()
	proxied, ok = r.mcpToolIndex[name]
	r.mcpMu.RUnlock()
	return proxied, ok
}

func (r *toolRegistry) ListAll(ctx context.Context) ([]Tool, error) {
	log := logger.FromContext(ctx)
	r.localMu.RLock()
	tools := make([]Tool, 0, len(r.localTools))
	seen := make(map[string]struct{}, len(r.localTools))
	for name, tool := range r.localTools {
		tools = append(tools, tool)
		seen[name] = struct{}{}
	}
	r.localMu.RUnlock()

	if r.proxy != nil {
		defs, err := r.proxy.ListAllTools(ctx)
		if err != nil {
			return nil, core.NewError(fmt.Errorf("failed to list MCP tools: %w", err), ErrCodeMCPConnection, nil)
		}
		index := make(map[string]Tool, len(defs))
		for i := range defs {
			def := defs[i]
			if _, shadowed := seen[def.Name]; shadowed {
				log.Debug("MCP tool shadowed by local tool", "tool", def.Name, "server", def.Server)
				continue
			}
			proxied := newProxyTool(def, r.proxy)
			index[def.Name] = proxied
			tools = append(tools, proxied)
		}
		r.mcpMu.Lock()
		r.mcpToolIndex = index
		r.mcpMu.Unlock()
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools, nil
}

func (r *toolRegistry) Close() error {
	if r.proxy != nil {
		return r.proxy.Close()
	}
	return nil
}
