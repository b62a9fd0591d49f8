package llm

import (
	"context"

	"github.com/loopline-ai/loopline/engine/llm/orchestrator"
	"github.com/loopline-ai/loopline/engine/mcp"
	"github.com/loopline-ai/loopline/pkg/config"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// Service is the top-level entry point for conversational turns. It owns
// the MCP connections, the tool registry built on top of them, and the
// orchestrator that drives the loop.
type Service struct {
	registry ToolRegistry
	orch     orchestrator.Orchestrator
}

func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	manager := mcp.NewManager(cfg.MCP.Servers, cfg.MCP.Timeout)
	manager.Connect(ctx)
	registry := NewToolRegistry(manager)
	if tools, err := registry.ListAll(ctx); err != nil {
		logger.FromContext(ctx).Warn("Initial tool discovery failed", "error", err)
	} else {
		logger.FromContext(ctx).Info("Tool registry ready", "tools", len(tools))
	}
	orch, err := orchestrator.New(orchestrator.Config{
		Registry:           &registryBridge{registry: registry},
		Provider:           cfg.Provider,
		MaxTurns:           cfg.Loop.MaxTurns,
		HistoryWindow:      cfg.Loop.HistoryWindow,
		MaxConcurrentTools: cfg.Loop.MaxConcurrentTools,
		RetryAttempts:      cfg.Loop.RetryAttempts,
		RetryBackoffBase:   cfg.Loop.RetryBackoffBase,
		RetryBackoffMax:    cfg.Loop.RetryBackoffMax,
	})
	if err != nil {
		return nil, err
	}
	return &Service{registry: registry, orch: orch}, nil
}

// Chat executes one stateless conversational turn.
func (s *Service) Chat(ctx context.Context, request orchestrator.Request) (*orchestrator.Output, error) {
	return s.orch.Execute(ctx, request)
}

// RegisterTool adds a local tool. Local tools shadow MCP tools of the same
// name.
func (s *Service) RegisterTool(ctx context.Context, tool Tool) error {
	return s.registry.Register(ctx, tool)
}

func (s *Service) Close() error {
	return s.orch.Close()
}

// registryBridge adapts the llm registry to the orchestrator's narrower
// view of it.
type registryBridge struct {
	registry ToolRegistry
}

func (b *registryBridge) Find(ctx context.Context, name string) (orchestrator.RegistryTool, bool) {
	tool, found := b.registry.Find(ctx, name)
	if !found || tool == nil {
		return nil, false
	}
	return tool, true
}

func (b *registryBridge) ListAll(ctx context.Context) ([]orchestrator.RegistryTool, error) {
	tools, err := b.registry.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]orchestrator.RegistryTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, t)
	}
	return out, nil
}

func (b *registryBridge) Close() error {
	return b.registry.Close()
}
