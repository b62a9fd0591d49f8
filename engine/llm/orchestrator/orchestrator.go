package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/loopline-ai/loopline/engine/core"
	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/config"
	"github.com/loopline-ai/loopline/pkg/logger"
)

type Orchestrator interface {
	Execute(ctx context.Context, request Request) (*Output, error)
	Close() error
}

type orchestrator struct {
	cfg      Config
	settings settings

	builder *RequestBuilder
	loop    *conversationLoop
}

func New(cfg Config) (Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, core.NewError(
			fmt.Errorf("tool registry cannot be nil"),
			ErrCodeInvalidConfig,
			map[string]any{"field": "Registry"},
		)
	}
	settings := buildSettings(&cfg)
	executor := NewToolExecutor(cfg.Registry, settings)
	loop := newConversationLoop(
		settings,
		NewLLMInvoker(settings),
		executor,
		NewResponseHandler(settings),
		newScreenshotRecovery(cfg.Registry, executor, settings),
	)
	return &orchestrator{
		cfg:      cfg,
		settings: settings,
		builder:  NewRequestBuilder(settings),
		loop:     loop,
	}, nil
}

// Execute runs one stateless conversational turn to completion.
func (o *orchestrator) Execute(ctx context.Context, request Request) (*Output, error) {
	if err := validateRequest(&request); err != nil {
		return nil, err
	}
	ctx = WithToolOptions(ctx, request.ToolOptions)

	provider := o.cfg.Provider
	applyRequestOptions(&provider, request.Options)
	factory := o.cfg.ClientFactory
	if factory == nil {
		factory = llmadapter.NewClient
	}
	client, err := factory(&provider)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	llmReq, err := o.builder.Build(ctx, &request)
	if err != nil {
		return nil, err
	}
	// A failed listing degrades to a tool-less turn instead of aborting;
	// the model can still answer from the prompt and history.
	tools, err := o.cfg.Registry.ListAll(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("Tool listing failed, continuing without tools", "error", err)
		tools = nil
	}
	llmReq.Tools = toolDefinitions(tools)
	llmReq.Options = llmadapter.CallOptions{
		Temperature: provider.Temperature,
		MaxTokens:   provider.MaxTokens,
	}
	return o.loop.Run(ctx, client, llmReq, &request, provider.Model)
}

func (o *orchestrator) Close() error {
	return o.cfg.Registry.Close()
}

func validateRequest(request *Request) error {
	if strings.TrimSpace(request.Prompt) == "" && strings.TrimSpace(request.ImageURL) == "" {
		return NewValidationError(fmt.Errorf("prompt or image is required"), "prompt", nil)
	}
	return nil
}

func applyRequestOptions(provider *config.ProviderConfig, opts RequestOptions) {
	if opts.Model != "" {
		provider.Model = opts.Model
	}
	if opts.APIKey != "" {
		provider.APIKey = opts.APIKey
	}
	if opts.BaseURL != "" {
		provider.BaseURL = opts.BaseURL
	}
	if opts.Temperature > 0 {
		provider.Temperature = opts.Temperature
	}
	if opts.MaxTokens > 0 {
		provider.MaxTokens = opts.MaxTokens
	}
}

func toolDefinitions(tools []RegistryTool) []llmadapter.ToolDefinition {
	defs := make([]llmadapter.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llmadapter.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return defs
}
