package orchestrator

import (
	"context"
	"fmt"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/logger"
)

// conversationLoop drives one request through the state machine: ask the
// model, run whatever tools it calls, feed the results back, repeat until
// the model answers in plain content or the turn budget runs out.
type conversationLoop struct {
	cfg         settings
	invoker     LLMInvoker
	tools       ToolExecutor
	handler     ResponseHandler
	screenshots *screenshotRecovery
}

func newConversationLoop(
	cfg settings,
	invoker LLMInvoker,
	tools ToolExecutor,
	handler ResponseHandler,
	screenshots *screenshotRecovery,
) *conversationLoop {
	return &conversationLoop{
		cfg:         cfg,
		invoker:     invoker,
		tools:       tools,
		handler:     handler,
		screenshots: screenshots,
	}
}

func (l *conversationLoop) Run(
	ctx context.Context,
	client llmadapter.LLMClient,
	llmReq *llmadapter.LLMRequest,
	request *Request,
	model string,
) (*Output, error) {
	loopCtx := &LoopContext{
		Request:       request,
		Client:        client,
		LLMRequest:    llmReq,
		State:         newLoopState(wantsScreenshot(request.Prompt)),
		Model:         model,
		MaxIterations: l.cfg.maxTurns,
	}
	machine := newLoopFSM(l)
	// Enter callbacks chain follow-up events, so this single call runs the
	// loop to a terminal state.
	if err := machine.Event(ctx, EventStartLoop, loopCtx); err != nil && loopCtx.err == nil {
		loopCtx.err = err
	}
	switch machine.Current() {
	case StateFinalize:
		if loopCtx.Output == nil {
			return nil, NewLLMError(fmt.Errorf("loop finalized without output"), ErrCodeLoopInterrupted, nil)
		}
		return loopCtx.Output, nil
	case StateTerminateError:
		if loopCtx.err == nil {
			loopCtx.err = fmt.Errorf("conversation loop terminated")
		}
		return nil, loopCtx.err
	default:
		return nil, NewLLMError(
			fmt.Errorf("conversation loop stalled in state %s", machine.Current()),
			ErrCodeLoopInterrupted,
			map[string]any{"state": machine.Current()},
		)
	}
}

func (l *conversationLoop) OnEnterAwaitLLM(ctx context.Context, loopCtx *LoopContext) transitionResult {
	response, err := l.invoker.Invoke(ctx, loopCtx.Client, loopCtx.LLMRequest)
	if err != nil {
		return transitionResult{Err: err}
	}
	loopCtx.Response = response
	return transitionResult{Event: EventLLMResponse}
}

func (l *conversationLoop) OnEnterEvaluateResponse(ctx context.Context, loopCtx *LoopContext) transitionResult {
	if loopCtx.Response == nil {
		return transitionResult{Err: fmt.Errorf("no response to evaluate")}
	}
	if len(loopCtx.Response.ToolCalls) > 0 {
		logger.FromContext(ctx).Debug(
			"Model requested tools",
			"iteration", loopCtx.Iteration,
			"tool_calls", len(loopCtx.Response.ToolCalls),
		)
		return transitionResult{Event: EventResponseWithTools}
	}
	return transitionResult{Event: EventResponseNoTool}
}

func (l *conversationLoop) OnEnterProcessTools(ctx context.Context, loopCtx *LoopContext) transitionResult {
	calls := loopCtx.Response.ToolCalls
	results, err := l.tools.Execute(ctx, calls)
	if err != nil {
		return transitionResult{Err: err}
	}
	appendToolRound(loopCtx.LLMRequest, loopCtx.Response.Content, calls, results)
	loopCtx.State.recordRound(calls, results)
	return transitionResult{Event: EventToolsExecuted}
}

func (l *conversationLoop) OnEnterUpdateBudgets(ctx context.Context, loopCtx *LoopContext) transitionResult {
	loopCtx.Iteration++
	if loopCtx.Iteration >= loopCtx.MaxIterations {
		// Not an error: the caller still gets the best-available text.
		logger.FromContext(ctx).Warn(
			"Turn budget exhausted, finalizing",
			"iterations", loopCtx.Iteration,
			"max_turns", loopCtx.MaxIterations,
		)
		return transitionResult{Event: EventBudgetExceeded}
	}
	return transitionResult{Event: EventBudgetOK}
}

func (l *conversationLoop) OnEnterHandleCompletion(ctx context.Context, loopCtx *LoopContext) transitionResult {
	if l.screenshots != nil && l.screenshots.shouldInject(loopCtx.State) {
		// Out-of-band: the result joins the accumulated results for
		// finalization without another model round-trip.
		l.screenshots.inject(ctx, loopCtx)
	}
	output, err := l.handler.Finalize(ctx, loopCtx.Response, loopCtx.State, loopCtx.Model)
	if err != nil {
		return transitionResult{Err: err}
	}
	loopCtx.Output = output
	return transitionResult{Event: EventCompletionSuccess}
}

func (l *conversationLoop) OnEnterFinalize(context.Context, *LoopContext) transitionResult {
	return transitionResult{}
}

func (l *conversationLoop) OnEnterTerminateError(_ context.Context, loopCtx *LoopContext) transitionResult {
	if loopCtx.err == nil {
		loopCtx.err = fmt.Errorf("conversation loop terminated")
	}
	return transitionResult{}
}

// appendToolRound records one assistant tool-call turn and its results in
// the outgoing conversation, keeping the call/result pairing the providers
// require.
func appendToolRound(
	llmReq *llmadapter.LLMRequest,
	assistantContent string,
	calls []llmadapter.ToolCall,
	results []llmadapter.ToolResult,
) {
	llmReq.Messages = append(llmReq.Messages, llmadapter.Message{
		Role:      llmadapter.RoleAssistant,
		Content:   assistantContent,
		ToolCalls: calls,
	})
	llmReq.Messages = append(llmReq.Messages, llmadapter.Message{
		Role:        llmadapter.RoleTool,
		ToolResults: results,
	})
}
