package orchestrator

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/loopline-ai/loopline/engine/core"
	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/logger"
)

const (
	StateInit             = "init"
	StateAwaitLLM         = "await_llm"
	StateEvaluateResponse = "evaluate_response"
	StateProcessTools     = "process_tools"
	StateUpdateBudgets    = "update_budgets"
	StateHandleCompletion = "handle_completion"
	StateFinalize         = "finalize"
	StateTerminateError   = "terminate_error"
)

const (
	EventStartLoop         = "start_loop"
	EventLLMResponse       = "llm_response"
	EventResponseNoTool    = "response_no_tool"
	EventResponseWithTools = "response_with_tools"
	EventToolsExecuted     = "tools_executed"
	EventBudgetOK          = "budget_ok"
	EventBudgetExceeded    = "budget_exceeded"
	EventCompletionSuccess = "completion_success"
	EventFailure           = "failure"
)

// loopDeps is the set of state-entry handlers the conversation loop
// implements. Each handler returns the event that drives the next
// transition; an empty result parks the machine in its current state.
type loopDeps interface {
	OnEnterAwaitLLM(ctx context.Context, loopCtx *LoopContext) transitionResult
	OnEnterEvaluateResponse(ctx context.Context, loopCtx *LoopContext) transitionResult
	OnEnterProcessTools(ctx context.Context, loopCtx *LoopContext) transitionResult
	OnEnterUpdateBudgets(ctx context.Context, loopCtx *LoopContext) transitionResult
	OnEnterHandleCompletion(ctx context.Context, loopCtx *LoopContext) transitionResult
	OnEnterFinalize(ctx context.Context, loopCtx *LoopContext) transitionResult
	OnEnterTerminateError(ctx context.Context, loopCtx *LoopContext) transitionResult
}

type transitionResult struct {
	Event string
	Err   error
}

// LoopContext is the mutable carrier threaded through every transition of
// one request's conversation loop.
type LoopContext struct {
	Request        *Request
	Client         llmadapter.LLMClient
	LLMRequest     *llmadapter.LLMRequest
	Response       *llmadapter.LLMResponse
	State          *loopState
	Output         *Output
	Model          string
	Iteration      int
	MaxIterations  int
	err            error
	eventStartedAt time.Time
}

func newLoopFSM(deps loopDeps) *fsm.FSM {
	return fsm.NewFSM(StateInit, loopFSMEvents(), loopFSMCallbacks(deps))
}

func loopFSMEvents() fsm.Events {
	return fsm.Events{
		{Name: EventStartLoop, Src: []string{StateInit}, Dst: StateAwaitLLM},
		{Name: EventLLMResponse, Src: []string{StateAwaitLLM}, Dst: StateEvaluateResponse},
		{Name: EventResponseNoTool, Src: []string{StateEvaluateResponse}, Dst: StateHandleCompletion},
		{Name: EventResponseWithTools, Src: []string{StateEvaluateResponse}, Dst: StateProcessTools},
		{Name: EventToolsExecuted, Src: []string{StateProcessTools}, Dst: StateUpdateBudgets},
		{Name: EventBudgetOK, Src: []string{StateUpdateBudgets}, Dst: StateAwaitLLM},
		// Exhausting the budget is not a failure: the loop finalizes with
		// whatever text the model last produced.
		{Name: EventBudgetExceeded, Src: []string{StateUpdateBudgets}, Dst: StateHandleCompletion},
		{Name: EventCompletionSuccess, Src: []string{StateHandleCompletion}, Dst: StateFinalize},
		{
			Name: EventFailure,
			Src: []string{
				StateAwaitLLM,
				StateEvaluateResponse,
				StateProcessTools,
				StateUpdateBudgets,
				StateHandleCompletion,
			},
			Dst: StateTerminateError,
		},
	}
}

func loopFSMCallbacks(deps loopDeps) fsm.Callbacks {
	handlers := map[string]func(context.Context, *LoopContext) transitionResult{
		StateAwaitLLM:         deps.OnEnterAwaitLLM,
		StateEvaluateResponse: deps.OnEnterEvaluateResponse,
		StateProcessTools:     deps.OnEnterProcessTools,
		StateUpdateBudgets:    deps.OnEnterUpdateBudgets,
		StateHandleCompletion: deps.OnEnterHandleCompletion,
		StateFinalize:         deps.OnEnterFinalize,
		StateTerminateError:   deps.OnEnterTerminateError,
	}
	callbacks := fsm.Callbacks{
		"before_event": logTransitionStart,
		"after_event":  logTransitionDone,
	}
	for state, handler := range handlers {
		callbacks["enter_"+state] = makeEnterCallback(handler)
	}
	return callbacks
}

// makeEnterCallback runs the state handler and chains its resulting event.
// The fsm library releases its event mutex before enter callbacks run, so
// firing the next event from inside the callback drives the whole loop from
// the single start event.
func makeEnterCallback(handler func(context.Context, *LoopContext) transitionResult) fsm.Callback {
	return func(cbCtx context.Context, e *fsm.Event) {
		loopCtx := loopContextFromEvent(cbCtx, e)
		applyTransitionResult(cbCtx, e, handler(cbCtx, loopCtx))
	}
}

func applyTransitionResult(ctx context.Context, e *fsm.Event, result transitionResult) {
	if result.Event == "" && result.Err == nil {
		return
	}
	loopCtx := loopContextFromEvent(ctx, e)
	if result.Err != nil {
		loopCtx.err = result.Err
		if result.Event == "" {
			result.Event = EventFailure
		}
	}
	if err := e.FSM.Event(ctx, result.Event, loopCtx); err != nil && loopCtx.err == nil {
		loopCtx.err = err
	}
}

func loopContextFromEvent(ctx context.Context, e *fsm.Event) *LoopContext {
	if e != nil && len(e.Args) > 0 {
		if lc, ok := e.Args[0].(*LoopContext); ok && lc != nil {
			return lc
		}
	}
	logger.FromContext(ctx).Error("Loop context missing from FSM event args", "event", eventName(e))
	return &LoopContext{}
}

func eventName(e *fsm.Event) string {
	if e == nil {
		return ""
	}
	return e.Event
}

func logTransitionStart(ctx context.Context, e *fsm.Event) {
	loopCtx := loopContextFromEvent(ctx, e)
	loopCtx.eventStartedAt = time.Now()
	logger.FromContext(ctx).Debug(
		"Loop transition start",
		"event", e.Event,
		"from_state", e.Src,
		"to_state", e.Dst,
		"iteration", loopCtx.Iteration,
	)
}

func logTransitionDone(ctx context.Context, e *fsm.Event) {
	loopCtx := loopContextFromEvent(ctx, e)
	keyvals := []any{
		"event", e.Event,
		"from_state", e.Src,
		"to_state", e.Dst,
		"iteration", loopCtx.Iteration,
	}
	if !loopCtx.eventStartedAt.IsZero() {
		keyvals = append(keyvals, "duration_ms", time.Since(loopCtx.eventStartedAt).Milliseconds())
	}
	if loopCtx.err != nil {
		keyvals = append(keyvals, "error", core.RedactError(loopCtx.err))
	}
	logger.FromContext(ctx).Debug("Loop transition complete", keyvals...)
}
