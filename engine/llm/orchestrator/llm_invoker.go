package orchestrator

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
)

type LLMInvoker interface {
	Invoke(ctx context.Context, client llmadapter.LLMClient, req *llmadapter.LLMRequest) (*llmadapter.LLMResponse, error)
}

type llmInvoker struct {
	cfg settings
}

func NewLLMInvoker(cfg settings) LLMInvoker {
	return &llmInvoker{cfg: cfg}
}

// Invoke calls the provider with exponential backoff. Only transient
// provider failures are retried; context cancellation and permanent errors
// surface immediately.
func (i *llmInvoker) Invoke(
	ctx context.Context,
	client llmadapter.LLMClient,
	req *llmadapter.LLMRequest,
) (*llmadapter.LLMResponse, error) {
	attempts := i.cfg.retryAttempts
	if attempts <= 0 || attempts > 100 {
		attempts = defaultRetryAttempts
	}
	backoff := retry.NewExponential(i.cfg.retryBackoffBase)
	backoff = retry.WithMaxDuration(i.cfg.retryBackoffMax, backoff)
	backoff = retry.WithMaxRetries(uint64(attempts), retry.WithJitter(50*time.Millisecond, backoff))

	var response *llmadapter.LLMResponse
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		response, callErr = client.GenerateContent(ctx, req)
		if callErr != nil {
			if llmadapter.IsRetryable(callErr) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		return nil
	})
	if err != nil {
		return nil, NewLLMError(err, ErrCodeLLMGeneration, map[string]any{
			"messages": len(req.Messages),
		})
	}
	return response, nil
}
