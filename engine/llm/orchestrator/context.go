package orchestrator

import "context"

type toolOptionsKey struct{}

// WithToolOptions stores per-request tool configuration on the context so
// tool implementations can read it without widening the Call signature.
func WithToolOptions(ctx context.Context, opts map[string]any) context.Context {
	if len(opts) == 0 {
		return ctx
	}
	return context.WithValue(ctx, toolOptionsKey{}, opts)
}

func ToolOptionsFromContext(ctx context.Context) map[string]any {
	if opts, ok := ctx.Value(toolOptionsKey{}).(map[string]any); ok {
		return opts
	}
	return nil
}
