package orchestrator

import (
	"time"

	llmadapter "github.com/loopline-ai/loopline/engine/llm/adapter"
	"github.com/loopline-ai/loopline/pkg/config"
)

const (
	defaultMaxTurns           = 10
	defaultHistoryWindow      = 20
	defaultMaxConcurrentTools = 10
	defaultRetryAttempts      = 3
	defaultRetryBackoffBase   = 100 * time.Millisecond
	defaultRetryBackoffMax    = 10 * time.Second
	defaultScreenshotDelay    = 750 * time.Millisecond
)

// Config wires the orchestrator's collaborators and tuning knobs.
type Config struct {
	Registry ToolRegistry
	Provider config.ProviderConfig
	// ClientFactory builds the provider client for a request. Nil means
	// the default adapter factory.
	ClientFactory func(*config.ProviderConfig) (llmadapter.LLMClient, error)

	MaxTurns           int
	HistoryWindow      int
	MaxConcurrentTools int
	RetryAttempts      int
	RetryBackoffBase   time.Duration
	RetryBackoffMax    time.Duration
	// ScreenshotDelay is the render pause before the auto screenshot
	// recovery call.
	ScreenshotDelay time.Duration
}

type settings struct {
	maxTurns           int
	historyWindow      int
	maxConcurrentTools int
	retryAttempts      int
	retryBackoffBase   time.Duration
	retryBackoffMax    time.Duration
	screenshotDelay    time.Duration
}

func buildSettings(cfg *Config) settings {
	if cfg == nil {
		cfg = &Config{}
	}
	s := settings{
		maxTurns:           cfg.MaxTurns,
		historyWindow:      cfg.HistoryWindow,
		maxConcurrentTools: cfg.MaxConcurrentTools,
		retryAttempts:      cfg.RetryAttempts,
		retryBackoffBase:   cfg.RetryBackoffBase,
		retryBackoffMax:    cfg.RetryBackoffMax,
		screenshotDelay:    cfg.ScreenshotDelay,
	}
	s.maxTurns = defaultInt(s.maxTurns, defaultMaxTurns)
	s.historyWindow = defaultInt(s.historyWindow, defaultHistoryWindow)
	s.maxConcurrentTools = defaultInt(s.maxConcurrentTools, defaultMaxConcurrentTools)
	s.retryAttempts = defaultInt(s.retryAttempts, defaultRetryAttempts)
	s.retryBackoffBase = defaultDuration(s.retryBackoffBase, defaultRetryBackoffBase)
	s.retryBackoffMax = defaultDuration(s.retryBackoffMax, defaultRetryBackoffMax)
	if s.screenshotDelay == 0 {
		s.screenshotDelay = defaultScreenshotDelay
	}
	return s
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultDuration(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
