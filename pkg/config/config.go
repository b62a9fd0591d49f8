package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration. Values are populated from
// struct defaults first, then overridden by LOOPLINE_* environment variables.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Provider ProviderConfig `koanf:"provider"`
	Loop     LoopConfig     `koanf:"loop"`
	MCP      MCPConfig      `koanf:"mcp"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ProviderConfig holds the LLM provider credentials and model selection.
type ProviderConfig struct {
	Name        string  `koanf:"name"`
	Model       string  `koanf:"model"`
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`
}

// LoopConfig tunes the orchestration loop.
type LoopConfig struct {
	MaxTurns           int           `koanf:"max_turns"`
	HistoryWindow      int           `koanf:"history_window"`
	MaxConcurrentTools int           `koanf:"max_concurrent_tools"`
	RetryAttempts      int           `koanf:"retry_attempts"`
	RetryBackoffBase   time.Duration `koanf:"retry_backoff_base"`
	RetryBackoffMax    time.Duration `koanf:"retry_backoff_max"`
}

// MCPConfig lists the MCP servers whose tools are advertised to the model.
// Servers is a comma-separated list of streamable HTTP endpoint URLs.
type MCPConfig struct {
	Servers []string      `koanf:"servers"`
	Timeout time.Duration `koanf:"timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5310,
			ShutdownTimeout: 10 * time.Second,
		},
		Provider: ProviderConfig{
			Name:        "openai",
			Model:       "gpt-4o",
			Temperature: 0.2,
		},
		Loop: LoopConfig{
			MaxTurns:           10,
			HistoryWindow:      20,
			MaxConcurrentTools: 10,
			RetryAttempts:      3,
			RetryBackoffBase:   100 * time.Millisecond,
			RetryBackoffMax:    10 * time.Second,
		},
		MCP: MCPConfig{
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks invariants that make the process unable to serve requests.
// The provider API key is deliberately not checked here: it is validated per
// request so the server can boot without credentials and report a remediation
// message on use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Loop.MaxTurns <= 0 {
		return fmt.Errorf("loop.max_turns must be positive, got %d", c.Loop.MaxTurns)
	}
	if c.Loop.HistoryWindow <= 0 {
		return fmt.Errorf("loop.history_window must be positive, got %d", c.Loop.HistoryWindow)
	}
	return nil
}
