package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/loopline-ai/loopline/engine/infra/server"
	"github.com/loopline-ai/loopline/pkg/config"
	"github.com/loopline-ai/loopline/pkg/logger"
)

func ServeCmd() *cobra.Command {
	var (
		envFile  string
		host     string
		port     int
		logLevel string
		logJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Loopline HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loadEnvFile(envFile)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			applyFlagOverrides(cmd.Flags(), cfg, flagOverrides{
				host:     host,
				port:     port,
				logLevel: logLevel,
				logJSON:  logJSON,
			})
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log := logger.NewLogger(&logger.Config{
				Level: logger.LogLevel(cfg.Log.Level),
				JSON:  cfg.Log.JSON,
			})
			return server.NewServer(cfg, log).Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")
	cmd.Flags().StringVar(&host, "host", "", "Host interface to bind")
	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	return cmd
}

type flagOverrides struct {
	host     string
	port     int
	logLevel string
	logJSON  bool
}

// applyFlagOverrides layers explicitly set command-line flags over the
// loaded configuration. Unset flags leave the config untouched so env and
// defaults keep their precedence.
func applyFlagOverrides(flags *pflag.FlagSet, cfg *config.Config, o flagOverrides) {
	if flags.Changed("host") {
		cfg.Server.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = o.port
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = o.logJSON
	}
}

// loadEnvFile is best-effort: a missing env file is the normal case in
// production where everything arrives through real environment variables.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}
