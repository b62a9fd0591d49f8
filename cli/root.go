package cli

import (
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "loopline",
		Short:         "Loopline agentic chat service",
		Long:          "Loopline runs an agentic conversation loop over LLM providers and MCP tool servers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		ServeCmd(),
	)

	return root
}
