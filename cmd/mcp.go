package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuedao/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Tools act as the configured principal against the configured organization
(override with --as and --org). Register it with an MCP client as:

  {
    "mcpServers": {
      "issuedao": { "command": "issuedao", "args": ["mcp", "--as", "agent.near"] }
    }
  }

Available tools: dao_info, dao_list_issues, dao_get_issue, dao_create_issue,
dao_comment, dao_transition, dao_apply, dao_like`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	principal, err := currentPrincipal()
	if err != nil {
		return err
	}
	// stdout carries the protocol; diagnostics stay off it.
	e, err := newEngine(cliLogger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	return mcp.NewServer(e, principal, viper.GetString("org"), buildVersion).ServeStdio(ctx)
}
