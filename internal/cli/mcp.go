package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	boardmcp "github.com/valter-silva-au/taskboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the taskboard MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskboard MCP server on stdio",
	Long: `Start the taskboard MCP server on stdio transport.

The server exposes the board as MCP tools that AI coding assistants can call:
board_show, task_get, task_create, task_move, task_update, task_assign,
task_delete, subtask_add, subtask_toggle, comment_add, comment_list and
get_metrics. Tools without project_id act on --project or the default project.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Sessions == nil {
			return fmt.Errorf("board sessions not initialized")
		}

		srv := boardmcp.NewServer(Sessions, MetricsCalc, AlertEngine, currentProject(), appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
