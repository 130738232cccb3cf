package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve boards over HTTP and websocket",
	Long: `Start the HTTP API. Boards are loaded on first use and kept live.

  GET  /api/projects/{project}/board       current board (?q=, ?priority=, ?assignee=)
  GET  /api/projects/{project}/ws          websocket stream of board frames
  POST /api/projects/{project}/tasks       create a task
  POST /api/projects/{project}/drag/{id}/start|over|end|cancel
  GET  /api/metrics                        event log metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Sessions == nil {
			return fmt.Errorf("board sessions not initialized")
		}
		addr := serveAddr
		if addr == "" {
			addr = HTTPAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := api.NewServer(Sessions, MetricsCalc, Logger)
		fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			return fmt.Errorf("running HTTP server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to http_addr from .taskboard.yaml)")
	rootCmd.AddCommand(serveCmd)
}
