package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// projectFlag overrides DefaultProject for a single invocation.
var projectFlag string

// commandTimeout bounds one-shot commands that load a board and write to the
// store.
const commandTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Taskboard - collaborative kanban board engine",
	Long: `Taskboard keeps project task boards in sync across clients.

Tasks live in five buckets (todo, in_progress, review, done, blocked). Every
change is applied locally first and rolled back if the store rejects it. The
board can be driven from this CLI, an interactive terminal UI, the HTTP/websocket
API (taskboard serve) or an MCP server (taskboard mcp serve).`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "taskboard %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project board to act on (defaults to default_project from .taskboard.yaml)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// currentProject returns the project selected by --project or the default.
func currentProject() string {
	if projectFlag != "" {
		return projectFlag
	}
	return DefaultProject
}

// openSession loads the board of the current project.
func openSession(ctx context.Context) (*core.Session, error) {
	if Sessions == nil {
		return nil, fmt.Errorf("board sessions not initialized")
	}
	sess, err := Sessions.Open(ctx, currentProject())
	if err != nil {
		return nil, fmt.Errorf("opening board %s: %w", currentProject(), err)
	}
	return sess, nil
}

// withSession runs fn against the current project's board under the command
// timeout.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, sess *core.Session) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, sess)
}
