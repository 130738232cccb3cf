package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
)

var subtaskCmd = &cobra.Command{
	Use:   "subtask",
	Short: "Manage a task's subtask checklist",
}

var subtaskAddCmd = &cobra.Command{
	Use:   "add <task-id> <title>",
	Short: "Append a subtask",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			sub, err := sess.Detail.AddSubtask(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return fmt.Errorf("adding subtask: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added subtask %s to %s\n", sub.ID, args[0])
			return nil
		})
	},
}

var (
	subtaskToggleUndo  bool
	subtaskToggleActor string
)

var subtaskToggleCmd = &cobra.Command{
	Use:   "toggle <task-id> <subtask-id>",
	Short: "Mark a subtask completed (or not, with --undo)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		completed := !subtaskToggleUndo
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			if err := sess.Detail.ToggleSubtask(ctx, args[0], args[1], completed, subtaskToggleActor); err != nil {
				return fmt.Errorf("toggling subtask: %w", err)
			}
			task, _ := sess.Board.Task(args[0])
			done, total := task.SubtaskProgress()
			fmt.Fprintf(cmd.OutOrStdout(), "Subtask %s updated (%d/%d done)\n", args[1], done, total)
			return nil
		})
	},
}

func init() {
	subtaskToggleCmd.Flags().BoolVar(&subtaskToggleUndo, "undo", false, "Mark the subtask not completed")
	subtaskToggleCmd.Flags().StringVar(&subtaskToggleActor, "actor", "", "User performing the change")
	subtaskCmd.AddCommand(subtaskAddCmd, subtaskToggleCmd)
	rootCmd.AddCommand(subtaskCmd)
}
