package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks (add, show, move, update, assign, delete)",
	Long: `Task commands act on the current project's board (see --project).

Every change is applied to the board first and written to the configured
store; if the store rejects it the board is restored and the error is shown.`,
}

var (
	taskAddDescription string
	taskAddStatus      string
	taskAddPriority    string
	taskAddType        string
	taskAddTags        []string
	taskAddReporter    string
	taskAddDue         string
	taskAddEstimate    float64
)

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task at the end of its bucket",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		draft := models.TaskDraft{
			Title:        strings.Join(args, " "),
			Description:  taskAddDescription,
			Status:       models.TaskStatus(taskAddStatus),
			Priority:     models.Priority(taskAddPriority),
			Type:         models.TaskType(taskAddType),
			Tags:         taskAddTags,
			ReporterID:   taskAddReporter,
			ReporterName: taskAddReporter,
		}
		if taskAddDue != "" {
			due, err := time.Parse(time.DateOnly, taskAddDue)
			if err != nil {
				return fmt.Errorf("parsing --due: %w", err)
			}
			draft.DueDate = &due
		}
		if cmd.Flags().Changed("estimate") {
			draft.EstimatedHours = &taskAddEstimate
		}

		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			task, err := sess.Board.Create(ctx, draft)
			if err != nil {
				return fmt.Errorf("creating task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s in %s\n", task.ID, task.Status)
			return nil
		})
	},
}

var taskShowJSON bool

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its subtasks and comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			task, ok := sess.Board.Task(args[0])
			if !ok {
				return fmt.Errorf("task %s not found on board %s", args[0], sess.Board.ProjectID())
			}
			comments, err := sess.Detail.Comments(ctx, task.ID)
			if err != nil {
				return fmt.Errorf("loading comments: %w", err)
			}
			if taskShowJSON {
				data, err := json.MarshalIndent(struct {
					models.Task
					Comments []models.Comment `json:"comments"`
				}{task, comments}, "", "  ")
				if err != nil {
					return fmt.Errorf("formatting task as JSON: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			printTask(cmd.OutOrStdout(), task, comments)
			return nil
		})
	},
}

func printTask(w io.Writer, t models.Task, comments []models.Comment) {
	fmt.Fprintf(w, "%s  %s\n", t.ID, t.Title)
	fmt.Fprintf(w, "  %-12s %s\n", "Status:", t.Status)
	fmt.Fprintf(w, "  %-12s %s\n", "Priority:", t.Priority)
	fmt.Fprintf(w, "  %-12s %s\n", "Type:", t.Type)
	if t.IsAssigned() {
		fmt.Fprintf(w, "  %-12s %s (%s)\n", "Assignee:", t.AssigneeName, t.AssigneeID)
	}
	if t.DueDate != nil {
		fmt.Fprintf(w, "  %-12s %s\n", "Due:", t.DueDate.Format(time.DateOnly))
	}
	if t.EstimatedHours != nil {
		fmt.Fprintf(w, "  %-12s %.1fh\n", "Estimate:", *t.EstimatedHours)
	}
	if len(t.Tags) > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", "Tags:", strings.Join(t.Tags, ", "))
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if done, total := t.SubtaskProgress(); total > 0 {
		fmt.Fprintf(w, "\nSubtasks (%d/%d):\n", done, total)
		for _, s := range t.Subtasks {
			mark := " "
			if s.Completed {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %s  %s\n", mark, s.Title, s.ID)
		}
	}
	if len(comments) > 0 {
		fmt.Fprintf(w, "\nComments (%d):\n", len(comments))
		for _, c := range comments {
			author := c.UserName
			if author == "" {
				author = c.UserID
			}
			fmt.Fprintf(w, "  %s %s: %s\n", c.CreatedAt.Format("2006-01-02 15:04"), author, c.Content)
		}
	}
}

var taskMoveIndex int

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <status>",
	Short: "Move a task to a bucket",
	Long: `Move a task to one of: todo, in_progress, review, done, blocked.

--index sets the zero-based position in the destination bucket. Without it the
task goes to the end.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			task, err := sess.Board.Move(ctx, args[0], models.TaskStatus(args[1]), taskMoveIndex)
			if err != nil {
				return fmt.Errorf("moving task %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now in %s\n", task.ID, task.Status)
			return nil
		})
	},
}

var (
	taskUpdateTitle       string
	taskUpdateDescription string
	taskUpdatePriority    string
	taskUpdateType        string
	taskUpdateTags        []string
	taskUpdateWatchers    []string
	taskUpdateDue         string
)

var taskUpdateCmd = &cobra.Command{
	Use:   "update <task-id>",
	Short: "Edit task fields",
	Long: `Edit the title, description, priority, type, tags, watchers or due date of
a task. Only flags that are given change. Use --due "" to clear the due date.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			return err
		}
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			task, err := sess.Board.Update(ctx, args[0], patch)
			if err != nil {
				return fmt.Errorf("updating task %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated task %s\n", task.ID)
			return nil
		})
	},
}

func patchFromFlags(cmd *cobra.Command) (models.TaskPatch, error) {
	var patch models.TaskPatch
	flags := cmd.Flags()
	if flags.Changed("title") {
		patch.Title = &taskUpdateTitle
	}
	if flags.Changed("description") {
		patch.Description = &taskUpdateDescription
	}
	if flags.Changed("priority") {
		p := models.Priority(taskUpdatePriority)
		patch.Priority = &p
	}
	if flags.Changed("type") {
		t := models.TaskType(taskUpdateType)
		patch.Type = &t
	}
	if flags.Changed("tags") {
		patch.Tags = append([]string{}, taskUpdateTags...)
	}
	if flags.Changed("watchers") {
		patch.Watchers = append([]string{}, taskUpdateWatchers...)
	}
	if flags.Changed("due") {
		if taskUpdateDue == "" {
			patch.ClearDueDate = true
		} else {
			due, err := time.Parse(time.DateOnly, taskUpdateDue)
			if err != nil {
				return patch, fmt.Errorf("parsing --due: %w", err)
			}
			patch.DueDate = &due
		}
	}
	return patch, nil
}

var taskAssignName string

var taskAssignCmd = &cobra.Command{
	Use:   "assign <task-id> [user-id]",
	Short: "Assign a task, or unassign it when no user is given",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var a *models.Assignee
		if len(args) == 2 {
			name := taskAssignName
			if name == "" {
				name = args[1]
			}
			a = &models.Assignee{ID: args[1], Name: name}
		}
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			task, err := sess.Board.Assign(ctx, args[0], a)
			if err != nil {
				return fmt.Errorf("assigning task %s: %w", args[0], err)
			}
			if task.IsAssigned() {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s assigned to %s\n", task.ID, task.AssigneeName)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s unassigned\n", task.ID)
			}
			return nil
		})
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and its comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			if err := sess.Board.Remove(ctx, args[0]); err != nil {
				return fmt.Errorf("deleting task %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
			return nil
		})
	},
}

func init() {
	taskAddCmd.Flags().StringVarP(&taskAddDescription, "description", "d", "", "Task description")
	taskAddCmd.Flags().StringVarP(&taskAddStatus, "status", "s", "todo", "Bucket: todo, in_progress, review, done, blocked")
	taskAddCmd.Flags().StringVar(&taskAddPriority, "priority", "medium", "Priority: low, medium, high, urgent")
	taskAddCmd.Flags().StringVarP(&taskAddType, "type", "t", "task", "Type: task, feature, bug, improvement, documentation")
	taskAddCmd.Flags().StringSliceVar(&taskAddTags, "tag", nil, "Tag (repeatable)")
	taskAddCmd.Flags().StringVar(&taskAddReporter, "reporter", "", "Reporter user ID")
	taskAddCmd.Flags().StringVar(&taskAddDue, "due", "", "Due date (YYYY-MM-DD)")
	taskAddCmd.Flags().Float64Var(&taskAddEstimate, "estimate", 0, "Estimated hours")

	taskShowCmd.Flags().BoolVar(&taskShowJSON, "json", false, "Output the task as JSON")

	taskMoveCmd.Flags().IntVarP(&taskMoveIndex, "index", "i", -1, "Zero-based position in the destination bucket (-1 appends)")

	taskUpdateCmd.Flags().StringVar(&taskUpdateTitle, "title", "", "New title")
	taskUpdateCmd.Flags().StringVarP(&taskUpdateDescription, "description", "d", "", "New description")
	taskUpdateCmd.Flags().StringVar(&taskUpdatePriority, "priority", "", "New priority")
	taskUpdateCmd.Flags().StringVarP(&taskUpdateType, "type", "t", "", "New type")
	taskUpdateCmd.Flags().StringSliceVar(&taskUpdateTags, "tags", nil, "Replace tags")
	taskUpdateCmd.Flags().StringSliceVar(&taskUpdateWatchers, "watchers", nil, "Replace watchers")
	taskUpdateCmd.Flags().StringVar(&taskUpdateDue, "due", "", "Due date (YYYY-MM-DD), empty to clear")

	taskAssignCmd.Flags().StringVar(&taskAssignName, "name", "", "Display name of the assignee")

	taskCmd.AddCommand(taskAddCmd, taskShowCmd, taskMoveCmd, taskUpdateCmd, taskAssignCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
