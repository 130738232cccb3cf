package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

var (
	boardQuery    string
	boardPriority string
	boardAssignee string
	boardJSON     bool
)

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeColumnStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			MarginBottom(1)

	cursorStyle  = lipgloss.NewStyle().Reverse(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	dropStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	statusTodo       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusReview     = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	priorityUrgent = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	priorityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	priorityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	priorityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show or interact with a project board",
}

var boardShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the board as five columns",
	Long: `Print the current project's board as five columns: todo, in_progress,
review, done and blocked. Tasks appear in board order with priority, assignee
and subtask progress.

Filters combine: --query matches title and description case-insensitively,
--priority takes all|low|medium|high|urgent and --assignee takes
all|unassigned|<user-id>.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := criteriaFromFlags(boardQuery, boardPriority, boardAssignee)
		if err != nil {
			return err
		}
		return withSession(cmd, func(_ context.Context, sess *core.Session) error {
			cols := columnsOf(core.FilterTasks(sess.Board.Tasks(), c))
			out := cmd.OutOrStdout()
			if boardJSON {
				data, err := json.MarshalIndent(cols, "", "  ")
				if err != nil {
					return fmt.Errorf("formatting board as JSON: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			fmt.Fprintln(out, titleStyle.Render(" "+sess.Board.ProjectID()+" "))
			fmt.Fprintln(out, renderColumns(cols, boardView{}))
			return nil
		})
	},
}

func criteriaFromFlags(query, priority, assignee string) (core.Criteria, error) {
	prio, err := core.ParsePriorityFilter(priority)
	if err != nil {
		return core.Criteria{}, err
	}
	return core.Criteria{
		SearchQuery: query,
		Priority:    prio,
		Assignee:    core.ParseAssigneeFilter(assignee),
	}, nil
}

// columnsOf groups tasks, already in board order, into the five columns.
func columnsOf(tasks []models.Task) []core.Column {
	cols := make([]core.Column, len(models.Statuses))
	for i, st := range models.Statuses {
		cols[i] = core.Column{Status: st, Tasks: []models.Task{}}
	}
	for _, t := range tasks {
		if i := t.Status.Column(); i < len(cols) {
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
	}
	return cols
}

// boardView carries the interactive state rendered on top of the columns.
// The zero value renders a static board. dragging is the ID of the task
// being dragged and dropRow where it would land in the active column.
type boardView struct {
	width       int
	interactive bool
	activeCol   int
	cursorRow   int
	dragging    string
	dropRow     int
	pending     func(id string) bool
}

func renderColumns(cols []core.Column, v boardView) string {
	width := 28
	if v.width > 0 {
		if w := v.width/len(cols) - 4; w > 16 {
			width = w
		}
	}

	rendered := make([]string, len(cols))
	for i, col := range cols {
		var b strings.Builder
		b.WriteString(headerStyle.Render(styleForStatus(col.Status).Render(
			fmt.Sprintf("%s (%d)", strings.ToUpper(string(col.Status)), len(col.Tasks)))))
		b.WriteString("\n")

		active := v.interactive && i == v.activeCol
		row := 0
		for _, t := range col.Tasks {
			if active && v.dragging != "" && t.ID == v.dragging {
				continue
			}
			if active && v.dragging != "" && row == v.dropRow {
				b.WriteString(dropStyle.Render("▸ drop here"))
				b.WriteString("\n")
			}
			card := renderCard(t, width)
			switch {
			case active && v.dragging == "" && row == v.cursorRow:
				card = cursorStyle.Render(card)
			case v.pending != nil && v.pending(t.ID):
				card = pendingStyle.Render(card)
			}
			b.WriteString(card)
			b.WriteString("\n")
			row++
		}
		if active && v.dragging != "" && v.dropRow >= row {
			b.WriteString(dropStyle.Render("▸ drop here"))
			b.WriteString("\n")
		}
		if len(col.Tasks) == 0 && !active {
			b.WriteString(helpStyle.Render("(empty)"))
		}

		style := columnStyle
		if active {
			style = activeColumnStyle
		}
		rendered[i] = style.Width(width).Render(b.String())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func renderCard(t models.Task, width int) string {
	title := t.Title
	if limit := width - 2; limit > 3 && len([]rune(title)) > limit {
		title = string([]rune(title)[:limit-1]) + "…"
	}
	meta := []string{styleForPriority(t.Priority).Render(string(t.Priority))}
	if t.AssigneeName != "" {
		meta = append(meta, "@"+t.AssigneeName)
	} else if t.AssigneeID != "" {
		meta = append(meta, "@"+t.AssigneeID)
	}
	if done, total := t.SubtaskProgress(); total > 0 {
		meta = append(meta, fmt.Sprintf("☑ %d/%d", done, total))
	}
	return title + "\n  " + strings.Join(meta, " ")
}

func styleForStatus(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.StatusTodo:
		return statusTodo
	case models.StatusInProgress:
		return statusInProgress
	case models.StatusReview:
		return statusReview
	case models.StatusDone:
		return statusDone
	case models.StatusBlocked:
		return statusBlocked
	default:
		return lipgloss.NewStyle()
	}
}

func styleForPriority(p models.Priority) lipgloss.Style {
	switch p {
	case models.PriorityUrgent:
		return priorityUrgent
	case models.PriorityHigh:
		return priorityHigh
	case models.PriorityMedium:
		return priorityMedium
	case models.PriorityLow:
		return priorityLow
	default:
		return lipgloss.NewStyle()
	}
}

func init() {
	for _, c := range []*cobra.Command{boardShowCmd, boardTUICmd} {
		c.Flags().StringVarP(&boardQuery, "query", "q", "", "Search title and description")
		c.Flags().StringVar(&boardPriority, "priority", "all", "Priority filter: all, low, medium, high, urgent")
		c.Flags().StringVar(&boardAssignee, "assignee", "all", "Assignee filter: all, unassigned or a user ID")
	}
	boardShowCmd.Flags().BoolVar(&boardJSON, "json", false, "Output the columns as JSON")
	boardCmd.AddCommand(boardShowCmd, boardTUICmd)
	rootCmd.AddCommand(boardCmd)
}
