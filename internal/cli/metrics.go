package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display board activity metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include created, moved, completed and deleted tasks, rolled back
changes, comments, completed subtasks and live feed interruptions. With
--project the numbers cover that project only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be disabled)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		project := ""
		if cmd.Flags().Changed("project") {
			project = projectFlag
		}

		metrics, err := MetricsCalc.Calculate(sinceTime, project)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		// Table format.
		scope := "all projects"
		if project != "" {
			scope = project
		}
		fmt.Fprintf(out, "Metrics for %s (since %s)\n\n", scope, sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks created:", metrics.TasksCreated)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks moved:", metrics.TasksMoved)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks completed:", metrics.TasksCompleted)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks deleted:", metrics.TasksDeleted)
		fmt.Fprintf(out, "  %-24s %d (%.0f%%)\n", "Rollbacks:", metrics.Rollbacks, metrics.RollbackRate()*100)
		fmt.Fprintf(out, "  %-24s %d\n", "Comments added:", metrics.CommentsAdded)
		fmt.Fprintf(out, "  %-24s %d\n", "Subtasks completed:", metrics.SubtasksCompleted)
		fmt.Fprintf(out, "  %-24s %d\n", "Feed interruptions:", metrics.SubscriptionErrors)

		if len(metrics.TasksByType) > 0 {
			fmt.Fprintln(out, "\n  Tasks by type:")
			for _, taskType := range sortedKeys(metrics.TasksByType) {
				fmt.Fprintf(out, "    %-20s %d\n", taskType+":", metrics.TasksByType[taskType])
			}
		}

		if len(metrics.MovesByDestination) > 0 {
			fmt.Fprintln(out, "\n  Moves by destination:")
			for _, status := range sortedKeys(metrics.MovesByDestination) {
				fmt.Fprintf(out, "    %-20s %d\n", status+":", metrics.MovesByDestination[status])
			}
		}

		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
