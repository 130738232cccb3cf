package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Add or list task comments",
}

var (
	commentUser     string
	commentName     string
	commentMentions []string
)

var commentAddCmd = &cobra.Command{
	Use:   "add <task-id> <text>",
	Short: "Add a comment to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		draft := models.CommentDraft{
			UserID:   commentUser,
			UserName: commentName,
			Content:  strings.Join(args[1:], " "),
			Mentions: commentMentions,
		}
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			c, err := sess.Detail.AddComment(ctx, args[0], draft)
			if err != nil {
				return fmt.Errorf("adding comment: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added comment %s to %s\n", c.ID, args[0])
			return nil
		})
	},
}

var commentListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List a task's comments, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, func(ctx context.Context, sess *core.Session) error {
			comments, err := sess.Detail.Comments(ctx, args[0])
			if err != nil {
				return fmt.Errorf("listing comments: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(comments) == 0 {
				fmt.Fprintln(out, "No comments.")
				return nil
			}
			for _, c := range comments {
				author := c.UserName
				if author == "" {
					author = c.UserID
				}
				fmt.Fprintf(out, "%s  %s: %s\n", c.CreatedAt.Format("2006-01-02 15:04"), author, c.Content)
				if len(c.Mentions) > 0 {
					fmt.Fprintf(out, "    mentions: %s\n", strings.Join(c.Mentions, ", "))
				}
			}
			return nil
		})
	},
}

func init() {
	commentAddCmd.Flags().StringVarP(&commentUser, "user", "u", "", "Author user ID")
	commentAddCmd.Flags().StringVar(&commentName, "name", "", "Author display name")
	commentAddCmd.Flags().StringSliceVarP(&commentMentions, "mention", "m", nil, "Mentioned user ID (repeatable)")
	commentCmd.AddCommand(commentAddCmd, commentListCmd)
	rootCmd.AddCommand(commentCmd)
}
