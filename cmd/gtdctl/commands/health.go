package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/health"
)

// NewHealthCmd creates the health command
func NewHealthCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Print the GTD health scores",
		Long:  "Scores capture, clarify, organize, reflect and engage from 1 (excellent) to 5 (needs attention)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(_ *database.DB, repos *database.Repositories) error {
				svc := health.NewService(repos.Tasks, repos.Projects, repos.Emails, repos.WeeklyReviews, cliLogger(cmd))
				return printHealth(ctx, svc, cmd.OutOrStdout(), output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	return cmd
}

type snapshotter interface {
	Snapshot(ctx context.Context) (health.Snapshot, error)
}

func printHealth(ctx context.Context, svc snapshotter, out io.Writer, format string) error {
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute health: %w", err)
	}
	if format != outputText {
		return encode(out, format, snap)
	}
	for _, row := range []struct {
		name  string
		score health.Score
	}{
		{"Capture", snap.Capture},
		{"Clarify", snap.Clarify},
		{"Organize", snap.Organize},
		{"Reflect", snap.Reflect},
		{"Engage", snap.Engage},
	} {
		fmt.Fprintf(out, "%-9s %d  %s\n", row.name, row.score.Level, row.score.Metric)
	}
	return nil
}
