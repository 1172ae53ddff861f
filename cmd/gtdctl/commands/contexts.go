package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/models"
)

// NewContextsCmd creates the contexts command
func NewContextsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "Manage task contexts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create the default contexts that do not exist yet",
		Long:  "Creates @home, @work, @computer, @errands and @phone unless a context with the same name exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(_ *database.DB, repos *database.Repositories) error {
				_, err := seedContexts(ctx, repos.Contexts, cmd.OutOrStdout())
				return err
			})
		},
	})
	return cmd
}

// seedContexts creates the missing default contexts and returns how many it created
func seedContexts(ctx context.Context, repo database.ContextRepositoryInterface, out io.Writer) (int, error) {
	existing, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list contexts: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = true
	}

	created := 0
	for _, def := range models.DefaultContexts {
		if have[strings.ToLower(def.Name)] {
			fmt.Fprintf(out, "  %s already exists\n", def.Name)
			continue
		}
		c := def
		if err := repo.Create(ctx, &c); err != nil {
			return created, fmt.Errorf("failed to create context %s: %w", def.Name, err)
		}
		fmt.Fprintf(out, "  created %s\n", def.Name)
		created++
	}
	fmt.Fprintf(out, "Seeded %d context(s)\n", created)
	return created, nil
}
