package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/benvon/gtd/internal/config"
	"github.com/benvon/gtd/internal/services/token"
)

// NewTokenCmd creates the token command
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCmd())
	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed API token",
		Long:  "Signs an HS256 token with API_TOKEN_SECRET. The server only checks tokens when that secret is set.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.APITokenSecret == "" {
				return fmt.Errorf("API_TOKEN_SECRET is not set")
			}
			manager, err := token.NewManager(cfg.APITokenSecret)
			if err != nil {
				return err
			}
			signed, err := manager.Issue(subject, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "gtdctl", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "Token lifetime")
	return cmd
}
