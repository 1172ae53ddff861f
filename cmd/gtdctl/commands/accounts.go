package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benvon/gtd/internal/database"
	"github.com/benvon/gtd/internal/models"
)

// NewAccountsCmd creates the accounts command with list and set subcommands
func NewAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage email accounts",
		Long:  "List or update the IMAP/SMTP accounts the worker syncs and the API sends from",
	}
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsSetCmd())
	return cmd
}

func newAccountsListCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured email accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(_ *database.DB, repos *database.Repositories) error {
				return listAccounts(ctx, repos.EmailAccounts, cmd.OutOrStdout(), output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")
	return cmd
}

func listAccounts(ctx context.Context, repo database.EmailAccountRepositoryInterface, out io.Writer, format string) error {
	accounts, err := repo.List(ctx, false)
	if err != nil {
		return fmt.Errorf("failed to list email accounts: %w", err)
	}
	if format != outputText {
		return encode(out, format, accounts)
	}
	if len(accounts) == 0 {
		fmt.Fprintln(out, "No email accounts configured. Use 'accounts set' to add one.")
		return nil
	}
	fmt.Fprintln(out, "Email accounts:")
	for _, a := range accounts {
		state := "active"
		if !a.IsActive {
			state = "inactive"
		}
		fmt.Fprintf(out, "  - %s (%s)\n", a.Address, state)
		fmt.Fprintf(out, "    IMAP: %s:%d  SMTP: %s:%d  TLS: %v\n", a.IMAPHost, a.IMAPPort, a.SMTPHost, a.SMTPPort, a.UseTLS)
		if a.LastSyncAt != nil {
			fmt.Fprintf(out, "    Last sync: %s\n", a.LastSyncAt.Format("2006-01-02 15:04:05 MST"))
		}
	}
	return nil
}

// accountFlags are the values of 'accounts set'. Only flags the user changed are applied to an existing account.
type accountFlags struct {
	address  string
	imapHost string
	imapPort int
	smtpHost string
	smtpPort int
	username string
	password string
	useTLS   bool
	active   bool
}

func newAccountsSetCmd() *cobra.Command {
	var f accountFlags
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or update an email account",
		Long:  "Creates the account for --address, or updates the flags given when it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(ctx, func(_ *database.DB, repos *database.Repositories) error {
				account, created, err := upsertAccount(ctx, repos.EmailAccounts, f, cmd.Flags().Changed)
				if err != nil {
					return err
				}
				verb := "Updated"
				if created {
					verb = "Created"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s email account %s (id %d)\n", verb, account.Address, account.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.address, "address", "", "Email address (required)")
	cmd.Flags().StringVar(&f.imapHost, "imap-host", "", "IMAP server host")
	cmd.Flags().IntVar(&f.imapPort, "imap-port", 993, "IMAP server port")
	cmd.Flags().StringVar(&f.smtpHost, "smtp-host", "", "SMTP server host")
	cmd.Flags().IntVar(&f.smtpPort, "smtp-port", 587, "SMTP server port")
	cmd.Flags().StringVar(&f.username, "username", "", "Login name (defaults to the address)")
	cmd.Flags().StringVar(&f.password, "password", "", "Login password")
	cmd.Flags().BoolVar(&f.useTLS, "tls", true, "Use TLS for IMAP and SMTP")
	cmd.Flags().BoolVar(&f.active, "active", true, "Include the account in scheduled syncs")
	return cmd
}

func upsertAccount(ctx context.Context, repo database.EmailAccountRepositoryInterface, f accountFlags, changed func(string) bool) (*models.EmailAccount, bool, error) {
	address := strings.ToLower(strings.TrimSpace(f.address))
	if address == "" || !strings.Contains(address, "@") {
		return nil, false, fmt.Errorf("--address must be an email address")
	}
	if f.imapPort < 1 || f.imapPort > 65535 || f.smtpPort < 1 || f.smtpPort > 65535 {
		return nil, false, fmt.Errorf("ports must be between 1 and 65535")
	}

	existing, err := repo.GetByAddress(ctx, address)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up account: %w", err)
	}

	if existing == nil {
		if f.imapHost == "" || f.smtpHost == "" || f.password == "" {
			return nil, false, fmt.Errorf("new accounts need --imap-host, --smtp-host and --password")
		}
		account := &models.EmailAccount{
			Address:  address,
			IMAPHost: f.imapHost,
			IMAPPort: f.imapPort,
			SMTPHost: f.smtpHost,
			SMTPPort: f.smtpPort,
			Username: f.username,
			Password: f.password,
			UseTLS:   f.useTLS,
			IsActive: f.active,
		}
		if account.Username == "" {
			account.Username = address
		}
		if err := repo.Create(ctx, account); err != nil {
			return nil, false, fmt.Errorf("failed to create account: %w", err)
		}
		return account, true, nil
	}

	if changed("imap-host") {
		existing.IMAPHost = f.imapHost
	}
	if changed("imap-port") {
		existing.IMAPPort = f.imapPort
	}
	if changed("smtp-host") {
		existing.SMTPHost = f.smtpHost
	}
	if changed("smtp-port") {
		existing.SMTPPort = f.smtpPort
	}
	if changed("username") {
		existing.Username = f.username
	}
	if changed("password") {
		existing.Password = f.password
	}
	if changed("tls") {
		existing.UseTLS = f.useTLS
	}
	if changed("active") {
		existing.IsActive = f.active
	}
	if err := repo.Update(ctx, existing); err != nil {
		return nil, false, fmt.Errorf("failed to update account: %w", err)
	}
	return existing, false, nil
}
