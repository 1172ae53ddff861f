package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/gtd/internal/models"
)

// EmailAccountRepository handles email account configuration
type EmailAccountRepository struct {
	db *DB
}

// NewEmailAccountRepository creates a new email account repository
func NewEmailAccountRepository(db *DB) *EmailAccountRepository {
	return &EmailAccountRepository{db: db}
}

const accountColumns = `id, address, imap_host, imap_port, smtp_host, smtp_port, username, password, use_tls,
	is_active, last_sync_at, created_at, updated_at`

func scanAccount(row rowScanner) (*models.EmailAccount, error) {
	a := &models.EmailAccount{}
	var lastSync sql.NullTime
	err := row.Scan(&a.ID, &a.Address, &a.IMAPHost, &a.IMAPPort, &a.SMTPHost, &a.SMTPPort, &a.Username,
		&a.Password, &a.UseTLS, &a.IsActive, &lastSync, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.LastSyncAt = timePtr(lastSync)
	return a, nil
}

// Create stores a new account. A duplicate address returns ErrConflict.
func (r *EmailAccountRepository) Create(ctx context.Context, a *models.EmailAccount) error {
	query := `
		INSERT INTO email_accounts (address, imap_host, imap_port, smtp_host, smtp_port, username, password, use_tls, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, a.Address, a.IMAPHost, a.IMAPPort, a.SMTPHost, a.SMTPPort,
		a.Username, a.Password, a.UseTLS, a.IsActive).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email account %q: %w", a.Address, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create email account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by ID
func (r *EmailAccountRepository) GetByID(ctx context.Context, id int64) (*models.EmailAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM email_accounts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email account %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email account: %w", err)
	}
	return a, nil
}

// GetByAddress retrieves an account by its address
func (r *EmailAccountRepository) GetByAddress(ctx context.Context, address string) (*models.EmailAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM email_accounts WHERE address = $1`, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email account %q: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email account: %w", err)
	}
	return a, nil
}

// List retrieves accounts, only active ones when activeOnly is set
func (r *EmailAccountRepository) List(ctx context.Context, activeOnly bool) ([]*models.EmailAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM email_accounts`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query email accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*models.EmailAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate email accounts: %w", err)
	}
	return accounts, nil
}

// Update writes every mutable column of the account
func (r *EmailAccountRepository) Update(ctx context.Context, a *models.EmailAccount) error {
	query := `
		UPDATE email_accounts SET address = $2, imap_host = $3, imap_port = $4, smtp_host = $5, smtp_port = $6,
			username = $7, password = $8, use_tls = $9, is_active = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query, a.ID, a.Address, a.IMAPHost, a.IMAPPort, a.SMTPHost, a.SMTPPort,
		a.Username, a.Password, a.UseTLS, a.IsActive).Scan(&a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("email account %d: %w", a.ID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("email account %q: %w", a.Address, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update email account: %w", err)
	}
	return nil
}

// Delete removes an account. Its emails are kept.
func (r *EmailAccountRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete email account: %w", err)
	}
	return expectOneRow(res, "email account", id)
}

// TouchLastSync records a completed sync
func (r *EmailAccountRepository) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE email_accounts SET last_sync_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last sync: %w", err)
	}
	return expectOneRow(res, "email account", id)
}
