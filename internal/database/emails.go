package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/gtd/internal/models"
	"github.com/lib/pq"
)

// EmailRepository handles email database operations
type EmailRepository struct {
	db *DB
}

// NewEmailRepository creates a new email repository
func NewEmailRepository(db *DB) *EmailRepository {
	return &EmailRepository{db: db}
}

const emailColumns = `id, account_id, message_id, subject, sender, recipients, cc, bcc, content, html_content,
	folder, processed, flags, received_at, attachments, created_at, updated_at`

func scanEmail(row rowScanner) (*models.Email, error) {
	e := &models.Email{}
	var (
		accountID       sql.NullInt64
		htmlContent     sql.NullString
		attachmentsJSON []byte
	)

	err := row.Scan(
		&e.ID,
		&accountID,
		&e.MessageID,
		&e.Subject,
		&e.Sender,
		pq.Array(&e.Recipients),
		pq.Array(&e.CC),
		pq.Array(&e.BCC),
		&e.Content,
		&htmlContent,
		&e.Folder,
		&e.Processed,
		pq.Array(&e.Flags),
		&e.ReceivedAt,
		&attachmentsJSON,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.AccountID = int64Ptr(accountID)
	e.HTMLContent = stringPtr(htmlContent)
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &e.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}
	normalizeEmail(e)
	return e, nil
}

// normalizeEmail replaces nil slices so they serialize as empty arrays
func normalizeEmail(e *models.Email) {
	if e.Recipients == nil {
		e.Recipients = []string{}
	}
	if e.CC == nil {
		e.CC = []string{}
	}
	if e.BCC == nil {
		e.BCC = []string{}
	}
	if e.Flags == nil {
		e.Flags = []string{}
	}
	if e.Attachments == nil {
		e.Attachments = []models.Attachment{}
	}
}

func emailArgs(e *models.Email) ([]any, error) {
	normalizeEmail(e)
	attachmentsJSON, err := json.Marshal(e.Attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attachments: %w", err)
	}
	if e.Folder == "" {
		e.Folder = models.FolderInbox
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	return []any{
		nullInt64(e.AccountID),
		e.MessageID,
		e.Subject,
		e.Sender,
		pq.Array(e.Recipients),
		pq.Array(e.CC),
		pq.Array(e.BCC),
		e.Content,
		nullString(e.HTMLContent),
		e.Folder,
		e.Processed,
		pq.Array(e.Flags),
		e.ReceivedAt,
		attachmentsJSON,
	}, nil
}

// emailInsertIfNew skips message ids that are already stored or were deleted
const emailInsertIfNew = `
	INSERT INTO emails (account_id, message_id, subject, sender, recipients, cc, bcc, content, html_content,
		folder, processed, flags, received_at, attachments)
	SELECT $1::bigint, $2::text, $3::text, $4::text, $5::text[], $6::text[], $7::text[], $8::text, $9::text,
		$10::text, $11::boolean, $12::text[], $13::timestamptz, $14::jsonb
	WHERE NOT EXISTS (SELECT 1 FROM email_tombstones WHERE message_id = $2::text)
	ON CONFLICT (message_id) DO NOTHING
	RETURNING id, created_at, updated_at
`

const emailInsert = `
	INSERT INTO emails (account_id, message_id, subject, sender, recipients, cc, bcc, content, html_content,
		folder, processed, flags, received_at, attachments)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
`

// Create stores a new email. A duplicate message id returns ErrConflict.
func (r *EmailRepository) Create(ctx context.Context, e *models.Email) error {
	args, err := emailArgs(e)
	if err != nil {
		return err
	}
	err = r.db.QueryRowContext(ctx, emailInsert+` RETURNING id, created_at, updated_at`, args...).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %q: %w", e.MessageID, ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return referenceError("email", err)
	}
	if err != nil {
		return fmt.Errorf("failed to create email: %w", err)
	}
	return nil
}

// InsertIfNew stores the email unless its message id is already known or was
// deleted earlier. It reports whether a row was inserted.
func (r *EmailRepository) InsertIfNew(ctx context.Context, e *models.Email) (bool, error) {
	args, err := emailArgs(e)
	if err != nil {
		return false, err
	}
	err = r.db.QueryRowContext(ctx, emailInsertIfNew, args...).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if isForeignKeyViolation(err) {
		return false, referenceError("email", err)
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert email: %w", err)
	}
	return true, nil
}

// GetByID retrieves an email by ID
func (r *EmailRepository) GetByID(ctx context.Context, id int64) (*models.Email, error) {
	e, err := scanEmail(r.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get email: %w", err)
	}
	return e, nil
}

// List retrieves emails newest first, optionally filtered by folder and processed flag
func (r *EmailRepository) List(ctx context.Context, filter models.EmailFilter) ([]*models.Email, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE 1 = 1`
	args := []any{}
	argIndex := 1

	if filter.Folder != nil {
		query += fmt.Sprintf(" AND folder = $%d", argIndex)
		args = append(args, string(*filter.Folder))
		argIndex++
	}
	if filter.Processed != nil {
		query += fmt.Sprintf(" AND processed = $%d", argIndex)
		args = append(args, *filter.Processed)
	}
	query += " ORDER BY received_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query emails: %w", err)
	}
	defer rows.Close()

	emails := []*models.Email{}
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emails: %w", err)
	}
	return emails, nil
}

// Update writes every mutable column of the email
func (r *EmailRepository) Update(ctx context.Context, e *models.Email) error {
	args, err := emailArgs(e)
	if err != nil {
		return err
	}
	query := `
		UPDATE emails SET account_id = $2, message_id = $3, subject = $4, sender = $5, recipients = $6, cc = $7,
			bcc = $8, content = $9, html_content = $10, folder = $11, processed = $12, flags = $13,
			received_at = $14, attachments = $15, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = r.db.QueryRowContext(ctx, query, append([]any{e.ID}, args...)...).Scan(&e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("email %d: %w", e.ID, ErrNotFound)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("email %q: %w", e.MessageID, ErrConflict)
	}
	if isForeignKeyViolation(err) {
		return referenceError("email", err)
	}
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	return nil
}

// Delete permanently removes an email and tombstones its message id
func (r *EmailRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		WITH deleted AS (DELETE FROM emails WHERE id = $1 RETURNING message_id)
		INSERT INTO email_tombstones (message_id)
		SELECT message_id FROM deleted
		ON CONFLICT (message_id) DO UPDATE SET deleted_at = NOW()`, id)
	if err != nil {
		return fmt.Errorf("failed to delete email: %w", err)
	}
	return expectOneRow(res, "email", id)
}

// SetFolder moves an email to another local folder
func (r *EmailRepository) SetFolder(ctx context.Context, id int64, folder models.EmailFolder) error {
	res, err := r.db.ExecContext(ctx, `UPDATE emails SET folder = $2, updated_at = NOW() WHERE id = $1`, id, folder)
	if err != nil {
		return fmt.Errorf("failed to move email: %w", err)
	}
	return expectOneRow(res, "email", id)
}

// MarkProcessed flags an email as clarified
func (r *EmailRepository) MarkProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE emails SET processed = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}
	return expectOneRow(res, "email", id)
}

// CountUnprocessedInbox counts INBOX emails not yet clarified
func (r *EmailRepository) CountUnprocessedInbox(ctx context.Context) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM emails WHERE folder = 'INBOX' AND NOT processed`
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unprocessed emails: %w", err)
	}
	return n, nil
}

// CountUnprocessedOlderThan counts unprocessed INBOX emails received before t
func (r *EmailRepository) CountUnprocessedOlderThan(ctx context.Context, t time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM emails WHERE folder = 'INBOX' AND NOT processed AND received_at < $1`
	if err := r.db.QueryRowContext(ctx, query, t).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count old unprocessed emails: %w", err)
	}
	return n, nil
}
