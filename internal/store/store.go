package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/config"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Store provides methods for storing and retrieving durable engine state
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewStore creates a new store instance
func NewStore(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// placeholders returns "?, ?, ..." for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// UpsertTenant records a tenant's non-secret settings
func (s *Store) UpsertTenant(ctx context.Context, acc *config.AccountConfig) (int64, error) {
	var imapHost, imapUser, smtpHost, smtpUser string
	if acc.IMAP != nil {
		imapHost, imapUser = acc.IMAP.Host, acc.IMAP.Username
	}
	if acc.SMTP != nil {
		smtpHost, smtpUser = acc.SMTP.Host, acc.SMTP.Username
	}

	query := `
		INSERT INTO tenants (name, imap_host, imap_username, smtp_host, smtp_username, sender_address, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			imap_host = excluded.imap_host,
			imap_username = excluded.imap_username,
			smtp_host = excluded.smtp_host,
			smtp_username = excluded.smtp_username,
			sender_address = excluded.sender_address,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, query, acc.Name, imapHost, imapUser, smtpHost, smtpUser, acc.SenderAddress()); err != nil {
		return 0, fmt.Errorf("failed to upsert tenant: %w", err)
	}

	// LastInsertId is unreliable on the update path
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM tenants WHERE name = ?", acc.Name).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get tenant ID: %w", err)
	}
	return id, nil
}

// CreateAutoReplyLog appends one auto-reply log entry and sets its ID
func (s *Store) CreateAutoReplyLog(ctx context.Context, entry *types.AutoReplyLogEntry) error {
	query := `
		INSERT INTO autoreply_log (tenant, sender_email, reply_type, sent_at, original_message_id, original_uid)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		entry.Tenant,
		types.NormalizeAddress(entry.SenderEmail),
		string(entry.ReplyType),
		toMillis(entry.SentAt),
		entry.OriginalMessageID,
		uint32(entry.OriginalUID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert auto-reply log: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// FindRecentAutoReplies returns log entries for the given senders sent at or after since, newest first
func (s *Store) FindRecentAutoReplies(ctx context.Context, tenant string, senders []string, since time.Time) ([]types.AutoReplyLogEntry, error) {
	if len(senders) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(senders)+2)
	args = append(args, tenant, toMillis(since))
	for _, sender := range senders {
		args = append(args, types.NormalizeAddress(sender))
	}

	query := fmt.Sprintf(`
		SELECT id, tenant, sender_email, reply_type, sent_at, original_message_id, original_uid
		FROM autoreply_log
		WHERE tenant = ? AND sent_at >= ? AND sender_email IN (%s)
		ORDER BY sent_at DESC, id DESC
	`, placeholders(len(senders)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-reply log: %w", err)
	}
	defer rows.Close()

	var entries []types.AutoReplyLogEntry
	for rows.Next() {
		var e types.AutoReplyLogEntry
		var replyType string
		var sentAt int64
		var originalID sql.NullString
		var originalUID sql.NullInt64

		if err := rows.Scan(&e.ID, &e.Tenant, &e.SenderEmail, &replyType, &sentAt, &originalID, &originalUID); err != nil {
			return nil, fmt.Errorf("failed to scan auto-reply log: %w", err)
		}
		e.ReplyType = types.ReplyType(replyType)
		e.SentAt = fromMillis(sentAt)
		e.OriginalMessageID = originalID.String
		e.OriginalUID = types.UID(originalUID.Int64)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read auto-reply log: %w", err)
	}

	return entries, nil
}
