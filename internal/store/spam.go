package store

import (
	"context"
	"fmt"
	"time"

	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// SpamRecord is one message the spam analyzer acted on
type SpamRecord struct {
	Tenant    string
	MessageID string
	UID       types.UID
	Sender    string
	Subject   string
	Score     float64
	MovedTo   string
	At        time.Time
}

// RecordSpam logs a spam verdict. It reports false when the message was already logged.
func (s *Store) RecordSpam(ctx context.Context, rec SpamRecord) (bool, error) {
	query := `
		INSERT OR IGNORE INTO spam_log (tenant, message_id, uid, sender, subject, score, moved_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		rec.Tenant,
		rec.MessageID,
		uint32(rec.UID),
		rec.Sender,
		rec.Subject,
		rec.Score,
		rec.MovedTo,
		toMillis(rec.At),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert spam log: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read spam log result: %w", err)
	}
	return n > 0, nil
}

// SpamLogged reports whether a message was already logged as spam
func (s *Store) SpamLogged(ctx context.Context, tenant, messageID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM spam_log WHERE tenant = ? AND message_id = ?", tenant, messageID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check spam log: %w", err)
	}
	return count > 0, nil
}
