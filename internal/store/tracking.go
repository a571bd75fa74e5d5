package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// EventKind is a tracking event type
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventClick EventKind = "click"
)

// TrackedRecipient is one recipient of a tracked message and its opaque token
type TrackedRecipient struct {
	Address string
	Token   string
}

// TrackedMessage is an outbound message with tracking enabled. Links are the
// click targets rewritten into its body.
type TrackedMessage struct {
	Tenant     string
	MessageID  string
	Subject    string
	SentAt     time.Time
	Recipients []TrackedRecipient
	Links      []string
}

// TrackingEvent is one open or click
type TrackingEvent struct {
	Token     string
	Kind      EventKind
	URL       string
	UserAgent string
	At        time.Time
}

// SaveTrackedMessage stores a tracked message and its recipient tokens
func (s *Store) SaveTrackedMessage(ctx context.Context, msg *TrackedMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		"INSERT INTO tracked_messages (tenant, message_id, subject, sent_at) VALUES (?, ?, ?, ?)",
		msg.Tenant, msg.MessageID, msg.Subject, toMillis(msg.SentAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracked message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get tracked message ID: %w", err)
	}

	for _, r := range msg.Recipients {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO tracked_recipients (tracked_message_id, address, token) VALUES (?, ?, ?)",
			id, r.Address, r.Token,
		); err != nil {
			return fmt.Errorf("failed to insert tracked recipient: %w", err)
		}
	}

	for _, link := range msg.Links {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO tracked_links (tracked_message_id, url) VALUES (?, ?)",
			id, link,
		); err != nil {
			return fmt.Errorf("failed to insert tracked link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracked message: %w", err)
	}
	return nil
}

// RecordEvent stores an open or click for the recipient owning token. A click
// is only recorded when its URL is one of the links tracked for that message;
// unknown tokens and unknown links return ErrNotFound.
func (s *Store) RecordEvent(ctx context.Context, ev TrackingEvent) error {
	var recipientID int64
	var linked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, EXISTS (
			SELECT 1 FROM tracked_links l
			WHERE l.tracked_message_id = r.tracked_message_id AND l.url = ?
		)
		FROM tracked_recipients r
		WHERE r.token = ?
	`, ev.URL, ev.Token).Scan(&recipientID, &linked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("tracking token: %w", apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to look up tracking token: %w", err)
	}
	if ev.Kind == EventClick && !linked {
		return fmt.Errorf("click target: %w", apperrors.ErrNotFound)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO tracking_events (recipient_id, kind, url, user_agent, occurred_at) VALUES (?, ?, ?, ?, ?)",
		recipientID, string(ev.Kind), ev.URL, ev.UserAgent, toMillis(ev.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracking event: %w", err)
	}
	return nil
}

// TrackingSummaries returns aggregate engagement keyed by Message-ID. Untracked
// messages are absent from the map.
func (s *Store) TrackingSummaries(ctx context.Context, tenant string, messageIDs []string) (map[string]types.TrackingSummary, error) {
	out := make(map[string]types.TrackingSummary)
	if len(messageIDs) == 0 {
		return out, nil
	}

	args := make([]interface{}, 0, len(messageIDs)+1)
	args = append(args, tenant)
	for _, id := range messageIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT m.message_id,
			COALESCE(SUM(CASE WHEN e.kind = 'open' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.kind = 'click' THEN 1 ELSE 0 END), 0)
		FROM tracked_messages m
		LEFT JOIN tracked_recipients r ON r.tracked_message_id = m.id
		LEFT JOIN tracking_events e ON e.recipient_id = r.id
		WHERE m.tenant = ? AND m.message_id IN (%s)
		GROUP BY m.message_id
	`, placeholders(len(messageIDs)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking summaries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		summary := types.TrackingSummary{TrackingEnabled: true}
		if err := rows.Scan(&id, &summary.TotalOpens, &summary.TotalClicks); err != nil {
			return nil, fmt.Errorf("failed to scan tracking summary: %w", err)
		}
		out[id] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracking summaries: %w", err)
	}

	return out, nil
}

// TrackingDetail returns per-recipient engagement for one message, or ErrNotFound
func (s *Store) TrackingDetail(ctx context.Context, tenant, messageID string) (*types.TrackingDetail, error) {
	var trackedID, sentAt int64
	detail := &types.TrackingDetail{MessageID: messageID}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, subject, sent_at FROM tracked_messages WHERE tenant = ? AND message_id = ?",
		tenant, messageID,
	).Scan(&trackedID, &detail.Subject, &sentAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tracked message %s: %w", messageID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get tracked message: %w", err)
	}
	detail.SentAt = fromMillis(sentAt)
	detail.Summary.TrackingEnabled = true

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.address,
			COALESCE(SUM(CASE WHEN e.kind = 'open' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.kind = 'click' THEN 1 ELSE 0 END), 0),
			MIN(CASE WHEN e.kind = 'open' THEN e.occurred_at END),
			MAX(CASE WHEN e.kind = 'open' THEN e.occurred_at END)
		FROM tracked_recipients r
		LEFT JOIN tracking_events e ON e.recipient_id = r.id
		WHERE r.tracked_message_id = ?
		GROUP BY r.id, r.address
		ORDER BY r.id
	`, trackedID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rt types.RecipientTracking
		var firstOpen, lastOpen sql.NullInt64
		if err := rows.Scan(&rt.Address, &rt.Opens, &rt.Clicks, &firstOpen, &lastOpen); err != nil {
			return nil, fmt.Errorf("failed to scan tracked recipient: %w", err)
		}
		if firstOpen.Valid {
			t := fromMillis(firstOpen.Int64)
			rt.FirstOpenAt = &t
		}
		if lastOpen.Valid {
			t := fromMillis(lastOpen.Int64)
			rt.LastOpenAt = &t
		}
		detail.Summary.TotalOpens += rt.Opens
		detail.Summary.TotalClicks += rt.Clicks
		detail.Recipients = append(detail.Recipients, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tracked recipients: %w", err)
	}

	return detail, nil
}
