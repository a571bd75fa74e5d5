package email

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Watermark returns the highest UID mailbox has assigned so far, a starting
// point for Sync that skips everything already delivered
func (a *Account) Watermark(ctx context.Context, mailbox types.Mailbox) (types.UID, error) {
	sess, err := a.session(ctx)
	if err != nil {
		return 0, err
	}
	defer a.logout(sess)

	status, err := a.open(ctx, sess, mailbox)
	if err != nil {
		return 0, err
	}
	if status.UIDNext > 0 {
		return status.UIDNext - 1, nil
	}
	// servers that omit UIDNEXT: fall back to the last message
	if status.Messages == 0 {
		return 0, nil
	}
	msgs, err := sess.FetchSeq(ctx, status.Messages, status.Messages, transport.FetchOptions{})
	if err != nil {
		return 0, apperrors.Wrap(err, fmt.Sprintf("fetch %s watermark", mailbox))
	}
	var max types.UID
	for _, m := range msgs {
		if m.UID > max {
			max = m.UID
		}
	}
	return max, nil
}

// Sync returns the messages that arrived in mailbox after the watermark
// since. A zero watermark is a no-op: callers without one use Fetch. The
// watermark is never stored here; callers advance it from the result.
func (a *Account) Sync(ctx context.Context, mailbox types.Mailbox, since types.UID) (*types.SyncResult, error) {
	result := &types.SyncResult{
		Mailbox:  mailbox,
		Messages: []types.MessageSummary{},
	}
	if since == 0 {
		return result, nil
	}

	sess, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	defer a.logout(sess)

	status, err := a.open(ctx, sess, mailbox)
	if err != nil {
		return nil, err
	}
	result.TotalMessages = int(status.Messages)

	if status.Messages == 0 || (status.UIDNext > 0 && since >= status.UIDNext-1) {
		return result, nil
	}

	fetched, err := sess.FetchSince(ctx, since+1, a.fetchOptions(mailbox))
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("fetch %s since %s", mailbox, since))
	}

	// "n:*" returns the highest message even when its UID is below n
	fresh := make([]*transport.Message, 0, len(fetched))
	for _, m := range fetched {
		if m.UID > since {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		return result, nil
	}

	kept, moved, err := a.filterSpam(ctx, sess, mailbox, fresh)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(kept)

	if mailbox == types.MailboxInbox && a.autoreply != nil && len(kept) > 0 {
		report, err := a.autoreply.Process(ctx, kept)
		entry := a.logger.WithFields(logrus.Fields{
			"tenant":  a.Name(),
			"sent":    len(report.Sent),
			"skipped": len(report.Skipped),
		})
		if err != nil {
			entry.WithError(err).Warn("Auto-reply processing failed")
		} else if len(report.Sent) > 0 {
			entry.Info("Auto-replies processed")
		}
	}

	result.Messages = a.summaries(ctx, kept)
	result.AutoMoved = moved
	result.TotalMessages -= len(moved)

	a.logger.WithFields(logrus.Fields{
		"tenant":  a.Name(),
		"mailbox": mailbox,
		"since":   since,
		"count":   len(result.Messages),
		"moved":   len(moved),
	}).Debug("Synced mailbox")

	return result, nil
}
