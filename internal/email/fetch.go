package email

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/autoreply"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/spam"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// inboxHeaders are fetched with inbox messages for spam and auto-reply checks
var inboxHeaders = append(append([]string(nil), spam.HeaderFields...), autoreply.HeaderFields...)

// Window returns the sequence range of page p (1-based) of size s in a folder
// of n messages, newest first. ok is false when the page holds no messages.
func Window(n uint32, page, size int) (from, to uint32, ok bool) {
	if n == 0 || page < 1 || size < 1 {
		return 0, 0, false
	}
	upper := int64(n) - int64(page-1)*int64(size)
	if upper < 1 {
		return 0, 0, false
	}
	lower := upper - int64(size) + 1
	if lower < 1 {
		lower = 1
	}
	return uint32(lower), uint32(upper), true
}

// Fetch returns one page of mailbox, newest first
func (a *Account) Fetch(ctx context.Context, mailbox types.Mailbox, page, pageSize int) (*types.Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be at least 1", apperrors.ErrInvalidInput)
	}
	if pageSize < 1 {
		pageSize = a.pageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
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

	result := &types.Page{
		Mailbox:       mailbox,
		Page:          page,
		PageSize:      pageSize,
		Messages:      []types.MessageSummary{},
		TotalMessages: int(status.Messages),
	}

	from, to, ok := Window(status.Messages, page, pageSize)
	if !ok {
		return result, nil
	}

	msgs, err := sess.FetchSeq(ctx, from, to, a.fetchOptions(mailbox))
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("fetch %s %d:%d", mailbox, from, to))
	}

	kept, moved, err := a.filterSpam(ctx, sess, mailbox, msgs)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(kept)

	result.Messages = a.summaries(ctx, kept)
	result.AutoMoved = moved
	result.TotalMessages -= len(moved)
	result.HasMore = from > 1

	a.logger.WithFields(logrus.Fields{
		"tenant":  a.Name(),
		"mailbox": mailbox,
		"page":    page,
		"count":   len(result.Messages),
		"moved":   len(moved),
	}).Debug("Fetched page")

	return result, nil
}

func (a *Account) fetchOptions(mailbox types.Mailbox) transport.FetchOptions {
	if mailbox == types.MailboxInbox {
		return transport.FetchOptions{HeaderFields: inboxHeaders}
	}
	return transport.FetchOptions{}
}

// filterSpam runs inbox messages through the spam analyzer and splits off the
// ones it moved. Analyzer failures keep the message.
func (a *Account) filterSpam(ctx context.Context, sess transport.Session, mailbox types.Mailbox, msgs []*transport.Message) ([]*transport.Message, []types.AutoMoved, error) {
	if mailbox != types.MailboxInbox || a.spam == nil {
		return msgs, nil, nil
	}

	kept := make([]*transport.Message, 0, len(msgs))
	var moved []types.AutoMoved
	for _, m := range msgs {
		v, err := a.spam.Analyze(ctx, a.Name(), sess, m)
		if err != nil {
			if ctx.Err() != nil || apperrors.IsConnectivity(err) {
				return nil, nil, apperrors.Wrap(err, "spam check")
			}
			a.logger.WithError(err).WithFields(logrus.Fields{
				"tenant": a.Name(),
				"uid":    m.UID,
			}).Warn("Spam check failed")
		}
		if !v.Moved() {
			kept = append(kept, m)
			continue
		}
		s := m.Summary()
		moved = append(moved, types.AutoMoved{
			UID:       s.UID,
			MessageID: s.MessageID,
			Subject:   s.Subject,
			From:      s.From,
		})
	}
	return kept, moved, nil
}

// sortNewestFirst orders by date descending, then UID descending
func sortNewestFirst(msgs []*transport.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		di, dj := msgs[i].Date(), msgs[j].Date()
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return msgs[i].UID > msgs[j].UID
	})
}

// summaries converts msgs and attaches tracking summaries where present
func (a *Account) summaries(ctx context.Context, msgs []*transport.Message) []types.MessageSummary {
	out := make([]types.MessageSummary, len(msgs))
	ids := make([]string, 0, len(msgs))
	for i, m := range msgs {
		out[i] = m.Summary()
		if out[i].MessageID != "" {
			ids = append(ids, out[i].MessageID)
		}
	}
	if a.tracker == nil || len(ids) == 0 {
		return out
	}

	tracked, err := a.tracker.Summarize(ctx, a.Name(), ids)
	if err != nil {
		a.logger.WithError(err).WithField("tenant", a.Name()).Warn("Failed to load tracking summaries")
		return out
	}
	for i := range out {
		if s, ok := tracked[out[i].MessageID]; ok {
			s := s
			out[i].Tracking = &s
		}
	}
	return out
}
