// Package outbound delivers mail to each recipient and reconciles the sent
// copy into the tenant's Sent folder.
package outbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/tracking"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Message is an outbound message as supplied by the caller
type Message struct {
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment

	// InReplyTo and References thread the message; values may carry angle brackets
	InReplyTo  string
	References []string

	// Headers are added to every copy, e.g. Auto-Submitted
	Headers map[string]string

	// DisableTracking skips tracking injection for this message only
	DisableTracking bool
}

// Deliverer sends a message on behalf of one tenant
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) (*types.SendResult, error)
}

// Opener selects the folder backing a logical mailbox
type Opener interface {
	Open(ctx context.Context, sess transport.Session, mailbox types.Mailbox) (*transport.Status, error)
}

// Preparer produces the per-recipient HTML variants
type Preparer interface {
	Prepare(ctx context.Context, req tracking.PrepareRequest) ([]tracking.Recipient, error)
}

// Config wires a Service for one tenant. Sender nil means submission is not
// configured; Dialer nil means the Sent copy cannot be stored.
type Config struct {
	Tenant          string
	Identity        Identity
	Sender          transport.Sender
	Dialer          transport.Dialer
	Folders         Opener
	Tracker         Preparer
	TrackingEnabled bool
}

// Service implements Deliverer
type Service struct {
	cfg    Config
	logger *logrus.Logger
	now    func() time.Time
}

// NewService creates a delivery service for one tenant
func NewService(cfg Config, logger *logrus.Logger) *Service {
	return &Service{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Deliver validates msg, sends one copy per recipient and reconciles the Sent
// copy. Once every send succeeded the result is never an error; a Sent copy
// that cannot be confirmed yields a degraded result instead.
func (s *Service) Deliver(ctx context.Context, msg *Message) (*types.SendResult, error) {
	if s.cfg.Sender == nil {
		return nil, apperrors.ErrSMTPNotConfigured
	}

	to := s.parseList(msg.To)
	cc := s.parseList(msg.Cc)
	bcc := s.parseList(msg.Bcc)
	all := dedupe(to, cc, bcc)
	if len(all) == 0 {
		return nil, apperrors.ErrNoRecipients
	}

	from := &mail.Address{Name: s.cfg.Identity.Name, Address: s.cfg.Identity.Address}
	now := s.now()
	messageID := newMessageID(from.Address)

	fragment := msg.HTML
	if fragment == "" {
		fragment = textToHTML(msg.Text)
	}
	wrapped, err := Wrap(fragment, msg.Subject, s.cfg.Identity)
	if err != nil {
		return nil, err
	}
	text := msg.Text
	if text == "" {
		text = plainText(fragment)
	}

	addrs := make([]string, len(all))
	for i, a := range all {
		addrs[i] = a.Address
	}
	variants, err := s.prepare(ctx, msg, messageID, now, wrapped, addrs)
	if err != nil {
		return nil, apperrors.Wrap(err, "prepare tracking")
	}

	env := &envelope{
		From:        from,
		To:          to,
		Cc:          cc,
		Bcc:         bcc,
		Subject:     msg.Subject,
		Date:        now,
		MessageID:   messageID,
		InReplyTo:   types.NormalizeMessageID(msg.InReplyTo),
		Headers:     msg.Headers,
		Text:        text,
		Attachments: msg.Attachments,
	}
	if msg.ReplyTo != "" {
		if a, err := mail.ParseAddress(msg.ReplyTo); err == nil {
			env.ReplyTo = []*mail.Address{a}
		}
	}
	for _, ref := range msg.References {
		if id := types.NormalizeMessageID(ref); id != "" {
			env.References = append(env.References, id)
		}
	}

	logger := s.logger.WithFields(logrus.Fields{
		"tenant":     s.cfg.Tenant,
		"message_id": messageID,
	})

	for i, rcpt := range addrs {
		env.HTML = variants[i].HTML
		raw, err := compose(env, false)
		if err != nil {
			return nil, fmt.Errorf("failed to compose message: %w", err)
		}
		if err := s.cfg.Sender.Send(ctx, from.Address, []string{rcpt}, raw); err != nil {
			logger.WithError(err).WithField("recipient", rcpt).Error("Delivery failed")
			return nil, &apperrors.DeliveryError{
				Recipient: rcpt,
				Index:     i,
				Total:     len(all),
				Err:       err,
			}
		}
		logger.WithField("recipient", rcpt).Debug("Delivered")
	}

	result := &types.SendResult{MessageID: messageID, Recipients: addrs}

	env.HTML = variants[0].HTML
	raw, err := compose(env, true)
	if err != nil {
		result.DegradedReason = fmt.Sprintf("compose sent copy: %v", err)
		logger.WithError(err).Warn("Sent copy not stored")
		return result, nil
	}

	sent, err := s.storeSentCopy(ctx, messageID, now, raw)
	if err != nil {
		result.DegradedReason = err.Error()
		logger.WithError(err).Warn("Sent copy not confirmed")
		return result, nil
	}
	if s.tracked(msg) {
		sent.Message.Tracking = &types.TrackingSummary{TrackingEnabled: true}
	}
	result.Sent = sent

	logger.WithField("recipients", len(addrs)).Info("Message sent")
	return result, nil
}

func (s *Service) tracked(msg *Message) bool {
	return s.cfg.TrackingEnabled && !msg.DisableTracking && s.cfg.Tracker != nil
}

// prepare returns one HTML variant per recipient, in recipient order
func (s *Service) prepare(ctx context.Context, msg *Message, messageID string, sentAt time.Time, html string, addrs []string) ([]tracking.Recipient, error) {
	if s.cfg.Tracker == nil {
		out := make([]tracking.Recipient, len(addrs))
		for i, a := range addrs {
			out[i] = tracking.Recipient{Address: a, HTML: html}
		}
		return out, nil
	}
	variants, err := s.cfg.Tracker.Prepare(ctx, tracking.PrepareRequest{
		Tenant:     s.cfg.Tenant,
		MessageID:  messageID,
		Subject:    msg.Subject,
		SentAt:     sentAt,
		HTML:       html,
		Recipients: addrs,
		Enabled:    s.tracked(msg),
	})
	if err != nil {
		return nil, err
	}
	if len(variants) != len(addrs) {
		return nil, fmt.Errorf("tracker returned %d variants for %d recipients", len(variants), len(addrs))
	}
	return variants, nil
}

// storeSentCopy appends raw to the Sent folder and reads it back
func (s *Service) storeSentCopy(ctx context.Context, messageID string, date time.Time, raw []byte) (*types.SentCopy, error) {
	if s.cfg.Dialer == nil || s.cfg.Folders == nil {
		return nil, apperrors.ErrIMAPNotConfigured
	}

	sess, err := s.cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "connect")
	}
	defer sess.Logout()

	status, err := s.cfg.Folders.Open(ctx, sess, types.MailboxSent)
	if err != nil {
		return nil, apperrors.Wrap(err, "open sent folder")
	}

	path := status.Path
	uid, err := sess.Append(ctx, path, []string{transport.FlagSeen}, date, raw)
	if err != nil {
		return nil, apperrors.Wrap(err, "append to "+path)
	}

	// Re-select so the message count and sequence numbers include the new copy
	status, err = sess.Select(ctx, path)
	if err != nil {
		return nil, apperrors.Wrap(err, "reopen "+path)
	}

	msg, err := s.reconcile(ctx, sess, uid, status, messageID)
	if err != nil {
		return nil, err
	}
	return &types.SentCopy{
		Message:       msg.Summary(),
		TotalMessages: int(status.Messages),
	}, nil
}

// reconcile finds the appended copy by APPENDUID, then by the last sequence
// number, then by searching for its Message-ID
func (s *Service) reconcile(ctx context.Context, sess transport.Session, uid types.UID, status *transport.Status, messageID string) (*transport.Message, error) {
	logger := s.logger.WithFields(logrus.Fields{"tenant": s.cfg.Tenant, "path": status.Path})

	if uid != 0 {
		msgs, err := sess.FetchUIDs(ctx, []types.UID{uid}, transport.FetchOptions{})
		if err == nil && len(msgs) > 0 {
			return msgs[0], nil
		}
		logger.WithError(err).Debug("Fetch by APPENDUID failed")
	}

	if status.Messages > 0 {
		msgs, err := sess.FetchSeq(ctx, status.Messages, status.Messages, transport.FetchOptions{})
		if err == nil && len(msgs) > 0 && sameMessageID(msgs[0].Envelope.MessageID, messageID) {
			return msgs[0], nil
		}
		logger.WithError(err).Debug("Fetch by sequence number did not match")
	}

	uids, err := sess.SearchHeader(ctx, "Message-ID", messageID)
	if err != nil {
		return nil, apperrors.Wrap(err, "search sent copy")
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("sent copy %s: %w", messageID, apperrors.ErrMessageNotFound)
	}
	newest := uids[0]
	for _, u := range uids[1:] {
		if u > newest {
			newest = u
		}
	}
	msgs, err := sess.FetchUIDs(ctx, []types.UID{newest}, transport.FetchOptions{})
	if err != nil {
		return nil, apperrors.Wrap(err, "fetch sent copy")
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("sent copy %s: %w", messageID, apperrors.ErrMessageNotFound)
	}
	return msgs[0], nil
}

func sameMessageID(a, b string) bool {
	return strings.EqualFold(types.NormalizeMessageID(a), types.NormalizeMessageID(b))
}

// parseList parses each entry independently; unparseable entries are skipped
func (s *Service) parseList(list []string) []*mail.Address {
	var out []*mail.Address
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parsed, err := mail.ParseAddressList(entry)
		if err != nil {
			s.logger.WithField("tenant", s.cfg.Tenant).Warn("Skipping unparseable recipient")
			continue
		}
		out = append(out, parsed...)
	}
	return out
}

// dedupe flattens the lists, keeping the first occurrence of each address
func dedupe(lists ...[]*mail.Address) []*mail.Address {
	seen := make(map[string]bool)
	var out []*mail.Address
	for _, list := range lists {
		for _, a := range list {
			key := types.NormalizeAddress(a.Address)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, a)
		}
	}
	return out
}
