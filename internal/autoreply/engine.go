// Package autoreply answers freshly synced inbox mail with the tenant's
// standard auto-reply or vacation response.
package autoreply

import (
	"bufio"
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/config"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/outbound"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Cooldown is the window during which a sender gets at most one reply per type
const Cooldown = 24 * time.Hour

// HeaderFields are the header fields the engine inspects; fetches feeding
// Process must request them.
var HeaderFields = []string{
	"Auto-Submitted",
	"Precedence",
	"X-Auto-Response-Suppress",
	"X-Autoreply",
	"X-Autorespond",
}

// Skip reasons
const (
	SkipNoSender   = "no sender"
	SkipOwnAddress = "own address"
	SkipAutomated  = "automated sender"
	SkipHeaders    = "automation headers"
	SkipCooldown   = "cooldown"
	SkipDuplicate  = "duplicate sender in batch"
	SkipSendFailed = "send failed"
)

var automatedLocalPart = regexp.MustCompile(`^(no[-_.]?reply|do[-_.]?not[-_.]?reply|postmaster|mailer[-_.]?daemon|bounces?|daemon)([-+_.].*)?$`)

// LogStore persists sent auto-replies
type LogStore interface {
	CreateAutoReplyLog(ctx context.Context, entry *types.AutoReplyLogEntry) error
	FindRecentAutoReplies(ctx context.Context, tenant string, senders []string, since time.Time) ([]types.AutoReplyLogEntry, error)
}

// Settings are the tenant's responder settings
type Settings struct {
	AutoReply    config.AutoReplyConfig
	Vacation     config.VacationConfig
	OwnAddresses []string
}

// Skip records why a message got no reply
type Skip struct {
	UID    types.UID
	Sender string
	Reason string
}

// Report is the outcome of one Process call
type Report struct {
	Sent    []types.AutoReplyLogEntry
	Skipped []Skip
}

// Engine decides and sends auto-replies for one tenant
type Engine struct {
	tenant   string
	settings Settings
	own      map[string]bool
	sender   outbound.Deliverer
	log      LogStore
	logger   *logrus.Logger
	now      func() time.Time
}

// NewEngine creates an engine for one tenant
func NewEngine(tenant string, settings Settings, sender outbound.Deliverer, log LogStore, logger *logrus.Logger) *Engine {
	own := make(map[string]bool, len(settings.OwnAddresses))
	for _, a := range settings.OwnAddresses {
		own[types.NormalizeAddress(a)] = true
	}
	return &Engine{
		tenant:   tenant,
		settings: settings,
		own:      own,
		sender:   sender,
		log:      log,
		logger:   logger,
		now:      time.Now,
	}
}

// VacationActive reports whether the vacation window covers now. Dates compare
// by UTC day, inclusive; a missing bound is open-ended.
func VacationActive(v config.VacationConfig, now time.Time) bool {
	if !v.Enabled {
		return false
	}
	now = now.UTC()
	if !v.StartDate.IsZero() {
		start := day(v.StartDate)
		if now.Before(start) {
			return false
		}
	}
	if !v.EndDate.IsZero() {
		end := day(v.EndDate).Add(24*time.Hour - time.Millisecond)
		if now.After(end) {
			return false
		}
	}
	return true
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// candidate is a message that passed the per-message checks
type candidate struct {
	msg    *transport.Message
	target string
}

// Process answers msgs. Send failures are reported as skips; an error is
// returned only when the cooldown log could not be read, in which case
// nothing is sent.
func (e *Engine) Process(ctx context.Context, msgs []*transport.Message) (Report, error) {
	var report Report
	now := e.now()

	replyType, subject, body, ok := e.template(now)
	if !ok || len(msgs) == 0 {
		return report, nil
	}

	var candidates []candidate
	batch := make(map[string]bool)
	for _, msg := range msgs {
		target, reason := e.check(msg)
		if reason == "" && batch[target] {
			reason = SkipDuplicate
		}
		if reason != "" {
			report.Skipped = append(report.Skipped, Skip{UID: msg.UID, Sender: target, Reason: reason})
			continue
		}
		batch[target] = true
		candidates = append(candidates, candidate{msg: msg, target: target})
	}
	if len(candidates) == 0 {
		return report, nil
	}

	senders := make([]string, len(candidates))
	for i, c := range candidates {
		senders[i] = c.target
	}
	recent, err := e.log.FindRecentAutoReplies(ctx, e.tenant, senders, now.Add(-Cooldown))
	if err != nil {
		for _, c := range candidates {
			report.Skipped = append(report.Skipped, Skip{UID: c.msg.UID, Sender: c.target, Reason: SkipCooldown})
		}
		return report, apperrors.Wrap(err, "read auto-reply log")
	}
	cooling := make(map[string]bool, len(recent))
	for _, r := range recent {
		if r.ReplyType == replyType {
			cooling[types.NormalizeAddress(r.SenderEmail)] = true
		}
	}

	for _, c := range candidates {
		entry := e.logger.WithFields(logrus.Fields{
			"tenant":     e.tenant,
			"uid":        c.msg.UID,
			"reply_type": replyType,
		})
		if cooling[c.target] {
			report.Skipped = append(report.Skipped, Skip{UID: c.msg.UID, Sender: c.target, Reason: SkipCooldown})
			entry.Debug("Auto-reply suppressed by cooldown")
			continue
		}

		originalID := types.NormalizeMessageID(c.msg.Envelope.MessageID)
		out := &outbound.Message{
			To:              []string{c.target},
			Subject:         renderSubject(subject, c.msg.Envelope.Subject),
			Text:            body,
			DisableTracking: true,
			Headers: map[string]string{
				"Auto-Submitted":           "auto-replied",
				"X-Auto-Response-Suppress": "All",
				"Precedence":               "auto_reply",
			},
		}
		if originalID != "" {
			out.InReplyTo = originalID
			out.References = []string{originalID}
		}

		if _, err := e.sender.Deliver(ctx, out); err != nil {
			report.Skipped = append(report.Skipped, Skip{UID: c.msg.UID, Sender: c.target, Reason: SkipSendFailed})
			entry.WithError(err).Warn("Failed to send auto-reply")
			continue
		}

		logEntry := types.AutoReplyLogEntry{
			Tenant:            e.tenant,
			SenderEmail:       c.target,
			ReplyType:         replyType,
			SentAt:            now,
			OriginalMessageID: originalID,
			OriginalUID:       c.msg.UID,
		}
		if err := e.log.CreateAutoReplyLog(ctx, &logEntry); err != nil {
			entry.WithError(err).Warn("Failed to record auto-reply")
		}
		report.Sent = append(report.Sent, logEntry)
		entry.Info("Sent auto-reply")
	}

	return report, nil
}

// template picks the active responder: vacation overrides the standard reply
func (e *Engine) template(now time.Time) (types.ReplyType, string, string, bool) {
	v := e.settings.Vacation
	if VacationActive(v, now) {
		return types.ReplyVacation, RenderVacation(v.Subject, v), RenderVacation(orDefault(v.Message, defaultVacationMessage), v), true
	}
	a := e.settings.AutoReply
	if a.Enabled {
		return types.ReplyStandard, a.Subject, orDefault(a.Message, defaultStandardMessage), true
	}
	return "", "", "", false
}

// check resolves the reply target and returns a skip reason, or "" to reply
func (e *Engine) check(msg *transport.Message) (string, string) {
	var target string
	switch {
	case len(msg.Envelope.ReplyTo) > 0:
		target = types.NormalizeAddress(msg.Envelope.ReplyTo[0].Email)
	case len(msg.Envelope.From) > 0:
		target = types.NormalizeAddress(msg.Envelope.From[0].Email)
	}
	if target == "" || !strings.Contains(target, "@") {
		return target, SkipNoSender
	}
	if e.own[target] {
		return target, SkipOwnAddress
	}
	if IsAutomatedSender(target) {
		return target, SkipAutomated
	}
	if IsAutomated(msg.Header) {
		return target, SkipHeaders
	}
	return target, ""
}

// IsAutomatedSender reports whether addr belongs to a role account that
// should never be answered
func IsAutomatedSender(addr string) bool {
	local := types.NormalizeAddress(addr)
	if i := strings.LastIndex(local, "@"); i >= 0 {
		local = local[:i]
	}
	return automatedLocalPart.MatchString(local)
}

// IsAutomated reports whether the raw header fields mark the message as
// machine-generated
func IsAutomated(header []byte) bool {
	if len(header) == 0 {
		return false
	}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(header)))
	if err != nil {
		return false
	}

	if v := strings.ToLower(strings.TrimSpace(h.Get("Auto-Submitted"))); v != "" && v != "no" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(h.Get("Precedence"))) {
	case "bulk", "list", "junk", "auto_reply":
		return true
	}
	for _, k := range []string{"X-Auto-Response-Suppress", "X-Autoreply", "X-Autorespond"} {
		if h.Has(k) {
			return true
		}
	}
	return false
}
