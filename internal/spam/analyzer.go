// Package spam classifies inbox messages from upstream filter headers and
// moves spam into the tenant's spam folder.
package spam

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/store"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// DefaultThreshold is the score at or above which a message is spam
const DefaultThreshold = 5.0

// HeaderFields are the header fields the analyzer reads; fetches feeding
// Analyze must request them.
var HeaderFields = []string{"X-Spam-Flag", "X-Spam-Status", "X-Spam-Score", "X-Spam-Level"}

// Verdict is the outcome of analyzing one message
type Verdict struct {
	Spam          bool
	Score         float64
	MovedTo       string
	AlreadyLogged bool
}

// Moved reports whether the message left the inbox
func (v Verdict) Moved() bool {
	return v.MovedTo != ""
}

// Analyzer decides whether a message is spam and moves it when it is. The
// session must have the message's folder selected and keeps it selected.
type Analyzer interface {
	Analyze(ctx context.Context, tenant string, sess transport.Session, msg *transport.Message) (Verdict, error)
}

// Locator finds a folder path without selecting it
type Locator interface {
	Locate(ctx context.Context, sess transport.Session, mailbox types.Mailbox) (string, error)
}

// Log records spam verdicts
type Log interface {
	RecordSpam(ctx context.Context, rec store.SpamRecord) (bool, error)
}

// HeaderAnalyzer scores messages from X-Spam-* headers added by upstream filters
type HeaderAnalyzer struct {
	locator   Locator
	log       Log
	threshold float64
	logger    *logrus.Logger
	now       func() time.Time
}

// NewHeaderAnalyzer creates an analyzer; a non-positive threshold uses DefaultThreshold
func NewHeaderAnalyzer(locator Locator, log Log, threshold float64, logger *logrus.Logger) *HeaderAnalyzer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &HeaderAnalyzer{
		locator:   locator,
		log:       log,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
	}
}

// Analyze scores msg and moves it to the spam folder when it is spam
func (a *HeaderAnalyzer) Analyze(ctx context.Context, tenant string, sess transport.Session, msg *transport.Message) (Verdict, error) {
	score, flagged := Score(msg.Header)
	v := Verdict{Score: score, Spam: flagged || score >= a.threshold}
	if !v.Spam {
		return v, nil
	}

	dest, err := a.locator.Locate(ctx, sess, types.MailboxSpam)
	if err != nil {
		return v, apperrors.Wrap(err, "locate spam folder")
	}
	if err := sess.Move(ctx, msg.UID, dest); err != nil {
		return v, apperrors.Wrap(err, fmt.Sprintf("move message %s to %s", msg.UID, dest))
	}
	v.MovedTo = dest

	entry := a.logger.WithFields(logrus.Fields{
		"tenant": tenant,
		"uid":    msg.UID,
		"path":   dest,
		"score":  score,
	})
	entry.Info("Moved spam message")

	if a.log == nil {
		return v, nil
	}
	var sender string
	if len(msg.Envelope.From) > 0 {
		sender = msg.Envelope.From[0].Email
	}
	id := types.NormalizeMessageID(msg.Envelope.MessageID)
	if id == "" {
		id = fmt.Sprintf("uid-%s-%s", msg.UID, msg.InternalDate.UTC().Format(time.RFC3339))
	}
	inserted, err := a.log.RecordSpam(ctx, store.SpamRecord{
		Tenant:    tenant,
		MessageID: id,
		UID:       msg.UID,
		Sender:    sender,
		Subject:   msg.Envelope.Subject,
		Score:     score,
		MovedTo:   dest,
		At:        a.now(),
	})
	if err != nil {
		entry.WithError(err).Warn("Failed to record spam verdict")
		return v, nil
	}
	v.AlreadyLogged = !inserted
	return v, nil
}

// Score reads the spam score and flag from raw header fields. Unparseable
// input scores zero.
func Score(header []byte) (score float64, flagged bool) {
	if len(header) == 0 {
		return 0, false
	}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(header)))
	if err != nil {
		return 0, false
	}

	haveScore := false
	if v := strings.TrimSpace(h.Get("X-Spam-Score")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			score, haveScore = f, true
		}
	}

	if status := strings.TrimSpace(h.Get("X-Spam-Status")); status != "" {
		if strings.HasPrefix(strings.ToLower(status), "yes") {
			flagged = true
		}
		if !haveScore {
			if f, ok := statusScore(status); ok {
				score, haveScore = f, true
			}
		}
	}

	if strings.EqualFold(strings.TrimSpace(h.Get("X-Spam-Flag")), "yes") {
		flagged = true
	}

	if !haveScore {
		if level := strings.TrimSpace(h.Get("X-Spam-Level")); level != "" {
			score = float64(strings.Count(level, "*"))
		}
	}
	return score, flagged
}

// statusScore extracts score=N from a SpamAssassin status line
func statusScore(status string) (float64, bool) {
	for _, field := range strings.FieldsFunc(status, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' }) {
		if v, ok := strings.CutPrefix(strings.ToLower(field), "score="); ok {
			f, err := strconv.ParseFloat(v, 64)
			return f, err == nil
		}
	}
	return 0, false
}
