// Package tracking adds per-recipient open and click tracking to outbound HTML
// and reports engagement back.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/store"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Recipient is one recipient and the HTML variant addressed to them
type Recipient struct {
	Address string
	HTML    string
}

// PrepareRequest describes a message about to be sent
type PrepareRequest struct {
	Tenant     string
	MessageID  string
	Subject    string
	SentAt     time.Time
	HTML       string
	Recipients []string
	Enabled    bool
}

// Tracker is the tracking collaborator used by delivery and message views
type Tracker interface {
	// Prepare returns one HTML variant per recipient, in recipient order
	Prepare(ctx context.Context, req PrepareRequest) ([]Recipient, error)
	// Summarize returns engagement keyed by Message-ID; untracked IDs are absent
	Summarize(ctx context.Context, tenant string, messageIDs []string) (map[string]types.TrackingSummary, error)
	// Detail returns per-recipient engagement, or nil when the message is not tracked
	Detail(ctx context.Context, tenant, messageID string) (*types.TrackingDetail, error)
}

// Store is the persistence the tracker needs
type Store interface {
	SaveTrackedMessage(ctx context.Context, msg *store.TrackedMessage) error
	TrackingSummaries(ctx context.Context, tenant string, messageIDs []string) (map[string]types.TrackingSummary, error)
	TrackingDetail(ctx context.Context, tenant, messageID string) (*types.TrackingDetail, error)
}

// Service implements Tracker on top of the store
type Service struct {
	store   Store
	baseURL string
	logger  *logrus.Logger
}

// NewService creates a tracker whose links point at baseURL
func NewService(s Store, baseURL string, logger *logrus.Logger) *Service {
	return &Service{
		store:   s,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Prepare injects a unique token per recipient when enabled and records the
// message. Disabled tracking returns the HTML unchanged for every recipient.
func (s *Service) Prepare(ctx context.Context, req PrepareRequest) ([]Recipient, error) {
	out := make([]Recipient, len(req.Recipients))
	if !req.Enabled {
		for i, addr := range req.Recipients {
			out[i] = Recipient{Address: addr, HTML: req.HTML}
		}
		return out, nil
	}

	tracked := &store.TrackedMessage{
		Tenant:    req.Tenant,
		MessageID: req.MessageID,
		Subject:   req.Subject,
		SentAt:    req.SentAt,
	}
	for i, addr := range req.Recipients {
		token := uuid.New().String()
		body, links, err := Inject(req.HTML, s.baseURL, token)
		if err != nil {
			return nil, fmt.Errorf("failed to inject tracking for %s: %w", addr, err)
		}
		tracked.Links = links
		out[i] = Recipient{Address: addr, HTML: body}
		tracked.Recipients = append(tracked.Recipients, store.TrackedRecipient{Address: addr, Token: token})
	}

	if err := s.store.SaveTrackedMessage(ctx, tracked); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tenant":     req.Tenant,
		"message_id": req.MessageID,
		"recipients": len(req.Recipients),
	}).Debug("Tracking prepared")

	return out, nil
}

// Summarize returns engagement for the given Message-IDs
func (s *Service) Summarize(ctx context.Context, tenant string, messageIDs []string) (map[string]types.TrackingSummary, error) {
	return s.store.TrackingSummaries(ctx, tenant, messageIDs)
}

// Detail returns engagement for one message
func (s *Service) Detail(ctx context.Context, tenant, messageID string) (*types.TrackingDetail, error) {
	detail, err := s.store.TrackingDetail(ctx, tenant, messageID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return detail, nil
}
