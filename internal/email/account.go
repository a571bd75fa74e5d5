package email

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/autoreply"
	"github.com/brandon/mcp-mailbridge/internal/config"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/folders"
	"github.com/brandon/mcp-mailbridge/internal/outbound"
	"github.com/brandon/mcp-mailbridge/internal/sanitize"
	"github.com/brandon/mcp-mailbridge/internal/spam"
	"github.com/brandon/mcp-mailbridge/internal/tracking"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// DefaultPageSize is used when a fetch does not name a page size
const DefaultPageSize = 20

// MaxPageSize bounds a single fetch
const MaxPageSize = 200

// Store is the persistence an account needs
type Store interface {
	spam.Log
	autoreply.LogStore
}

// Deps are the collaborators shared by every account
type Deps struct {
	Store         Store
	Tracker       tracking.Tracker
	Sanitizer     sanitize.Sanitizer
	SpamThreshold float64
	PageSize      int
}

// Account is one tenant: its mailbox, its relay and the engines built on them
type Account struct {
	Config *config.AccountConfig

	dialer    transport.Dialer
	resolver  *folders.Resolver
	spam      spam.Analyzer
	tracker   tracking.Tracker
	sanitizer sanitize.Sanitizer
	outbound  *outbound.Service
	autoreply *autoreply.Engine
	pageSize  int
	logger    *logrus.Logger
}

// NewAccount wires one tenant. A nil dialer or sender marks mail retrieval or
// submission as not configured.
func NewAccount(cfg *config.AccountConfig, dialer transport.Dialer, sender transport.Sender, deps Deps, logger *logrus.Logger) *Account {
	resolver := folders.NewResolver(folders.NewCache(), logger)

	a := &Account{
		Config:    cfg,
		dialer:    dialer,
		resolver:  resolver,
		tracker:   deps.Tracker,
		sanitizer: deps.Sanitizer,
		pageSize:  deps.PageSize,
		logger:    logger,
	}
	if a.sanitizer == nil {
		a.sanitizer = sanitize.New()
	}
	if a.pageSize < 1 {
		a.pageSize = DefaultPageSize
	}

	if dialer != nil && cfg.SpamFilterEnabled {
		var log spam.Log
		if deps.Store != nil {
			log = deps.Store
		}
		a.spam = spam.NewHeaderAnalyzer(resolver, log, deps.SpamThreshold, logger)
	}

	if sender != nil {
		obCfg := outbound.Config{
			Tenant: cfg.Name,
			Identity: outbound.Identity{
				Address: cfg.SenderAddress(),
				Name:    cfg.SenderName,
				Logo:    cfg.SenderLogo,
			},
			Sender:          sender,
			TrackingEnabled: cfg.TrackingEnabled,
		}
		if dialer != nil {
			obCfg.Dialer = dialer
			obCfg.Folders = resolver
		}
		if deps.Tracker != nil {
			obCfg.Tracker = deps.Tracker
		}
		a.outbound = outbound.NewService(obCfg, logger)

		if deps.Store != nil {
			a.autoreply = autoreply.NewEngine(cfg.Name, autoreply.Settings{
				AutoReply:    cfg.AutoReply,
				Vacation:     cfg.Vacation,
				OwnAddresses: cfg.OwnAddresses(),
			}, a.outbound, deps.Store, logger)
		}
	}

	return a
}

// NewAccountFromConfig wires one tenant with the IMAP and SMTP clients its
// configuration names
func NewAccountFromConfig(cfg *config.AccountConfig, timeout time.Duration, deps Deps, logger *logrus.Logger) *Account {
	var dialer transport.Dialer
	if cfg.IMAP != nil {
		dialer = transport.NewIMAPClient(cfg.Name, cfg.IMAP, timeout, logger)
	}
	var sender transport.Sender
	if cfg.SMTP != nil {
		sender = transport.NewSMTPClient(cfg.Name, cfg.SMTP, timeout, logger)
	}
	return NewAccount(cfg, dialer, sender, deps, logger)
}

// Name returns the tenant name
func (a *Account) Name() string {
	return a.Config.Name
}

// CanRead reports whether mail retrieval is configured
func (a *Account) CanRead() bool {
	return a.dialer != nil
}

// CanSend reports whether mail submission is configured
func (a *Account) CanSend() bool {
	return a.outbound != nil
}

// session opens a new IMAP session; callers must release it with logout
func (a *Account) session(ctx context.Context) (transport.Session, error) {
	if a.dialer == nil {
		return nil, apperrors.ErrIMAPNotConfigured
	}
	sess, err := a.dialer.Dial(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "connect")
	}
	return sess, nil
}

func (a *Account) logout(sess transport.Session) {
	if err := sess.Logout(); err != nil {
		a.logger.WithError(err).WithField("tenant", a.Name()).Debug("Logout failed")
	}
}

// open selects mailbox, wrapping failures with the operation name
func (a *Account) open(ctx context.Context, sess transport.Session, mailbox types.Mailbox) (*transport.Status, error) {
	status, err := a.resolver.Open(ctx, sess, mailbox)
	if err != nil {
		return nil, apperrors.Wrap(err, fmt.Sprintf("open %s", mailbox))
	}
	return status, nil
}

// Send delivers msg and stores it in the Sent folder
func (a *Account) Send(ctx context.Context, msg *outbound.Message) (*types.SendResult, error) {
	if a.outbound == nil {
		return nil, apperrors.ErrSMTPNotConfigured
	}
	return a.outbound.Deliver(ctx, msg)
}

// Tracking returns per-recipient engagement for a sent message
func (a *Account) Tracking(ctx context.Context, messageID string) (*types.TrackingDetail, error) {
	id := types.NormalizeMessageID(messageID)
	if id == "" {
		return nil, fmt.Errorf("%w: message_id is required", apperrors.ErrInvalidInput)
	}
	if a.tracker == nil {
		return nil, fmt.Errorf("tracking for %s: %w", id, apperrors.ErrNotFound)
	}
	detail, err := a.tracker.Detail(ctx, a.Name(), id)
	if err != nil {
		return nil, apperrors.Wrap(err, "load tracking")
	}
	if detail == nil {
		return nil, fmt.Errorf("tracking for %s: %w", id, apperrors.ErrNotFound)
	}
	return detail, nil
}
