// Package poller drives incremental sync of every tenant's inbox in the
// background.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// DefaultInterval is used when the poller is created without an interval
const DefaultInterval = 60 * time.Second

// syncTimeout bounds a single bootstrap or sync round
const syncTimeout = 2 * time.Minute

// Account is the part of a tenant the poller drives
type Account interface {
	Name() string
	Watermark(ctx context.Context, mailbox types.Mailbox) (types.UID, error)
	Sync(ctx context.Context, mailbox types.Mailbox, since types.UID) (*types.SyncResult, error)
}

// State is the sync state of one tenant
type State int

const (
	StateIdle State = iota
	StateRunning
	StateError
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateError:
		return "error"
	default:
		return "idle"
	}
}

// Status reports the last round of one tenant
type Status struct {
	Tenant    string
	State     State
	Watermark types.UID
	LastSync  time.Time
	LastCount int
	LastMoved int
	Err       error
}

type entry struct {
	account      Account
	watermark    types.UID
	bootstrapped bool
}

// Poller runs one polling goroutine per registered tenant. The watermark lives
// here, in memory, and is advanced only from sync results.
type Poller struct {
	interval time.Duration
	mailbox  types.Mailbox
	logger   *logrus.Logger

	mu       sync.Mutex
	entries  []*entry
	statuses map[string]*Status
	running  bool
	now      func() time.Time
}

// New creates a poller that syncs the inbox every interval
func New(interval time.Duration, logger *logrus.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		mailbox:  types.MailboxInbox,
		logger:   logger,
		statuses: make(map[string]*Status),
		now:      time.Now,
	}
}

// Register adds a tenant; it must be called before Run
func (p *Poller) Register(a Account) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, &entry{account: a})
	p.statuses[a.Name()] = &Status{Tenant: a.Name(), State: StateIdle}
}

// Run polls every registered tenant until ctx is cancelled, then waits for
// in-flight rounds to finish
func (p *Poller) Run(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	entries := append([]*entry(nil), p.entries...)
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"tenants":  len(entries),
		"interval": p.interval.String(),
	}).Info("Poller started")

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			p.loop(ctx, e)
		}(e)
	}
	wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.logger.Info("Poller stopped")
}

// Statuses returns the status of every tenant in registration order
func (p *Poller) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Status, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, *p.statuses[e.account.Name()])
	}
	return out
}

func (p *Poller) loop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx, e)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, e)
		}
	}
}

// poll runs one round: bootstrap the watermark if needed, otherwise sync
func (p *Poller) poll(ctx context.Context, e *entry) {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	tenant := e.account.Name()
	log := p.logger.WithField("tenant", tenant)
	p.setState(tenant, StateRunning, nil)

	if !e.bootstrapped || e.watermark == 0 {
		mark, err := e.account.Watermark(ctx, p.mailbox)
		if err != nil {
			p.fail(log, tenant, err, "Watermark bootstrap failed")
			return
		}
		e.watermark = mark
		e.bootstrapped = true
		p.finish(tenant, e.watermark, nil)
		log.WithField("watermark", mark).Debug("Watermark bootstrapped")
		return
	}

	result, err := e.account.Sync(ctx, p.mailbox, e.watermark)
	if err != nil {
		p.fail(log, tenant, err, "Sync failed")
		return
	}
	if max := result.MaxUID(); max > e.watermark {
		e.watermark = max
	}
	p.finish(tenant, e.watermark, result)

	if n := len(result.Messages) + len(result.AutoMoved); n > 0 {
		log.WithFields(logrus.Fields{
			"new":       len(result.Messages),
			"moved":     len(result.AutoMoved),
			"watermark": e.watermark,
		}).Info("New mail synced")
	}
}

func (p *Poller) fail(log *logrus.Entry, tenant string, err error, msg string) {
	p.setState(tenant, StateError, err)
	entry := log.WithError(err)
	switch {
	case apperrors.IsAuth(err):
		entry.Error(msg + ": check credentials")
	case apperrors.IsNotConfigured(err):
		entry.Debug(msg)
	default:
		entry.Warn(msg)
	}
}

func (p *Poller) setState(tenant string, state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.statuses[tenant]; ok {
		s.State = state
		s.Err = err
	}
}

func (p *Poller) finish(tenant string, watermark types.UID, result *types.SyncResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.statuses[tenant]
	if !ok {
		return
	}
	s.State = StateIdle
	s.Err = nil
	s.Watermark = watermark
	s.LastSync = p.now()
	s.LastCount, s.LastMoved = 0, 0
	if result != nil {
		s.LastCount = len(result.Messages)
		s.LastMoved = len(result.AutoMoved)
	}
}
