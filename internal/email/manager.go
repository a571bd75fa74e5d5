package email

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/config"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
)

// Manager holds every configured tenant
type Manager struct {
	accounts map[string]*Account
	order    []string
	logger   *logrus.Logger
}

// NewManager creates an account for every tenant in cfg
func NewManager(cfg *config.Config, deps Deps, logger *logrus.Logger) *Manager {
	if deps.PageSize < 1 {
		deps.PageSize = cfg.DefaultPageSize
	}
	if deps.SpamThreshold <= 0 {
		deps.SpamThreshold = cfg.SpamThreshold
	}

	m := &Manager{
		accounts: make(map[string]*Account),
		logger:   logger,
	}
	for i := range cfg.Accounts {
		accCfg := &cfg.Accounts[i]
		m.Add(NewAccountFromConfig(accCfg, cfg.IMAPTimeout, deps, logger))
	}
	return m
}

// NewManagerWithAccounts creates a manager over pre-built accounts
func NewManagerWithAccounts(logger *logrus.Logger, accounts ...*Account) *Manager {
	m := &Manager{
		accounts: make(map[string]*Account),
		logger:   logger,
	}
	for _, a := range accounts {
		m.Add(a)
	}
	return m
}

// Add registers an account, replacing any account with the same name
func (m *Manager) Add(a *Account) {
	if _, exists := m.accounts[a.Name()]; !exists {
		m.order = append(m.order, a.Name())
	}
	m.accounts[a.Name()] = a

	m.logger.WithFields(logrus.Fields{
		"tenant":   a.Name(),
		"imap":     a.CanRead(),
		"smtp":     a.CanSend(),
		"spam":     a.spam != nil,
		"tracking": a.Config.TrackingEnabled,
	}).Info("Account registered")
}

// GetAccount returns an account by name
func (m *Manager) GetAccount(name string) (*Account, error) {
	account, exists := m.accounts[name]
	if !exists {
		return nil, fmt.Errorf("%s: %w", name, apperrors.ErrAccountNotFound)
	}
	return account, nil
}

// Accounts returns every account in configuration order
func (m *Manager) Accounts() []*Account {
	out := make([]*Account, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.accounts[name])
	}
	return out
}

// ListAccounts returns all account names in configuration order
func (m *Manager) ListAccounts() []string {
	return append([]string(nil), m.order...)
}
