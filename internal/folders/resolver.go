// Package folders maps logical mailboxes to the folder paths a server actually uses.
package folders

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Cache remembers resolved folder paths for one tenant
type Cache struct {
	mu    sync.RWMutex
	paths map[types.Mailbox]string
}

// NewCache returns an empty cache
func NewCache() *Cache {
	return &Cache{paths: make(map[types.Mailbox]string)}
}

// Get returns the cached path for mailbox
func (c *Cache) Get(mailbox types.Mailbox) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.paths[mailbox]
	return p, ok
}

// Set caches path for mailbox
func (c *Cache) Set(mailbox types.Mailbox, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[mailbox] = path
}

// Evict drops the cached path for mailbox
func (c *Cache) Evict(mailbox types.Mailbox) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.paths, mailbox)
}

// Resolver resolves logical mailboxes for one tenant
type Resolver struct {
	cache  *Cache
	logger *logrus.Logger
}

// NewResolver creates a resolver backed by the tenant's cache
func NewResolver(cache *Cache, logger *logrus.Logger) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{
		cache:  cache,
		logger: logger,
	}
}

// Cache returns the resolver's cache
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Candidates lists the server folders and returns candidates for mailbox,
// best guess first. A failed listing degrades to the cache and static fallbacks.
func (r *Resolver) Candidates(ctx context.Context, sess transport.Session, mailbox types.Mailbox) ([]Candidate, error) {
	cached, _ := r.cache.Get(mailbox)
	if mailbox == types.MailboxInbox {
		return Rank(mailbox, nil, ""), nil
	}

	folders, err := sess.List(ctx)
	if err != nil {
		if ctx.Err() != nil || apperrors.IsConnectivity(err) {
			return nil, err
		}
		r.logger.WithError(err).WithField("mailbox", mailbox).Warn("Folder listing failed, using fallbacks")
		folders = nil
	}
	return Rank(mailbox, folders, cached), nil
}

// Open selects the folder holding mailbox, trying candidates in order and each
// in both hierarchy spellings. The first path that opens is cached.
func (r *Resolver) Open(ctx context.Context, sess transport.Session, mailbox types.Mailbox) (*transport.Status, error) {
	candidates, err := r.Candidates(ctx, sess, mailbox)
	if err != nil {
		return nil, apperrors.Wrap(err, "list folders")
	}

	cached, _ := r.cache.Get(mailbox)
	var tried []string
	for _, c := range candidates {
		for _, path := range variants(c.Path) {
			tried = append(tried, path)
			status, err := sess.Select(ctx, path)
			if err == nil {
				if mailbox != types.MailboxInbox && path != cached {
					r.cache.Set(mailbox, path)
				}
				r.logger.WithFields(logrus.Fields{
					"mailbox": mailbox,
					"path":    path,
					"weight":  c.Weight,
				}).Debug("Resolved folder")
				return status, nil
			}
			if ctx.Err() != nil || apperrors.IsConnectivity(err) {
				return nil, apperrors.Wrap(err, "open folder "+path)
			}
		}
		if c.Weight == WeightCached && c.Path == cached {
			r.cache.Evict(mailbox)
		}
	}

	return nil, &apperrors.FolderNotFoundError{Mailbox: mailbox, Tried: tried}
}

// Locate returns the listed folder that best matches mailbox without selecting it
func (r *Resolver) Locate(ctx context.Context, sess transport.Session, mailbox types.Mailbox) (string, error) {
	if mailbox == types.MailboxInbox {
		return InboxPath, nil
	}
	if cached, ok := r.cache.Get(mailbox); ok {
		return cached, nil
	}

	folders, err := sess.List(ctx)
	if err != nil {
		return "", apperrors.Wrap(err, "list folders")
	}

	if path, ok := Assign(folders)[mailbox]; ok {
		return path, nil
	}
	return "", &apperrors.FolderNotFoundError{Mailbox: mailbox}
}

// Assign picks, for every logical mailbox, the best listed folder. Paths absent
// from the listing are never assigned.
func Assign(folders []transport.Folder) map[types.Mailbox]string {
	listed := make(map[string]bool, len(folders))
	for _, f := range folders {
		listed[f.Path] = true
	}

	out := make(map[types.Mailbox]string)
	for _, f := range folders {
		if f.Path == InboxPath || f.Path == "Inbox" {
			out[types.MailboxInbox] = f.Path
		}
	}
	for _, mailbox := range types.Mailboxes {
		if mailbox == types.MailboxInbox {
			continue
		}
		for _, c := range Rank(mailbox, folders, "") {
			if listed[c.Path] {
				out[mailbox] = c.Path
				break
			}
		}
	}
	return out
}
