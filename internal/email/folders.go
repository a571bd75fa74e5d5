package email

import (
	"context"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/folders"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Folders lists the server folders and the logical mailbox each resolves to
func (a *Account) Folders(ctx context.Context) ([]types.FolderInfo, error) {
	sess, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	defer a.logout(sess)

	listed, err := sess.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "list folders")
	}

	byPath := make(map[string]types.Mailbox)
	for mailbox, path := range folders.Assign(listed) {
		byPath[path] = mailbox
	}
	cache := a.resolver.Cache()
	for _, mailbox := range types.Mailboxes {
		if path, ok := cache.Get(mailbox); ok {
			byPath[path] = mailbox
		}
	}

	out := make([]types.FolderInfo, 0, len(listed))
	for _, f := range listed {
		out = append(out, types.FolderInfo{
			Path:       f.Path,
			Delimiter:  f.Delimiter,
			Attributes: f.Attributes,
			Mailbox:    byPath[f.Path],
		})
	}
	return out, nil
}
