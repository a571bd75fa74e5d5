package tools

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/email"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// SyncEmailsTool returns messages that arrived after a caller-held watermark
type SyncEmailsTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewSyncEmailsTool creates a new sync emails tool
func NewSyncEmailsTool(emailManager *email.Manager, logger *logrus.Logger) *SyncEmailsTool {
	return &SyncEmailsTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *SyncEmailsTool) Name() string {
	return "sync_emails"
}

// Description returns the tool description
func (t *SyncEmailsTool) Description() string {
	return "Return messages with a UID greater than since_uid. Pass next_since_uid from the response on the next call. Omit since_uid to receive the current watermark only."
}

// InputSchema returns the JSON schema for tool inputs
func (t *SyncEmailsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": accountNameSchema,
			"mailbox":      mailboxSchema,
			"since_uid": map[string]interface{}{
				"type":        "integer",
				"minimum":     0,
				"description": "Highest UID already seen",
			},
		},
		"required": []string{"account_name"},
	}
}

// Execute executes the tool
func (t *SyncEmailsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := account(t.emailManager, params)
	if err != nil {
		return nil, err
	}
	mailbox, err := mailboxParam(params)
	if err != nil {
		return nil, err
	}

	var since types.UID
	if _, ok := params["since_uid"]; ok {
		n, err := optionalInt(params, "since_uid", 0)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, invalid("since_uid must not be negative")
		}
		since = types.UID(n)
	}

	if since == 0 {
		mark, err := acc.Watermark(ctx, mailbox)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"mailbox":        mailbox,
			"messages":       []types.MessageSummary{},
			"next_since_uid": mark,
		}, nil
	}

	result, err := acc.Sync(ctx, mailbox, since)
	if err != nil {
		return nil, err
	}
	next := since
	if max := result.MaxUID(); max > next {
		next = max
	}
	return map[string]interface{}{
		"mailbox":        result.Mailbox,
		"total_messages": result.TotalMessages,
		"messages":       result.Messages,
		"auto_moved":     result.AutoMoved,
		"next_since_uid": next,
	}, nil
}
