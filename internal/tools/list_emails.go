package tools

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/email"
)

// ListEmailsTool returns one page of a mailbox, newest first
type ListEmailsTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewListEmailsTool creates a new list emails tool
func NewListEmailsTool(emailManager *email.Manager, logger *logrus.Logger) *ListEmailsTool {
	return &ListEmailsTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *ListEmailsTool) Name() string {
	return "list_emails"
}

// Description returns the tool description
func (t *ListEmailsTool) Description() string {
	return "List one page of messages in a mailbox, newest first. Inbox pages move detected spam out and report it under auto_moved."
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListEmailsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": accountNameSchema,
			"mailbox":      mailboxSchema,
			"page": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"description": "Page number, starting at 1",
			},
			"page_size": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"maximum":     email.MaxPageSize,
				"description": "Messages per page; defaults to the server setting",
			},
		},
		"required": []string{"account_name"},
	}
}

// Execute executes the tool
func (t *ListEmailsTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := account(t.emailManager, params)
	if err != nil {
		return nil, err
	}
	mailbox, err := mailboxParam(params)
	if err != nil {
		return nil, err
	}
	page, err := optionalInt(params, "page", 1)
	if err != nil {
		return nil, err
	}
	pageSize, err := optionalInt(params, "page_size", 0)
	if err != nil {
		return nil, err
	}

	return acc.Fetch(ctx, mailbox, page, pageSize)
}
