package tools

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/email"
)

// ListFoldersTool lists the server folders of an account
type ListFoldersTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewListFoldersTool creates a new list folders tool
func NewListFoldersTool(emailManager *email.Manager, logger *logrus.Logger) *ListFoldersTool {
	return &ListFoldersTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *ListFoldersTool) Name() string {
	return "list_folders"
}

// Description returns the tool description
func (t *ListFoldersTool) Description() string {
	return "List the folders of an account and the logical mailbox (inbox, sent, drafts, trash, spam) each one resolves to"
}

// InputSchema returns the JSON schema for tool inputs
func (t *ListFoldersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": accountNameSchema,
		},
		"required": []string{"account_name"},
	}
}

// Execute executes the tool
func (t *ListFoldersTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := account(t.emailManager, params)
	if err != nil {
		return nil, err
	}

	folders, err := acc.Folders(ctx)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"account_name": acc.Name(),
		"folders":      folders,
	}, nil
}
