package tools

import (
	"context"
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/email"
)

var uidSchema = map[string]interface{}{
	"type":        "integer",
	"minimum":     1,
	"description": "Message UID (from list_emails or sync_emails)",
}

// GetEmailTool retrieves the full view of one message
type GetEmailTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewGetEmailTool creates a new get email tool
func NewGetEmailTool(emailManager *email.Manager, logger *logrus.Logger) *GetEmailTool {
	return &GetEmailTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *GetEmailTool) Name() string {
	return "get_email"
}

// Description returns the tool description
func (t *GetEmailTool) Description() string {
	return "Retrieve one message with full address lists, sanitized HTML, text, attachment index and tracking detail"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetEmailTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": accountNameSchema,
			"mailbox":      mailboxSchema,
			"uid":          uidSchema,
		},
		"required": []string{"account_name", "uid"},
	}
}

// Execute executes the tool
func (t *GetEmailTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := account(t.emailManager, params)
	if err != nil {
		return nil, err
	}
	mailbox, err := mailboxParam(params)
	if err != nil {
		return nil, err
	}
	uid, err := uidParam(params, "uid")
	if err != nil {
		return nil, err
	}

	return acc.Message(ctx, mailbox, uid)
}

// GetAttachmentTool returns the content of one attachment, base64 encoded
type GetAttachmentTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewGetAttachmentTool creates a new get attachment tool
func NewGetAttachmentTool(emailManager *email.Manager, logger *logrus.Logger) *GetAttachmentTool {
	return &GetAttachmentTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *GetAttachmentTool) Name() string {
	return "get_attachment"
}

// Description returns the tool description
func (t *GetAttachmentTool) Description() string {
	return "Download one attachment of a message by the id listed in get_email"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetAttachmentTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": accountNameSchema,
			"mailbox":      mailboxSchema,
			"uid":          uidSchema,
			"attachment_id": map[string]interface{}{
				"type":        "string",
				"description": "Attachment id from get_email",
			},
		},
		"required": []string{"account_name", "uid", "attachment_id"},
	}
}

// Execute executes the tool
func (t *GetAttachmentTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := account(t.emailManager, params)
	if err != nil {
		return nil, err
	}
	mailbox, err := mailboxParam(params)
	if err != nil {
		return nil, err
	}
	uid, err := uidParam(params, "uid")
	if err != nil {
		return nil, err
	}
	id, err := requiredString(params, "attachment_id")
	if err != nil {
		return nil, err
	}

	att, err := acc.Attachment(ctx, mailbox, uid, id)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"id":             att.ID,
		"filename":       att.Filename,
		"content_type":   att.ContentType,
		"size":           att.Size,
		"content_base64": base64.StdEncoding.EncodeToString(att.Content),
	}, nil
}
