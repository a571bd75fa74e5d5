package tools

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/email"
)

// GetTrackingTool reports opens and clicks for a sent message
type GetTrackingTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewGetTrackingTool creates a new get tracking tool
func NewGetTrackingTool(emailManager *email.Manager, logger *logrus.Logger) *GetTrackingTool {
	return &GetTrackingTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *GetTrackingTool) Name() string {
	return "get_tracking"
}

// Description returns the tool description
func (t *GetTrackingTool) Description() string {
	return "Per-recipient open and click counts for a message sent with tracking enabled"
}

// InputSchema returns the JSON schema for tool inputs
func (t *GetTrackingTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": accountNameSchema,
			"message_id": map[string]interface{}{
				"type":        "string",
				"description": "Message-ID returned by send_email",
			},
		},
		"required": []string{"account_name", "message_id"},
	}
}

// Execute executes the tool
func (t *GetTrackingTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := account(t.emailManager, params)
	if err != nil {
		return nil, err
	}
	id, err := requiredString(params, "message_id")
	if err != nil {
		return nil, err
	}
	return acc.Tracking(ctx, id)
}
