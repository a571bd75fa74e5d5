package tools

import (
	"context"
	"encoding/base64"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/email"
	"github.com/brandon/mcp-mailbridge/internal/outbound"
)

// SendEmailTool sends a new email
type SendEmailTool struct {
	emailManager *email.Manager
	logger       *logrus.Logger
}

// NewSendEmailTool creates a new send email tool
func NewSendEmailTool(emailManager *email.Manager, logger *logrus.Logger) *SendEmailTool {
	return &SendEmailTool{
		emailManager: emailManager,
		logger:       logger,
	}
}

// Name returns the tool name
func (t *SendEmailTool) Name() string {
	return "send_email"
}

// Description returns the tool description
func (t *SendEmailTool) Description() string {
	return "Send a branded email to each recipient, store a copy in Sent and return it. A result with degraded_reason was delivered but not stored."
}

// InputSchema returns the JSON schema for tool inputs
func (t *SendEmailTool) InputSchema() map[string]interface{} {
	addresses := func(desc string) map[string]interface{} {
		return map[string]interface{}{
			"type":        []string{"string", "array"},
			"items":       map[string]interface{}{"type": "string"},
			"description": desc,
		}
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"account_name": accountNameSchema,
			"to":           addresses("Recipient address(es), comma-separated or an array"),
			"cc":           addresses("Optional: CC recipients"),
			"bcc":          addresses("Optional: BCC recipients"),
			"subject": map[string]interface{}{
				"type":        "string",
				"description": "Email subject",
			},
			"body_text": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Plain text body",
			},
			"body_html": map[string]interface{}{
				"type":        "string",
				"description": "Optional: HTML fragment; it is wrapped in the account's branded layout",
			},
			"reply_to": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Reply-To header",
			},
			"in_reply_to": map[string]interface{}{
				"type":        "string",
				"description": "Optional: Message-ID being replied to",
			},
			"references": addresses("Optional: Message-IDs of the thread"),
			"attachments": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"filename":       map[string]interface{}{"type": "string"},
						"content_type":   map[string]interface{}{"type": "string"},
						"content_base64": map[string]interface{}{"type": "string"},
					},
					"required": []string{"filename", "content_base64"},
				},
				"description": "Optional: Attachments with base64 content",
			},
			"disable_tracking": map[string]interface{}{
				"type":        "boolean",
				"description": "Optional: Skip open/click tracking for this message",
			},
		},
		"required": []string{"account_name", "to", "subject"},
	}
}

// Execute executes the tool
func (t *SendEmailTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	acc, err := account(t.emailManager, params)
	if err != nil {
		return nil, err
	}

	to := stringList(params, "to")
	if len(to) == 0 {
		return nil, invalid("to is required")
	}
	subject, err := requiredString(params, "subject")
	if err != nil {
		return nil, err
	}

	msg := &outbound.Message{
		To:              to,
		Cc:              stringList(params, "cc"),
		Bcc:             stringList(params, "bcc"),
		Subject:         subject,
		ReplyTo:         optionalString(params, "reply_to"),
		InReplyTo:       optionalString(params, "in_reply_to"),
		References:      stringList(params, "references"),
		DisableTracking: optionalBool(params, "disable_tracking"),
	}
	msg.Text, _ = params["body_text"].(string)
	msg.HTML, _ = params["body_html"].(string)

	if msg.Text == "" && msg.HTML == "" {
		return nil, invalid("either body_text or body_html is required")
	}

	attachments, err := parseAttachments(params)
	if err != nil {
		return nil, err
	}
	msg.Attachments = attachments

	return acc.Send(ctx, msg)
}

func parseAttachments(params map[string]interface{}) ([]outbound.Attachment, error) {
	items, _ := params["attachments"].([]interface{})
	out := make([]outbound.Attachment, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, invalid("attachments[%d] must be an object", i)
		}
		name := optionalString(obj, "filename")
		if name == "" {
			return nil, invalid("attachments[%d].filename is required", i)
		}
		content, err := base64.StdEncoding.DecodeString(optionalString(obj, "content_base64"))
		if err != nil {
			return nil, invalid("attachments[%d].content_base64 is not valid base64", i)
		}
		out = append(out, outbound.Attachment{
			Filename:    name,
			ContentType: optionalString(obj, "content_type"),
			Content:     content,
		})
	}
	return out, nil
}
