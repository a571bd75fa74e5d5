package tools

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brandon/mcp-mailbridge/internal/email"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// accountNameSchema is shared by every tool
var accountNameSchema = map[string]interface{}{
	"type":        "string",
	"description": "Account (tenant) name",
}

var mailboxSchema = map[string]interface{}{
	"type":        "string",
	"enum":        []string{"inbox", "sent", "drafts", "trash", "spam"},
	"description": "Logical mailbox; defaults to inbox",
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, fmt.Sprintf(format, args...))
}

// account resolves the required account_name parameter
func account(m *email.Manager, params map[string]interface{}) (*email.Account, error) {
	name, err := requiredString(params, "account_name")
	if err != nil {
		return nil, err
	}
	return m.GetAccount(name)
}

func optionalString(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}

func requiredString(params map[string]interface{}, key string) (string, error) {
	s := optionalString(params, key)
	if s == "" {
		return "", invalid("%s is required", key)
	}
	return s, nil
}

// optionalInt accepts JSON numbers and numeric strings
func optionalInt(params map[string]interface{}, key string, def int) (int, error) {
	switch v := params[key].(type) {
	case nil:
		return def, nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, invalid("%s must be a number", key)
		}
		return n, nil
	default:
		return 0, invalid("%s must be a number", key)
	}
}

func optionalBool(params map[string]interface{}, key string) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// stringList accepts a comma-separated string or an array of strings
func stringList(params map[string]interface{}, key string) []string {
	var raw []string
	switch v := params[key].(type) {
	case string:
		raw = strings.Split(v, ",")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mailboxParam(params map[string]interface{}) (types.Mailbox, error) {
	s := optionalString(params, "mailbox")
	if s == "" {
		return types.MailboxInbox, nil
	}
	m, err := types.ParseMailbox(s)
	if err != nil {
		return "", invalid("%v", err)
	}
	return m, nil
}

func uidParam(params map[string]interface{}, key string) (types.UID, error) {
	switch v := params[key].(type) {
	case float64:
		if v < 1 {
			return 0, invalid("%s must be positive", key)
		}
		return types.UID(v), nil
	case string:
		uid, err := types.ParseUID(v)
		if err != nil || uid == 0 {
			return 0, invalid("%s must be a positive integer", key)
		}
		return uid, nil
	case nil:
		return 0, invalid("%s is required", key)
	default:
		return 0, invalid("%s must be a positive integer", key)
	}
}
