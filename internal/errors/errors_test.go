package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brandon/mcp-mailbridge/pkg/types"
)

func TestWrap_PrefixesOperationAndKeepsChain(t *testing.T) {
	base := errors.New("NO [AUTHENTICATIONFAILED] Invalid credentials")
	wrapped := Wrap(&AuthError{Service: "IMAP", User: "me@example.com", Err: base}, "fetching inbox")

	assert.Contains(t, wrapped.Error(), "fetching inbox: ")
	assert.Contains(t, wrapped.Error(), "Invalid credentials")
	assert.True(t, IsAuth(wrapped))
	assert.ErrorIs(t, wrapped, base)
}

func TestWrap_ReturnsNilForNilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		auth         bool
		connectivity bool
		notFound     bool
		configured   bool
	}{
		{"auth", &AuthError{Service: "SMTP", Err: errors.New("535")}, true, false, false, true},
		{"connectivity", &ConnectivityError{Service: "IMAP", Addr: "mail:993", Err: errors.New("refused")}, false, true, false, true},
		{"folder", &FolderNotFoundError{Mailbox: types.MailboxSent}, false, false, true, true},
		{"message", fmt.Errorf("get: %w", ErrMessageNotFound), false, false, true, true},
		{"attachment", ErrAttachmentNotFound, false, false, true, true},
		{"imap not configured", ErrIMAPNotConfigured, false, false, false, false},
		{"smtp not configured", Wrap(ErrSMTPNotConfigured, "send"), false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.auth, IsAuth(tt.err))
			assert.Equal(t, tt.connectivity, IsConnectivity(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
			assert.Equal(t, !tt.configured, IsNotConfigured(tt.err))
		})
	}
}

func TestFolderNotFoundError_NamesMailbox(t *testing.T) {
	err := &FolderNotFoundError{Mailbox: types.MailboxSent, Tried: []string{"Sent", "INBOX.Sent"}}

	assert.Contains(t, err.Error(), `"sent"`)
	assert.ErrorIs(t, err, ErrFolderNotFound)
}

func TestDeliveryError(t *testing.T) {
	base := errors.New("550 mailbox unavailable")
	err := Wrap(&DeliveryError{Recipient: "b@example.com", Index: 1, Total: 3, Err: base}, "sending message")

	assert.True(t, IsDelivery(err))
	assert.Contains(t, err.Error(), "recipient 2 of 3")
	assert.ErrorIs(t, err, base)
}

func TestNoRecipientsIsInvalidInput(t *testing.T) {
	assert.True(t, IsInvalidInput(ErrNoRecipients))
}
