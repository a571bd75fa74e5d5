package errors

import (
	"errors"
	"fmt"

	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Domain-specific error types
var (
	// ErrNotConfigured indicates a feature is unavailable for the tenant
	ErrNotConfigured = errors.New("not configured")

	// ErrIMAPNotConfigured indicates mail retrieval is not configured
	ErrIMAPNotConfigured = fmt.Errorf("mail retrieval %w", ErrNotConfigured)

	// ErrSMTPNotConfigured indicates mail submission is not configured
	ErrSMTPNotConfigured = fmt.Errorf("mail submission %w", ErrNotConfigured)

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrFolderNotFound indicates no server folder could be opened for a mailbox
	ErrFolderNotFound = fmt.Errorf("folder %w", ErrNotFound)

	// ErrMessageNotFound indicates the message was not found
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)

	// ErrAttachmentNotFound indicates the attachment was not found
	ErrAttachmentNotFound = fmt.Errorf("attachment %w", ErrNotFound)

	// ErrAccountNotFound indicates the tenant is unknown
	ErrAccountNotFound = fmt.Errorf("account %w", ErrNotFound)

	// ErrInvalidInput indicates invalid input data
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoRecipients indicates no parseable recipient was supplied
	ErrNoRecipients = fmt.Errorf("%w: at least one valid recipient is required", ErrInvalidInput)
)

// AuthError indicates the remote server rejected the tenant's credentials
type AuthError struct {
	Service string
	User    string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed for %s: %v", e.Service, e.User, e.Err)
}

// Unwrap returns the underlying error
func (e *AuthError) Unwrap() error {
	return e.Err
}

// ConnectivityError indicates the remote server could not be reached
type ConnectivityError struct {
	Service string
	Addr    string
	Err     error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("cannot reach %s server %s: %v", e.Service, e.Addr, e.Err)
}

// Unwrap returns the underlying error
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// FolderNotFoundError names the logical mailbox that could not be resolved
type FolderNotFoundError struct {
	Mailbox types.Mailbox
	Tried   []string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder not found for mailbox %q (tried %d candidates)", e.Mailbox, len(e.Tried))
}

// Unwrap makes FolderNotFoundError match ErrFolderNotFound
func (e *FolderNotFoundError) Unwrap() error {
	return ErrFolderNotFound
}

// DeliveryError indicates a recipient send failed; nothing was recorded as sent
type DeliveryError struct {
	Recipient string
	Index     int
	Total     int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed (recipient %d of %d): %v", e.Recipient, e.Index+1, e.Total, e.Err)
}

// Unwrap returns the underlying error
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Wrap prefixes err with a human-readable operation name, preserving the chain
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsAuth reports whether err (or any error in its chain) is an AuthError
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsConnectivity reports whether err (or any error in its chain) is a ConnectivityError
func IsConnectivity(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}

// IsDelivery reports whether err (or any error in its chain) is a DeliveryError
func IsDelivery(err error) bool {
	var delErr *DeliveryError
	return errors.As(err, &delErr)
}

// IsNotFound reports whether err is any not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNotConfigured reports whether err signals an unavailable feature
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsInvalidInput reports whether err signals invalid caller input
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
