package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mailbox is a logical mailbox tag, decoupled from the server's folder path
type Mailbox string

const (
	MailboxInbox  Mailbox = "inbox"
	MailboxSent   Mailbox = "sent"
	MailboxDrafts Mailbox = "drafts"
	MailboxTrash  Mailbox = "trash"
	MailboxSpam   Mailbox = "spam"
)

// Mailboxes lists every logical mailbox in display order
var Mailboxes = []Mailbox{MailboxInbox, MailboxSent, MailboxDrafts, MailboxTrash, MailboxSpam}

// ParseMailbox validates a logical mailbox name
func ParseMailbox(s string) (Mailbox, error) {
	m := Mailbox(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Mailboxes {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mailbox: %q", s)
}

// UID identifies a message within one resolved folder and one UIDVALIDITY epoch.
// It is not a durable identifier; use the Message-ID for that.
type UID uint32

// String returns the decimal form of the UID
func (u UID) String() string {
	return strconv.FormatUint(uint64(u), 10)
}

// ParseUID parses a decimal UID
func ParseUID(s string) (UID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid uid %q: %w", s, err)
	}
	return UID(v), nil
}

// NormalizeMessageID strips surrounding whitespace and angle brackets
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}

// Address is a display name plus mailbox address
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String formats the address for display
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// NormalizeAddress lowercases an email address and strips brackets and whitespace
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		if j := strings.LastIndex(addr, ">"); j > i {
			addr = addr[i+1 : j]
		}
	}
	return strings.ToLower(strings.TrimSpace(addr))
}

// TrackingSummary holds aggregate engagement for one sent message
type TrackingSummary struct {
	TrackingEnabled bool `json:"tracking_enabled"`
	TotalOpens      int  `json:"total_opens"`
	TotalClicks     int  `json:"total_clicks"`
}

// RecipientTracking holds per-recipient engagement
type RecipientTracking struct {
	Address     string     `json:"address"`
	Opens       int        `json:"opens"`
	Clicks      int        `json:"clicks"`
	FirstOpenAt *time.Time `json:"first_open_at,omitempty"`
	LastOpenAt  *time.Time `json:"last_open_at,omitempty"`
}

// TrackingDetail holds engagement for one sent message broken down by recipient
type TrackingDetail struct {
	MessageID  string              `json:"message_id"`
	Subject    string              `json:"subject"`
	SentAt     time.Time           `json:"sent_at"`
	Summary    TrackingSummary     `json:"summary"`
	Recipients []RecipientTracking `json:"recipients"`
}

// MessageSummary is the list view of a message
type MessageSummary struct {
	UID            UID              `json:"uid"`
	MessageID      string           `json:"message_id"`
	Subject        string           `json:"subject"`
	From           Address          `json:"from"`
	To             []Address        `json:"to"`
	Date           time.Time        `json:"date"`
	Seen           bool             `json:"seen"`
	HasAttachments bool             `json:"has_attachments"`
	Tracking       *TrackingSummary `json:"tracking,omitempty"`
}

// AttachmentRef indexes an attachment without its content
type AttachmentRef struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Attachment is an attachment with its content, returned by the explicit attachment fetch
type Attachment struct {
	AttachmentRef
	Content []byte `json:"-"`
}

// MessageDetail is the full view of a single message
type MessageDetail struct {
	MessageSummary
	FromList    []Address       `json:"from_list"`
	ToList      []Address       `json:"to_list"`
	Cc          []Address       `json:"cc"`
	Bcc         []Address       `json:"bcc"`
	ReplyTo     []Address       `json:"reply_to"`
	HTML        string          `json:"html"`
	Text        string          `json:"text"`
	Attachments []AttachmentRef `json:"attachments"`
	TrackingLog *TrackingDetail `json:"tracking_detail,omitempty"`
}

// AutoMoved identifies a message the spam analyzer moved out of the inbox
type AutoMoved struct {
	UID       UID     `json:"uid"`
	MessageID string  `json:"message_id"`
	Subject   string  `json:"subject"`
	From      Address `json:"from"`
}

// Page is one page of a paginated fetch
type Page struct {
	Mailbox       Mailbox          `json:"mailbox"`
	Page          int              `json:"page"`
	PageSize      int              `json:"page_size"`
	Messages      []MessageSummary `json:"messages"`
	TotalMessages int              `json:"total_messages"`
	HasMore       bool             `json:"has_more"`
	AutoMoved     []AutoMoved      `json:"auto_moved,omitempty"`
}

// SyncResult is the outcome of an incremental sync
type SyncResult struct {
	Mailbox       Mailbox          `json:"mailbox"`
	TotalMessages int              `json:"total_messages"`
	Messages      []MessageSummary `json:"messages"`
	AutoMoved     []AutoMoved      `json:"auto_moved,omitempty"`
}

// MaxUID returns the highest UID among returned and auto-moved messages
func (r *SyncResult) MaxUID() UID {
	var max UID
	for _, m := range r.Messages {
		if m.UID > max {
			max = m.UID
		}
	}
	for _, m := range r.AutoMoved {
		if m.UID > max {
			max = m.UID
		}
	}
	return max
}

// FolderInfo describes a server folder and the logical mailbox it resolves to
type FolderInfo struct {
	Path       string   `json:"path"`
	Delimiter  string   `json:"delimiter"`
	Attributes []string `json:"attributes,omitempty"`
	Mailbox    Mailbox  `json:"mailbox,omitempty"`
}
