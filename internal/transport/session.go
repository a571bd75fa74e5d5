package transport

import (
	"context"
	"strings"
	"time"

	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Special-use folder attributes (RFC 6154)
const (
	AttrNoSelect = `\Noselect`
	AttrSent     = `\Sent`
	AttrDrafts   = `\Drafts`
	AttrTrash    = `\Trash`
	AttrJunk     = `\Junk`

	FlagSeen = `\Seen`
)

// Folder is a folder as reported by LIST
type Folder struct {
	Path       string
	Delimiter  string
	Attributes []string
}

// HasAttribute reports whether the folder carries attr (case-insensitive)
func (f Folder) HasAttribute(attr string) bool {
	for _, a := range f.Attributes {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}

// Status is the state of a selected folder
type Status struct {
	Path        string
	Messages    uint32
	UIDNext     types.UID
	UIDValidity uint32
}

// Envelope is the protocol-level summary of a message
type Envelope struct {
	Date      time.Time
	Subject   string
	MessageID string
	InReplyTo string
	From      []types.Address
	Sender    []types.Address
	ReplyTo   []types.Address
	To        []types.Address
	Cc        []types.Address
	Bcc       []types.Address
}

// Message is one fetched message
type Message struct {
	SeqNum         uint32
	UID            types.UID
	Envelope       Envelope
	Flags          []string
	InternalDate   time.Time
	Size           uint32
	HasAttachments bool

	// Header holds the requested header fields, raw
	Header []byte
	// Raw holds the full RFC 5322 message when requested
	Raw []byte
}

// Seen reports whether the \Seen flag is set
func (m *Message) Seen() bool {
	for _, f := range m.Flags {
		if strings.EqualFold(f, FlagSeen) {
			return true
		}
	}
	return false
}

// Date returns the envelope date, falling back to the internal date
func (m *Message) Date() time.Time {
	if !m.Envelope.Date.IsZero() {
		return m.Envelope.Date
	}
	return m.InternalDate
}

// Summary returns the list view of m
func (m *Message) Summary() types.MessageSummary {
	s := types.MessageSummary{
		UID:            m.UID,
		MessageID:      types.NormalizeMessageID(m.Envelope.MessageID),
		Subject:        m.Envelope.Subject,
		To:             m.Envelope.To,
		Date:           m.Date(),
		Seen:           m.Seen(),
		HasAttachments: m.HasAttachments,
	}
	if len(m.Envelope.From) > 0 {
		s.From = m.Envelope.From[0]
	}
	if s.To == nil {
		s.To = []types.Address{}
	}
	return s
}

// FetchOptions selects optional message data
type FetchOptions struct {
	// Raw fetches the whole message with BODY.PEEK[]
	Raw bool
	// HeaderFields fetches BODY.PEEK[HEADER.FIELDS (...)]
	HeaderFields []string
}

// Session is one authenticated IMAP session. Fetch, search and move operate on
// the folder chosen by the most recent Select.
type Session interface {
	List(ctx context.Context) ([]Folder, error)
	Select(ctx context.Context, path string) (*Status, error)
	FetchSeq(ctx context.Context, from, to uint32, opts FetchOptions) ([]*Message, error)
	FetchUIDs(ctx context.Context, uids []types.UID, opts FetchOptions) ([]*Message, error)
	// FetchSince fetches every message with UID >= from
	FetchSince(ctx context.Context, from types.UID, opts FetchOptions) ([]*Message, error)
	// Append stores raw into path. The returned UID is zero when the server
	// did not report one.
	Append(ctx context.Context, path string, flags []string, date time.Time, raw []byte) (types.UID, error)
	SearchHeader(ctx context.Context, field, value string) ([]types.UID, error)
	Move(ctx context.Context, uid types.UID, dest string) error
	Logout() error
}

// Dialer opens a new session per operation
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Sender submits one message to the given envelope recipients
type Sender interface {
	Send(ctx context.Context, from string, to []string, raw []byte) error
}
