// Package transporttest provides an in-memory IMAP server and SMTP outbox
// implementing the transport interfaces.
package transporttest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Operation names accepted by Server.Fail
const (
	OpDial   = "dial"
	OpList   = "list"
	OpSelect = "select"
	OpFetch  = "fetch"
	OpAppend = "append"
	OpSearch = "search"
	OpMove   = "move"
)

type storedMessage struct {
	uid          types.UID
	flags        []string
	internalDate time.Time
	raw          []byte
	header       textproto.Header
	envelope     transport.Envelope
	attachments  bool
}

type folder struct {
	info        transport.Folder
	uidNext     types.UID
	uidValidity uint32
	messages    []*storedMessage
}

// Server is an in-memory IMAP account. The zero value is not usable; call NewServer.
type Server struct {
	mu      sync.Mutex
	folders map[string]*folder
	order   []string
	fail    map[string]error

	// ReportAppendUID makes Append return the assigned UID (UIDPLUS)
	ReportAppendUID bool

	dials   int
	open    int
	selects []string
	appends []string
}

// NewServer returns a server holding an empty INBOX
func NewServer() *Server {
	s := &Server{
		folders: make(map[string]*folder),
		fail:    make(map[string]error),
	}
	s.AddFolder("INBOX", "/")
	return s
}

// AddFolder creates a folder with the given hierarchy delimiter and attributes
func (s *Server) AddFolder(path, delimiter string, attrs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[path]; ok {
		return
	}
	s.folders[path] = &folder{
		info:        transport.Folder{Path: path, Delimiter: delimiter, Attributes: attrs},
		uidNext:     1,
		uidValidity: uint32(len(s.order) + 1),
	}
	s.order = append(s.order, path)
}

// Fail makes every subsequent op return err; a nil err clears the failure
func (s *Server) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// AddRaw stores raw in path and returns its UID
func (s *Server) AddRaw(path string, raw []byte, flags ...string) types.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[path]
	if !ok {
		panic("transporttest: unknown folder " + path)
	}
	return f.add(raw, flags, time.Time{})
}

// Add stores a message built from spec in path and returns its UID
func (s *Server) Add(path string, spec MessageSpec) types.UID {
	var flags []string
	if spec.Seen {
		flags = append(flags, transport.FlagSeen)
	}
	return s.AddRaw(path, Build(spec), flags...)
}

// UIDs returns the UIDs stored in path in sequence order
func (s *Server) UIDs(path string) []types.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[path]
	if !ok {
		return nil
	}
	out := make([]types.UID, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.uid
	}
	return out
}

// Raw returns the stored bytes of one message
func (s *Server) Raw(path string, uid types.UID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[path]
	if !ok {
		return nil
	}
	for _, m := range f.messages {
		if m.uid == uid {
			return m.raw
		}
	}
	return nil
}

// Dials returns how many sessions were opened
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// OpenSessions returns how many sessions have not logged out
func (s *Server) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Selects returns every path passed to a successful Select
func (s *Server) Selects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selects...)
}

// Appends returns every path appended to
func (s *Server) Appends() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.appends...)
}

// Dial implements transport.Dialer
func (s *Server) Dial(ctx context.Context) (transport.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[OpDial]; err != nil {
		return nil, err
	}
	s.dials++
	s.open++
	return &session{server: s}, nil
}

func (f *folder) add(raw []byte, flags []string, date time.Time) types.UID {
	m := parse(raw)
	m.uid = f.uidNext
	m.flags = append([]string(nil), flags...)
	m.internalDate = date
	if m.internalDate.IsZero() {
		m.internalDate = m.envelope.Date
	}
	f.uidNext++
	f.messages = append(f.messages, m)
	return m.uid
}

func parse(raw []byte) *storedMessage {
	m := &storedMessage{raw: raw}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return m
	}
	m.header = h
	mh := mail.Header{Header: message.Header{Header: h}}

	m.envelope.Date, _ = mh.Date()
	m.envelope.Subject, _ = mh.Subject()
	m.envelope.MessageID, _ = mh.MessageID()
	m.envelope.InReplyTo = types.NormalizeMessageID(mh.Get("In-Reply-To"))
	m.envelope.From = addresses(mh, "From")
	m.envelope.Sender = addresses(mh, "Sender")
	m.envelope.ReplyTo = addresses(mh, "Reply-To")
	m.envelope.To = addresses(mh, "To")
	m.envelope.Cc = addresses(mh, "Cc")
	m.envelope.Bcc = addresses(mh, "Bcc")
	m.attachments = bytes.Contains(bytes.ToLower(raw), []byte("content-disposition: attachment"))
	return m
}

func addresses(h mail.Header, key string) []types.Address {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]types.Address, 0, len(list))
	for _, a := range list {
		out = append(out, types.Address{Name: a.Name, Email: strings.ToLower(a.Address)})
	}
	return out
}

// session is one connection to Server
type session struct {
	server   *Server
	selected *folder
	closed   bool
}

func (c *session) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return fmt.Errorf("transporttest: session closed")
	}
	return c.server.fail[op]
}

func (c *session) List(ctx context.Context) ([]transport.Folder, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.check(ctx, OpList); err != nil {
		return nil, err
	}
	out := make([]transport.Folder, 0, len(c.server.order))
	for _, p := range c.server.order {
		out = append(out, c.server.folders[p].info)
	}
	return out, nil
}

func (c *session) Select(ctx context.Context, path string) (*transport.Status, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.check(ctx, OpSelect); err != nil {
		return nil, err
	}
	f, ok := c.server.folders[path]
	if !ok || f.info.HasAttribute(transport.AttrNoSelect) {
		return nil, fmt.Errorf("NO [NONEXISTENT] Mailbox doesn't exist: %s", path)
	}
	c.selected = f
	c.server.selects = append(c.server.selects, path)
	return &transport.Status{
		Path:        path,
		Messages:    uint32(len(f.messages)),
		UIDNext:     f.uidNext,
		UIDValidity: f.uidValidity,
	}, nil
}

func (c *session) fetchable(ctx context.Context) (*folder, error) {
	if err := c.check(ctx, OpFetch); err != nil {
		return nil, err
	}
	if c.selected == nil {
		return nil, fmt.Errorf("BAD No mailbox selected")
	}
	return c.selected, nil
}

func (c *session) FetchSeq(ctx context.Context, from, to uint32, opts transport.FetchOptions) ([]*transport.Message, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	f, err := c.fetchable(ctx)
	if err != nil {
		return nil, err
	}
	n := uint32(len(f.messages))
	if to == 0 || to > n {
		to = n
	}
	if from < 1 || from > to {
		return nil, nil
	}
	var out []*transport.Message
	for seq := from; seq <= to; seq++ {
		out = append(out, toMessage(f.messages[seq-1], seq, opts))
	}
	return out, nil
}

func (c *session) FetchUIDs(ctx context.Context, uids []types.UID, opts transport.FetchOptions) ([]*transport.Message, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	f, err := c.fetchable(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[types.UID]bool, len(uids))
	for _, u := range uids {
		want[u] = true
	}
	var out []*transport.Message
	for i, m := range f.messages {
		if want[m.uid] {
			out = append(out, toMessage(m, uint32(i+1), opts))
		}
	}
	return out, nil
}

// FetchSince mirrors server behavior for "n:*": when no UID is >= n, the
// highest-UID message is still returned.
func (c *session) FetchSince(ctx context.Context, from types.UID, opts transport.FetchOptions) ([]*transport.Message, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	f, err := c.fetchable(ctx)
	if err != nil {
		return nil, err
	}
	var out []*transport.Message
	for i, m := range f.messages {
		if m.uid >= from {
			out = append(out, toMessage(m, uint32(i+1), opts))
		}
	}
	if len(out) == 0 && len(f.messages) > 0 {
		last := len(f.messages)
		out = append(out, toMessage(f.messages[last-1], uint32(last), opts))
	}
	return out, nil
}

func (c *session) Append(ctx context.Context, path string, flags []string, date time.Time, raw []byte) (types.UID, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.check(ctx, OpAppend); err != nil {
		return 0, err
	}
	f, ok := c.server.folders[path]
	if !ok {
		return 0, fmt.Errorf("NO [TRYCREATE] Mailbox doesn't exist: %s", path)
	}
	uid := f.add(raw, flags, date)
	c.server.appends = append(c.server.appends, path)
	if c.server.ReportAppendUID {
		return uid, nil
	}
	return 0, nil
}

func (c *session) SearchHeader(ctx context.Context, field, value string) ([]types.UID, error) {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.check(ctx, OpSearch); err != nil {
		return nil, err
	}
	if c.selected == nil {
		return nil, fmt.Errorf("BAD No mailbox selected")
	}
	var out []types.UID
	needle := strings.ToLower(value)
	for _, m := range c.selected.messages {
		if strings.Contains(strings.ToLower(m.header.Get(field)), needle) {
			out = append(out, m.uid)
		}
	}
	return out, nil
}

func (c *session) Move(ctx context.Context, uid types.UID, dest string) error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if err := c.check(ctx, OpMove); err != nil {
		return err
	}
	if c.selected == nil {
		return fmt.Errorf("BAD No mailbox selected")
	}
	target, ok := c.server.folders[dest]
	if !ok {
		return fmt.Errorf("NO [TRYCREATE] Mailbox doesn't exist: %s", dest)
	}
	for i, m := range c.selected.messages {
		if m.uid == uid {
			c.selected.messages = append(c.selected.messages[:i], c.selected.messages[i+1:]...)
			target.add(m.raw, m.flags, m.internalDate)
			return nil
		}
	}
	return fmt.Errorf("NO No matching messages")
}

func (c *session) Logout() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.server.open--
	}
	return nil
}

func toMessage(m *storedMessage, seq uint32, opts transport.FetchOptions) *transport.Message {
	out := &transport.Message{
		SeqNum:         seq,
		UID:            m.uid,
		Envelope:       m.envelope,
		Flags:          append([]string(nil), m.flags...),
		InternalDate:   m.internalDate,
		Size:           uint32(len(m.raw)),
		HasAttachments: m.attachments,
	}
	if opts.Raw {
		out.Raw = append([]byte(nil), m.raw...)
	}
	if len(opts.HeaderFields) > 0 {
		out.Header = headerFields(m.header, opts.HeaderFields)
	}
	return out
}

func headerFields(h textproto.Header, fields []string) []byte {
	want := make(map[string]bool, len(fields))
	for _, f := range fields {
		want[strings.ToLower(f)] = true
	}
	var buf bytes.Buffer
	fs := h.Fields()
	for fs.Next() {
		if want[strings.ToLower(fs.Key())] {
			buf.WriteString(fs.Key() + ": " + fs.Value() + "\r\n")
		}
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}
