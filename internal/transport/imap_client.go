package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/commands"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/config"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

const defaultIMAPTimeout = 30 * time.Second

// IMAPClient dials an authenticated IMAP session for one tenant. Sessions are
// never pooled: each operation dials, works and logs out.
type IMAPClient struct {
	tenant  string
	config  *config.ServerConfig
	timeout time.Duration
	logger  *logrus.Logger
}

// NewIMAPClient creates a new IMAP client (does not connect immediately)
func NewIMAPClient(tenant string, cfg *config.ServerConfig, timeout time.Duration, logger *logrus.Logger) *IMAPClient {
	if timeout <= 0 {
		timeout = defaultIMAPTimeout
	}
	return &IMAPClient{
		tenant:  tenant,
		config:  cfg,
		timeout: timeout,
		logger:  logger,
	}
}

// Dial establishes and authenticates a new IMAP session
func (c *IMAPClient) Dial(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := c.config.Addr()
	tlsConfig := &tls.Config{
		ServerName: c.config.Host,
		MinVersion: tls.VersionTLS12,
	}
	dialer := &net.Dialer{Timeout: c.timeout}

	// Connect to server
	var cl *client.Client
	var err error
	if c.config.Secure {
		cl, err = client.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		cl, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, &apperrors.ConnectivityError{Service: "IMAP", Addr: addr, Err: err}
	}
	cl.Timeout = c.timeout

	if !c.config.Secure {
		if ok, _ := cl.SupportStartTLS(); ok {
			if err := cl.StartTLS(tlsConfig); err != nil {
				cl.Logout() //nolint:errcheck
				return nil, connectivity("IMAP", addr, fmt.Errorf("failed to start TLS: %w", err))
			}
		}
	}

	// Login
	if err := cl.Login(c.config.Username, c.config.Password); err != nil {
		c.logger.WithError(err).WithField("tenant", c.tenant).Warn("IMAP login rejected")
		cl.Logout() //nolint:errcheck
		if isNetworkError(err) {
			return nil, &apperrors.ConnectivityError{Service: "IMAP", Addr: addr, Err: err}
		}
		return nil, &apperrors.AuthError{Service: "IMAP", User: c.config.Username, Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"tenant": c.tenant,
		"addr":   addr,
	}).Debug("Connected to IMAP server")

	return &imapSession{
		client: cl,
		addr:   addr,
		logger: c.logger,
	}, nil
}

// imapSession adapts a go-imap client to Session
type imapSession struct {
	client *client.Client
	addr   string
	logger *logrus.Logger
}

func (s *imapSession) fail(op string, err error) error {
	return connectivity("IMAP", s.addr, fmt.Errorf("failed to %s: %w", op, err))
}

// List lists all mailboxes/folders
func (s *imapSession) List(ctx context.Context) ([]Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var folders []Folder
	for m := range mailboxes {
		folders = append(folders, Folder{
			Path:       m.Name,
			Delimiter:  m.Delimiter,
			Attributes: m.Attributes,
		})
	}

	if err := <-done; err != nil {
		return nil, s.fail("list folders", err)
	}

	return folders, nil
}

// Select opens a folder read-write
func (s *imapSession) Select(ctx context.Context, path string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mbox, err := s.client.Select(path, false)
	if err != nil {
		return nil, s.fail("select folder "+path, err)
	}

	return &Status{
		Path:        path,
		Messages:    mbox.Messages,
		UIDNext:     types.UID(mbox.UidNext),
		UIDValidity: mbox.UidValidity,
	}, nil
}

// FetchSeq fetches messages by sequence number range
func (s *imapSession) FetchSeq(ctx context.Context, from, to uint32, opts FetchOptions) ([]*Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(from, to)
	return s.fetch(ctx, seqSet, false, opts)
}

// FetchUIDs fetches messages by UID
func (s *imapSession) FetchUIDs(ctx context.Context, uids []types.UID, opts FetchOptions) ([]*Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uint32(uid))
	}
	return s.fetch(ctx, seqSet, true, opts)
}

// FetchSince fetches messages with UID in from:*
func (s *imapSession) FetchSince(ctx context.Context, from types.UID, opts FetchOptions) ([]*Message, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(uint32(from), 0)
	return s.fetch(ctx, seqSet, true, opts)
}

func (s *imapSession) fetch(ctx context.Context, seqSet *imap.SeqSet, byUID bool, opts FetchOptions) ([]*Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchFlags,
		imap.FetchInternalDate,
		imap.FetchUid,
		imap.FetchRFC822Size,
		imap.FetchBodyStructure,
	}

	var rawSection, headerSection *imap.BodySectionName
	if opts.Raw {
		rawSection = &imap.BodySectionName{Peek: true}
		items = append(items, rawSection.FetchItem())
	}
	if len(opts.HeaderFields) > 0 {
		headerSection = &imap.BodySectionName{
			BodyPartName: imap.BodyPartName{
				Specifier: imap.HeaderSpecifier,
				Fields:    opts.HeaderFields,
			},
			Peek: true,
		}
		items = append(items, headerSection.FetchItem())
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)

	go func() {
		if byUID {
			done <- s.client.UidFetch(seqSet, items, messages)
		} else {
			done <- s.client.Fetch(seqSet, items, messages)
		}
	}()

	var out []*Message
	for msg := range messages {
		out = append(out, s.parseMessage(msg, rawSection, headerSection))
	}

	if err := <-done; err != nil {
		return nil, s.fail("fetch messages", err)
	}

	return out, nil
}

// parseMessage converts an IMAP message into a transport Message
func (s *imapSession) parseMessage(msg *imap.Message, rawSection, headerSection *imap.BodySectionName) *Message {
	m := &Message{
		SeqNum:       msg.SeqNum,
		UID:          types.UID(msg.Uid),
		Flags:        msg.Flags,
		InternalDate: msg.InternalDate,
		Size:         msg.Size,
	}

	if env := msg.Envelope; env != nil {
		m.Envelope = Envelope{
			Date:      env.Date,
			Subject:   env.Subject,
			MessageID: types.NormalizeMessageID(env.MessageId),
			InReplyTo: types.NormalizeMessageID(env.InReplyTo),
			From:      convertAddresses(env.From),
			Sender:    convertAddresses(env.Sender),
			ReplyTo:   convertAddresses(env.ReplyTo),
			To:        convertAddresses(env.To),
			Cc:        convertAddresses(env.Cc),
			Bcc:       convertAddresses(env.Bcc),
		}
	}

	if msg.BodyStructure != nil {
		m.HasAttachments = hasAttachments(msg.BodyStructure)
	}

	if rawSection != nil {
		m.Raw = s.readSection(msg, rawSection)
	}
	if headerSection != nil {
		m.Header = s.readSection(msg, headerSection)
	}

	return m
}

// readSection reads a requested body section, tolerating servers that echo
// the section name differently from how it was requested
func (s *imapSession) readSection(msg *imap.Message, section *imap.BodySectionName) []byte {
	literal := msg.GetBody(section)
	if literal == nil && len(msg.Body) == 1 {
		for _, l := range msg.Body {
			literal = l
		}
	}
	if literal == nil {
		s.logger.WithField("uid", msg.Uid).Debug("Requested body section missing from response")
		return nil
	}

	b, err := io.ReadAll(literal)
	if err != nil {
		s.logger.WithError(err).Error("Error reading literal")
	}
	return b
}

// Append stores a message and returns the UID from the server's APPENDUID
// response code, or zero when the server does not support UIDPLUS.
func (s *imapSession) Append(ctx context.Context, path string, flags []string, date time.Time, raw []byte) (types.UID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	status, err := s.client.Execute(&commands.Append{
		Mailbox: path,
		Flags:   flags,
		Date:    date,
		Message: bytes.NewBuffer(raw),
	}, nil)
	if err == nil {
		err = status.Err()
	}
	if err != nil {
		return 0, s.fail("append to "+path, err)
	}
	return appendUID(status), nil
}

// appendUID reads "[APPENDUID <uidvalidity> <uid>]" from a tagged OK
func appendUID(status *imap.StatusResp) types.UID {
	if status == nil || status.Code != "APPENDUID" || len(status.Arguments) < 2 {
		return 0
	}
	uid, err := imap.ParseNumber(status.Arguments[1])
	if err != nil {
		return 0
	}
	return types.UID(uid)
}

// SearchHeader searches the selected folder for a header substring
func (s *imapSession) SearchHeader(ctx context.Context, field, value string) ([]types.UID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Header.Add(field, value)

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, s.fail("search emails", err)
	}

	out := make([]types.UID, len(uids))
	for i, uid := range uids {
		out[i] = types.UID(uid)
	}
	return out, nil
}

// Move moves one message from the selected folder to dest
func (s *imapSession) Move(ctx context.Context, uid types.UID, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))
	if err := s.client.UidMove(seqSet, dest); err != nil {
		return s.fail("move message to "+dest, err)
	}
	return nil
}

// Logout closes the IMAP connection
func (s *imapSession) Logout() error {
	return s.client.Logout()
}

func convertAddresses(in []*imap.Address) []types.Address {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.Address, 0, len(in))
	for _, a := range in {
		if a == nil || a.MailboxName == "" {
			continue
		}
		out = append(out, types.Address{
			Name:  a.PersonalName,
			Email: strings.ToLower(a.Address()),
		})
	}
	return out
}

// hasAttachments walks a body structure looking for attachment parts
func hasAttachments(bs *imap.BodyStructure) bool {
	if strings.EqualFold(bs.Disposition, "attachment") {
		return true
	}
	if len(bs.Parts) == 0 {
		if bs.DispositionParams["filename"] != "" || bs.Params["name"] != "" {
			return !strings.EqualFold(bs.MIMEType, "text")
		}
		return false
	}
	for _, part := range bs.Parts {
		if hasAttachments(part) {
			return true
		}
	}
	return false
}
