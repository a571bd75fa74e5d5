package email

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brandon/mcp-mailbridge/internal/config"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/outbound"
	"github.com/brandon/mcp-mailbridge/internal/store"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/internal/transport/transporttest"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var baseDate = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestWindow(t *testing.T) {
	tests := []struct {
		name     string
		n        uint32
		page     int
		size     int
		wantFrom uint32
		wantTo   uint32
		wantOK   bool
	}{
		{"first page", 45, 1, 20, 26, 45, true},
		{"second page", 45, 2, 20, 6, 25, true},
		{"short last page", 45, 3, 20, 1, 5, true},
		{"beyond the end", 45, 4, 20, 0, 0, false},
		{"exact fit", 40, 2, 20, 1, 20, true},
		{"exact fit beyond", 40, 3, 20, 0, 0, false},
		{"empty folder", 0, 1, 20, 0, 0, false},
		{"page zero", 10, 0, 20, 0, 0, false},
		{"size larger than folder", 3, 1, 20, 1, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := Window(tt.n, tt.page, tt.size)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantFrom, from)
			assert.Equal(t, tt.wantTo, to)
		})
	}
}

func TestMergeAddresses(t *testing.T) {
	envelope := []types.Address{{Email: "Alice@X.test"}, {Name: "Bob", Email: "bob@x.test"}}
	parsed := []types.Address{
		{Name: "Alice Liddell", Email: "alice@x.test"},
		{Name: "Robert", Email: "bob@x.test"},
		{Name: "Carol", Email: "carol@x.test"},
		{Email: ""},
	}

	got := mergeAddresses(envelope, parsed)
	assert.Equal(t, []types.Address{
		{Name: "Alice Liddell", Email: "alice@x.test"},
		{Name: "Bob", Email: "bob@x.test"},
		{Name: "Carol", Email: "carol@x.test"},
	}, got)
}

// AccountTestSuite runs an account against the in-memory IMAP server and outbox
type AccountTestSuite struct {
	suite.Suite
	server *transporttest.Server
	outbox *transporttest.Outbox
	db     *store.DB
	store  *store.Store
	cfg    *config.AccountConfig
	ctx    context.Context
}

func (s *AccountTestSuite) SetupTest() {
	s.server = transporttest.NewServer()
	s.server.AddFolder("Sent", "/", transport.AttrSent)
	s.server.AddFolder("Junk", "/", transport.AttrJunk)
	s.server.AddFolder("Archive", "/")
	s.outbox = transporttest.NewOutbox()

	db, err := store.Open(store.MemoryPath, quietLogger())
	require.NoError(s.T(), err)
	s.db = db
	s.store = store.NewStore(db.SQL(), quietLogger())

	s.cfg = &config.AccountConfig{
		Name:        "acme",
		FromAddress: "support@acme.test",
		SenderName:  "Acme Support",
	}
	s.ctx = context.Background()
}

func (s *AccountTestSuite) TearDownTest() {
	s.db.Close()
}

func (s *AccountTestSuite) account() *Account {
	return NewAccount(s.cfg, s.server, s.outbox, Deps{Store: s.store, SpamThreshold: 5}, quietLogger())
}

func (s *AccountTestSuite) addInbox(n int) {
	for i := 1; i <= n; i++ {
		s.server.Add("INBOX", transporttest.MessageSpec{
			MessageID: fmt.Sprintf("m%d@x.test", i),
			From:      fmt.Sprintf("sender%d@x.test", i),
			To:        []string{"support@acme.test"},
			Subject:   fmt.Sprintf("Message %d", i),
			Date:      baseDate.Add(time.Duration(i) * time.Minute),
		})
	}
}

func uids(msgs []types.MessageSummary) []types.UID {
	out := make([]types.UID, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.UID)
	}
	return out
}

func (s *AccountTestSuite) TestFetchFirstPage() {
	s.addInbox(45)

	page, err := s.account().Fetch(s.ctx, types.MailboxInbox, 1, 20)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 45, page.TotalMessages)
	assert.True(s.T(), page.HasMore)
	require.Len(s.T(), page.Messages, 20)

	want := make([]types.UID, 0, 20)
	for uid := types.UID(45); uid >= 26; uid-- {
		want = append(want, uid)
	}
	assert.Equal(s.T(), want, uids(page.Messages))
	assert.Equal(s.T(), "m45@x.test", page.Messages[0].MessageID)
	assert.Equal(s.T(), "sender45@x.test", page.Messages[0].From.Email)
}

func (s *AccountTestSuite) TestFetchPagesCoverFolder() {
	s.addInbox(45)
	acc := s.account()

	seen := make(map[types.UID]bool)
	for p := 1; ; p++ {
		page, err := acc.Fetch(s.ctx, types.MailboxInbox, p, 20)
		require.NoError(s.T(), err)
		for _, m := range page.Messages {
			assert.False(s.T(), seen[m.UID], "uid %d returned twice", m.UID)
			seen[m.UID] = true
		}
		if !page.HasMore {
			assert.Len(s.T(), page.Messages, 5)
			break
		}
	}
	assert.Len(s.T(), seen, 45)

	beyond, err := acc.Fetch(s.ctx, types.MailboxInbox, 4, 20)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), beyond.Messages)
	assert.False(s.T(), beyond.HasMore)
	assert.Equal(s.T(), 45, beyond.TotalMessages)
	assert.Zero(s.T(), s.server.OpenSessions())
}

func (s *AccountTestSuite) TestFetchOrdersByDateThenUID() {
	s.server.Add("INBOX", transporttest.MessageSpec{MessageID: "late@x.test", Date: baseDate.Add(time.Hour)})
	s.server.Add("INBOX", transporttest.MessageSpec{MessageID: "early@x.test", Date: baseDate})
	s.server.Add("INBOX", transporttest.MessageSpec{MessageID: "tie@x.test", Date: baseDate})

	page, err := s.account().Fetch(s.ctx, types.MailboxInbox, 1, 10)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []types.UID{1, 3, 2}, uids(page.Messages))
}

func (s *AccountTestSuite) TestFetchPageSizeDefaults() {
	s.addInbox(25)
	acc := s.account()

	page, err := acc.Fetch(s.ctx, types.MailboxInbox, 1, 0)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), DefaultPageSize, page.PageSize)
	assert.Len(s.T(), page.Messages, DefaultPageSize)

	_, err = acc.Fetch(s.ctx, types.MailboxInbox, 0, 10)
	assert.True(s.T(), apperrors.IsInvalidInput(err))
}

func (s *AccountTestSuite) TestFetchMovesSpam() {
	s.cfg.SpamFilterEnabled = true
	s.addInbox(2)
	s.server.Add("INBOX", transporttest.MessageSpec{
		MessageID: "spam@x.test",
		From:      "winner@lottery.test",
		Subject:   "You won",
		Date:      baseDate.Add(time.Hour),
		Headers:   map[string]string{"X-Spam-Flag": "YES"},
	})

	page, err := s.account().Fetch(s.ctx, types.MailboxInbox, 1, 20)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), []types.UID{2, 1}, uids(page.Messages))
	require.Len(s.T(), page.AutoMoved, 1)
	assert.Equal(s.T(), types.UID(3), page.AutoMoved[0].UID)
	assert.Equal(s.T(), "spam@x.test", page.AutoMoved[0].MessageID)
	assert.Equal(s.T(), 2, page.TotalMessages)
	assert.Len(s.T(), s.server.UIDs("Junk"), 1)

	logged, err := s.store.SpamLogged(s.ctx, "acme", "spam@x.test")
	require.NoError(s.T(), err)
	assert.True(s.T(), logged)
}

func (s *AccountTestSuite) TestFetchLeavesSpamOutsideInbox() {
	s.cfg.SpamFilterEnabled = true
	s.server.AddFolder("Trash", "/", transport.AttrTrash)
	s.server.Add("Trash", transporttest.MessageSpec{
		MessageID: "spam@x.test",
		Headers:   map[string]string{"X-Spam-Flag": "YES"},
	})

	page, err := s.account().Fetch(s.ctx, types.MailboxTrash, 1, 20)
	require.NoError(s.T(), err)
	assert.Len(s.T(), page.Messages, 1)
	assert.Empty(s.T(), page.AutoMoved)
	assert.Empty(s.T(), s.server.UIDs("Junk"))
}

func (s *AccountTestSuite) TestFetchUnknownFolder() {
	_, err := s.account().Fetch(s.ctx, types.MailboxDrafts, 1, 20)
	require.Error(s.T(), err)
	assert.True(s.T(), errors.Is(err, apperrors.ErrFolderNotFound))
}

func (s *AccountTestSuite) TestSyncWithoutWatermark() {
	s.addInbox(3)

	result, err := s.account().Sync(s.ctx, types.MailboxInbox, 0)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), result.Messages)
	assert.Zero(s.T(), s.server.Dials())
}

func (s *AccountTestSuite) TestSyncReturnsNewMessages() {
	s.addInbox(3)
	acc := s.account()

	first, err := acc.Sync(s.ctx, types.MailboxInbox, 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), []types.UID{3, 2}, uids(first.Messages))
	assert.Equal(s.T(), 3, first.TotalMessages)
	assert.Equal(s.T(), types.UID(3), first.MaxUID())

	again, err := acc.Sync(s.ctx, types.MailboxInbox, 1)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uids(first.Messages), uids(again.Messages))

	caughtUp, err := acc.Sync(s.ctx, types.MailboxInbox, first.MaxUID())
	require.NoError(s.T(), err)
	assert.Empty(s.T(), caughtUp.Messages)
}

func (s *AccountTestSuite) TestSyncIgnoresStarRangeQuirk() {
	s.addInbox(4)

	sess, err := s.server.Dial(s.ctx)
	require.NoError(s.T(), err)
	_, err = sess.Select(s.ctx, "INBOX")
	require.NoError(s.T(), err)
	require.NoError(s.T(), sess.Move(s.ctx, 4, "Archive"))
	require.NoError(s.T(), sess.Logout())

	result, err := s.account().Sync(s.ctx, types.MailboxInbox, 3)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), result.Messages)
	assert.Equal(s.T(), 3, result.TotalMessages)
}

func (s *AccountTestSuite) TestSyncTriggersAutoReply() {
	s.cfg.AutoReply = config.AutoReplyConfig{Enabled: true, Subject: "Thanks for writing"}
	s.addInbox(1)
	s.server.Add("INBOX", transporttest.MessageSpec{
		MessageID: "question@x.test",
		From:      "alice@x.test",
		To:        []string{"support@acme.test"},
		Subject:   "Question",
	})
	s.server.Add("INBOX", transporttest.MessageSpec{
		MessageID: "bounce@x.test",
		From:      "mailer-daemon@x.test",
		Subject:   "Undeliverable",
	})

	result, err := s.account().Sync(s.ctx, types.MailboxInbox, 1)
	require.NoError(s.T(), err)
	assert.Len(s.T(), result.Messages, 2)

	sent := s.outbox.Sent()
	require.Len(s.T(), sent, 1)
	assert.Equal(s.T(), []string{"alice@x.test"}, sent[0].To)
	assert.Contains(s.T(), string(sent[0].Raw), "Auto-Submitted: auto-replied")

	recent, err := s.store.FindRecentAutoReplies(s.ctx, "acme", []string{"alice@x.test"}, baseDate)
	require.NoError(s.T(), err)
	assert.Len(s.T(), recent, 1)
}

func (s *AccountTestSuite) TestMessageDetail() {
	uid := s.server.Add("INBOX", transporttest.MessageSpec{
		MessageID:         "detail@x.test",
		From:              "Alice <alice@x.test>",
		To:                []string{"support@acme.test", "Bob <bob@x.test>"},
		Cc:                []string{"carol@x.test"},
		Subject:           "Report",
		Text:              "plain body",
		HTML:              `<p onclick="steal()">Hello</p><script>alert(1)</script>`,
		Attachment:        "notes.txt",
		AttachmentContent: "hello notes",
	})
	acc := s.account()

	detail, err := acc.Message(s.ctx, types.MailboxInbox, uid)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), "detail@x.test", detail.MessageID)
	assert.Equal(s.T(), "Alice", detail.From.Name)
	assert.Len(s.T(), detail.ToList, 2)
	assert.Equal(s.T(), []types.Address{{Email: "carol@x.test"}}, detail.Cc)
	assert.Contains(s.T(), detail.HTML, "Hello")
	assert.NotContains(s.T(), detail.HTML, "script")
	assert.NotContains(s.T(), detail.HTML, "onclick")
	assert.Contains(s.T(), detail.Text, "plain body")
	assert.True(s.T(), detail.HasAttachments)

	require.Len(s.T(), detail.Attachments, 1)
	ref := detail.Attachments[0]
	assert.Equal(s.T(), "notes.txt", ref.Filename)
	assert.Len(s.T(), ref.ID, 64)

	att, err := acc.Attachment(s.ctx, types.MailboxInbox, uid, ref.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "hello notes", string(att.Content))
	assert.Equal(s.T(), ref, att.AttachmentRef)

	_, err = acc.Attachment(s.ctx, types.MailboxInbox, uid, "nope")
	assert.True(s.T(), errors.Is(err, apperrors.ErrAttachmentNotFound))
}

func (s *AccountTestSuite) TestMessageNotFound() {
	s.addInbox(1)

	_, err := s.account().Message(s.ctx, types.MailboxInbox, 99)
	assert.True(s.T(), errors.Is(err, apperrors.ErrMessageNotFound))
	assert.Zero(s.T(), s.server.OpenSessions())
}

func (s *AccountTestSuite) TestFolders() {
	s.server.AddFolder("Deleted Items", "/")

	list, err := s.account().Folders(s.ctx)
	require.NoError(s.T(), err)

	byPath := make(map[string]types.Mailbox)
	for _, f := range list {
		byPath[f.Path] = f.Mailbox
	}
	assert.Equal(s.T(), types.MailboxInbox, byPath["INBOX"])
	assert.Equal(s.T(), types.MailboxSent, byPath["Sent"])
	assert.Equal(s.T(), types.MailboxSpam, byPath["Junk"])
	assert.Equal(s.T(), types.MailboxTrash, byPath["Deleted Items"])
	assert.Equal(s.T(), types.Mailbox(""), byPath["Archive"])
}

func (s *AccountTestSuite) TestSendStoresSentCopy() {
	s.server.ReportAppendUID = true

	result, err := s.account().Send(s.ctx, &outbound.Message{
		To:      []string{"bob@x.test"},
		Subject: "Hello",
		Text:    "Hi Bob",
	})
	require.NoError(s.T(), err)
	assert.False(s.T(), result.Degraded())
	assert.Len(s.T(), s.server.UIDs("Sent"), 1)
}

func (s *AccountTestSuite) TestNotConfigured() {
	acc := NewAccount(&config.AccountConfig{Name: "bare"}, nil, nil, Deps{}, quietLogger())
	assert.False(s.T(), acc.CanRead())
	assert.False(s.T(), acc.CanSend())

	_, err := acc.Fetch(s.ctx, types.MailboxInbox, 1, 20)
	assert.True(s.T(), errors.Is(err, apperrors.ErrIMAPNotConfigured))

	_, err = acc.Send(s.ctx, &outbound.Message{To: []string{"bob@x.test"}, Text: "hi"})
	assert.True(s.T(), errors.Is(err, apperrors.ErrSMTPNotConfigured))

	_, err = acc.Tracking(s.ctx, "")
	assert.True(s.T(), apperrors.IsInvalidInput(err))

	_, err = acc.Tracking(s.ctx, "<x@y.test>")
	assert.True(s.T(), apperrors.IsNotFound(err))
}

func TestAccountTestSuite(t *testing.T) {
	suite.Run(t, new(AccountTestSuite))
}

func TestManager(t *testing.T) {
	cfg := &config.Config{
		DefaultPageSize: 10,
		Accounts: []config.AccountConfig{
			{Name: "acme", IMAP: &config.ServerConfig{Host: "imap.acme.test", Port: 993, Username: "a@acme.test", Password: "x"}},
			{Name: "globex"},
		},
	}
	m := NewManager(cfg, Deps{}, quietLogger())

	assert.Equal(t, []string{"acme", "globex"}, m.ListAccounts())

	acc, err := m.GetAccount("acme")
	require.NoError(t, err)
	assert.True(t, acc.CanRead())
	assert.False(t, acc.CanSend())
	assert.Equal(t, 10, acc.pageSize)

	_, err = m.GetAccount("initech")
	assert.True(t, errors.Is(err, apperrors.ErrAccountNotFound))

	m.Add(NewAccount(&config.AccountConfig{Name: "acme"}, nil, nil, Deps{}, quietLogger()))
	assert.Len(t, m.Accounts(), 2)
	acc, _ = m.GetAccount("acme")
	assert.False(t, acc.CanRead())
}
