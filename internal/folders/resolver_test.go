package folders

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/internal/transport/transporttest"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[Gmail]/Sent Mail", "gmail sent mail"},
		{"Éléments envoyés", "elements envoyes"},
		{"INBOX.Sent", "inbox sent"},
		{"Junk E-mail", "junk e mail"},
		{"  Gelöschte   Elemente ", "geloschte elemente"},
		{"Wysłane", "wyslane"},
		{"Sendt", "sendt"},
		{"Søppelpost", "soppelpost"},
		{"Straße", "strasse"},
		{"Œuvres Æ", "oeuvres ae"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestScore(t *testing.T) {
	gmail, ok := Score(types.MailboxSent, "[Gmail]/Sent Mail", "/")
	require.True(t, ok)
	generic, ok := Score(types.MailboxSent, "Sent", "/")
	require.True(t, ok)
	assert.Less(t, gmail, generic, "provider phrase beats the bare word")

	archived, ok := Score(types.MailboxSent, "Archive/Sent 2019", "/")
	require.True(t, ok)
	assert.Greater(t, archived, generic, "extra leaf tokens add a penalty")

	french, ok := Score(types.MailboxSent, "Éléments envoyés", "/")
	require.True(t, ok)
	assert.GreaterOrEqual(t, french, WeightAlias)

	for _, name := range []string{"Wysłane", "Elementy wysłane", "Sendt", "Sendte elementer"} {
		_, ok = Score(types.MailboxSent, name, "/")
		assert.True(t, ok, name)
	}

	_, ok = Score(types.MailboxSent, "Receipts", "/")
	assert.False(t, ok)

	_, ok = Score(types.MailboxSent, "Sent/Receipts", "/")
	assert.False(t, ok, "a matching parent does not make its children candidates")

	_, ok = Score(types.MailboxSent, "Outbox", "/")
	assert.False(t, ok, "outbox holds unsent mail")

	_, ok = Score(types.MailboxSent, "INBOX", "/")
	assert.False(t, ok)

	// Pure function
	again, _ := Score(types.MailboxSent, "[Gmail]/Sent Mail", "/")
	assert.Equal(t, gmail, again)
}

func TestRank_OrderAndExclusions(t *testing.T) {
	folders := []transport.Folder{
		{Path: "INBOX", Delimiter: "/"},
		{Path: "[Gmail]", Delimiter: "/", Attributes: []string{transport.AttrNoSelect}},
		{Path: "[Gmail]/Sent Mail", Delimiter: "/", Attributes: []string{transport.AttrSent}},
		{Path: "Sent", Delimiter: "/"},
		{Path: "Archive", Delimiter: "/"},
	}

	got := Rank(types.MailboxSent, folders, "")
	require.NotEmpty(t, got)
	assert.Equal(t, "[Gmail]/Sent Mail", got[0].Path)
	assert.Equal(t, WeightSpecialUse, got[0].Weight)
	assert.Equal(t, "Sent", got[1].Path)

	for _, c := range got {
		assert.NotEqual(t, "INBOX", c.Path)
		assert.NotEqual(t, "[Gmail]", c.Path)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Weight == got[i].Weight {
			assert.Less(t, got[i-1].Path, got[i].Path, "ties break lexically")
		} else {
			assert.Less(t, got[i-1].Weight, got[i].Weight)
		}
	}

	cached := Rank(types.MailboxSent, folders, "Sent")
	assert.Equal(t, Candidate{Path: "Sent", Weight: WeightCached}, cached[0])

	inbox := Rank(types.MailboxInbox, folders, "whatever")
	assert.Equal(t, []Candidate{{Path: InboxPath, Weight: WeightCached}}, inbox)
}

func TestResolver_SentLayouts(t *testing.T) {
	layouts := []struct {
		name      string
		path      string
		delimiter string
	}{
		{"plain", "Sent", "/"},
		{"dovecot namespace", "INBOX.Sent", "."},
		{"gmail", "[Gmail]/Sent Mail", "/"},
	}

	for _, l := range layouts {
		t.Run(l.name, func(t *testing.T) {
			srv := transporttest.NewServer()
			srv.AddFolder("Drafts", l.delimiter)
			srv.AddFolder(l.path, l.delimiter)

			sess, err := srv.Dial(context.Background())
			require.NoError(t, err)
			defer sess.Logout()

			r := NewResolver(NewCache(), quietLogger())
			status, err := r.Open(context.Background(), sess, types.MailboxSent)
			require.NoError(t, err)
			assert.Equal(t, l.path, status.Path)

			cached, ok := r.Cache().Get(types.MailboxSent)
			require.True(t, ok)
			assert.Equal(t, l.path, cached)
		})
	}
}

func TestAssign_StrokedLocaleNames(t *testing.T) {
	assigned := Assign([]transport.Folder{
		{Path: "INBOX", Delimiter: "/"},
		{Path: "Wysłane", Delimiter: "/"},
		{Path: "Outbox", Delimiter: "/"},
		{Path: "Sent/Receipts", Delimiter: "/"},
	})
	assert.Equal(t, map[types.Mailbox]string{
		types.MailboxInbox: "INBOX",
		types.MailboxSent:  "Wysłane",
	}, assigned)
}

func TestResolver_DeterministicWithCache(t *testing.T) {
	srv := transporttest.NewServer()
	srv.AddFolder("Sent Items", "/")
	srv.AddFolder("Sent", "/")

	ctx := context.Background()
	r := NewResolver(NewCache(), quietLogger())

	resolve := func() string {
		sess, err := srv.Dial(ctx)
		require.NoError(t, err)
		defer sess.Logout()
		status, err := r.Open(ctx, sess, types.MailboxSent)
		require.NoError(t, err)
		return status.Path
	}

	first := resolve()
	second := resolve()
	assert.Equal(t, first, second)
	assert.Equal(t, "Sent Items", first)
}

func TestResolver_HierarchyVariant(t *testing.T) {
	// A cached slash spelling still opens the dotted folder
	srv := transporttest.NewServer()
	srv.AddFolder("INBOX.Drafts", ".")

	sess, err := srv.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Logout()

	r := NewResolver(nil, quietLogger())
	r.Cache().Set(types.MailboxDrafts, "INBOX/Drafts")

	status, err := r.Open(context.Background(), sess, types.MailboxDrafts)
	require.NoError(t, err)
	assert.Equal(t, "INBOX.Drafts", status.Path)

	cached, _ := r.Cache().Get(types.MailboxDrafts)
	assert.Equal(t, "INBOX.Drafts", cached)
}

func TestResolver_StaleCacheEvicted(t *testing.T) {
	srv := transporttest.NewServer()
	srv.AddFolder("Trash", "/")

	sess, err := srv.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Logout()

	r := NewResolver(nil, quietLogger())
	r.Cache().Set(types.MailboxTrash, "Old Trash")

	status, err := r.Open(context.Background(), sess, types.MailboxTrash)
	require.NoError(t, err)
	assert.Equal(t, "Trash", status.Path)

	cached, _ := r.Cache().Get(types.MailboxTrash)
	assert.Equal(t, "Trash", cached)
}

func TestResolver_NotFoundNeverFallsBackToInbox(t *testing.T) {
	srv := transporttest.NewServer()
	srv.AddFolder("Archive", "/")

	sess, err := srv.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Logout()

	r := NewResolver(nil, quietLogger())
	_, err = r.Open(context.Background(), sess, types.MailboxSent)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	var fnf *apperrors.FolderNotFoundError
	require.True(t, errors.As(err, &fnf))
	assert.Equal(t, types.MailboxSent, fnf.Mailbox)
	assert.NotContains(t, fnf.Tried, "INBOX")
	assert.NotContains(t, srv.Selects(), "INBOX")

	_, ok := r.Cache().Get(types.MailboxSent)
	assert.False(t, ok)
}

func TestResolver_ListFailureUsesFallbacks(t *testing.T) {
	srv := transporttest.NewServer()
	srv.AddFolder("Junk", "/")
	srv.Fail(transporttest.OpList, errors.New("BAD LIST not supported"))

	sess, err := srv.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Logout()

	r := NewResolver(nil, quietLogger())
	status, err := r.Open(context.Background(), sess, types.MailboxSpam)
	require.NoError(t, err)
	assert.Equal(t, "Junk", status.Path)
}

func TestLocateAndAssign(t *testing.T) {
	srv := transporttest.NewServer()
	srv.AddFolder("INBOX.Spam", ".")
	srv.AddFolder("INBOX.Sent", ".")
	srv.AddFolder("INBOX.Trash", ".", transport.AttrTrash)

	sess, err := srv.Dial(context.Background())
	require.NoError(t, err)
	defer sess.Logout()

	r := NewResolver(nil, quietLogger())
	path, err := r.Locate(context.Background(), sess, types.MailboxSpam)
	require.NoError(t, err)
	assert.Equal(t, "INBOX.Spam", path)
	assert.Empty(t, srv.Selects(), "locate never selects")

	_, err = r.Locate(context.Background(), sess, types.MailboxDrafts)
	assert.True(t, apperrors.IsNotFound(err))

	folders, err := sess.List(context.Background())
	require.NoError(t, err)
	assigned := Assign(folders)
	assert.Equal(t, map[types.Mailbox]string{
		types.MailboxInbox: "INBOX",
		types.MailboxSent:  "INBOX.Sent",
		types.MailboxTrash: "INBOX.Trash",
		types.MailboxSpam:  "INBOX.Spam",
	}, assigned)
}
