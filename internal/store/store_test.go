package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brandon/mcp-mailbridge/internal/config"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// StoreTestSuite runs the store against an in-memory database
type StoreTestSuite struct {
	suite.Suite
	db    *DB
	store *Store
	ctx   context.Context
}

// SetupTest opens a fresh database for every test
func (s *StoreTestSuite) SetupTest() {
	db, err := Open(MemoryPath, quietLogger())
	require.NoError(s.T(), err)
	s.db = db
	s.store = NewStore(db.SQL(), quietLogger())
	s.ctx = context.Background()
}

// TearDownTest closes the database
func (s *StoreTestSuite) TearDownTest() {
	s.db.Close()
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

// ==================== Tenants ====================

func (s *StoreTestSuite) TestUpsertTenant_Idempotent() {
	acc := &config.AccountConfig{
		Name: "acme",
		IMAP: &config.ServerConfig{Host: "imap.acme.test", Username: "ops@acme.test", Password: "pw"},
	}

	id1, err := s.store.UpsertTenant(s.ctx, acc)
	require.NoError(s.T(), err)

	acc.SMTP = &config.ServerConfig{Host: "smtp.acme.test", Username: "ops@acme.test", Password: "pw"}
	id2, err := s.store.UpsertTenant(s.ctx, acc)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), id1, id2)

	var smtpHost string
	require.NoError(s.T(), s.db.SQL().QueryRow("SELECT smtp_host FROM tenants WHERE name = 'acme'").Scan(&smtpHost))
	assert.Equal(s.T(), "smtp.acme.test", smtpHost)
}

// ==================== Auto-reply log ====================

func (s *StoreTestSuite) TestAutoReplyLog_FindRecent() {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	entries := []*types.AutoReplyLogEntry{
		{Tenant: "acme", SenderEmail: "Bob@Example.com", ReplyType: types.ReplyStandard, SentAt: now.Add(-30 * time.Hour), OriginalUID: 1},
		{Tenant: "acme", SenderEmail: "bob@example.com", ReplyType: types.ReplyVacation, SentAt: now.Add(-2 * time.Hour), OriginalUID: 2, OriginalMessageID: "m2@example.com"},
		{Tenant: "acme", SenderEmail: "carol@example.com", ReplyType: types.ReplyStandard, SentAt: now.Add(-1 * time.Hour), OriginalUID: 3},
		{Tenant: "globex", SenderEmail: "bob@example.com", ReplyType: types.ReplyStandard, SentAt: now.Add(-1 * time.Hour), OriginalUID: 4},
	}
	for _, e := range entries {
		require.NoError(s.T(), s.store.CreateAutoReplyLog(s.ctx, e))
		assert.NotZero(s.T(), e.ID)
	}

	got, err := s.store.FindRecentAutoReplies(s.ctx, "acme", []string{"BOB@example.com"}, now.Add(-24*time.Hour))
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "bob@example.com", got[0].SenderEmail)
	assert.Equal(s.T(), types.ReplyVacation, got[0].ReplyType)
	assert.Equal(s.T(), types.UID(2), got[0].OriginalUID)
	assert.Equal(s.T(), "m2@example.com", got[0].OriginalMessageID)
	assert.True(s.T(), got[0].SentAt.Equal(now.Add(-2*time.Hour)))

	got, err = s.store.FindRecentAutoReplies(s.ctx, "acme", []string{"bob@example.com", "carol@example.com"}, now.Add(-48*time.Hour))
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 3)
	assert.Equal(s.T(), "carol@example.com", got[0].SenderEmail, "newest first")

	got, err = s.store.FindRecentAutoReplies(s.ctx, "acme", nil, now)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), got)
}

// ==================== Spam log ====================

func (s *StoreTestSuite) TestRecordSpam_DeduplicatesByMessageID() {
	rec := SpamRecord{Tenant: "acme", MessageID: "spam1@example.com", UID: 7, Score: 9.5, MovedTo: "Junk", At: time.Now()}

	inserted, err := s.store.RecordSpam(s.ctx, rec)
	require.NoError(s.T(), err)
	assert.True(s.T(), inserted)

	inserted, err = s.store.RecordSpam(s.ctx, rec)
	require.NoError(s.T(), err)
	assert.False(s.T(), inserted)

	logged, err := s.store.SpamLogged(s.ctx, "acme", "spam1@example.com")
	require.NoError(s.T(), err)
	assert.True(s.T(), logged)

	logged, err = s.store.SpamLogged(s.ctx, "globex", "spam1@example.com")
	require.NoError(s.T(), err)
	assert.False(s.T(), logged)
}

// ==================== Tracking ====================

func (s *StoreTestSuite) TestTracking_SummaryAndDetail() {
	sentAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(s.T(), s.store.SaveTrackedMessage(s.ctx, &TrackedMessage{
		Tenant:    "acme",
		MessageID: "out1@acme.test",
		Subject:   "Quote",
		SentAt:    sentAt,
		Recipients: []TrackedRecipient{
			{Address: "a@example.com", Token: "tok-a"},
			{Address: "b@example.com", Token: "tok-b"},
		},
		Links: []string{"https://acme.test", "https://acme.test"},
	}))

	open1 := sentAt.Add(time.Hour)
	open2 := sentAt.Add(2 * time.Hour)
	require.NoError(s.T(), s.store.RecordEvent(s.ctx, TrackingEvent{Token: "tok-a", Kind: EventOpen, At: open1}))
	require.NoError(s.T(), s.store.RecordEvent(s.ctx, TrackingEvent{Token: "tok-a", Kind: EventOpen, At: open2}))
	require.NoError(s.T(), s.store.RecordEvent(s.ctx, TrackingEvent{Token: "tok-b", Kind: EventClick, URL: "https://acme.test", At: open2}))

	err := s.store.RecordEvent(s.ctx, TrackingEvent{Token: "nope", Kind: EventOpen, At: open1})
	assert.True(s.T(), apperrors.IsNotFound(err))

	err = s.store.RecordEvent(s.ctx, TrackingEvent{Token: "tok-b", Kind: EventClick, URL: "https://evil.example/phish", At: open2})
	assert.True(s.T(), apperrors.IsNotFound(err))

	summaries, err := s.store.TrackingSummaries(s.ctx, "acme", []string{"out1@acme.test", "untracked@acme.test"})
	require.NoError(s.T(), err)
	require.Len(s.T(), summaries, 1)
	assert.Equal(s.T(), types.TrackingSummary{TrackingEnabled: true, TotalOpens: 2, TotalClicks: 1}, summaries["out1@acme.test"])

	detail, err := s.store.TrackingDetail(s.ctx, "acme", "out1@acme.test")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Quote", detail.Subject)
	assert.True(s.T(), detail.SentAt.Equal(sentAt))
	assert.Equal(s.T(), 2, detail.Summary.TotalOpens)
	require.Len(s.T(), detail.Recipients, 2)
	assert.Equal(s.T(), "a@example.com", detail.Recipients[0].Address)
	require.NotNil(s.T(), detail.Recipients[0].FirstOpenAt)
	assert.True(s.T(), detail.Recipients[0].FirstOpenAt.Equal(open1))
	assert.True(s.T(), detail.Recipients[0].LastOpenAt.Equal(open2))
	assert.Nil(s.T(), detail.Recipients[1].FirstOpenAt)
	assert.Equal(s.T(), 1, detail.Recipients[1].Clicks)

	_, err = s.store.TrackingDetail(s.ctx, "globex", "out1@acme.test")
	assert.True(s.T(), apperrors.IsNotFound(err))
}

// ==================== Error paths ====================

func TestStore_DatabaseErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewStore(db, quietLogger())
	boom := errors.New("disk I/O error")

	mock.ExpectExec("INSERT INTO autoreply_log").WillReturnError(boom)
	err = s.CreateAutoReplyLog(context.Background(), &types.AutoReplyLogEntry{
		Tenant: "acme", SenderEmail: "bob@example.com", ReplyType: types.ReplyStandard, SentAt: time.Now(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to insert auto-reply log")

	mock.ExpectQuery("(?s)SELECT (.+) FROM autoreply_log").WillReturnError(boom)
	_, err = s.FindRecentAutoReplies(context.Background(), "acme", []string{"bob@example.com"}, time.Now())
	assert.ErrorIs(t, err, boom)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO tracked_messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tracked_recipients").WillReturnError(boom)
	mock.ExpectRollback()
	err = s.SaveTrackedMessage(context.Background(), &TrackedMessage{
		Tenant: "acme", MessageID: "x", SentAt: time.Now(),
		Recipients: []TrackedRecipient{{Address: "a@example.com", Token: "t"}},
	})
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDB_Ping(t *testing.T) {
	db, err := Open(MemoryPath, quietLogger())
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping(context.Background()))
}
