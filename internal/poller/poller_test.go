package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandon/mcp-mailbridge/internal/config"
	"github.com/brandon/mcp-mailbridge/internal/email"
	"github.com/brandon/mcp-mailbridge/internal/transport/transporttest"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeAccount hands out queued sync results and records every watermark
type fakeAccount struct {
	mu        sync.Mutex
	mark      types.UID
	markErr   error
	results   []*types.SyncResult
	syncErr   error
	sinces    []types.UID
	bootstrap int
}

func (f *fakeAccount) Name() string { return "acme" }

func (f *fakeAccount) Watermark(context.Context, types.Mailbox) (types.UID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bootstrap++
	return f.mark, f.markErr
}

func (f *fakeAccount) Sync(_ context.Context, mailbox types.Mailbox, since types.UID) (*types.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	if len(f.results) == 0 {
		return &types.SyncResult{Mailbox: mailbox}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func TestPollAdvancesWatermark(t *testing.T) {
	acc := &fakeAccount{
		mark: 10,
		results: []*types.SyncResult{
			{Messages: []types.MessageSummary{{UID: 12}, {UID: 11}}},
			{AutoMoved: []types.AutoMoved{{UID: 13}}},
			{},
		},
	}
	p := New(time.Minute, quietLogger())
	p.Register(acc)
	e := p.entries[0]
	ctx := context.Background()

	p.poll(ctx, e)
	assert.Equal(t, types.UID(10), e.watermark)
	assert.Empty(t, acc.sinces)

	p.poll(ctx, e)
	p.poll(ctx, e)
	p.poll(ctx, e)
	assert.Equal(t, []types.UID{10, 12, 13}, acc.sinces)
	assert.Equal(t, types.UID(13), e.watermark)

	statuses := p.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, StateIdle, statuses[0].State)
	assert.Equal(t, types.UID(13), statuses[0].Watermark)
}

func TestPollKeepsWatermarkOnError(t *testing.T) {
	acc := &fakeAccount{mark: 5}
	p := New(time.Minute, quietLogger())
	p.Register(acc)
	e := p.entries[0]
	ctx := context.Background()

	p.poll(ctx, e)
	acc.syncErr = errors.New("connection reset")
	p.poll(ctx, e)

	assert.Equal(t, types.UID(5), e.watermark)
	status := p.Statuses()[0]
	assert.Equal(t, StateError, status.State)
	assert.EqualError(t, status.Err, "connection reset")

	acc.syncErr = nil
	p.poll(ctx, e)
	assert.Equal(t, []types.UID{5, 5}, acc.sinces)
	assert.Equal(t, StateIdle, p.Statuses()[0].State)
}

func TestPollRetriesBootstrap(t *testing.T) {
	acc := &fakeAccount{markErr: errors.New("auth failed")}
	p := New(time.Minute, quietLogger())
	p.Register(acc)
	e := p.entries[0]
	ctx := context.Background()

	p.poll(ctx, e)
	assert.False(t, e.bootstrapped)

	acc.markErr = nil
	acc.mark = 3
	p.poll(ctx, e)
	assert.True(t, e.bootstrapped)
	assert.Equal(t, 2, acc.bootstrap)
	assert.Empty(t, acc.sinces)
}

func TestRunStopsOnCancel(t *testing.T) {
	acc := &fakeAccount{mark: 1}
	p := New(10*time.Millisecond, quietLogger())
	p.Register(acc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		acc.mu.Lock()
		defer acc.mu.Unlock()
		return len(acc.sinces) >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollSyncsRealAccount(t *testing.T) {
	server := transporttest.NewServer()
	server.Add("INBOX", transporttest.MessageSpec{MessageID: "old@x.test", From: "a@x.test"})

	acc := email.NewAccount(&config.AccountConfig{Name: "acme"}, server, nil, email.Deps{}, quietLogger())
	p := New(time.Minute, quietLogger())
	p.Register(acc)
	e := p.entries[0]
	ctx := context.Background()

	p.poll(ctx, e)
	assert.Equal(t, types.UID(1), e.watermark)

	server.Add("INBOX", transporttest.MessageSpec{MessageID: "new@x.test", From: "b@x.test"})
	p.poll(ctx, e)

	status := p.Statuses()[0]
	assert.Equal(t, types.UID(2), status.Watermark)
	assert.Equal(t, 1, status.LastCount)
	assert.Zero(t, server.OpenSessions())
}
