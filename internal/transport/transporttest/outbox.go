package transporttest

import (
	"context"
	"sync"
)

// Submission is one accepted SMTP transaction
type Submission struct {
	From string
	To   []string
	Raw  []byte
}

// Outbox is an in-memory SMTP relay implementing transport.Sender
type Outbox struct {
	mu     sync.Mutex
	calls  int
	failAt map[int]error
	sent   []Submission
}

// NewOutbox returns an empty outbox
func NewOutbox() *Outbox {
	return &Outbox{failAt: make(map[int]error)}
}

// FailCall makes the n-th Send call (1-based) return err
func (o *Outbox) FailCall(n int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failAt[n] = err
}

// Send implements transport.Sender
func (o *Outbox) Send(ctx context.Context, from string, to []string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if err := o.failAt[o.calls]; err != nil {
		return err
	}
	o.sent = append(o.sent, Submission{
		From: from,
		To:   append([]string(nil), to...),
		Raw:  append([]byte(nil), raw...),
	})
	return nil
}

// Calls returns how many Send calls were made, failed ones included
func (o *Outbox) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

// Sent returns the accepted submissions
func (o *Outbox) Sent() []Submission {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Submission(nil), o.sent...)
}
