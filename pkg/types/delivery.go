package types

import (
	"encoding/json"
	"time"
)

// ReplyType distinguishes standard auto-replies from vacation responses
type ReplyType string

const (
	ReplyStandard ReplyType = "standard"
	ReplyVacation ReplyType = "vacation"
)

// AutoReplyLogEntry records one auto-reply sent to a sender
type AutoReplyLogEntry struct {
	ID                int64     `json:"id"`
	Tenant            string    `json:"tenant"`
	SenderEmail       string    `json:"sender_email"`
	ReplyType         ReplyType `json:"reply_type"`
	SentAt            time.Time `json:"sent_at"`
	OriginalMessageID string    `json:"original_message_id"`
	OriginalUID       UID       `json:"original_uid"`
}

// SentCopy is the reconciled copy of a sent message inside the Sent folder
type SentCopy struct {
	Message       MessageSummary `json:"message"`
	TotalMessages int            `json:"total_messages"`
}

// SendResult is the outcome of an outbound delivery. Delivery to every recipient
// succeeded whenever a SendResult is returned; Sent is nil when the copy could not
// be confirmed in the Sent folder, and DegradedReason says why.
type SendResult struct {
	MessageID      string    `json:"message_id"`
	Recipients     []string  `json:"recipients"`
	Sent           *SentCopy `json:"-"`
	DegradedReason string    `json:"-"`
}

// Degraded reports whether Sent-folder reconciliation could not be confirmed
func (r *SendResult) Degraded() bool {
	return r.Sent == nil
}

// MarshalJSON renders the receipt with null message/totalMessages when degraded
func (r *SendResult) MarshalJSON() ([]byte, error) {
	out := struct {
		MessageID      string          `json:"message_id"`
		Recipients     []string        `json:"recipients"`
		Message        *MessageSummary `json:"message"`
		TotalMessages  *int            `json:"total_messages"`
		DegradedReason string          `json:"degraded_reason,omitempty"`
	}{
		MessageID:      r.MessageID,
		Recipients:     r.Recipients,
		DegradedReason: r.DegradedReason,
	}
	if r.Sent != nil {
		msg := r.Sent.Message
		total := r.Sent.TotalMessages
		out.Message = &msg
		out.TotalMessages = &total
	}
	return json.Marshal(out)
}
