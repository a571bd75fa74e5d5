package email

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"
	"github.com/sirupsen/logrus"

	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// Message returns the full view of one message. Attachment bytes are not
// loaded; use Attachment for that.
func (a *Account) Message(ctx context.Context, mailbox types.Mailbox, uid types.UID) (*types.MessageDetail, error) {
	msg, env, err := a.readMessage(ctx, mailbox, uid)
	if err != nil {
		return nil, err
	}

	detail := &types.MessageDetail{
		MessageSummary: msg.Summary(),
		FromList:       mergeAddresses(msg.Envelope.From, parsedAddresses(env, "From")),
		ToList:         mergeAddresses(msg.Envelope.To, parsedAddresses(env, "To")),
		Cc:             mergeAddresses(msg.Envelope.Cc, parsedAddresses(env, "Cc")),
		Bcc:            mergeAddresses(msg.Envelope.Bcc, parsedAddresses(env, "Bcc")),
		ReplyTo:        mergeAddresses(msg.Envelope.ReplyTo, parsedAddresses(env, "Reply-To")),
		Text:           env.Text,
		Attachments:    []types.AttachmentRef{},
	}
	if len(detail.FromList) > 0 {
		detail.From = detail.FromList[0]
	}
	detail.To = detail.ToList
	if env.HTML != "" {
		detail.HTML = a.sanitizer.Sanitize(env.HTML)
	}

	for i, p := range attachmentParts(env) {
		detail.Attachments = append(detail.Attachments, attachmentRef(mailbox, uid, i, p))
	}
	detail.HasAttachments = detail.HasAttachments || len(detail.Attachments) > 0

	if a.tracker != nil && detail.MessageID != "" {
		tracked, err := a.tracker.Detail(ctx, a.Name(), detail.MessageID)
		if err != nil {
			a.logger.WithError(err).WithField("tenant", a.Name()).Warn("Failed to load tracking detail")
		} else if tracked != nil {
			summary := tracked.Summary
			detail.Tracking = &summary
			detail.TrackingLog = tracked
		}
	}

	return detail, nil
}

// Attachment returns one attachment of a message by the id listed in its detail
func (a *Account) Attachment(ctx context.Context, mailbox types.Mailbox, uid types.UID, id string) (*types.Attachment, error) {
	_, env, err := a.readMessage(ctx, mailbox, uid)
	if err != nil {
		return nil, err
	}

	for i, p := range attachmentParts(env) {
		ref := attachmentRef(mailbox, uid, i, p)
		if ref.ID == id {
			return &types.Attachment{AttachmentRef: ref, Content: p.Content}, nil
		}
	}
	return nil, fmt.Errorf("%s in message %s: %w", id, uid, apperrors.ErrAttachmentNotFound)
}

// readMessage fetches the raw message once and parses it
func (a *Account) readMessage(ctx context.Context, mailbox types.Mailbox, uid types.UID) (*transport.Message, *enmime.Envelope, error) {
	if uid == 0 {
		return nil, nil, fmt.Errorf("%w: uid is required", apperrors.ErrInvalidInput)
	}

	sess, err := a.session(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer a.logout(sess)

	if _, err := a.open(ctx, sess, mailbox); err != nil {
		return nil, nil, err
	}

	msgs, err := sess.FetchUIDs(ctx, []types.UID{uid}, transport.FetchOptions{Raw: true})
	if err != nil {
		return nil, nil, apperrors.Wrap(err, fmt.Sprintf("fetch %s message %s", mailbox, uid))
	}
	var msg *transport.Message
	for _, m := range msgs {
		if m.UID == uid {
			msg = m
			break
		}
	}
	if msg == nil || len(msg.Raw) == 0 {
		return nil, nil, fmt.Errorf("%s in %s: %w", uid, mailbox, apperrors.ErrMessageNotFound)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(msg.Raw))
	if err != nil {
		return nil, nil, apperrors.Wrap(err, fmt.Sprintf("parse message %s", uid))
	}
	if len(env.Errors) > 0 {
		a.logger.WithFields(logrus.Fields{
			"tenant": a.Name(),
			"uid":    uid,
			"errors": len(env.Errors),
		}).Debug("Message parsed with MIME errors")
	}
	return msg, env, nil
}

// attachmentParts lists attachments, then named inline parts, in a stable order
func attachmentParts(env *enmime.Envelope) []*enmime.Part {
	parts := append([]*enmime.Part(nil), env.Attachments...)
	for _, p := range env.Inlines {
		if p.FileName != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// attachmentRef indexes p by content checksum, or by position when empty
func attachmentRef(mailbox types.Mailbox, uid types.UID, index int, p *enmime.Part) types.AttachmentRef {
	id := fmt.Sprintf("%s-%s-%d", mailbox, uid, index)
	if len(p.Content) > 0 {
		sum := sha256.Sum256(p.Content)
		id = hex.EncodeToString(sum[:])
	}
	name := p.FileName
	if name == "" {
		name = fmt.Sprintf("attachment-%d", index+1)
	}
	return types.AttachmentRef{
		ID:          id,
		Filename:    name,
		ContentType: p.ContentType,
		Size:        len(p.Content),
	}
}

// parsedAddresses reads an address header from the parsed message
func parsedAddresses(env *enmime.Envelope, key string) []types.Address {
	list, err := env.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]types.Address, 0, len(list))
	for _, a := range list {
		out = append(out, types.Address{Name: a.Name, Email: a.Address})
	}
	return out
}

// mergeAddresses unions the envelope and parsed lists, de-duplicated by
// normalized address. Envelope order wins; a parsed display name fills an
// envelope entry that lacks one.
func mergeAddresses(envelope, parsed []types.Address) []types.Address {
	out := make([]types.Address, 0, len(envelope)+len(parsed))
	index := make(map[string]int)
	add := func(a types.Address) {
		key := types.NormalizeAddress(a.Email)
		if key == "" {
			return
		}
		if i, ok := index[key]; ok {
			if out[i].Name == "" {
				out[i].Name = strings.TrimSpace(a.Name)
			}
			return
		}
		index[key] = len(out)
		out = append(out, types.Address{Name: strings.TrimSpace(a.Name), Email: key})
	}
	for _, a := range envelope {
		add(a)
	}
	for _, a := range parsed {
		add(a)
	}
	return out
}
