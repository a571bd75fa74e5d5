package outbound

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/jaytaylor/html2text"
)

// Attachment is a file sent with a message
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// envelope holds everything needed to render one copy of a message
type envelope struct {
	From       *mail.Address
	To         []*mail.Address
	Cc         []*mail.Address
	Bcc        []*mail.Address
	ReplyTo    []*mail.Address
	Subject    string
	Date       time.Time
	MessageID  string
	InReplyTo  string
	References []string
	Headers    map[string]string

	Text        string
	HTML        string
	Attachments []Attachment
}

// newMessageID returns a bare Message-ID on the sender's domain
func newMessageID(sender string) string {
	domain := "localhost"
	if i := strings.LastIndex(sender, "@"); i >= 0 && i < len(sender)-1 {
		domain = strings.ToLower(sender[i+1:])
	}
	return fmt.Sprintf("%s@%s", uuid.New().String(), domain)
}

// plainText derives the text alternative from HTML
func plainText(htmlBody string) string {
	text, err := html2text.FromString(htmlBody, html2text.Options{OmitLinks: false})
	if err != nil {
		return ""
	}
	return text
}

// compose renders env as an RFC 5322 message. includeBcc controls whether the
// Bcc header is kept, which only the stored Sent copy does.
func compose(env *envelope, includeBcc bool) ([]byte, error) {
	var h mail.Header
	h.Set("MIME-Version", "1.0")
	h.SetDate(env.Date)
	h.SetAddressList("From", []*mail.Address{env.From})
	if len(env.To) > 0 {
		h.SetAddressList("To", env.To)
	}
	if len(env.Cc) > 0 {
		h.SetAddressList("Cc", env.Cc)
	}
	if includeBcc && len(env.Bcc) > 0 {
		h.SetAddressList("Bcc", env.Bcc)
	}
	if len(env.ReplyTo) > 0 {
		h.SetAddressList("Reply-To", env.ReplyTo)
	}
	h.SetSubject(env.Subject)
	h.SetMessageID(env.MessageID)
	if env.InReplyTo != "" {
		h.SetMsgIDList("In-Reply-To", []string{env.InReplyTo})
	}
	if len(env.References) > 0 {
		h.SetMsgIDList("References", env.References)
	}
	for k, v := range env.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	if len(env.Attachments) == 0 {
		w, err := mail.CreateInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("failed to create message writer: %w", err)
		}
		if err := writeAlternatives(w, env.Text, env.HTML); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish message: %w", err)
		}
		return buf.Bytes(), nil
	}

	w, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	iw, err := w.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create body: %w", err)
	}
	if err := writeAlternatives(iw, env.Text, env.HTML); err != nil {
		return nil, err
	}
	if err := iw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish body: %w", err)
	}

	for _, a := range env.Attachments {
		var ah mail.AttachmentHeader
		ct := a.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		ah.Set("Content-Type", ct)
		ah.Set("Content-Transfer-Encoding", "base64")
		ah.SetFilename(a.Filename)
		aw, err := w.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %s: %w", a.Filename, err)
		}
		if _, err := aw.Write(a.Content); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", a.Filename, err)
		}
		if err := aw.Close(); err != nil {
			return nil, fmt.Errorf("failed to finish attachment %s: %w", a.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeAlternatives(w *mail.InlineWriter, text, htmlBody string) error {
	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", text},
		{"text/html", htmlBody},
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		pw, err := w.CreatePart(ph)
		if err != nil {
			return fmt.Errorf("failed to create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(pw, p.body); err != nil {
			return fmt.Errorf("failed to write %s part: %w", p.contentType, err)
		}
		if err := pw.Close(); err != nil {
			return fmt.Errorf("failed to finish %s part: %w", p.contentType, err)
		}
	}
	return nil
}
