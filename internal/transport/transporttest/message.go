package transporttest

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// MessageSpec describes a test message
type MessageSpec struct {
	MessageID string
	From      string
	ReplyTo   string
	To        []string
	Cc        []string
	Subject   string
	Date      time.Time
	Text      string
	HTML      string
	Seen      bool

	// Headers are added verbatim, e.g. "Auto-Submitted": "auto-generated"
	Headers map[string]string

	// Attachment adds a text/plain attachment with this filename
	Attachment        string
	AttachmentContent string
}

// Build renders spec as an RFC 5322 message
func Build(spec MessageSpec) []byte {
	var b bytes.Buffer
	line := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}

	date := spec.Date
	if date.IsZero() {
		date = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	id := spec.MessageID
	if id != "" && !strings.HasPrefix(id, "<") {
		id = "<" + id + ">"
	}

	line("Message-ID", id)
	line("Date", date.Format(time.RFC1123Z))
	line("From", spec.From)
	line("Reply-To", spec.ReplyTo)
	line("To", strings.Join(spec.To, ", "))
	line("Cc", strings.Join(spec.Cc, ", "))
	line("Subject", spec.Subject)
	for k, v := range spec.Headers {
		line(k, v)
	}
	b.WriteString("MIME-Version: 1.0\r\n")

	text := spec.Text
	if text == "" && spec.HTML == "" {
		text = "hello"
	}

	if spec.HTML == "" && spec.Attachment == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(text)
		b.WriteString("\r\n")
		return b.Bytes()
	}

	const boundary = "transporttest-boundary"
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	part := func(header, body string) {
		fmt.Fprintf(&b, "--%s\r\n%s\r\n\r\n%s\r\n", boundary, header, body)
	}
	if text != "" {
		part("Content-Type: text/plain; charset=utf-8", text)
	}
	if spec.HTML != "" {
		part("Content-Type: text/html; charset=utf-8", spec.HTML)
	}
	if spec.Attachment != "" {
		part(fmt.Sprintf("Content-Type: text/plain; name=%q\r\nContent-Disposition: attachment; filename=%q",
			spec.Attachment, spec.Attachment), spec.AttachmentContent)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}
