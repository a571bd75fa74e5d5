package outbound

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"
)

var layout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Subject}}</title>
</head>
<body style="margin:0;padding:0;background-color:#f4f4f5;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0" border="0">
<tr><td align="center" style="padding:24px 12px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" border="0" style="max-width:600px;background-color:#ffffff;border-radius:8px;">
{{- if or .Logo .Name}}
<tr><td style="padding:24px 32px 0 32px;font-family:Arial,sans-serif;">
{{- if .Logo}}<img src="{{.Logo}}" alt="{{.Name}}" height="40" style="display:block;height:40px;">{{else}}<strong style="font-size:18px;color:#18181b;">{{.Name}}</strong>{{end -}}
</td></tr>
{{- end}}
<tr><td style="padding:24px 32px;font-family:Arial,sans-serif;font-size:15px;line-height:1.5;color:#18181b;">{{.Body}}</td></tr>
{{- if .Name}}
<tr><td style="padding:0 32px 24px 32px;font-family:Arial,sans-serif;font-size:12px;color:#71717a;">Sent by {{.Name}}</td></tr>
{{- end}}
</table>
</td></tr>
</table>
</body>
</html>
`))

// Identity is the sender shown in the message and its outer layout
type Identity struct {
	Address string
	Name    string
	Logo    string
}

// Wrap places an HTML fragment inside the sender-branded layout
func Wrap(fragment, subject string, id Identity) (string, error) {
	var buf bytes.Buffer
	err := layout.Execute(&buf, struct {
		Subject string
		Name    string
		Logo    string
		Body    template.HTML
	}{
		Subject: subject,
		Name:    id.Name,
		Logo:    id.Logo,
		Body:    template.HTML(fragment),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render layout: %w", err)
	}
	return buf.String(), nil
}

// textToHTML renders plain text as an HTML fragment
func textToHTML(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = html.EscapeString(l)
	}
	return strings.Join(lines, "<br>\n")
}
