// Package sanitize makes message HTML safe to render.
package sanitize

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Sanitizer turns untrusted HTML into safe HTML. Implementations are pure.
type Sanitizer interface {
	Sanitize(raw string) string
}

// Policy is the default message-body sanitizer: a UGC policy that keeps table
// layout and a vetted subset of inline CSS.
type Policy struct {
	policy *bluemonday.Policy
	// strict drops style attributes; used when styles could not be filtered
	strict *bluemonday.Policy
}

var anyStyle = regexp.MustCompile(`.*`)

// New builds the default policy
func New() *Policy {
	p := layoutPolicy()
	p.AllowAttrs("style").Matching(anyStyle).Globally()
	return &Policy{policy: p, strict: layoutPolicy()}
}

func layoutPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("center", "font")
	p.AllowAttrs("bgcolor", "width", "height", "align", "valign", "cellpadding", "cellspacing", "border").Globally()
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowDataURIImages()
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Sanitize filters inline styles, then applies the element policy. Input the
// tokenizer cannot read goes through the strict policy, which removes every
// style attribute.
func (p *Policy) Sanitize(raw string) string {
	filtered, err := filterStyles(raw)
	if err != nil {
		return p.strict.Sanitize(raw)
	}
	return p.policy.Sanitize(filtered)
}

// filterStyles rewrites every style attribute down to allowed CSS properties
func filterStyles(input string) (string, error) {
	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(input))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return out.String(), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			attrs := tok.Attr[:0]
			for _, a := range tok.Attr {
				if strings.EqualFold(a.Key, "style") {
					a.Val = Style(a.Val)
					if a.Val == "" {
						continue
					}
				}
				attrs = append(attrs, a)
			}
			tok.Attr = attrs
			out.WriteString(tok.String())
		default:
			out.Write(z.Raw())
		}
	}
}
