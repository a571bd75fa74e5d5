package tracking

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Inject rewrites http(s) links through the click endpoint and adds an open
// pixel before </body>, or at the end when the fragment has no body. It also
// returns the distinct link targets it rewrote.
func Inject(body, baseURL, token string) (string, []string, error) {
	base := strings.TrimRight(baseURL, "/")
	pixel := fmt.Sprintf(`<img src="%s/t/o/%s" width="1" height="1" alt="" style="display:none">`, base, url.PathEscape(token))

	var out bytes.Buffer
	z := html.NewTokenizer(strings.NewReader(body))
	placed := false
	var links []string
	seen := make(map[string]bool)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", nil, err
			}
			if !placed {
				out.WriteString(pixel)
			}
			return out.String(), links, nil
		case html.StartTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.A {
				out.WriteString(tok.String())
				continue
			}
			for i, a := range tok.Attr {
				if a.Key == "href" && trackable(a.Val) {
					if !seen[a.Val] {
						seen[a.Val] = true
						links = append(links, a.Val)
					}
					tok.Attr[i].Val = fmt.Sprintf("%s/t/c/%s?u=%s", base, url.PathEscape(token), url.QueryEscape(a.Val))
				}
			}
			out.WriteString(tok.String())
		case html.EndTagToken:
			name, _ := z.TagName()
			if !placed && atom.Lookup(name) == atom.Body {
				out.WriteString(pixel)
				placed = true
			}
			out.Write(z.Raw())
		default:
			out.Write(z.Raw())
		}
	}
}

func trackable(href string) bool {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
