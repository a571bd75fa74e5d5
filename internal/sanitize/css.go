package sanitize

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// allowedProperties are the CSS properties kept in inline styles
var allowedProperties = map[string]bool{
	"background-color": true,
	"border":           true,
	"border-bottom":    true,
	"border-collapse":  true,
	"border-left":      true,
	"border-radius":    true,
	"border-right":     true,
	"border-top":       true,
	"color":            true,
	"display":          true,
	"font-family":      true,
	"font-size":        true,
	"font-style":       true,
	"font-weight":      true,
	"height":           true,
	"letter-spacing":   true,
	"line-height":      true,
	"margin":           true,
	"margin-bottom":    true,
	"margin-left":      true,
	"margin-right":     true,
	"margin-top":       true,
	"max-width":        true,
	"padding":          true,
	"padding-bottom":   true,
	"padding-left":     true,
	"padding-right":    true,
	"padding-top":      true,
	"text-align":       true,
	"text-decoration":  true,
	"vertical-align":   true,
	"width":            true,
}

// Style keeps only declarations of allowed properties whose values carry no
// url() or expression(); it returns "" when nothing survives or input is malformed.
func Style(input string) string {
	var kept []string
	var decl strings.Builder
	keep := false
	atStart := true

	flush := func() {
		if keep {
			if s := strings.TrimSpace(decl.String()); s != "" {
				kept = append(kept, s)
			}
		}
		decl.Reset()
		keep = false
		atStart = true
	}

	scan := scanner.New(input)
	for {
		t := scan.Next()
		switch t.Type {
		case scanner.TokenEOF:
			flush()
			return strings.Join(kept, "; ")
		case scanner.TokenError:
			return ""
		}

		if t.Type == scanner.TokenChar && t.Value == ";" {
			flush()
			continue
		}

		if atStart {
			if t.Type == scanner.TokenS {
				continue
			}
			atStart = false
			keep = t.Type == scanner.TokenIdent && allowedProperties[strings.ToLower(t.Value)]
		}

		if t.Type == scanner.TokenURI || (t.Type == scanner.TokenFunction && isUnsafeFunction(t.Value)) {
			keep = false
		}
		if keep {
			decl.WriteString(t.Value)
		}
	}
}

func isUnsafeFunction(v string) bool {
	v = strings.ToLower(v)
	return strings.HasPrefix(v, "url(") || strings.HasPrefix(v, "expression(") || strings.HasPrefix(v, "image(")
}
