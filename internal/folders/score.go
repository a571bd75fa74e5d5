package folders

import (
	"sort"
	"strings"

	"github.com/brandon/mcp-mailbridge/internal/transport"
	"github.com/brandon/mcp-mailbridge/pkg/types"
)

// InboxPath is the protocol-standard inbox
const InboxPath = "INBOX"

// Candidate weights, lower is more confident
const (
	WeightCached     = 0
	WeightSpecialUse = 1
	WeightAlias      = 10
	WeightFallback   = 100
)

// Candidate is a folder path that may hold a logical mailbox
type Candidate struct {
	Path      string
	Delimiter string
	Weight    int
}

type phrase struct {
	tokens []string
	weight int
}

func p(weight int, tokens ...string) phrase {
	return phrase{tokens: tokens, weight: weight}
}

// Provider-specific phrases score below locale phrases, which score below the
// bare generic word.
var phrases = map[types.Mailbox][]phrase{
	types.MailboxSent: {
		p(0, "gmail", "sent", "mail"),
		p(0, "googlemail", "sent", "mail"),
		p(1, "sent", "items"),
		p(1, "sent", "messages"),
		p(1, "sent", "mail"),
		p(2, "gesendete", "elemente"),
		p(2, "elements", "envoyes"),
		p(2, "elementos", "enviados"),
		p(2, "posta", "inviata"),
		p(2, "verzonden", "items"),
		p(2, "sendte", "elementer"),
		p(2, "elementy", "wyslane"),
		p(5, "sent"),
		p(5, "envoyes"),
		p(5, "gesendet"),
		p(5, "enviados"),
		p(5, "inviata"),
		p(5, "inviati"),
		p(5, "verzonden"),
		p(5, "skickat"),
		p(5, "wyslane"),
		p(5, "sendt"),
		p(5, "sendte"),
	},
	types.MailboxDrafts: {
		p(0, "gmail", "drafts"),
		p(0, "googlemail", "drafts"),
		p(5, "drafts"),
		p(5, "draft"),
		p(5, "brouillons"),
		p(5, "entwurfe"),
		p(5, "borradores"),
		p(5, "bozze"),
		p(5, "concepten"),
		p(5, "utkast"),
	},
	types.MailboxTrash: {
		p(0, "gmail", "trash"),
		p(0, "gmail", "bin"),
		p(0, "googlemail", "trash"),
		p(1, "deleted", "items"),
		p(1, "deleted", "messages"),
		p(2, "elements", "supprimes"),
		p(2, "geloschte", "elemente"),
		p(2, "elementos", "eliminados"),
		p(5, "trash"),
		p(5, "deleted"),
		p(5, "corbeille"),
		p(5, "papierkorb"),
		p(5, "papelera"),
		p(5, "cestino"),
		p(5, "prullenbak"),
		p(6, "bin"),
	},
	types.MailboxSpam: {
		p(0, "gmail", "spam"),
		p(0, "googlemail", "spam"),
		p(1, "junk", "e", "mail"),
		p(1, "junk", "email"),
		p(1, "junk", "mail"),
		p(1, "bulk", "mail"),
		p(2, "courrier", "indesirable"),
		p(2, "correo", "no", "deseado"),
		p(5, "junk"),
		p(5, "spam"),
		p(5, "indesirables"),
		p(5, "spamverdacht"),
		p(5, "posta", "indesiderata"),
	},
}

// specialUse maps a mailbox to the RFC 6154 attributes that identify it
var specialUse = map[types.Mailbox][]string{
	types.MailboxSent:   {transport.AttrSent},
	types.MailboxDrafts: {transport.AttrDrafts},
	types.MailboxTrash:  {transport.AttrTrash},
	types.MailboxSpam:   {transport.AttrJunk, `\Spam`},
}

// fallbacks are tried when nothing in the listing matched
var fallbacks = map[types.Mailbox][]string{
	types.MailboxSent:   {"Sent", "Sent Items", "Sent Messages", "INBOX.Sent", "[Gmail]/Sent Mail"},
	types.MailboxDrafts: {"Drafts", "INBOX.Drafts", "[Gmail]/Drafts"},
	types.MailboxTrash:  {"Trash", "Deleted Items", "Deleted Messages", "INBOX.Trash", "[Gmail]/Trash"},
	types.MailboxSpam:   {"Junk", "Spam", "Junk E-mail", "INBOX.Junk", "INBOX.spam", "[Gmail]/Spam"},
}

// Score rates how well a folder path names mailbox. Only the leaf name and a
// bracketed provider prefix are matched, so folders nested under a matching
// parent ("Sent/Receipts") do not score. It is a pure function of its inputs;
// ok is false when no phrase matches.
func Score(mailbox types.Mailbox, path, delimiter string) (weight int, ok bool) {
	if strings.EqualFold(path, InboxPath) {
		return 0, false
	}

	leafTokens := Tokens(leaf(path, delimiter))
	tokens := append(Tokens(providerPrefix(path, delimiter)), leafTokens...)
	have := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		have[t] = true
	}

	best := -1
	var matched []string
	for _, ph := range phrases[mailbox] {
		if !containsAll(have, ph.tokens) {
			continue
		}
		if best < 0 || ph.weight < best {
			best = ph.weight
			matched = ph.tokens
		}
	}
	if best < 0 {
		return 0, false
	}

	// Unmatched leaf tokens make the match less specific ("Sent 2019")
	covered := make(map[string]bool, len(matched))
	for _, t := range matched {
		covered[t] = true
	}
	penalty := 0
	for _, t := range leafTokens {
		if !covered[t] {
			penalty++
		}
	}

	return WeightAlias + best + penalty, true
}

func containsAll(have map[string]bool, want []string) bool {
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}

// Rank builds the ordered candidate list for mailbox from a folder listing.
// cached, when non-empty, is tried first.
func Rank(mailbox types.Mailbox, folders []transport.Folder, cached string) []Candidate {
	if mailbox == types.MailboxInbox {
		return []Candidate{{Path: InboxPath, Weight: WeightCached}}
	}

	byPath := make(map[string]Candidate)
	add := func(c Candidate) {
		if strings.EqualFold(c.Path, InboxPath) {
			return
		}
		if prev, ok := byPath[c.Path]; ok && prev.Weight <= c.Weight {
			return
		}
		byPath[c.Path] = c
	}

	delimiter := "/"
	if cached != "" {
		add(Candidate{Path: cached, Weight: WeightCached})
	}

	for _, f := range folders {
		if f.HasAttribute(transport.AttrNoSelect) {
			continue
		}
		if f.Delimiter != "" {
			delimiter = f.Delimiter
		}
		for _, attr := range specialUse[mailbox] {
			if f.HasAttribute(attr) {
				add(Candidate{Path: f.Path, Delimiter: f.Delimiter, Weight: WeightSpecialUse})
			}
		}
		if w, ok := Score(mailbox, f.Path, f.Delimiter); ok {
			add(Candidate{Path: f.Path, Delimiter: f.Delimiter, Weight: w})
		}
	}

	for i, path := range fallbacks[mailbox] {
		add(Candidate{Path: path, Delimiter: delimiter, Weight: WeightFallback + i})
	}

	out := make([]Candidate, 0, len(byPath))
	for _, c := range byPath {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight < out[j].Weight
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// variants returns the path plus its alternate hierarchy spellings
func variants(path string) []string {
	out := []string{path}
	if strings.Contains(path, "/") {
		out = append(out, strings.ReplaceAll(path, "/", "."))
	}
	if strings.Contains(path, ".") {
		out = append(out, strings.ReplaceAll(path, ".", "/"))
	}
	return out
}
