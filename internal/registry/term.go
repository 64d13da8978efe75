package registry

import (
	"net/url"
	"regexp"
	"strings"
)

// Term matches a keyword or phrase on word boundaries, case-insensitively
type Term struct {
	Text string
	re   *regexp.Regexp
}

// NewTerm compiles a boundary-aware matcher for text. Internal whitespace
// matches any run of spaces, hyphens or underscores.
func NewTerm(text string) *Term {
	words := strings.Fields(strings.ToLower(text))
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	pattern := `(?i)(?:^|[^\pL\pN])` + strings.Join(quoted, `[\s\-_]+`) + `(?:$|[^\pL\pN])`
	return &Term{Text: text, re: regexp.MustCompile(pattern)}
}

// In reports whether the term occurs in s
func (t *Term) In(s string) bool {
	if t == nil || t.Text == "" {
		return false
	}
	return t.re.MatchString(s)
}

// UnwrapRedirect returns the destination of a search-engine or affiliate
// redirect (/url?q=, ?url=, ?u=). Non-redirect URLs are returned unchanged.
func UnwrapRedirect(raw string) string {
	current := strings.TrimSpace(raw)
	for range 3 {
		u, err := url.Parse(current)
		if err != nil {
			return current
		}
		q := u.Query()
		next := ""
		for _, key := range []string{"q", "url", "u", "adurl"} {
			v := q.Get(key)
			if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
				next = v
				break
			}
		}
		if next == "" {
			return current
		}
		current = next
	}
	return current
}
