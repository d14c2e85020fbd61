package formatter

import (
	"html"
	"regexp"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// markupPolicy allows exactly the elements and classes Convert emits.
func markupPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("p", "h2", "h3", "ul", "li", "strong", "em", "div")
		p.AllowAttrs("class").
			Matching(regexp.MustCompile(`^(intro|category-list|question-list|topic-list|example|note)$`)).
			OnElements("p", "ul", "div")
		policy = p
	})
	return policy
}

// Render converts untrusted model text into markup that is safe to inject
// into a page. The text is HTML-escaped first so only markup produced by
// the formatter survives, and the result is passed through an allow-list.
func Render(text string, p Profile) string {
	return Sanitize(Convert(html.EscapeString(text), p))
}

// Sanitize strips everything from markup except the formatter's own tags
// and classes.
func Sanitize(markup string) string {
	return markupPolicy().Sanitize(markup)
}
