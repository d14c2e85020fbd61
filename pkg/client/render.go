package client

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/teilomillet/studyhall/formatter"
)

var stripTags = bluemonday.StrictPolicy()

// Render returns markup for msg. Server markup is passed through the
// formatter's allow-list; plain text is formatted with the rich profile.
func Render(msg Message) string {
	if msg.Format == FormatFormatted {
		return formatter.Sanitize(msg.Content)
	}
	return formatter.Render(msg.Content, formatter.Rich)
}

// Text returns msg as terminal text. Markup is reduced to its text with
// block boundaries kept as line breaks.
func Text(msg Message) string {
	if msg.Format != FormatFormatted {
		return msg.Content
	}
	s := msg.Content
	for _, tag := range []string{"</p>", "</h2>", "</h3>", "</li>", "</ul>", "</ol>", "</div>"} {
		s = strings.ReplaceAll(s, tag, tag+"\n")
	}
	s = stripTags.Sanitize(s)
	return strings.TrimSpace(html.UnescapeString(s))
}
