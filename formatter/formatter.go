// Package formatter converts the markdown-like text produced by the tutor
// model into HTML fragments.
//
// The input convention is line based:
//
//	**bold**, *italic*        inline spans
//	# Heading / ## Heading    section headings
//	* item                    bullet list (consecutive lines share one list)
//	Example: ... / Note: ...  callout blocks
//	anything else             paragraph; the first one is the intro
//
// Conversion is a single pass with one piece of carried state (the list
// being built). It is deterministic but not idempotent: feeding markup back
// in produces different output, so it must run once on raw model text.
package formatter

import (
	"regexp"
	"strings"
)

// Profile selects which parts of the convention are recognized.
type Profile struct {
	Name string

	// Italics enables *text* spans.
	Italics bool
	// Headings enables "# " and "## " lines.
	Headings bool
	// ListTypes tags each list with a class derived from its first item.
	ListTypes bool
	// Callouts enables "Example:" and "Note:" blocks.
	Callouts bool
}

var (
	// Basic handles bold text, untyped lists and paragraphs.
	Basic = Profile{Name: "basic"}

	// Rich handles the full convention.
	Rich = Profile{
		Name:      "rich",
		Italics:   true,
		Headings:  true,
		ListTypes: true,
		Callouts:  true,
	}
)

// BlockKind identifies a structural unit of output.
type BlockKind int

const (
	KindIntro BlockKind = iota
	KindParagraph
	KindHeading2
	KindHeading3
	KindList
	KindExample
	KindNote
)

// ListType is the class attached to a list in the rich profile.
type ListType string

const (
	ListUntyped  ListType = ""
	ListCategory ListType = "category-list"
	ListQuestion ListType = "question-list"
	ListTopic    ListType = "topic-list"
)

// Block is one formatted fragment. Text holds inline markup for every kind
// except KindList, whose content is in Items.
type Block struct {
	Kind     BlockKind
	Text     string
	Items    []string
	ListType ListType
}

const (
	examplePrefix = "Example:"
	notePrefix    = "Note:"
)

var (
	boldPattern = regexp.MustCompile(`\*\*(.*?)\*\*`)
	// Runs before the structural checks, so a bullet line carrying inline
	// italics pairs its marker star and becomes a paragraph.
	italicPattern = regexp.MustCompile(`\*(.*?)\*`)
)

// Parse splits text into blocks according to p.
func Parse(text string, p Profile) []Block {
	var (
		blocks []Block
		list   *Block
		intro  = true
	)

	closeList := func() {
		if list != nil {
			blocks = append(blocks, *list)
			list = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		line = boldPattern.ReplaceAllString(line, "<strong>$1</strong>")
		if p.Italics {
			line = italicPattern.ReplaceAllString(line, "<em>$1</em>")
		}
		trimmed := strings.TrimSpace(line)

		switch {
		case p.Headings && strings.HasPrefix(line, "# "):
			closeList()
			blocks = append(blocks, Block{Kind: KindHeading2, Text: strings.TrimSpace(line[2:])})

		case p.Headings && strings.HasPrefix(line, "## "):
			closeList()
			blocks = append(blocks, Block{Kind: KindHeading3, Text: strings.TrimSpace(line[3:])})

		case strings.HasPrefix(trimmed, "* "):
			if list == nil {
				list = &Block{Kind: KindList, ListType: classify(trimmed, p)}
			}
			list.Items = append(list.Items, strings.TrimSpace(trimmed[2:]))

		case trimmed == "":
			// Blank lines emit nothing and leave an open list open.

		case p.Callouts && strings.HasPrefix(line, examplePrefix):
			closeList()
			blocks = append(blocks, Block{Kind: KindExample, Text: strings.TrimSpace(line[len(examplePrefix):])})

		case p.Callouts && strings.HasPrefix(line, notePrefix):
			closeList()
			blocks = append(blocks, Block{Kind: KindNote, Text: strings.TrimSpace(line[len(notePrefix):])})

		default:
			closeList()
			kind := KindParagraph
			if intro {
				kind = KindIntro
				intro = false
			}
			blocks = append(blocks, Block{Kind: kind, Text: trimmed})
		}
	}
	closeList()

	return blocks
}

// classify picks the list type from the first item of a list.
func classify(item string, p Profile) ListType {
	if !p.ListTypes {
		return ListUntyped
	}
	switch {
	case strings.Contains(item, ":"):
		return ListCategory
	case strings.Contains(item, "?"):
		return ListQuestion
	default:
		return ListTopic
	}
}

// Convert formats text into markup without escaping or sanitizing. Use it
// only on trusted input; model output goes through Render.
func Convert(text string, p Profile) string {
	var sb strings.Builder
	for _, b := range Parse(text, p) {
		b.writeHTML(&sb)
	}
	return sb.String()
}

func (b Block) writeHTML(sb *strings.Builder) {
	switch b.Kind {
	case KindIntro:
		sb.WriteString(`<p class="intro">` + b.Text + `</p>`)
	case KindParagraph:
		sb.WriteString("<p>" + b.Text + "</p>")
	case KindHeading2:
		sb.WriteString("<h2>" + b.Text + "</h2>")
	case KindHeading3:
		sb.WriteString("<h3>" + b.Text + "</h3>")
	case KindExample:
		sb.WriteString(`<div class="example">` + b.Text + `</div>`)
	case KindNote:
		sb.WriteString(`<div class="note">` + b.Text + `</div>`)
	case KindList:
		if b.ListType == ListUntyped {
			sb.WriteString("<ul>")
		} else {
			sb.WriteString(`<ul class="` + string(b.ListType) + `">`)
		}
		for _, item := range b.Items {
			sb.WriteString("<li>" + item + "</li>")
		}
		sb.WriteString("</ul>")
	}
}

// HTML returns the markup for a single block.
func (b Block) HTML() string {
	var sb strings.Builder
	b.writeHTML(&sb)
	return sb.String()
}
