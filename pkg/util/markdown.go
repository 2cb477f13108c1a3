package util

import (
	"regexp"
	"strings"
)

// LinkMarker is appended to the visible label of converted markdown links.
const LinkMarker = "🔗"

// Span is one run of rich text. URL is set for hyperlinks, PageID for page
// mentions. A plain run has neither.
type Span struct {
	Text   string
	URL    string
	PageID string
}

// IsLink reports whether the span carries a hyperlink.
func (s Span) IsLink() bool { return s.URL != "" }

// Either [label](url) or a bare http(s) URL.
var linkPattern = regexp.MustCompile(`\[([^\[\]]+)\]\((https?://[^\s()]+)\)|(https?://[^\s()\[\]]+)`)

// HasLink reports whether text embeds a markdown link or a bare URL.
func HasLink(text string) bool {
	return linkPattern.MatchString(text)
}

// ToRichSpans splits text into plain runs and hyperlink runs. Markdown links
// keep their label, suffixed with LinkMarker. Bare URLs become a link whose
// label is the URL itself. Empty plain runs are omitted.
func ToRichSpans(text string) []Span {
	var spans []Span
	last := 0
	for _, m := range linkPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			spans = append(spans, Span{Text: text[last:m[0]]})
		}
		if m[2] >= 0 {
			label := text[m[2]:m[3]]
			spans = append(spans, Span{Text: markLabel(label), URL: text[m[4]:m[5]]})
		} else {
			url := text[m[6]:m[7]]
			spans = append(spans, Span{Text: url, URL: url})
		}
		last = m[1]
	}
	if last < len(text) {
		spans = append(spans, Span{Text: text[last:]})
	}
	return spans
}

// ToDisplayText is the markdown form of ToRichSpans(text).
func ToDisplayText(text string) string {
	return RenderSpans(ToRichSpans(text))
}

// RenderSpans joins spans back into markdown. A link whose label equals its
// URL renders as the bare URL.
func RenderSpans(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(RenderSpan(s))
	}
	return b.String()
}

// RenderSpan is the visible text of a single span.
func RenderSpan(s Span) string {
	switch {
	case s.URL != "" && s.Text != s.URL:
		return "[" + s.Text + "](" + s.URL + ")"
	case s.URL != "":
		return s.URL
	case s.PageID != "" && s.Text == "":
		return s.PageID
	default:
		return s.Text
	}
}

// PlainSpans concatenates the visible text without any link markup.
func PlainSpans(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		if s.Text == "" && s.PageID != "" {
			b.WriteString(s.PageID)
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

func markLabel(label string) string {
	if strings.HasSuffix(label, LinkMarker) {
		return label
	}
	return label + LinkMarker
}
