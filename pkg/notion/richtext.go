package notion

import (
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

// maxTextLength is the API limit for a single text object.
const maxTextLength = 2000

// RichText converts spans into API rich text objects. Long runs are split to
// stay below the per-object length limit.
func RichText(spans []util.Span) []notionapi.RichText {
	var out []notionapi.RichText
	for _, s := range spans {
		if s.PageID != "" && s.URL == "" {
			out = append(out, notionapi.RichText{
				Type: notionapi.ObjectType("mention"),
				Mention: &notionapi.Mention{
					Type: notionapi.MentionType("page"),
					Page: &notionapi.PageMention{ID: notionapi.ObjectID(util.NormalizePageID(s.PageID))},
				},
			})
			continue
		}
		for _, part := range splitRunes(s.Text, maxTextLength) {
			rt := notionapi.RichText{
				Type:      notionapi.ObjectType("text"),
				Text:      &notionapi.Text{Content: part},
				PlainText: part,
			}
			if s.URL != "" {
				rt.Text.Link = &notionapi.Link{Url: s.URL}
				rt.Href = s.URL
			}
			out = append(out, rt)
		}
	}
	return out
}

// Spans is the inverse of RichText. Page mentions keep only their id since
// the visible title of a mention is decided by the API.
func Spans(rich []notionapi.RichText) []util.Span {
	var out []util.Span
	for _, rt := range rich {
		if rt.Mention != nil && rt.Mention.Page != nil {
			out = append(out, util.Span{PageID: util.NormalizePageID(rt.Mention.Page.ID.String())})
			continue
		}
		text := rt.PlainText
		url := rt.Href
		if rt.Text != nil {
			text = rt.Text.Content
			if rt.Text.Link != nil {
				url = rt.Text.Link.Url
			}
		}
		// merge runs the API split apart
		if n := len(out); n > 0 && out[n-1].URL == url && out[n-1].PageID == "" {
			out[n-1].Text += text
			continue
		}
		out = append(out, util.Span{Text: text, URL: url})
	}
	return out
}

// PlainText returns the concatenated plain text of a rich text list.
func PlainText(rich []notionapi.RichText) string {
	var s string
	for _, rt := range rich {
		if rt.PlainText != "" {
			s += rt.PlainText
		} else if rt.Text != nil {
			s += rt.Text.Content
		}
	}
	return s
}

func splitRunes(s string, n int) []string {
	if s == "" {
		return nil
	}
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	var parts []string
	for len(r) > 0 {
		end := n
		if end > len(r) {
			end = len(r)
		}
		parts = append(parts, string(r[:end]))
		r = r[end:]
	}
	return parts
}
