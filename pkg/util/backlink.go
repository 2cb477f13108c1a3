package util

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Matches "(...)" link targets pointing at a Notion page: optional host,
// optional workspace segment, optional "Title-" slug, optional query.
var notionPageLinkPattern = regexp.MustCompile(
	`\]\((?:https?://(?:www\.)?notion\.so)?/(?:[\w-]+/)?(?:[^/()?\s]*-)?` +
		`([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}|[0-9a-f]{32})` +
		`(?:\?[^)\s]*)?\)`)

// ExtractNotionPageID returns the page id of the first Notion link in text,
// with or without dashes as written.
func ExtractNotionPageID(text string) (string, bool) {
	m := notionPageLinkPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NormalizePageID returns the canonical dashed form of a page id so that ids
// copied from URLs compare equal to ids returned by the API.
func NormalizePageID(id string) string {
	u, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return u.String()
}

// BacklinkPattern matches a back-link written by MergeBacklink for label.
func BacklinkPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`\[` + regexp.QuoteMeta(label) + `\]\(https?://(?:www\.)?notion\.so/[^\s)]*\)`)
}

// MergeBacklink places a [label](url) reference at the top of description.
// An existing identical reference is left alone. With overwrite, stale
// references carrying the same label are removed first. The boolean reports
// whether the description changed.
func MergeBacklink(description, url, label string, overwrite bool) (string, bool) {
	ref := "[" + label + "](" + url + ")"
	if description == "" {
		return ref, true
	}
	if strings.Contains(description, ref) {
		return description, false
	}
	rest := description
	if overwrite {
		rest = strings.TrimSpace(BacklinkPattern(label).ReplaceAllString(rest, ""))
	}
	if rest == "" {
		return ref, true
	}
	return ref + "\n" + rest, true
}
