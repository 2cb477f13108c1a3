package notion

import (
	"time"

	"github.com/jomei/notionapi"
)

// Query filter builders. Each returns a single property condition that can
// be composed with And and Or.

func RichTextEquals(property, value string) *notionapi.PropertyFilter {
	return &notionapi.PropertyFilter{Property: property, RichText: &notionapi.TextFilterCondition{Equals: value}}
}

func RichTextIsNotEmpty(property string) *notionapi.PropertyFilter {
	return &notionapi.PropertyFilter{Property: property, RichText: &notionapi.TextFilterCondition{IsNotEmpty: true}}
}

// DateOnOrBefore compares at day granularity on the API side.
func DateOnOrBefore(property string, t time.Time) *notionapi.PropertyFilter {
	d := notionapi.Date(t)
	return &notionapi.PropertyFilter{Property: property, Date: &notionapi.DateFilterCondition{OnOrBefore: &d}}
}

// And matches pages satisfying every filter.
func And(filters ...notionapi.Filter) notionapi.AndCompoundFilter {
	return notionapi.AndCompoundFilter(filters)
}

// Or matches pages satisfying any filter.
func Or(filters ...notionapi.Filter) notionapi.OrCompoundFilter {
	return notionapi.OrCompoundFilter(filters)
}
