package notion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

// Kind is a destination property type the mapping engine can write.
type Kind int

const (
	KindTitle Kind = iota + 1
	KindRichText
	KindRelation
	KindSelect
	KindCheckbox
	KindDate
	KindStatus
)

var kindNames = map[Kind]string{
	KindTitle:    "title",
	KindRichText: "rich_text",
	KindRelation: "relation",
	KindSelect:   "select",
	KindCheckbox: "checkbox",
	KindDate:     "date",
	KindStatus:   "status",
}

// Kinds lists every supported kind.
var Kinds = []Kind{KindTitle, KindRichText, KindRelation, KindSelect, KindCheckbox, KindDate, KindStatus}

// ParseKind maps a property type name as used by the API and in mapping files.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unsupported property type %q", name)
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Multi reports whether several values can be packed into one property.
// Every other kind keeps only the first value.
func (k Kind) Multi() bool {
	switch k {
	case KindTitle, KindRichText, KindRelation:
		return true
	case KindSelect, KindCheckbox, KindDate, KindStatus:
		return false
	default:
		return false
	}
}

// Format builds a property value. Title and rich text keep every span;
// relation uses the page id of every span; the scalar kinds read the text of
// the first span. Floating date times are interpreted in loc.
func (k Kind) Format(spans []util.Span, loc *time.Location) (notionapi.Property, error) {
	switch k {
	case KindTitle:
		return &notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: RichText(spans)}, nil
	case KindRichText:
		return &notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: RichText(spans)}, nil
	case KindRelation:
		relations := make([]notionapi.Relation, 0, len(spans))
		for _, s := range spans {
			id := s.PageID
			if id == "" {
				id = strings.TrimSpace(s.Text)
			}
			if id == "" {
				return nil, fmt.Errorf("relation value has no page id")
			}
			if _, err := uuid.Parse(id); err != nil {
				return nil, fmt.Errorf("relation value %q is not a page id", id)
			}
			relations = append(relations, notionapi.Relation{ID: notionapi.PageID(util.NormalizePageID(id))})
		}
		return &notionapi.RelationProperty{Type: notionapi.PropertyTypeRelation, Relation: relations}, nil
	case KindSelect:
		name, err := firstText(spans)
		if err != nil {
			return nil, err
		}
		return &notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}, nil
	case KindStatus:
		name, err := firstText(spans)
		if err != nil {
			return nil, err
		}
		return &notionapi.StatusProperty{Type: notionapi.PropertyTypeStatus, Status: notionapi.Status{Name: name}}, nil
	case KindCheckbox:
		text, err := firstText(spans)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("checkbox value %q: %w", text, err)
		}
		return &notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox, Checkbox: b}, nil
	case KindDate:
		text, err := firstText(spans)
		if err != nil {
			return nil, err
		}
		t, err := util.ParseDate(text, loc)
		if err != nil {
			return nil, fmt.Errorf("date value: %w", err)
		}
		if util.IsDateOnly(t) {
			return DayValue(t), nil
		}
		return DateValue(t), nil
	default:
		return nil, fmt.Errorf("unsupported property kind %v", k)
	}
}

// Parse renders a property value as comparable text. Title and rich text come
// back as markdown, relations as comma separated page ids, dates as a bare
// day or a UTC timestamp. A property of the wrong type parses as "".
func (k Kind) Parse(p notionapi.Property) string {
	switch k {
	case KindTitle:
		if v, ok := p.(*notionapi.TitleProperty); ok {
			return util.RenderSpans(Spans(v.Title))
		}
	case KindRichText:
		if v, ok := p.(*notionapi.RichTextProperty); ok {
			return util.RenderSpans(Spans(v.RichText))
		}
	case KindRelation:
		if v, ok := p.(*notionapi.RelationProperty); ok {
			ids := make([]string, 0, len(v.Relation))
			for _, r := range v.Relation {
				ids = append(ids, util.NormalizePageID(r.ID.String()))
			}
			return strings.Join(ids, ", ")
		}
	case KindSelect:
		if v, ok := p.(*notionapi.SelectProperty); ok {
			return v.Select.Name
		}
	case KindStatus:
		if v, ok := p.(*notionapi.StatusProperty); ok {
			return v.Status.Name
		}
	case KindCheckbox:
		if v, ok := p.(*notionapi.CheckboxProperty); ok {
			return strconv.FormatBool(v.Checkbox)
		}
	case KindDate:
		if t, ok := DateOf(p); ok {
			return util.FormatDate(t)
		}
	}
	return ""
}

// Empty returns a value that clears a property of this kind. Titles, selects
// and statuses cannot be cleared.
func (k Kind) Empty() (notionapi.Property, bool) {
	switch k {
	case KindRichText:
		return &notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: []notionapi.RichText{}}, true
	case KindRelation:
		return &notionapi.RelationProperty{Type: notionapi.PropertyTypeRelation, Relation: []notionapi.Relation{}}, true
	case KindDate:
		return &notionapi.DateProperty{Type: notionapi.PropertyTypeDate}, true
	case KindCheckbox:
		return &notionapi.CheckboxProperty{Type: notionapi.PropertyTypeCheckbox}, true
	case KindTitle, KindSelect, KindStatus:
		return nil, false
	default:
		return nil, false
	}
}

// DateValue builds a date property starting at t.
func DateValue(t time.Time) *notionapi.DateProperty {
	d := notionapi.Date(t)
	return &notionapi.DateProperty{Type: notionapi.PropertyTypeDate, Date: &notionapi.DateObject{Start: &d}}
}

// DayProperty is a date property holding a bare day. notionapi writes every
// date as a timestamp, which shows up as midnight on an all-day task.
type DayProperty struct {
	notionapi.DateProperty
}

func (p DayProperty) MarshalJSON() ([]byte, error) {
	type day struct {
		Start *string `json:"start"`
		End   *string `json:"end"`
	}
	var d *day
	if p.Date != nil {
		d = &day{Start: dayString(p.Date.Start), End: dayString(p.Date.End)}
	}
	return json.Marshal(struct {
		Type notionapi.PropertyType `json:"type,omitempty"`
		Date *day                   `json:"date"`
	}{p.Type, d})
}

func dayString(d *notionapi.Date) *string {
	if d == nil {
		return nil
	}
	s := time.Time(*d).Format(time.DateOnly)
	return &s
}

// DayValue builds a date property holding the day of t.
func DayValue(t time.Time) *DayProperty {
	return &DayProperty{DateProperty: *DateValue(t)}
}

// DateOf returns the start of a date property, or false if p holds none.
func DateOf(p notionapi.Property) (time.Time, bool) {
	var v *notionapi.DateProperty
	switch d := p.(type) {
	case *notionapi.DateProperty:
		v = d
	case *DayProperty:
		if d != nil {
			v = &d.DateProperty
		}
	}
	if v == nil || v.Date == nil || v.Date.Start == nil {
		return time.Time{}, false
	}
	return time.Time(*v.Date.Start), true
}

// TextOf returns the plain text of a title or rich text property.
func TextOf(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return PlainText(v.Title)
	case *notionapi.RichTextProperty:
		return PlainText(v.RichText)
	}
	return ""
}

// LinkText builds a rich text property holding a single hyperlink.
func LinkText(text, url string) *notionapi.RichTextProperty {
	return &notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: RichText([]util.Span{{Text: text, URL: url}}),
	}
}

// Relation builds a relation property pointing at the given pages.
func Relation(pageIDs ...string) *notionapi.RelationProperty {
	relations := make([]notionapi.Relation, 0, len(pageIDs))
	for _, id := range pageIDs {
		relations = append(relations, notionapi.Relation{ID: notionapi.PageID(util.NormalizePageID(id))})
	}
	return &notionapi.RelationProperty{Type: notionapi.PropertyTypeRelation, Relation: relations}
}

func firstText(spans []util.Span) (string, error) {
	if len(spans) == 0 {
		return "", fmt.Errorf("no value")
	}
	text := strings.TrimSpace(util.PlainSpans(spans[:1]))
	if text == "" {
		return "", fmt.Errorf("empty value")
	}
	return text, nil
}
