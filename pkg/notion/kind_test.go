package notion

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(k.String())
		if err != nil {
			t.Fatalf("ParseKind(%q) failed: %v", k, err)
		}
		if got != k {
			t.Errorf("Expected %v, got %v", k, got)
		}
	}
	if _, err := ParseKind("multi_select"); err == nil {
		t.Error("Expected error for unsupported kind")
	}
}

func TestKindMulti(t *testing.T) {
	multi := map[Kind]bool{KindTitle: true, KindRichText: true, KindRelation: true}
	for _, k := range Kinds {
		if k.Multi() != multi[k] {
			t.Errorf("Expected %v.Multi() == %v", k, multi[k])
		}
	}
}

func TestKindFormatParse(t *testing.T) {
	tests := []struct {
		kind  Kind
		spans []util.Span
		want  string
	}{
		{KindTitle, []util.Span{{Text: "See "}, {Text: "docs🔗", URL: "https://example.com"}}, "See [docs🔗](https://example.com)"},
		{KindRichText, []util.Span{{Text: "plain"}}, "plain"},
		{KindRelation, []util.Span{{PageID: "bf98f999c90a41e198f999c90a01e1d2"}, {Text: "00000000-0000-0000-0000-000000000001"}},
			"bf98f999-c90a-41e1-98f9-99c90a01e1d2, 00000000-0000-0000-0000-000000000001"},
		{KindSelect, []util.Span{{Text: "p1"}, {Text: "ignored"}}, "p1"},
		{KindStatus, []util.Span{{Text: "Done"}}, "Done"},
		{KindCheckbox, []util.Span{{Text: "True"}}, "true"},
		{KindCheckbox, []util.Span{{Text: "false"}}, "false"},
		{KindDate, []util.Span{{Text: "2024-03-01"}}, "2024-03-01"},
		{KindDate, []util.Span{{Text: "2024-03-01T09:30:00Z"}}, "2024-03-01T09:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String()+"/"+tt.want, func(t *testing.T) {
			prop, err := tt.kind.Format(tt.spans, time.UTC)
			if err != nil {
				t.Fatalf("Format failed: %v", err)
			}
			if got := tt.kind.Parse(prop); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestKindFormatRejectsMalformed(t *testing.T) {
	tests := []struct {
		kind  Kind
		spans []util.Span
	}{
		{KindCheckbox, []util.Span{{Text: "maybe"}}},
		{KindDate, []util.Span{{Text: "next tuesday"}}},
		{KindSelect, nil},
		{KindRelation, []util.Span{{Text: " "}}},
		{Kind(99), []util.Span{{Text: "x"}}},
	}
	for _, tt := range tests {
		if _, err := tt.kind.Format(tt.spans, time.UTC); err == nil {
			t.Errorf("Expected %v.Format(%v) to fail", tt.kind, tt.spans)
		}
	}
}

func TestParseWrongType(t *testing.T) {
	if got := KindSelect.Parse(&notionapi.CheckboxProperty{Checkbox: true}); got != "" {
		t.Errorf("Expected empty parse for mismatched type, got %q", got)
	}
}

func TestRichTextSplitsLongText(t *testing.T) {
	long := strings.Repeat("é", maxTextLength+10)
	rich := RichText([]util.Span{{Text: long}})
	if len(rich) != 2 {
		t.Fatalf("Expected 2 text objects, got %d", len(rich))
	}
	if got := util.RenderSpans(Spans(rich)); got != long {
		t.Error("Expected split text to merge back into the original")
	}
}

func TestSpansFromMention(t *testing.T) {
	rich := RichText([]util.Span{{Text: "tag: "}, {PageID: "bf98f999c90a41e198f999c90a01e1d2"}})
	rich[1].PlainText = "Errands"

	want := []util.Span{{Text: "tag: "}, {PageID: "bf98f999-c90a-41e1-98f9-99c90a01e1d2"}}
	if diff := cmp.Diff(want, Spans(rich)); diff != "" {
		t.Errorf("Spans mismatch (-want +got):\n%s", diff)
	}
}

func TestDateValue(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	got, ok := DateOf(DateValue(ts))
	if !ok || !got.Equal(ts) {
		t.Errorf("Expected %v, got %v (%v)", ts, got, ok)
	}
	if _, ok := DateOf(&notionapi.DateProperty{}); ok {
		t.Error("Expected no date for empty property")
	}
}

func TestDateWireFormat(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"all day", "2024-03-01", `{"type":"date","date":{"start":"2024-03-01","end":null}}`},
		{"timed", "2024-03-01T09:30:00Z", `{"type":"date","date":{"start":"2024-03-01T09:30:00Z","end":null}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prop, err := KindDate.Format([]util.Span{{Text: tt.value}}, time.UTC)
			if err != nil {
				t.Fatalf("Format failed: %v", err)
			}
			b, err := json.Marshal(prop)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, b)
			}
		})
	}

	empty, _ := KindDate.Empty()
	b, err := json.Marshal(empty)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if want := `{"type":"date","date":null}`; string(b) != want {
		t.Errorf("Expected %s, got %s", want, b)
	}
}

func TestDayValueInLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	prop, err := KindDate.Format([]util.Span{{Text: "2024-03-01"}}, loc)
	if err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if _, ok := prop.(*DayProperty); !ok {
		t.Fatalf("Expected a day property, got %T", prop)
	}
	if got := KindDate.Parse(prop); got != "2024-03-01" {
		t.Errorf("Expected 2024-03-01, got %q", got)
	}
}

func TestFilters(t *testing.T) {
	synced := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		filter notionapi.Filter
		want   string
	}{
		{"rich text equals", RichTextEquals("SourceTaskId", "1"),
			`{"property":"SourceTaskId","rich_text":{"equals":"1"}}`},
		{"rich text is not empty", RichTextIsNotEmpty("SourceTaskId"),
			`{"property":"SourceTaskId","rich_text":{"is_not_empty":true}}`},
		{"date on or before", DateOnOrBefore("Synced", synced),
			`{"property":"Synced","date":{"on_or_before":"2024-01-02T03:04:05Z"}}`},
		{"and", And(RichTextEquals("SourceTaskId", "1"), DateOnOrBefore("Synced", synced)),
			`{"and":[{"property":"SourceTaskId","rich_text":{"equals":"1"}},{"property":"Synced","date":{"on_or_before":"2024-01-02T03:04:05Z"}}]}`},
		{"or", Or(RichTextEquals("SourceTaskId", "1"), RichTextEquals("SourceTaskId", "2")),
			`{"or":[{"property":"SourceTaskId","rich_text":{"equals":"1"}},{"property":"SourceTaskId","rich_text":{"equals":"2"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.filter)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if string(b) != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, b)
			}
		})
	}
}
