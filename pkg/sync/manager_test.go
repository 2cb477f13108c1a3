package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/index"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/mapping"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/pending"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/store"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/todoist"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

const testSpec = `{
  "content": {"default_values": {"name": "Name", "type": "title"}},
  "priority": {
    "default_values": {"name": "Priority", "type": "select", "expression": "{1:'p4',2:'p3',3:'p2',4:'p1'}[value]"}
  },
  "is_completed": {"default_values": {"name": "Done", "type": "checkbox"}},
  "due.date": {"default_values": {"name": "Due", "type": "date"}},
  "comments": {"default_values": {"name": "Comments", "type": "rich_text"}}
}`

var testSchema = notion.Schema{
	"Name":         "title",
	"Priority":     "select",
	"Done":         "checkbox",
	"Due":          "date",
	"Comments":     "rich_text",
	"SourceTaskId": "rich_text",
	"Synced":       "date",
	"Parent item":  "relation",
}

var day1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestEngine(t *testing.T) *mapping.Engine {
	t.Helper()
	spec, err := mapping.ParseSpec([]byte(testSpec), "json")
	if err != nil {
		t.Fatalf("ParseSpec failed: %v", err)
	}
	if err := spec.Validate("content"); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	return mapping.NewEngine(spec, testSchema, nil, time.UTC, quiet())
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestManager(t *testing.T, src *fakeSource, dest *fakeDest) (*Manager, *clock) {
	t.Helper()
	c := &clock{now: day1.Add(12 * time.Hour)}
	m := NewManager(src, dest, newTestEngine(t), Options{}, quiet())
	m.now = c.Now
	return m, c
}

// linkedPage builds a page the way the create pass would have.
func linkedPage(t *testing.T, dest *fakeDest, task model.Task, synced time.Time) *notionapi.Page {
	t.Helper()
	props, _ := newTestEngine(t).MapTask(context.Background(), &task)
	props["SourceTaskId"] = notion.LinkText(task.ID, "https://todoist.com/showTask?id="+task.ID)
	props["Synced"] = notion.DateValue(synced)
	return dest.addPage(props)
}

func sourceIDs(props []notionapi.Properties) []string {
	var ids []string
	for _, p := range props {
		ids = append(ids, notion.TextOf(p["SourceTaskId"]))
	}
	return ids
}

func relationIDs(p notionapi.Property) []string {
	rel, ok := p.(*notionapi.RelationProperty)
	if !ok {
		return nil
	}
	var ids []string
	for _, r := range rel.Relation {
		ids = append(ids, r.ID.String())
	}
	return ids
}

func TestSyncCreatedParentsFirst(t *testing.T) {
	src := newFakeSource(
		model.Task{ID: "c", ParentID: "p", Content: "Child", Priority: 4},
		model.Task{ID: "p", Content: "Parent", Description: "Existing description"},
	)
	src.addEvent(todoist.EventAdded, "c", day1.Add(time.Hour))
	src.addEvent(todoist.EventAdded, "p", day1.Add(2*time.Hour))
	dest := newFakeDest(testSchema)
	m, _ := newTestManager(t, src, dest)

	report, err := m.SyncCreated(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}

	if diff := cmp.Diff([]string{"p", "c"}, sourceIDs(dest.created)); diff != "" {
		t.Errorf("Create order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"p", "c"}, report.Created); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}
	if report.Stats.Created != 2 {
		t.Errorf("Expected 2 created, got %d", report.Stats.Created)
	}

	parentPage := dest.pages[0]
	child := dest.created[1]
	if diff := cmp.Diff([]string{parentPage.ID.String()}, relationIDs(child["Parent item"])); diff != "" {
		t.Errorf("Parent relation mismatch (-want +got):\n%s", diff)
	}
	if sel, ok := child["Priority"].(*notionapi.SelectProperty); !ok || sel.Select.Name != "p1" {
		t.Errorf("Expected Priority p1, got %#v", child["Priority"])
	}
	if _, ok := notion.DateOf(child["Synced"]); !ok {
		t.Error("Expected a Synced stamp")
	}

	wantDesc := "[Notion](" + parentPage.URL + ")\nExisting description"
	if got := src.tasks["p"].Description; got != wantDesc {
		t.Errorf("Expected description %q, got %q", wantDesc, got)
	}
	if !strings.HasPrefix(src.tasks["c"].Description, "[Notion](https://www.notion.so/") {
		t.Errorf("Expected child back-link, got %q", src.tasks["c"].Description)
	}
}

func TestSyncCreatedIsIdempotent(t *testing.T) {
	src := newFakeSource(
		model.Task{ID: "1", Content: "One"},
		model.Task{ID: "2", ParentID: "1", Content: "Two"},
	)
	src.addEvent(todoist.EventAdded, "1", day1)
	src.addEvent(todoist.EventAdded, "2", day1)
	dest := newFakeDest(testSchema)
	m, _ := newTestManager(t, src, dest)

	if _, err := m.SyncCreated(context.Background(), CreateOptions{}); err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	writes := len(src.writes)

	report, err := m.SyncCreated(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if len(dest.created) != 2 {
		t.Errorf("Expected no new pages on the second run, got %d creates", len(dest.created))
	}
	if report.Stats.Created != 0 || report.Stats.Skipped != 2 {
		t.Errorf("Unexpected second run stats %+v", report.Stats)
	}
	if len(src.writes) != writes {
		t.Errorf("Expected no further description writes, got %d", len(src.writes)-writes)
	}
}

func TestSyncCreatedSkipsLinkedTask(t *testing.T) {
	task := model.Task{ID: "123", Content: "Already there"}
	src := newFakeSource(task)
	src.addEvent(todoist.EventAdded, "123", day1)
	dest := newFakeDest(testSchema)
	linkedPage(t, dest, task, day1)
	m, _ := newTestManager(t, src, dest)

	if _, err := m.SyncCreated(context.Background(), CreateOptions{}); err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if len(dest.created) != 0 {
		t.Errorf("Expected zero create calls, got %d", len(dest.created))
	}
	if len(src.writes) != 0 {
		t.Errorf("Expected zero writes, got %v", src.writes)
	}
}

func TestSyncCreatedParentFromDescription(t *testing.T) {
	src := newFakeSource(
		model.Task{ID: "p", Content: "Old parent", Description: "[Notion](https://www.notion.so/Old-parent-bf98f999c90a41e198f999c90a01e1d2)"},
		model.Task{ID: "c", ParentID: "p", Content: "New child"},
	)
	src.addEvent(todoist.EventAdded, "c", day1)
	dest := newFakeDest(testSchema)
	m, _ := newTestManager(t, src, dest)

	if _, err := m.SyncCreated(context.Background(), CreateOptions{}); err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if len(dest.created) != 1 {
		t.Fatalf("Expected 1 create, got %d", len(dest.created))
	}
	want := []string{"bf98f999-c90a-41e1-98f9-99c90a01e1d2"}
	if diff := cmp.Diff(want, relationIDs(dest.created[0]["Parent item"])); diff != "" {
		t.Errorf("Parent relation mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncCreatedParentFromIndex(t *testing.T) {
	src := newFakeSource(model.Task{ID: "c", ParentID: "p", Content: "Child"})
	src.addEvent(todoist.EventAdded, "c", day1)
	dest := newFakeDest(testSchema)
	idx, err := index.NewPageIndex(t.TempDir())
	if err != nil {
		t.Fatalf("NewPageIndex failed: %v", err)
	}
	idx.Set("p", index.Page{PageID: "21ada7d4-5a93-45d1-ada7-d45a9305d182"})
	m, _ := newTestManager(t, src, dest)
	m.WithIndex(idx)

	if _, err := m.SyncCreated(context.Background(), CreateOptions{}); err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if diff := cmp.Diff([]string{"21ada7d4-5a93-45d1-ada7-d45a9305d182"}, relationIDs(dest.created[0]["Parent item"])); diff != "" {
		t.Errorf("Parent relation mismatch (-want +got):\n%s", diff)
	}
	if p, ok := idx.Get("c"); !ok || p.PageID != dest.pages[0].ID.String() {
		t.Errorf("Expected the new page in the index, got %+v", p)
	}
}

func TestSyncCreatedRetriesBacklink(t *testing.T) {
	src := newFakeSource(model.Task{ID: "1", Content: "One"})
	src.addEvent(todoist.EventAdded, "1", day1)
	src.updateErr = errors.New("service unavailable")
	dest := newFakeDest(testSchema)
	table, err := pending.NewTable(t.TempDir())
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	m, c := newTestManager(t, src, dest)
	m.WithPending(table)

	if _, err := m.SyncCreated(context.Background(), CreateOptions{}); err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("Expected a pending back-link, got %d", table.Len())
	}

	src.updateErr = nil
	c.now = c.now.Add(time.Hour)
	if _, err := m.SyncCreated(context.Background(), CreateOptions{}); err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if len(dest.created) != 1 {
		t.Errorf("Expected a single page, got %d", len(dest.created))
	}
	if table.Len() != 0 {
		t.Errorf("Expected the pending table to drain, got %d", table.Len())
	}
	want := "[Notion](" + dest.pages[0].URL + ")"
	if got := src.tasks["1"].Description; got != want {
		t.Errorf("Expected description %q, got %q", want, got)
	}
}

func TestSyncCreatedSkipsCycles(t *testing.T) {
	src := newFakeSource(
		model.Task{ID: "a", ParentID: "b", Content: "A"},
		model.Task{ID: "b", ParentID: "a", Content: "B"},
		model.Task{ID: "ok", Content: "Fine"},
	)
	for _, id := range []string{"a", "b", "ok"} {
		src.addEvent(todoist.EventAdded, id, day1)
	}
	dest := newFakeDest(testSchema)
	m, _ := newTestManager(t, src, dest)

	report, err := m.SyncCreated(context.Background(), CreateOptions{})
	if err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if diff := cmp.Diff([]string{"ok"}, sourceIDs(dest.created)); diff != "" {
		t.Errorf("Created mismatch (-want +got):\n%s", diff)
	}
	if report.Stats.Skipped != 2 {
		t.Errorf("Expected 2 skipped, got %d", report.Stats.Skipped)
	}
}

func TestSyncUpdatedPatchesChangedFields(t *testing.T) {
	changed := model.Task{ID: "1", Content: "old title", Priority: 1}
	newer := model.Task{ID: "2", Content: "stale", Priority: 1}
	same := model.Task{ID: "3", Content: "same", Priority: 2}

	dest := newFakeDest(testSchema)
	p1 := linkedPage(t, dest, changed, day1.Add(8*time.Hour))
	p2 := linkedPage(t, dest, newer, day1.Add(12*time.Hour))
	p3 := linkedPage(t, dest, same, day1.Add(8*time.Hour))

	changed.Content = "new title"
	newer.Content = "changed but already synced"
	src := newFakeSource(changed, newer, same)
	for _, id := range []string{"1", "2", "3"} {
		src.addEvent(todoist.EventUpdated, id, day1.Add(10*time.Hour))
	}
	m, _ := newTestManager(t, src, dest)

	report, err := m.SyncUpdated(context.Background(), UpdateOptions{})
	if err != nil {
		t.Fatalf("SyncUpdated failed: %v", err)
	}

	patch, ok := dest.updates[p1.ID.String()]
	if !ok {
		t.Fatalf("Expected page 1 to be updated, got %v", dest.updates)
	}
	var keys []string
	for name := range patch {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	if diff := cmp.Diff([]string{"Name", "Synced"}, keys); diff != "" {
		t.Errorf("Patch keys mismatch (-want +got):\n%s", diff)
	}
	if got := notion.TextOf(patch["Name"]); got != "new title" {
		t.Errorf("Expected new title, got %q", got)
	}
	if _, ok := dest.updates[p2.ID.String()]; ok {
		t.Error("Expected page synced after the change to be left alone")
	}
	if _, ok := dest.updates[p3.ID.String()]; ok {
		t.Error("Expected unchanged page to be left alone")
	}
	if report.Stats.Updated != 1 || report.Stats.Skipped != 2 {
		t.Errorf("Unexpected stats %+v", report.Stats)
	}
}

func TestSyncUpdatedAfterCreate(t *testing.T) {
	task := model.Task{ID: "1", Content: "first draft"}
	src := newFakeSource(task)
	src.addEvent(todoist.EventAdded, "1", day1.Add(time.Hour))
	src.addEvent(todoist.EventUpdated, "1", day1.Add(2*time.Hour))
	dest := newFakeDest(testSchema)
	m, c := newTestManager(t, src, dest)
	ctx := context.Background()

	if _, err := m.SyncCreated(ctx, CreateOptions{}); err != nil {
		t.Fatalf("SyncCreated failed: %v", err)
	}
	if len(dest.pages) != 1 {
		t.Fatalf("Expected one page, got %d", len(dest.pages))
	}
	page := dest.pages[0]

	// edits made before the page was created are already on it
	if _, err := m.SyncUpdated(ctx, UpdateOptions{}); err != nil {
		t.Fatalf("SyncUpdated failed: %v", err)
	}
	if len(dest.updates) != 0 {
		t.Fatalf("Expected no update for an edit older than the page, got %v", dest.updates)
	}

	// edited between the create and update passes
	src.tasks["1"].Content = "final title"
	src.addEvent(todoist.EventUpdated, "1", c.now.Add(30*time.Minute))
	c.now = c.now.Add(time.Hour)

	report, err := m.SyncUpdated(ctx, UpdateOptions{})
	if err != nil {
		t.Fatalf("SyncUpdated failed: %v", err)
	}
	if report.Stats.Updated != 1 {
		t.Errorf("Expected 1 updated, got %+v", report.Stats)
	}
	patch, ok := dest.updates[page.ID.String()]
	if !ok {
		t.Fatalf("Expected the new page to be patched, got %v", dest.updates)
	}
	if got := notion.TextOf(patch["Name"]); got != "final title" {
		t.Errorf("Expected final title, got %q", got)
	}
}

func TestSyncDeletedArchives(t *testing.T) {
	dest := newFakeDest(testSchema)
	gone := linkedPage(t, dest, model.Task{ID: "999", Content: "Gone"}, day1)
	kept := linkedPage(t, dest, model.Task{ID: "1000", Content: "Kept"}, day1)
	src := newFakeSource()
	src.addEvent(todoist.EventDeleted, "999", day1.Add(time.Hour))
	m, c := newTestManager(t, src, dest)

	report, err := m.SyncDeleted(context.Background(), DeleteOptions{})
	if err != nil {
		t.Fatalf("SyncDeleted failed: %v", err)
	}
	if report.Stats.Archived != 1 {
		t.Errorf("Expected 1 archived, got %d", report.Stats.Archived)
	}
	props, ok := dest.archived[gone.ID.String()]
	if !ok {
		t.Fatal("Expected page 999 to be archived")
	}
	if len(props) != 1 {
		t.Errorf("Expected only the Synced stamp, got %v", props)
	}
	if synced, ok := notion.DateOf(props["Synced"]); !ok || !synced.Equal(util.Timestamp(c.now, time.UTC)) {
		t.Errorf("Expected Synced %v, got %v", c.now, synced)
	}
	if got := notion.TextOf(gone.Properties["Name"]); got != "Gone" {
		t.Errorf("Expected content untouched, got %q", got)
	}
	if kept.Archived {
		t.Error("Expected page 1000 to stay")
	}
}

func TestSyncAllRunsEveryPass(t *testing.T) {
	dest := newFakeDest(testSchema)
	linkedPage(t, dest, model.Task{ID: "999", Content: "Gone"}, day1)
	src := newFakeSource()
	src.eventErr[todoist.EventAdded] = errors.New("activity log down")
	src.addEvent(todoist.EventDeleted, "999", day1.Add(time.Hour))
	m, _ := newTestManager(t, src, dest)

	reports, err := m.SyncAll(context.Background())
	var readErr *RemoteReadError
	if !errors.As(err, &readErr) || readErr.Pass != PassCreated {
		t.Fatalf("Expected a created pass read error, got %v", err)
	}
	if len(reports) != 3 || reports[2].Pass != PassDeleted || reports[2].Stats.Archived != 1 {
		t.Errorf("Expected the delete pass to still run, got %+v", reports)
	}
}

func TestJournalWatermark(t *testing.T) {
	journal, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	defer journal.Close()

	src := newFakeSource()
	dest := newFakeDest(testSchema)
	m, c := newTestManager(t, src, dest)
	m.WithJournal(journal)

	first := c.now
	if _, err := m.SyncDeleted(context.Background(), DeleteOptions{}); err != nil {
		t.Fatalf("SyncDeleted failed: %v", err)
	}
	c.now = first.Add(time.Hour)
	if _, err := m.SyncDeleted(context.Background(), DeleteOptions{}); err != nil {
		t.Fatalf("SyncDeleted failed: %v", err)
	}

	sinces := src.since[todoist.EventDeleted]
	if len(sinces) != 2 {
		t.Fatalf("Expected 2 event reads, got %d", len(sinces))
	}
	if !sinces[0].IsZero() {
		t.Errorf("Expected first run without watermark, got %v", sinces[0])
	}
	if !sinces[1].Equal(first) {
		t.Errorf("Expected watermark %v, got %v", first, sinces[1])
	}
}
