package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/jomei/notionapi"
)

type fakeSource struct {
	tasks     map[string]*model.Task
	events    map[string][]model.Event // by event type
	eventErr  map[string]error
	comments  map[string][]model.Comment
	updateErr error

	writes []string // task ids whose description was written
	since  map[string][]time.Time
}

func newFakeSource(tasks ...model.Task) *fakeSource {
	s := &fakeSource{
		tasks:    make(map[string]*model.Task),
		events:   make(map[string][]model.Event),
		eventErr: make(map[string]error),
		comments: make(map[string][]model.Comment),
		since:    make(map[string][]time.Time),
	}
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
	}
	return s
}

func (s *fakeSource) addEvent(eventType, objectID string, at time.Time) {
	s.events[eventType] = append(s.events[eventType], model.Event{
		ID:         fmt.Sprintf("%s-%s", eventType, objectID),
		ObjectType: "item",
		ObjectID:   objectID,
		EventType:  eventType,
		EventDate:  at,
	})
}

func (s *fakeSource) Tasks(_ context.Context, q model.TaskQuery) ([]model.Task, error) {
	var out []model.Task
	for _, id := range q.IDs {
		t, ok := s.tasks[id]
		if !ok || (t.IsCompleted && !q.IncludeCompleted) {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *fakeSource) Comments(_ context.Context, taskID string) ([]model.Comment, error) {
	return s.comments[taskID], nil
}

func (s *fakeSource) Events(_ context.Context, _, eventType string, since time.Time) ([]model.Event, error) {
	s.since[eventType] = append(s.since[eventType], since)
	if err := s.eventErr[eventType]; err != nil {
		return nil, err
	}
	var out []model.Event
	for _, e := range s.events[eventType] {
		if e.EventDate.After(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeSource) UpdateDescription(_ context.Context, taskID, description string) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.tasks[taskID].Description = description
	s.writes = append(s.writes, taskID)
	return nil
}

// fakeDest is an in-memory database. Query evaluates the filters the passes
// build, with the remote's day granularity for date conditions.
type fakeDest struct {
	schema   notion.Schema
	pages    []*notionapi.Page
	created  []notionapi.Properties
	updates  map[string]notionapi.Properties
	archived map[string]notionapi.Properties
	queries  int
}

func newFakeDest(schema notion.Schema) *fakeDest {
	return &fakeDest{
		schema:   schema,
		updates:  make(map[string]notionapi.Properties),
		archived: make(map[string]notionapi.Properties),
	}
}

func pageURL(id string) string {
	return "https://www.notion.so/Task-" + strings.ReplaceAll(id, "-", "")
}

func (d *fakeDest) addPage(props notionapi.Properties) *notionapi.Page {
	id := uuid.New().String()
	page := &notionapi.Page{ID: notionapi.ObjectID(id), URL: pageURL(id), Properties: props}
	d.pages = append(d.pages, page)
	return page
}

func (d *fakeDest) Schema(context.Context) (notion.Schema, error) {
	return d.schema, nil
}

func (d *fakeDest) Query(_ context.Context, filter notionapi.Filter) ([]notionapi.Page, error) {
	d.queries++
	var out []notionapi.Page
	for _, p := range d.pages {
		if !p.Archived && matches(filter, p) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (d *fakeDest) CreatePage(_ context.Context, props notionapi.Properties, _ []notionapi.Block) (*notionapi.Page, error) {
	d.created = append(d.created, props)
	page := d.addPage(props)
	return page, nil
}

func (d *fakeDest) find(pageID string) (*notionapi.Page, error) {
	for _, p := range d.pages {
		if p.ID.String() == pageID {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no page %s", pageID)
}

func (d *fakeDest) UpdatePage(_ context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	page, err := d.find(pageID)
	if err != nil {
		return nil, err
	}
	d.updates[pageID] = props
	for name, prop := range props {
		page.Properties[name] = prop
	}
	return page, nil
}

func (d *fakeDest) ArchivePage(_ context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	page, err := d.find(pageID)
	if err != nil {
		return nil, err
	}
	d.archived[pageID] = props
	for name, prop := range props {
		page.Properties[name] = prop
	}
	page.Archived = true
	return page, nil
}

func matches(filter notionapi.Filter, page *notionapi.Page) bool {
	switch f := filter.(type) {
	case nil:
		return true
	case notionapi.AndCompoundFilter:
		for _, sub := range f {
			if !matches(sub, page) {
				return false
			}
		}
		return true
	case notionapi.OrCompoundFilter:
		for _, sub := range f {
			if matches(sub, page) {
				return true
			}
		}
		return false
	case *notionapi.PropertyFilter:
		prop := page.Properties[f.Property]
		switch {
		case f.RichText != nil:
			text := notion.TextOf(prop)
			switch {
			case f.RichText.IsNotEmpty:
				return text != ""
			case f.RichText.IsEmpty:
				return text == ""
			default:
				return text == f.RichText.Equals
			}
		case f.Date != nil && f.Date.OnOrBefore != nil:
			d, ok := notion.DateOf(prop)
			if !ok {
				return false
			}
			return !day(d).After(day(time.Time(*f.Date.OnOrBefore)))
		}
	}
	return false
}

func day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
