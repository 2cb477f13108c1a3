package todoist

import (
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
)

const (
	EventAdded     = "added"
	EventUpdated   = "updated"
	EventCompleted = "completed"
	EventDeleted   = "deleted"

	ObjectItem = "item"
	ObjectNote = "note"
)

type CustomTime struct {
	time.Time
}

// UnmarshalJSON implements the json.Unmarshaler interface for CustomTime.
func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		ct.Time = time.Time{}
		return nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// some endpoints drop the zone designator
		t, err = time.Parse("2006-01-02T15:04:05.999999", s)
		if err != nil {
			return fmt.Errorf("failed to parse Todoist time string '%s': %w", s, err)
		}
	}
	ct.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface for CustomTime.
func (ct CustomTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + ct.Time.Format(time.RFC3339Nano) + `"`), nil
}

type Due struct {
	Date        string `json:"date"`
	String      string `json:"string"`
	IsRecurring bool   `json:"is_recurring"`
	Timezone    string `json:"timezone,omitempty"`
}

// Task is the wire form of a task. Older payloads use is_completed and
// comment_count, newer ones checked and note_count; both are accepted.
type Task struct {
	ID           string     `json:"id"`
	ParentID     *string    `json:"parent_id"`
	Content      string     `json:"content"`
	Description  string     `json:"description"`
	Checked      bool       `json:"checked"`
	IsCompleted  bool       `json:"is_completed"`
	Priority     int        `json:"priority"`
	Due          *Due       `json:"due"`
	Labels       []string   `json:"labels"`
	ProjectID    string     `json:"project_id"`
	NoteCount    int        `json:"note_count"`
	CommentCount int        `json:"comment_count"`
	AddedAt      CustomTime `json:"added_at"`
}

func (t Task) toModel() model.Task {
	out := model.Task{
		ID:           t.ID,
		Content:      t.Content,
		Description:  t.Description,
		IsCompleted:  t.Checked || t.IsCompleted,
		Priority:     t.Priority,
		Labels:       t.Labels,
		ProjectID:    t.ProjectID,
		CommentCount: t.NoteCount,
		AddedAt:      t.AddedAt.Time,
	}
	if t.ParentID != nil {
		out.ParentID = *t.ParentID
	}
	if t.CommentCount > out.CommentCount {
		out.CommentCount = t.CommentCount
	}
	if t.Due != nil {
		out.Due = &model.Due{
			Date:        t.Due.Date,
			String:      t.Due.String,
			IsRecurring: t.Due.IsRecurring,
			Timezone:    t.Due.Timezone,
		}
	}
	return out
}

type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Comment struct {
	ID       string     `json:"id"`
	ItemID   string     `json:"item_id"`
	TaskID   string     `json:"task_id"`
	Content  string     `json:"content"`
	PostedAt CustomTime `json:"posted_at"`
}

func (c Comment) toModel() model.Comment {
	taskID := c.ItemID
	if taskID == "" {
		taskID = c.TaskID
	}
	return model.Comment{ID: c.ID, TaskID: taskID, Content: c.Content, PostedAt: c.PostedAt.Time}
}

type Event struct {
	ID           string     `json:"id"`
	ObjectType   string     `json:"object_type"`
	ObjectID     string     `json:"object_id"`
	V2ObjectID   string     `json:"v2_object_id"`
	EventType    string     `json:"event_type"`
	EventDate    CustomTime `json:"event_date"`
	ParentItemID string     `json:"parent_item_id"`
}

func (e Event) toModel() model.Event {
	id := e.ObjectID
	if e.V2ObjectID != "" {
		id = e.V2ObjectID
	}
	return model.Event{
		ID:         e.ID,
		ObjectType: e.ObjectType,
		ObjectID:   id,
		EventType:  e.EventType,
		EventDate:  e.EventDate.Time,
		ParentID:   e.ParentItemID,
	}
}

// page is the envelope of every cursor-paginated list endpoint.
type page[T any] struct {
	Results    []T    `json:"results"`
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
}
