package model

import "time"

// Task represents a task read from the source system.
type Task struct {
	ID           string
	ParentID     string // empty for root tasks
	Content      string
	Description  string
	IsCompleted  bool
	Priority     int // 1 (normal) to 4 (urgent)
	Due          *Due
	Labels       []string
	ProjectID    string
	CommentCount int
	AddedAt      time.Time
	Comments     []Comment
	// PageURL is set once the task has a destination page.
	PageURL string
}

// Due is the structured due date of a task.
type Due struct {
	Date        string // YYYY-MM-DD or a floating/UTC datetime
	String      string // human readable form, e.g. "every monday"
	IsRecurring bool
	Timezone    string
}

type Comment struct {
	ID       string
	TaskID   string
	Content  string
	PostedAt time.Time
}

type Label struct {
	ID   string
	Name string
}

type Project struct {
	ID   string
	Name string
}

// Event is one entry of the source activity log.
type Event struct {
	ID         string
	ObjectType string // "item", "note", ...
	ObjectID   string
	EventType  string // "added", "updated", "completed", "deleted", ...
	EventDate  time.Time
	ParentID   string
}

// TaskQuery selects tasks to fetch. An empty IDs list means every task.
type TaskQuery struct {
	IDs              []string
	IncludeCompleted bool
	// CompletedSince bounds the completed tasks listed when IDs is empty.
	CompletedSince time.Time
}

// Fields lists the dotted paths Field understands.
var Fields = []string{
	"id",
	"parent_id",
	"content",
	"description",
	"is_completed",
	"priority",
	"due.date",
	"due.string",
	"due.is_recurring",
	"labels",
	"project_id",
	"comment_count",
	"comments",
}

// IsField reports whether path is one of the supported Field paths.
func IsField(path string) bool {
	for _, f := range Fields {
		if f == path {
			return true
		}
	}
	return false
}

// Field returns the values stored under a dotted path. Scalars come back as a
// one element slice, list fields (labels, comments) as one element per entry.
// Empty strings, empty lists and a missing due date yield no values.
func (t *Task) Field(path string) ([]any, bool) {
	switch path {
	case "id":
		return nonEmpty(t.ID), true
	case "parent_id":
		return nonEmpty(t.ParentID), true
	case "content":
		return nonEmpty(t.Content), true
	case "description":
		return nonEmpty(t.Description), true
	case "is_completed":
		return []any{t.IsCompleted}, true
	case "priority":
		return []any{t.Priority}, true
	case "due.date":
		if t.Due == nil {
			return nil, true
		}
		return nonEmpty(t.Due.Date), true
	case "due.string":
		if t.Due == nil {
			return nil, true
		}
		return nonEmpty(t.Due.String), true
	case "due.is_recurring":
		if t.Due == nil {
			return nil, true
		}
		return []any{t.Due.IsRecurring}, true
	case "labels":
		values := make([]any, 0, len(t.Labels))
		for _, l := range t.Labels {
			values = append(values, l)
		}
		return values, true
	case "project_id":
		return nonEmpty(t.ProjectID), true
	case "comment_count":
		return []any{t.CommentCount}, true
	case "comments":
		values := make([]any, 0, len(t.Comments))
		for _, c := range t.Comments {
			if c.Content != "" {
				values = append(values, c.Content)
			}
		}
		return values, true
	}
	return nil, false
}

func nonEmpty(s string) []any {
	if s == "" {
		return nil
	}
	return []any{s}
}
