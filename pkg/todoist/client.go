package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"google.golang.org/api/googleapi"
)

const DefaultBaseURL = "https://api.todoist.com/api/v1"

// completedWindow is how far back completed tasks are listed when no bound
// is given. The API rejects ranges longer than three months.
const completedWindow = 89 * 24 * time.Hour

// Client is a Todoist REST client. The http.Client is expected to carry the
// bearer token.
type Client struct {
	http     *http.Client
	baseURL  string
	pageSize int
	logger   *log.Logger
}

func NewClient(httpClient *http.Client, baseURL string, pageSize int, logger *log.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 100
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[todoist] ", log.LstdFlags)
	}
	return &Client{
		http:     httpClient,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		logger:   logger,
	}
}

// Tasks lists tasks. With IDs the listed tasks are fetched, completed ones
// only when IncludeCompleted is set. Without IDs every active task is listed,
// plus tasks completed since CompletedSince when IncludeCompleted is set.
func (c *Client) Tasks(ctx context.Context, q model.TaskQuery) ([]model.Task, error) {
	var wire []Task
	switch {
	case len(q.IDs) > 0 && q.IncludeCompleted:
		// the list endpoint only returns active tasks
		for _, id := range q.IDs {
			var t Task
			err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, nil, &t)
			if isNotFound(err) {
				c.logger.Printf("task %s no longer exists, skipping", id)
				continue
			}
			if err != nil {
				return nil, err
			}
			wire = append(wire, t)
		}
	case len(q.IDs) > 0:
		for _, ids := range util.Chunk(q.IDs, c.pageSize) {
			params := url.Values{"ids": {strings.Join(ids, ",")}}
			tasks, err := getPaged[Task](ctx, c, "/tasks", params)
			if err != nil {
				return nil, err
			}
			wire = append(wire, tasks...)
		}
	default:
		tasks, err := getPaged[Task](ctx, c, "/tasks", url.Values{})
		if err != nil {
			return nil, err
		}
		wire = tasks
		if q.IncludeCompleted {
			until := time.Now().UTC()
			since := q.CompletedSince
			if since.IsZero() || until.Sub(since) > completedWindow {
				since = until.Add(-completedWindow)
			}
			params := url.Values{
				"since": {since.UTC().Format(time.RFC3339)},
				"until": {until.Format(time.RFC3339)},
			}
			done, err := getPaged[Task](ctx, c, "/tasks/completed/by_completion_date", params)
			if err != nil {
				return nil, err
			}
			wire = append(wire, done...)
		}
	}

	out := make([]model.Task, 0, len(wire))
	for _, t := range wire {
		m := t.toModel()
		if m.IsCompleted && !q.IncludeCompleted {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Client) Labels(ctx context.Context) ([]model.Label, error) {
	wire, err := getPaged[Label](ctx, c, "/labels", url.Values{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Label, 0, len(wire))
	for _, l := range wire {
		out = append(out, model.Label{ID: l.ID, Name: l.Name})
	}
	return out, nil
}

func (c *Client) Projects(ctx context.Context) ([]model.Project, error) {
	wire, err := getPaged[Project](ctx, c, "/projects", url.Values{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Project, 0, len(wire))
	for _, p := range wire {
		out = append(out, model.Project{ID: p.ID, Name: p.Name})
	}
	return out, nil
}

// Comments lists the comments of a task, oldest first.
func (c *Client) Comments(ctx context.Context, taskID string) ([]model.Comment, error) {
	wire, err := getPaged[Comment](ctx, c, "/comments", url.Values{"task_id": {taskID}})
	if err != nil {
		return nil, err
	}
	out := make([]model.Comment, 0, len(wire))
	for _, cm := range wire {
		out = append(out, cm.toModel())
	}
	return out, nil
}

// Events lists activity log entries newer than since. A zero since lists the
// whole log.
func (c *Client) Events(ctx context.Context, objectType, eventType string, since time.Time) ([]model.Event, error) {
	params := url.Values{
		"object_type": {objectType},
		"event_type":  {eventType},
	}
	var out []model.Event
	err := c.paginate(ctx, "/activities", params, func(body []byte) (bool, string, error) {
		var p page[Event]
		if err := json.Unmarshal(body, &p); err != nil {
			return false, "", err
		}
		older := false
		for _, e := range p.Results {
			if !since.IsZero() && !e.EventDate.After(since) {
				// the log is newest first
				older = true
				continue
			}
			out = append(out, e.toModel())
		}
		return !older, p.NextCursor, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDescription replaces the description of a task.
func (c *Client) UpdateDescription(ctx context.Context, taskID, description string) error {
	body := map[string]string{"description": description}
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(taskID), nil, body, nil)
}

func getPaged[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	var out []T
	err := c.paginate(ctx, path, params, func(body []byte) (bool, string, error) {
		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return false, "", err
		}
		out = append(out, p.Results...)
		out = append(out, p.Items...)
		return true, p.NextCursor, nil
	})
	return out, err
}

// paginate follows next_cursor until it runs out or fn asks to stop.
func (c *Client) paginate(ctx context.Context, path string, params url.Values, fn func([]byte) (bool, string, error)) error {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("limit", strconv.Itoa(c.pageSize))
	for {
		var raw json.RawMessage
		if err := c.do(ctx, http.MethodGet, path, q, nil, &raw); err != nil {
			return err
		}
		more, cursor, err := fn(raw)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		if !more || cursor == "" {
			return nil
		}
		q.Set("cursor", cursor)
	}
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("todoist %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if err := googleapi.CheckResponse(res); err != nil {
		return fmt.Errorf("todoist %s %s: %w", method, path, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusNotFound
}
