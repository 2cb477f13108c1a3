package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/index"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/pending"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/store"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

// Pass names, also used as journal keys.
const (
	PassCreated = "created"
	PassUpdated = "updated"
	PassDeleted = "deleted"
)

// DefaultWatchedFields are compared by the update pass.
var DefaultWatchedFields = []string{"content", "due.date", "is_completed", "priority", "comments"}

// Source is the task system the sync reads from.
type Source interface {
	Tasks(ctx context.Context, q model.TaskQuery) ([]model.Task, error)
	Comments(ctx context.Context, taskID string) ([]model.Comment, error)
	Events(ctx context.Context, objectType, eventType string, since time.Time) ([]model.Event, error)
	UpdateDescription(ctx context.Context, taskID, description string) error
}

// Destination is the database pages are written to.
type Destination interface {
	Schema(ctx context.Context) (notion.Schema, error)
	Query(ctx context.Context, filter notionapi.Filter) ([]notionapi.Page, error)
	CreatePage(ctx context.Context, props notionapi.Properties, children []notionapi.Block) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error)
	ArchivePage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error)
}

// Mapper converts tasks into page properties.
type Mapper interface {
	MapTask(ctx context.Context, task *model.Task) (notionapi.Properties, []notionapi.Block)
	UpdateProperties(ctx context.Context, page *notionapi.Page, task *model.Task, fields []string) notionapi.Properties
}

// Journal records runs and provides the per-pass watermark.
type Journal interface {
	BeginRun(ctx context.Context, pass string, started time.Time) (string, error)
	FinishRun(ctx context.Context, id string, finished time.Time, stats store.Stats, runErr error) error
	LastSuccessfulRun(ctx context.Context, pass string) (time.Time, bool, error)
}

// Options names the bookkeeping properties and tunes the passes.
type Options struct {
	SourceIDProperty string
	SyncedProperty   string
	ParentProperty   string
	TitleProperty    string
	TaskURLTemplate  string
	BacklinkLabel    string
	PageSize         int
	Location         *time.Location
	WatchedFields    []string
}

func (o *Options) setDefaults() {
	if o.SourceIDProperty == "" {
		o.SourceIDProperty = "SourceTaskId"
	}
	if o.SyncedProperty == "" {
		o.SyncedProperty = "Synced"
	}
	if o.ParentProperty == "" {
		o.ParentProperty = "Parent item"
	}
	if o.TitleProperty == "" {
		o.TitleProperty = "Name"
	}
	if o.TaskURLTemplate == "" {
		o.TaskURLTemplate = "https://todoist.com/showTask?id=%s"
	}
	if o.BacklinkLabel == "" {
		o.BacklinkLabel = "Notion"
	}
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if len(o.WatchedFields) == 0 {
		o.WatchedFields = DefaultWatchedFields
	}
}

// Manager runs the create, update and delete passes.
type Manager struct {
	source  Source
	dest    Destination
	mapper  Mapper
	opts    Options
	logger  *log.Logger
	index   *index.PageIndex
	pending *pending.Table
	journal Journal

	now func() time.Time
}

// NewManager wires a manager. The page index, pending table and journal are
// optional and can be attached with the With methods.
func NewManager(source Source, dest Destination, mapper Mapper, opts Options, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	opts.setDefaults()
	return &Manager{
		source: source,
		dest:   dest,
		mapper: mapper,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

func (m *Manager) WithIndex(idx *index.PageIndex) *Manager {
	m.index = idx
	return m
}

func (m *Manager) WithPending(t *pending.Table) *Manager {
	m.pending = t
	return m
}

func (m *Manager) WithJournal(j Journal) *Manager {
	m.journal = j
	return m
}

// Report summarises one pass.
type Report struct {
	Pass  string
	Stats store.Stats
	// Created lists the source ids that received a page.
	Created []string
}

// SyncAll runs created, then updated, then deleted. A failing pass does not
// stop the ones after it.
func (m *Manager) SyncAll(ctx context.Context) ([]Report, error) {
	var reports []Report
	var errs []error

	created, err := m.SyncCreated(ctx, CreateOptions{})
	reports = append(reports, created)
	if err != nil {
		errs = append(errs, err)
	}

	updated, err := m.SyncUpdated(ctx, UpdateOptions{IncludeCompleted: true})
	reports = append(reports, updated)
	if err != nil {
		errs = append(errs, err)
	}

	deleted, err := m.SyncDeleted(ctx, DeleteOptions{})
	reports = append(reports, deleted)
	if err != nil {
		errs = append(errs, err)
	}

	return reports, errors.Join(errs...)
}

// run wraps a pass in a journal entry. The pass receives its start time and
// the watermark: since when given, otherwise the start of the last
// successful run of the same pass.
func (m *Manager) run(ctx context.Context, pass string, since time.Time, fn func(started, since time.Time) (Report, error)) (Report, error) {
	started := m.now()

	if since.IsZero() && m.journal != nil {
		last, ok, err := m.journal.LastSuccessfulRun(ctx, pass)
		if err != nil {
			m.logger.Printf("WARNING: could not read the %s watermark: %v", pass, err)
		} else if ok {
			since = last
		}
	}

	var runID string
	if m.journal != nil {
		id, err := m.journal.BeginRun(ctx, pass, started)
		if err != nil {
			m.logger.Printf("WARNING: could not journal the %s pass: %v", pass, err)
		}
		runID = id
	}

	report, err := fn(started, since)
	report.Pass = pass

	if runID != "" {
		if jErr := m.journal.FinishRun(ctx, runID, m.now(), report.Stats, err); jErr != nil {
			m.logger.Printf("WARNING: could not close the %s run: %v", pass, jErr)
		}
	}

	s := report.Stats
	m.logger.Printf("%s pass: %d created, %d updated, %d archived, %d skipped, %d failed",
		pass, s.Created, s.Updated, s.Archived, s.Skipped, s.Failed)
	return report, err
}

// synced returns the watermark property stamped on every write.
func (m *Manager) synced() notionapi.Property {
	return notion.DateValue(util.Timestamp(m.now(), m.opts.Location))
}

func (m *Manager) taskURL(taskID string) string {
	return fmt.Sprintf(m.opts.TaskURLTemplate, taskID)
}

// sourceID reads the source task id a page is linked to.
func (m *Manager) sourceID(page *notionapi.Page) string {
	return notion.TextOf(page.Properties[m.opts.SourceIDProperty])
}

func (m *Manager) title(page *notionapi.Page) string {
	return notion.TextOf(page.Properties[m.opts.TitleProperty])
}

// queryByIDs looks pages up by source id, in chunks of the page size. cond
// may narrow each id with further conditions.
func (m *Manager) queryByIDs(ctx context.Context, ids []string, cond func(id string) notionapi.Filter) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	for _, chunk := range util.Chunk(ids, m.opts.PageSize) {
		filters := make([]notionapi.Filter, 0, len(chunk))
		for _, id := range chunk {
			filters = append(filters, cond(id))
		}
		res, err := m.dest.Query(ctx, notion.Or(filters...))
		if err != nil {
			return nil, err
		}
		pages = append(pages, res...)
	}
	return pages, nil
}

// attachComments loads comments of tasks that have any. A failure leaves
// the task without comments.
func (m *Manager) attachComments(ctx context.Context, tasks []model.Task) {
	for i := range tasks {
		if tasks[i].CommentCount == 0 || tasks[i].Comments != nil {
			continue
		}
		comments, err := m.source.Comments(ctx, tasks[i].ID)
		if err != nil {
			m.logger.Printf("WARNING: task %s: could not fetch comments: %v", tasks[i].ID, err)
			continue
		}
		tasks[i].Comments = comments
	}
}

func (m *Manager) saveState() {
	if m.index != nil {
		if err := m.index.Save(); err != nil {
			m.logger.Printf("WARNING: failed to save page index: %v", err)
		}
	}
	if m.pending != nil {
		if err := m.pending.Save(); err != nil {
			m.logger.Printf("WARNING: failed to save pending back-links: %v", err)
		}
	}
}
