package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/hierarchy"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/index"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/todoist"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/jomei/notionapi"
)

// CreateOptions tunes the create pass.
type CreateOptions struct {
	// All considers every task instead of the ones added since the watermark.
	All              bool
	IncludeCompleted bool
	// OverwriteBacklinks replaces stale back-links instead of keeping them.
	OverwriteBacklinks bool
	// Since overrides the journal watermark.
	Since time.Time
}

// createState is shared by the tasks of one create pass.
type createState struct {
	schema  notion.Schema
	byID    map[string]*model.Task
	linked  map[string]string // source id -> page id, pages that existed before the pass
	created map[string]string // source id -> page id, pages created by the pass
}

// SyncCreated creates a page for every candidate task that has none yet and
// writes the page link back into the task description. Parents are created
// before their children so the child can point at them.
func (m *Manager) SyncCreated(ctx context.Context, opts CreateOptions) (Report, error) {
	return m.run(ctx, PassCreated, opts.Since, func(started, since time.Time) (Report, error) {
		var report Report
		defer m.saveState()

		m.retryBacklinks(ctx, started)

		m.logger.Printf("Fetching tasks from the source...")
		tasks, err := m.candidates(ctx, opts, since)
		if err != nil {
			return report, &RemoteReadError{Pass: PassCreated, Op: "fetch tasks", Err: err}
		}
		m.logger.Printf("Fetched %d tasks", len(tasks))

		ordered, cyclic := hierarchy.SortDetectCycles(tasks)
		for _, t := range cyclic {
			m.logger.Printf("WARNING: task %s (%q) is part of a parent cycle, skipping", t.ID, t.Content)
			report.Stats.Skipped++
		}
		if len(ordered) == 0 {
			return report, nil
		}

		schema, err := m.dest.Schema(ctx)
		if err != nil {
			return report, &RemoteReadError{Pass: PassCreated, Op: "read schema", Err: err}
		}
		for _, name := range []string{m.opts.SourceIDProperty, m.opts.SyncedProperty} {
			if !schema.Has(name) {
				return report, fmt.Errorf("%s pass: database has no %q property", PassCreated, name)
			}
		}

		linkedPages, err := m.dest.Query(ctx, notion.RichTextIsNotEmpty(m.opts.SourceIDProperty))
		if err != nil {
			return report, &RemoteReadError{Pass: PassCreated, Op: "query linked pages", Err: err}
		}

		st := &createState{
			schema:  schema,
			byID:    make(map[string]*model.Task, len(ordered)),
			linked:  make(map[string]string, len(linkedPages)),
			created: make(map[string]string),
		}
		for i := range linkedPages {
			page := &linkedPages[i]
			id := m.sourceID(page)
			st.linked[id] = page.ID.String()
			if m.index != nil {
				m.index.Set(id, index.Page{PageID: page.ID.String(), URL: page.URL})
			}
		}
		m.logger.Printf("Found %d linked pages", len(linkedPages))

		var todo []model.Task
		for i := range ordered {
			st.byID[ordered[i].ID] = &ordered[i]
			if _, ok := st.linked[ordered[i].ID]; ok {
				report.Stats.Skipped++
				continue
			}
			todo = append(todo, ordered[i])
		}
		m.attachComments(ctx, todo)

		var errs []error
		for i := range todo {
			task := &todo[i]
			page, err := m.createPage(ctx, task, st)
			if err != nil {
				m.logger.Printf("ERROR: %v", err)
				errs = append(errs, err)
				report.Stats.Failed++
				continue
			}
			report.Stats.Created++
			report.Created = append(report.Created, task.ID)

			if err := m.writeBacklink(ctx, task, page.ID.String(), page.URL, opts.OverwriteBacklinks, started); err != nil {
				errs = append(errs, err)
			}
		}
		return report, errors.Join(errs...)
	})
}

// candidates returns every task, or the tasks added since the watermark.
func (m *Manager) candidates(ctx context.Context, opts CreateOptions, since time.Time) ([]model.Task, error) {
	if opts.All {
		return m.source.Tasks(ctx, model.TaskQuery{IncludeCompleted: opts.IncludeCompleted})
	}

	events, err := m.source.Events(ctx, todoist.ObjectItem, todoist.EventAdded, since)
	if err != nil {
		return nil, err
	}
	var ids []string
	seen := make(map[string]bool)
	for _, e := range events {
		if !seen[e.ObjectID] {
			seen[e.ObjectID] = true
			ids = append(ids, e.ObjectID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return m.source.Tasks(ctx, model.TaskQuery{IDs: ids, IncludeCompleted: opts.IncludeCompleted})
}

func (m *Manager) createPage(ctx context.Context, task *model.Task, st *createState) (*notionapi.Page, error) {
	props, blocks := m.mapper.MapTask(ctx, task)
	if props == nil {
		props = notionapi.Properties{}
	}
	props[m.opts.SourceIDProperty] = notion.LinkText(task.ID, m.taskURL(task.ID))
	props[m.opts.SyncedProperty] = m.synced()

	if task.ParentID != "" {
		if parentID, ok := m.parentPage(ctx, task.ParentID, st); ok {
			if st.schema.Has(m.opts.ParentProperty) {
				props[m.opts.ParentProperty] = notion.Relation(parentID)
			}
		} else {
			m.logger.Printf("WARNING: task %s: parent %s has no page yet, creating without parent", task.ID, task.ParentID)
		}
	}

	page, err := m.dest.CreatePage(ctx, props, blocks)
	if err != nil {
		return nil, &RemoteWriteError{Op: "create", TaskID: task.ID, Payload: props, Err: err}
	}
	pageID := page.ID.String()
	st.created[task.ID] = pageID
	task.PageURL = page.URL
	if m.index != nil {
		m.index.Set(task.ID, index.Page{PageID: pageID, URL: page.URL})
	}
	m.logger.Printf("Page created for %q: %s", task.Content, page.URL)
	return page, nil
}

// parentPage finds the page of a parent task: one created earlier in this
// pass, the back-link in the parent's description, a linked page, the local
// index, and finally the parent fetched from the source.
func (m *Manager) parentPage(ctx context.Context, parentID string, st *createState) (string, bool) {
	if id, ok := st.created[parentID]; ok {
		return id, true
	}
	if parent, ok := st.byID[parentID]; ok {
		if id, ok := util.ExtractNotionPageID(parent.Description); ok {
			return util.NormalizePageID(id), true
		}
	}
	if id, ok := st.linked[parentID]; ok {
		return id, true
	}
	if m.index != nil {
		if p, ok := m.index.Get(parentID); ok {
			return p.PageID, true
		}
	}
	if _, fetched := st.byID[parentID]; fetched {
		return "", false
	}

	tasks, err := m.source.Tasks(ctx, model.TaskQuery{IDs: []string{parentID}, IncludeCompleted: true})
	if err != nil {
		m.logger.Printf("WARNING: could not fetch parent task %s: %v", parentID, err)
		return "", false
	}
	parent := &model.Task{ID: parentID}
	if len(tasks) > 0 {
		parent = &tasks[0]
	}
	st.byID[parentID] = parent
	if id, ok := util.ExtractNotionPageID(parent.Description); ok {
		return util.NormalizePageID(id), true
	}
	return "", false
}

// writeBacklink merges the page link into the task description. A failed
// write is parked in the pending table for the next pass.
func (m *Manager) writeBacklink(ctx context.Context, task *model.Task, pageID, url string, overwrite bool, now time.Time) error {
	if url == "" {
		m.logger.Printf("WARNING: task %q has no page reference", task.Content)
		return nil
	}
	description, changed := util.MergeBacklink(task.Description, url, m.opts.BacklinkLabel, overwrite)
	if !changed {
		if m.pending != nil {
			m.pending.Remove(task.ID)
		}
		return nil
	}
	if err := m.source.UpdateDescription(ctx, task.ID, description); err != nil {
		if m.pending != nil {
			m.logger.Printf("WARNING: task %s: back-link write failed, retrying next pass: %v", task.ID, err)
			m.pending.Update(task.ID, pageID, url, now)
			return nil
		}
		return fmt.Errorf("task %s: write back-link: %w", task.ID, err)
	}
	task.Description = description
	if m.pending != nil {
		m.pending.Remove(task.ID)
	}
	return nil
}

// retryBacklinks writes back-links parked by earlier passes.
func (m *Manager) retryBacklinks(ctx context.Context, now time.Time) {
	if m.pending == nil {
		return
	}
	entries := m.pending.Sweep(now)
	if len(entries) == 0 {
		return
	}
	m.logger.Printf("Retrying %d pending back-links", len(entries))

	for _, e := range entries {
		tasks, err := m.source.Tasks(ctx, model.TaskQuery{IDs: []string{e.TaskID}, IncludeCompleted: true})
		if err != nil {
			m.logger.Printf("WARNING: task %s: %v", e.TaskID, err)
			m.pending.Restore(e)
			continue
		}
		if len(tasks) == 0 {
			m.logger.Printf("Task %s is gone, dropping its pending back-link", e.TaskID)
			continue
		}
		// a second failure counts as another attempt of the same entry
		m.pending.Restore(e)
		if err := m.writeBacklink(ctx, &tasks[0], e.PageID, e.URL, false, e.Since); err != nil {
			m.logger.Printf("WARNING: %v", err)
		}
		if _, stillPending := m.pending.Entries[e.TaskID]; !stillPending {
			m.logger.Printf("Back-link written for task %s", e.TaskID)
		}
	}
}
