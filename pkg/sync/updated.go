package sync

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/todoist"
	"github.com/jomei/notionapi"
)

// UpdateOptions tunes the update pass.
type UpdateOptions struct {
	IncludeCompleted bool
	// Since overrides the journal watermark.
	Since time.Time
}

// SyncUpdated patches pages of tasks changed since the watermark. Only
// watched fields whose value differs are written, and a page whose Synced
// stamp is not older than the change is left alone. Tasks added in the
// window need no special casing: their page was stamped when it was created,
// so only edits made after that are written.
func (m *Manager) SyncUpdated(ctx context.Context, opts UpdateOptions) (Report, error) {
	return m.run(ctx, PassUpdated, opts.Since, func(_, since time.Time) (Report, error) {
		var report Report

		changedAt, err := m.changedTasks(ctx, opts.IncludeCompleted, since)
		if err != nil {
			return report, &RemoteReadError{Pass: PassUpdated, Op: "fetch events", Err: err}
		}
		if len(changedAt) == 0 {
			return report, nil
		}

		ids := make([]string, 0, len(changedAt))
		for id := range changedAt {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		tasks, err := m.source.Tasks(ctx, model.TaskQuery{IDs: ids, IncludeCompleted: opts.IncludeCompleted})
		if err != nil {
			return report, &RemoteReadError{Pass: PassUpdated, Op: "fetch tasks", Err: err}
		}
		m.attachComments(ctx, tasks)
		byID := make(map[string]*model.Task, len(tasks))
		taskIDs := make([]string, 0, len(tasks))
		for i := range tasks {
			byID[tasks[i].ID] = &tasks[i]
			taskIDs = append(taskIDs, tasks[i].ID)
		}

		// the date condition only has day granularity on the remote side
		pages, err := m.queryByIDs(ctx, taskIDs, func(id string) notionapi.Filter {
			return notion.And(
				notion.RichTextEquals(m.opts.SourceIDProperty, id),
				notion.DateOnOrBefore(m.opts.SyncedProperty, changedAt[id]),
			)
		})
		if err != nil {
			return report, &RemoteReadError{Pass: PassUpdated, Op: "query pages", Err: err}
		}

		var errs []error
		for i := range pages {
			page := &pages[i]
			id := m.sourceID(page)
			task, ok := byID[id]
			if !ok {
				continue
			}
			if syncedAt, ok := notion.DateOf(page.Properties[m.opts.SyncedProperty]); ok && !syncedAt.Before(changedAt[id]) {
				report.Stats.Skipped++
				continue
			}

			patch := m.mapper.UpdateProperties(ctx, page, task, m.opts.WatchedFields)
			if len(patch) == 0 {
				report.Stats.Skipped++
				continue
			}
			patch[m.opts.SyncedProperty] = m.synced()

			updated, err := m.dest.UpdatePage(ctx, page.ID.String(), patch)
			if err != nil {
				werr := &RemoteWriteError{Op: "update", TaskID: id, PageID: page.ID.String(), Payload: patch, Err: err}
				m.logger.Printf("ERROR: %v", werr)
				errs = append(errs, werr)
				report.Stats.Failed++
				continue
			}
			report.Stats.Updated++
			m.logger.Printf("Page %q was updated: %s", m.title(page), updated.URL)
		}
		return report, errors.Join(errs...)
	})
}

// changedTasks returns the latest change time per task id since the
// watermark.
func (m *Manager) changedTasks(ctx context.Context, includeCompleted bool, since time.Time) (map[string]time.Time, error) {
	eventTypes := []string{todoist.EventUpdated}
	if includeCompleted {
		eventTypes = append(eventTypes, todoist.EventCompleted)
	}

	changedAt := make(map[string]time.Time)
	for _, eventType := range eventTypes {
		events, err := m.source.Events(ctx, todoist.ObjectItem, eventType, since)
		if err != nil {
			return nil, err
		}
		for _, e := range events {
			if e.EventDate.After(changedAt[e.ObjectID]) {
				changedAt[e.ObjectID] = e.EventDate
			}
		}
	}
	return changedAt, nil
}
