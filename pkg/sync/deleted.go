package sync

import (
	"context"
	"errors"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/todoist"
	"github.com/jomei/notionapi"
)

// DeleteOptions tunes the delete pass.
type DeleteOptions struct {
	// Since overrides the journal watermark.
	Since time.Time
}

// SyncDeleted archives the pages of tasks deleted since the watermark. Only
// the Synced stamp is written alongside the archival.
func (m *Manager) SyncDeleted(ctx context.Context, opts DeleteOptions) (Report, error) {
	return m.run(ctx, PassDeleted, opts.Since, func(_, since time.Time) (Report, error) {
		var report Report
		defer m.saveState()

		events, err := m.source.Events(ctx, todoist.ObjectItem, todoist.EventDeleted, since)
		if err != nil {
			return report, &RemoteReadError{Pass: PassDeleted, Op: "fetch events", Err: err}
		}
		var ids []string
		seen := make(map[string]bool)
		for _, e := range events {
			if !seen[e.ObjectID] {
				seen[e.ObjectID] = true
				ids = append(ids, e.ObjectID)
			}
			if m.pending != nil {
				m.pending.Remove(e.ObjectID)
			}
		}
		if len(ids) == 0 {
			return report, nil
		}

		pages, err := m.queryByIDs(ctx, ids, func(id string) notionapi.Filter {
			return notion.RichTextEquals(m.opts.SourceIDProperty, id)
		})
		if err != nil {
			return report, &RemoteReadError{Pass: PassDeleted, Op: "query pages", Err: err}
		}

		var errs []error
		for i := range pages {
			page := &pages[i]
			id := m.sourceID(page)
			props := notionapi.Properties{m.opts.SyncedProperty: m.synced()}
			archived, err := m.dest.ArchivePage(ctx, page.ID.String(), props)
			if err != nil {
				werr := &RemoteWriteError{Op: "archive", TaskID: id, PageID: page.ID.String(), Payload: props, Err: err}
				m.logger.Printf("ERROR: %v", werr)
				errs = append(errs, werr)
				report.Stats.Failed++
				continue
			}
			if m.index != nil {
				m.index.Remove(id)
			}
			report.Stats.Archived++
			m.logger.Printf("Page %q was archived: %s", m.title(page), archived.URL)
		}
		return report, errors.Join(errs...)
	})
}
