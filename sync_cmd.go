package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/sync"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/util"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
)

var (
	syncInterval time.Duration

	createdAll       bool
	createdCompleted bool
	createdOverwrite bool
	createdSince     string

	updatedCompleted bool
	updatedSince     string

	deletedSince string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the created, updated and deleted passes",
	Long: `Run one sync cycle: create pages for new tasks, patch pages of changed
tasks, then archive pages of deleted tasks. A failing pass does not stop the
others. With --interval the cycle repeats until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			for {
				reports, err := a.manager.SyncAll(ctx)
				printReports(reports)
				if err != nil {
					a.logger.Printf("ERROR: %v", err)
				}
				if syncInterval <= 0 {
					return err
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(syncInterval):
				}
			}
		})
	},
}

var syncCreatedCmd = &cobra.Command{
	Use:   "created",
	Short: "Create pages for tasks that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			since, err := parseSince(createdSince, time.Now(), a.location)
			if err != nil {
				return err
			}
			report, err := a.manager.SyncCreated(ctx, sync.CreateOptions{
				All:                createdAll,
				IncludeCompleted:   createdCompleted,
				OverwriteBacklinks: createdOverwrite,
				Since:              since,
			})
			printReports([]sync.Report{report})
			return err
		})
	},
}

var syncUpdatedCmd = &cobra.Command{
	Use:   "updated",
	Short: "Patch pages of tasks changed since the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			since, err := parseSince(updatedSince, time.Now(), a.location)
			if err != nil {
				return err
			}
			report, err := a.manager.SyncUpdated(ctx, sync.UpdateOptions{
				IncludeCompleted: updatedCompleted,
				Since:            since,
			})
			printReports([]sync.Report{report})
			return err
		})
	},
}

var syncDeletedCmd = &cobra.Command{
	Use:   "deleted",
	Short: "Archive pages of deleted tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			since, err := parseSince(deletedSince, time.Now(), a.location)
			if err != nil {
				return err
			}
			report, err := a.manager.SyncDeleted(ctx, sync.DeleteOptions{Since: since})
			printReports([]sync.Report{report})
			return err
		})
	},
}

func init() {
	syncCmd.Flags().DurationVar(&syncInterval, "interval", 0, "repeat the cycle at this interval (e.g. 60s)")

	syncCreatedCmd.Flags().BoolVar(&createdAll, "all", false, "consider every task, not only recently added ones")
	syncCreatedCmd.Flags().BoolVar(&createdCompleted, "completed", false, "include completed tasks")
	syncCreatedCmd.Flags().BoolVar(&createdOverwrite, "overwrite-backlinks", false, "replace stale page links in descriptions")
	syncCreatedCmd.Flags().StringVar(&createdSince, "since", "", `window start, e.g. "2024-03-01" or "3 days ago"`)

	syncUpdatedCmd.Flags().BoolVar(&updatedCompleted, "completed", true, "include completion events")
	syncUpdatedCmd.Flags().StringVar(&updatedSince, "since", "", "window start, overrides the last run")

	syncDeletedCmd.Flags().StringVar(&deletedSince, "since", "", "window start, overrides the last run")

	syncCmd.AddCommand(syncCreatedCmd)
	syncCmd.AddCommand(syncUpdatedCmd)
	syncCmd.AddCommand(syncDeletedCmd)
}

// withApp builds the app and runs fn with a context cancelled on SIGINT or
// SIGTERM.
func withApp(parent context.Context, fn func(ctx context.Context, a *app) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// parseSince accepts a date or timestamp, or a phrase like "3 days ago".
// An empty string means the journal watermark.
func parseSince(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := util.ParseDate(s, loc); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now.In(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q", s)
	}
	return r.Time, nil
}

func printReports(reports []sync.Report) {
	for _, r := range reports {
		s := r.Stats
		fmt.Printf("%s %s\n", headerStyle.Render(fmt.Sprintf("%-8s", r.Pass)),
			fmt.Sprintf("created %d  updated %d  archived %d  skipped %d  %s",
				s.Created, s.Updated, s.Archived, s.Skipped, failedText(s.Failed)))
	}
}
