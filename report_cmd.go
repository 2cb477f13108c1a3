package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/config"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/index"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/pending"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/store"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func failedText(n int) string {
	text := fmt.Sprintf("failed %d", n)
	if n > 0 {
		return errStyle.Render(text)
	}
	return text
}

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "List Todoist projects and labels and the tasks database schema",
	Long: `Print the ids needed to write a mapping file: Todoist projects and labels,
and the property names and types of the Notion tasks database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newClients(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.todoist.Projects(ctx)
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("Todoist projects"))
		for _, p := range projects {
			fmt.Printf("  %s %s\n", p.Name, dimStyle.Render(p.ID))
		}

		labels, err := a.todoist.Labels(ctx)
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("Todoist labels"))
		for _, l := range labels {
			fmt.Printf("  %s %s\n", l.Name, dimStyle.Render(l.ID))
		}

		title, err := a.notion.Title(ctx)
		if err != nil {
			return err
		}
		schema, err := a.notion.Schema(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n", headerStyle.Render("Tasks database"), title, dimStyle.Render(a.notion.DatabaseID()))
		for _, name := range schema.Names() {
			kind := schema[name]
			if _, ok := schema.Kind(name); !ok {
				kind = dimStyle.Render(kind + " (read only)")
			}
			fmt.Printf("  %-24s %s\n", name, kind)
		}
		return nil
	},
}

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and outstanding back-links",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		journal, err := store.New(cfg.StateDir)
		if err != nil {
			return err
		}
		defer journal.Close()

		runs, err := journal.RecentRuns(ctx, statusLimit)
		if err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("Recent runs"))
		if len(runs) == 0 {
			fmt.Println(dimStyle.Render("  no runs yet"))
		}
		for _, r := range runs {
			fmt.Printf("  %s %-8s %s  %s\n",
				r.StartedAt.Local().Format(time.DateTime), r.Pass, statusText(r), runCounts(r.Stats))
			if r.Error != "" {
				fmt.Println("    " + errStyle.Render(firstLine(r.Error)))
			}
		}

		idx, err := index.NewPageIndex(cfg.StateDir)
		if err != nil {
			return err
		}
		table, err := pending.NewTable(cfg.StateDir)
		if err != nil {
			return err
		}
		fmt.Printf("%s %d\n", headerStyle.Render("Indexed pages"), idx.Len())
		fmt.Printf("%s %d\n", headerStyle.Render("Pending back-links"), table.Len())
		for _, e := range table.Entries {
			fmt.Printf("  task %s -> %s %s\n", e.TaskID, e.URL, dimStyle.Render(fmt.Sprintf("(%d attempts)", e.Attempts)))
		}
		return nil
	},
}

func statusText(r store.Run) string {
	switch r.Status {
	case store.StatusOK:
		return okStyle.Render(fmt.Sprintf("%-7s", r.Status))
	case store.StatusFailed:
		return errStyle.Render(fmt.Sprintf("%-7s", r.Status))
	default:
		return dimStyle.Render(fmt.Sprintf("%-7s", r.Status))
	}
}

func runCounts(s store.Stats) string {
	return fmt.Sprintf("+%d ~%d -%d skipped %d %s", s.Created, s.Updated, s.Archived, s.Skipped, failedText(s.Failed))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the defaults and current environment",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return err
			}
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		// keep the mapping file relative to the config directory
		if filepath.Dir(cfg.MappingFile) == filepath.Dir(path) {
			cfg.MappingFile = filepath.Base(cfg.MappingFile)
		}
		if err := config.Save(cfg, path); err != nil {
			return err
		}
		fmt.Printf("Config written to %s\n", path)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "number of runs to show")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}
