package main

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/auth"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/config"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/index"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/labels"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/logging"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/mapping"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/pending"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/store"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/sync"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/todoist"
)

// app holds everything built once per process from the config.
type app struct {
	cfg      *config.Config
	location *time.Location
	logger   *logging.Logger
	todoist  *todoist.Client
	notion   *notion.Client
	journal  *store.Store
	manager  *sync.Manager
}

// newClients loads the config and connects both services.
func newClients(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogFile, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	httpClient, err := auth.NewClient(ctx, cfg.TodoistToken)
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		location: loc,
		logger:   logger,
		todoist:  todoist.NewClient(httpClient, todoist.DefaultBaseURL, cfg.PageSize, logger.Named("todoist")),
		notion:   notion.NewClient(cfg.NotionToken, cfg.TasksDatabaseID, cfg.PageSize, logger.Named("notion")),
	}, nil
}

// newApp additionally loads the mapping file, reads the database schema and
// opens the local state.
func newApp(ctx context.Context) (*app, error) {
	a, err := newClients(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	spec, err := mapping.LoadSpec(cfg.MappingFile)
	if err != nil {
		return err
	}
	if err := spec.Validate("content"); err != nil {
		return err
	}

	schema, err := a.notion.Schema(ctx)
	if err != nil {
		return err
	}

	var resolver mapping.LabelResolver
	if cfg.TagsDatabaseID != "" {
		resolver = labels.NewResolver(a.todoist, a.notion.Database(cfg.TagsDatabaseID), cfg.TagNameProperty, a.logger.Named("labels"))
	}
	engine := mapping.NewEngine(spec, schema, resolver, a.location, a.logger.Named("mapping"))
	engine.ConvertMarkdownLinks = cfg.ConvertMarkdownLinks

	idx, err := index.NewPageIndex(cfg.StateDir)
	if err != nil {
		a.logger.Printf("WARNING: failed to load page index: %v", err)
		idx = nil
	}
	table, err := pending.NewTable(cfg.StateDir)
	if err != nil {
		a.logger.Printf("WARNING: failed to load pending back-links: %v", err)
		table = nil
	}
	journal, err := store.New(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	a.journal = journal

	a.manager = sync.NewManager(a.todoist, a.notion, engine, sync.Options{
		SourceIDProperty: cfg.SourceIDProperty,
		SyncedProperty:   cfg.SyncedProperty,
		ParentProperty:   cfg.ParentProperty,
		TitleProperty:    cfg.TitleProperty,
		TaskURLTemplate:  cfg.TaskURLTemplate,
		BacklinkLabel:    cfg.BacklinkLabel,
		PageSize:         cfg.PageSize,
		Location:         a.location,
	}, a.logger.Named("sync")).WithJournal(journal)
	if idx != nil {
		a.manager.WithIndex(idx)
	}
	if table != nil {
		a.manager.WithPending(table)
	}
	return nil
}

func (a *app) Close() {
	if a.journal != nil {
		a.journal.Close()
	}
	a.logger.Close()
}
