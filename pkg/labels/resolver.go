package labels

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/harrisonrobin/todoist-notion-sync/pkg/model"
	"github.com/harrisonrobin/todoist-notion-sync/pkg/notion"
	"github.com/jomei/notionapi"
)

// LabelSource lists the labels of the source system.
type LabelSource interface {
	Labels(ctx context.Context) ([]model.Label, error)
}

// TagQuerier reads the pages of the tags database.
type TagQuerier interface {
	Query(ctx context.Context, filter notionapi.Filter) ([]notionapi.Page, error)
}

// Resolver joins source labels and tag pages on their shared name. The join
// is built on first successful use and kept for the lifetime of the resolver.
type Resolver struct {
	source       LabelSource
	tags         TagQuerier
	nameProperty string
	logger       *log.Logger

	mu     sync.Mutex
	built  bool
	byID   map[string]string // label id -> tag page id
	byName map[string]string // label name -> tag page id
}

// NewResolver builds a resolver matching label names against the plain text
// of nameProperty on each tag page.
func NewResolver(source LabelSource, tags TagQuerier, nameProperty string, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(os.Stderr, "[labels] ", log.LstdFlags)
	}
	return &Resolver{source: source, tags: tags, nameProperty: nameProperty, logger: logger}
}

// Resolve returns the label id to tag page id map.
func (r *Resolver) Resolve(ctx context.Context) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.built {
		if err := r.build(ctx); err != nil {
			return nil, err
		}
		r.built = true
	}
	return r.byID, nil
}

// Lookup finds the tag page of a label given by id or by name.
func (r *Resolver) Lookup(ctx context.Context, label string) (string, bool, error) {
	byID, err := r.Resolve(ctx)
	if err != nil {
		return "", false, err
	}
	if id, ok := byID[label]; ok {
		return id, true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[label]
	return id, ok, nil
}

func (r *Resolver) build(ctx context.Context) error {
	labels, err := r.source.Labels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}
	pages, err := r.tags.Query(ctx, notion.RichTextIsNotEmpty(r.nameProperty))
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}

	tagByName := make(map[string]string, len(pages))
	for _, p := range pages {
		name := strings.TrimSpace(notion.TextOf(p.Properties[r.nameProperty]))
		if name == "" {
			continue
		}
		if prev, dup := tagByName[name]; dup {
			r.logger.Printf("WARNING: tag %q is used by pages %s and %s, keeping the first", name, prev, p.ID)
			continue
		}
		tagByName[name] = p.ID.String()
	}

	byID := make(map[string]string)
	byName := make(map[string]string)
	for _, l := range labels {
		tag, ok := tagByName[l.Name]
		if !ok {
			continue
		}
		byID[l.ID] = tag
		byName[l.Name] = tag
	}
	r.byID, r.byName = byID, byName
	r.logger.Printf("matched %d of %d labels to tags", len(byID), len(labels))
	return nil
}
