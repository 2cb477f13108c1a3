package notion

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/jomei/notionapi"
)

// Schema maps a database property name to its type name.
type Schema map[string]string

// Has reports whether name is a property of the database.
func (s Schema) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Kind returns the writable kind of a property.
func (s Schema) Kind(name string) (Kind, bool) {
	t, ok := s[name]
	if !ok {
		return 0, false
	}
	k, err := ParseKind(t)
	if err != nil {
		return 0, false
	}
	return k, true
}

// Names returns the property names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Client talks to one Notion database.
type Client struct {
	api        *notionapi.Client
	databaseID notionapi.DatabaseID
	pageSize   int
	logger     *log.Logger
}

// NewClient creates a client for the database identified by databaseID.
func NewClient(token, databaseID string, pageSize int, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[notion] ", log.LstdFlags)
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &Client{
		api:        notionapi.NewClient(notionapi.Token(token)),
		databaseID: notionapi.DatabaseID(databaseID),
		pageSize:   pageSize,
		logger:     logger,
	}
}

// Database returns a client for another database sharing the same connection.
func (c *Client) Database(databaseID string) *Client {
	clone := *c
	clone.databaseID = notionapi.DatabaseID(databaseID)
	return &clone
}

// DatabaseID returns the id of the database this client targets.
func (c *Client) DatabaseID() string {
	return c.databaseID.String()
}

// Schema reads the property names and types of the database.
func (c *Client) Schema(ctx context.Context) (Schema, error) {
	db, err := c.api.Database.Get(ctx, c.databaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to read database %s: %w", c.databaseID, err)
	}
	schema := make(Schema, len(db.Properties))
	for name, prop := range db.Properties {
		schema[name] = string(prop.GetType())
	}
	return schema, nil
}

// Title returns the plain text title of the database.
func (c *Client) Title(ctx context.Context) (string, error) {
	db, err := c.api.Database.Get(ctx, c.databaseID)
	if err != nil {
		return "", fmt.Errorf("failed to read database %s: %w", c.databaseID, err)
	}
	return PlainText(db.Title), nil
}

// Query returns every page matching filter, following cursors until the
// result set is exhausted. A nil filter returns the whole database.
func (c *Client) Query(ctx context.Context, filter notionapi.Filter) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	req := &notionapi.DatabaseQueryRequest{Filter: filter, PageSize: c.pageSize}
	for {
		res, err := c.api.Database.Query(ctx, c.databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("failed to query database %s: %w", c.databaseID, err)
		}
		pages = append(pages, res.Results...)
		if !res.HasMore || res.NextCursor == "" || len(res.Results) == 0 {
			break
		}
		req.StartCursor = res.NextCursor
	}
	return pages, nil
}

// CreatePage adds a page to the database.
func (c *Client) CreatePage(ctx context.Context, props notionapi.Properties, children []notionapi.Block) (*notionapi.Page, error) {
	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentType("database_id"),
			DatabaseID: c.databaseID,
		},
		Properties: props,
		Children:   children,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

// UpdatePage patches the given properties of a page.
func (c *Client) UpdatePage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return nil, fmt.Errorf("failed to update page %s: %w", pageID, err)
	}
	return page, nil
}

// ArchivePage soft deletes a page, patching props in the same request.
func (c *Client) ArchivePage(ctx context.Context, pageID string, props notionapi.Properties) (*notionapi.Page, error) {
	if props == nil {
		props = notionapi.Properties{}
	}
	page, err := c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
		Properties: props,
		Archived:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive page %s: %w", pageID, err)
	}
	return page, nil
}
