package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "pages.json"

// Page is the destination page a task was synced to.
type Page struct {
	PageID string `json:"page_id"`
	URL    string `json:"url"`
}

// PageIndex maps source task ids to their destination pages.
type PageIndex struct {
	Mappings map[string]Page `json:"mappings"`
	Path     string          `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

// NewPageIndex opens the index stored in stateDir, starting empty if the file
// does not exist yet.
func NewPageIndex(stateDir string) (*PageIndex, error) {
	idx := &PageIndex{
		Mappings: make(map[string]Page),
		Path:     filepath.Join(stateDir, fileName),
	}

	if _, err := os.Stat(idx.Path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}

	return idx, nil
}

func (idx *PageIndex) Load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	return json.NewDecoder(f).Decode(&idx.Mappings)
}

func (idx *PageIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}

	dir := filepath.Dir(idx.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	f, err := os.Create(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(idx.Mappings); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *PageIndex) Get(taskID string) (Page, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.Mappings[taskID]
	return p, ok
}

func (idx *PageIndex) Set(taskID string, page Page) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[taskID] != page {
		idx.Mappings[taskID] = page
		idx.dirty = true
	}
}

func (idx *PageIndex) Remove(taskID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[taskID]; exists {
		delete(idx.Mappings, taskID)
		idx.dirty = true
	}
}

// Len returns the number of indexed tasks.
func (idx *PageIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Mappings)
}
