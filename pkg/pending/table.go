package pending

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const fileName = "pending_backlinks.json"

// Entry is a created page whose back-link has not reached the source task.
type Entry struct {
	TaskID   string    `json:"task_id"`
	PageID   string    `json:"page_id"`
	URL      string    `json:"url"`
	Since    time.Time `json:"since"`
	Attempts int       `json:"attempts"`
}

// Table persists back-links that still need to be written.
type Table struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	dirty   bool
}

func NewTable(stateDir string) (*Table, error) {
	t := &Table{
		Path:    filepath.Join(stateDir, fileName),
		Entries: make(map[string]Entry),
	}

	if _, err := os.Stat(t.Path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Table) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(t)
}

func (t *Table) Save() error {
	if !t.dirty {
		return nil
	}
	dir := filepath.Dir(t.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	f, err := os.Create(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(t)
	if err == nil {
		t.dirty = false
	}
	return err
}

// Update records a failed back-link write. A repeated failure for the same
// page keeps the original time and counts the attempt.
func (t *Table) Update(taskID, pageID, url string, now time.Time) {
	old, exists := t.Entries[taskID]
	entry := Entry{TaskID: taskID, PageID: pageID, URL: url, Since: now, Attempts: 1}
	if exists && old.PageID == pageID {
		entry.Since = old.Since
		entry.Attempts = old.Attempts + 1
	}
	t.Entries[taskID] = entry
	t.dirty = true
}

// Restore puts back an entry returned by Sweep.
func (t *Table) Restore(e Entry) {
	t.Entries[e.TaskID] = e
	t.dirty = true
}

func (t *Table) Remove(taskID string) {
	if _, exists := t.Entries[taskID]; exists {
		delete(t.Entries, taskID)
		t.dirty = true
	}
}

// Sweep returns the entries recorded before now, oldest first, and removes
// them. Callers put back the ones that fail again with Update.
func (t *Table) Sweep(now time.Time) []Entry {
	var swept []Entry
	for taskID, entry := range t.Entries {
		if entry.Since.Before(now) {
			swept = append(swept, entry)
			delete(t.Entries, taskID)
			t.dirty = true
		}
	}
	sort.Slice(swept, func(i, j int) bool {
		if swept[i].Since.Equal(swept[j].Since) {
			return swept[i].TaskID < swept[j].TaskID
		}
		return swept[i].Since.Before(swept[j].Since)
	})
	return swept
}

// Len returns the number of outstanding back-links.
func (t *Table) Len() int {
	return len(t.Entries)
}
