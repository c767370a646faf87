// Package export writes partitioned page groups to per-group CSV files.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sync"

	"github.com/starford/pagetree/internal/models"
	"github.com/starford/pagetree/internal/storage"
)

// Header is the first row of every group file.
var Header = []string{"id", "title", "url"}

// ErrOutputWrite marks a failure to create or append to a group file.
var ErrOutputWrite = errors.New("output write failed")

// OutputWriteError reports a group whose file could not be created or appended to.
type OutputWriteError struct {
	Group string
	File  string
	Err   error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("export: group %q: write %s: %v", e.Group, e.File, e.Err)
}

func (e *OutputWriteError) Unwrap() []error {
	return []error{ErrOutputWrite, e.Err}
}

// FileName returns the output file name for a group key.
func FileName(key string) string {
	return key + ".csv"
}

// GroupWriter owns the group files of one export run. Every group file is
// created fresh, header only, the first time the group is seen; after that
// rows are only ever appended.
type GroupWriter struct {
	store storage.Provider

	mu      sync.Mutex
	created map[string]bool
}

// NewGroupWriter creates a GroupWriter writing into store.
func NewGroupWriter(store storage.Provider) *GroupWriter {
	return &GroupWriter{store: store, created: make(map[string]bool)}
}

// EnsureGroup creates the group's file with the header row. It runs at most
// once per group for the lifetime of the writer; later calls are no-ops.
func (w *GroupWriter) EnsureGroup(g models.TopLevelGroup) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.created[g.Key] {
		return nil
	}
	file := FileName(g.Key)
	row, err := encodeRow(Header...)
	if err != nil {
		return &OutputWriteError{Group: g.Key, File: file, Err: err}
	}
	if err := w.store.Create(file, row); err != nil {
		return &OutputWriteError{Group: g.Key, File: file, Err: err}
	}
	w.created[g.Key] = true
	return nil
}

// Append writes one record to the group's file, creating the file first if
// this writer has not seen the group yet.
func (w *GroupWriter) Append(g models.TopLevelGroup, rec models.FlatRecord) error {
	if err := w.EnsureGroup(g); err != nil {
		return err
	}
	file := FileName(g.Key)
	row, err := encodeRow(rec.ID, rec.Title, rec.URL)
	if err != nil {
		return &OutputWriteError{Group: g.Key, File: file, Err: err}
	}
	if err := w.store.Append(file, row); err != nil {
		return &OutputWriteError{Group: g.Key, File: file, Err: err}
	}
	return nil
}

func encodeRow(fields ...string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(fields); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
