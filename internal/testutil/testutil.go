// Package testutil provides shared test helpers for setting up output
// directories, databases and input documents.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/pagetree/internal/index"
	"github.com/starford/pagetree/internal/storage"
)

// ScenarioJSON is a two-group export: A has three descendants over two
// levels, B has none.
const ScenarioJSON = `{
  "page": {
    "results": [
      {
        "id": "1", "title": "A", "_links": {"webui": "/spaces/X/pages/1"},
        "children": {"page": {"results": [
          {"id": "2", "title": "A1", "_links": {"webui": "/spaces/X/pages/2"}},
          {"id": "3", "title": "A2", "_links": {"webui": "/spaces/X/pages/3"},
           "children": {"page": {"results": [
             {"id": "4", "title": "A2a", "_links": {"webui": "/spaces/X/pages/4"}}
           ]}}}
        ]}}
      },
      {"id": "5", "title": "B", "_links": {"webui": "/spaces/X/pages/5"},
       "children": {"page": {"results": []}}}
    ]
  }
}`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "pagetree-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestOutput creates a temporary output directory with a storage.Provider.
func TestOutput(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteInput writes content to a temporary input document and returns its path.
func WriteInput(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "articles.json")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
