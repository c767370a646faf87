package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/pagetree/internal/models"
	"github.com/starford/pagetree/internal/partition"
	"github.com/starford/pagetree/internal/storage"
)

const base = "https://wiki.example.com/wiki"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func page(id, title string, children ...*models.PageNode) *models.PageNode {
	p := &models.PageNode{ID: models.PageID(id), Title: title, Links: &models.Links{WebUI: "/spaces/X/page/" + id}}
	if len(children) > 0 {
		p.Children = &models.Children{Page: &models.PageList{Results: children}}
	}
	return p
}

func doc(roots ...*models.PageNode) *models.Document {
	return &models.Document{Page: &models.PageList{Results: roots}}
}

func scenario() *models.Document {
	return doc(
		page("1", "A",
			page("2", "A1"),
			page("3", "A2", page("4", "A2a")),
		),
		page("5", "B"),
	)
}

func testStore(t *testing.T) *storage.FS {
	t.Helper()
	s, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func read(t *testing.T, s storage.Provider, name string) string {
	t.Helper()
	data, err := s.Read(name)
	if err != nil {
		t.Fatalf("Read %s: %v", name, err)
	}
	return string(data)
}

func TestRun_Scenario(t *testing.T) {
	store := testStore(t)
	ex := New(store, Options{Partition: partition.Options{BaseURL: base}}, quietLogger())

	rep, err := ex.Run(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := rep.Err(); err != nil {
		t.Fatalf("report error: %v", err)
	}

	wantA := "id,title,url\n" +
		"2,A1," + base + "/spaces/X/page/2\n" +
		"3,A2," + base + "/spaces/X/page/3\n" +
		"4,A2a," + base + "/spaces/X/page/4\n"
	if diff := cmp.Diff(wantA, read(t, store, "A.csv")); diff != "" {
		t.Errorf("A.csv (-want +got):\n%s", diff)
	}
	if got := read(t, store, "B.csv"); got != "id,title,url\n" {
		t.Errorf("B.csv = %q, want header only", got)
	}
	if rep.RecordCount() != 3 {
		t.Errorf("RecordCount = %d", rep.RecordCount())
	}
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	var roots []*models.PageNode
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("%d", i*100)
		roots = append(roots, page(id, "Group "+id,
			page(id+"1", "x", page(id+"11", "xx")),
			page(id+"2", "y"),
		))
	}

	seqStore, parStore := testStore(t), testStore(t)
	if _, err := New(seqStore, Options{}, quietLogger()).Run(context.Background(), doc(roots...)); err != nil {
		t.Fatal(err)
	}
	if _, err := New(parStore, Options{Workers: 4}, quietLogger()).Run(context.Background(), doc(roots...)); err != nil {
		t.Fatal(err)
	}

	seqFiles, _ := seqStore.List("", ".csv")
	if len(seqFiles) != 12 {
		t.Fatalf("files = %d, want 12", len(seqFiles))
	}
	for _, f := range seqFiles {
		if diff := cmp.Diff(read(t, seqStore, f.Path), read(t, parStore, f.Path)); diff != "" {
			t.Errorf("%s differs (-seq +par):\n%s", f.Path, diff)
		}
	}
}

func TestRun_CSVQuoting(t *testing.T) {
	store := testStore(t)
	d := doc(page("1", "Root", page("2", `Say "hi", world`)))
	if _, err := New(store, Options{}, quietLogger()).Run(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	got := read(t, store, "Root.csv")
	if !strings.Contains(got, `2,"Say ""hi"", world",/spaces/X/page/2`) {
		t.Errorf("row not quoted: %q", got)
	}
}

func TestRun_MalformedNodeWritesNoRow(t *testing.T) {
	store := testStore(t)
	bad := &models.PageNode{Title: "no id"}
	d := doc(page("1", "Root", page("2", "ok"), bad))

	rep, err := New(store, Options{}, quietLogger()).Run(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(rep.Err(), partition.ErrMalformedNode) {
		t.Fatalf("report err = %v", rep.Err())
	}
	got := read(t, store, "Root.csv")
	if got != "id,title,url\n2,ok,/spaces/X/page/2\n" {
		t.Errorf("Root.csv = %q", got)
	}
}

func TestRun_DuplicateKeysWriteNothing(t *testing.T) {
	store := testStore(t)
	_, err := New(store, Options{}, quietLogger()).Run(context.Background(), doc(page("1", "A B"), page("2", "AB")))
	if !errors.Is(err, partition.ErrDuplicateGroupKey) {
		t.Fatalf("err = %v", err)
	}
	files, _ := store.List("", ".csv")
	if len(files) != 0 {
		t.Errorf("files written despite duplicate keys: %v", files)
	}
}

func TestRun_RerunReplacesOldFile(t *testing.T) {
	store := testStore(t)
	ex := New(store, Options{}, quietLogger())
	if _, err := ex.Run(context.Background(), scenario()); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Run(context.Background(), scenario()); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(read(t, store, "A.csv"), "\n"); n != 4 {
		t.Errorf("A.csv has %d lines after rerun, want 4", n)
	}
}

func TestRun_DryRun(t *testing.T) {
	store := testStore(t)
	rep, err := New(store, Options{DryRun: true}, quietLogger()).Run(context.Background(), scenario())
	if err != nil {
		t.Fatal(err)
	}
	if rep.RecordCount() != 3 || !rep.DryRun {
		t.Errorf("report = %+v", rep)
	}
	files, _ := store.List("", ".csv")
	if len(files) != 0 {
		t.Errorf("dry run wrote files: %v", files)
	}
}

func TestRun_OnGroup(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	opts := Options{Workers: 2, OnGroup: func(r GroupResult) {
		mu.Lock()
		seen[r.Group.Key] = len(r.Records)
		mu.Unlock()
	}}
	if _, err := New(testStore(t), opts, quietLogger()).Run(context.Background(), scenario()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]int{"A": 3, "B": 0}, seen); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := New(testStore(t), Options{}, quietLogger()).Run(ctx, scenario())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if rep == nil || len(rep.Groups) != 0 {
		t.Errorf("report = %+v, want an empty report", rep)
	}
}

func TestRun_CancelledMidRunReportsFinishedGroups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := testStore(t)
	opts := Options{OnGroup: func(GroupResult) { cancel() }}

	rep, err := New(store, opts, quietLogger()).Run(ctx, scenario())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if rep == nil || len(rep.Groups) != 1 || rep.Groups[0].Group.Key != "A" {
		t.Fatalf("report = %+v, want only group A", rep)
	}
	if rep.RecordCount() != 3 || rep.Finished.IsZero() {
		t.Errorf("records = %d, finished = %v", rep.RecordCount(), rep.Finished)
	}
	if ok, _ := store.Exists("A.csv"); !ok {
		t.Error("A.csv should have been written before the cancel")
	}
	if ok, _ := store.Exists("B.csv"); ok {
		t.Error("B.csv should not be written after the cancel")
	}
}

func TestFinishedDropsUnstartedGroups(t *testing.T) {
	groups := []GroupResult{{File: "A.csv"}, {}, {File: "C.csv"}}
	got := finished(groups)
	if len(got) != 2 || got[0].File != "A.csv" || got[1].File != "C.csv" {
		t.Errorf("finished = %+v", got)
	}
}

// failingStore fails every Append to one file.
type failingStore struct {
	storage.Provider
	file string
}

func (f *failingStore) Append(path string, content []byte) error {
	if path == f.file {
		return errors.New("disk full")
	}
	return f.Provider.Append(path, content)
}

func TestRun_WriteFailureDoesNotAbortOtherGroups(t *testing.T) {
	inner := testStore(t)
	store := &failingStore{Provider: inner, file: "A.csv"}
	d := doc(
		page("1", "A", page("2", "a1"), page("3", "a2")),
		page("5", "B", page("6", "b1")),
	)

	rep, err := New(store, Options{}, quietLogger()).Run(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	var werr *OutputWriteError
	if !errors.As(rep.Err(), &werr) || werr.Group != "A" {
		t.Fatalf("report err = %v", rep.Err())
	}
	if !errors.Is(rep.Err(), ErrOutputWrite) {
		t.Error("expected ErrOutputWrite")
	}
	if got := read(t, inner, "A.csv"); got != "id,title,url\n" {
		t.Errorf("A.csv = %q", got)
	}
	if got := read(t, inner, "B.csv"); got != "id,title,url\n6,b1,/spaces/X/page/6\n" {
		t.Errorf("B.csv = %q", got)
	}
}
