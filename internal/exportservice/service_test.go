package exportservice

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/starford/pagetree/internal/apperr"
	"github.com/starford/pagetree/internal/export"
	"github.com/starford/pagetree/internal/index"
	"github.com/starford/pagetree/internal/partition"
	"github.com/starford/pagetree/internal/testutil"
)

const base = "https://wiki.example.com/wiki"

type eventLog struct {
	mu    sync.Mutex
	kinds []string
}

func (l *eventLog) record(kind string, _ map[string]any) {
	l.mu.Lock()
	l.kinds = append(l.kinds, kind)
	l.mu.Unlock()
}

func (l *eventLog) has(kind string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range l.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func testService(t *testing.T, input string) (*Service, *eventLog) {
	t.Helper()
	_, store := testutil.TestOutput(t)
	db := testutil.TestDB(t)
	events := &eventLog{}
	svc := NewService(input, store,
		export.Options{Partition: partition.Options{BaseURL: base}},
		WithIndex(db), WithEvents(events.record))
	return svc, events
}

func TestExport_WritesAndIndexes(t *testing.T) {
	svc, events := testService(t, testutil.WriteInput(t, testutil.ScenarioJSON))
	ctx := context.Background()

	sum, err := svc.Export(ctx, false)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if sum.Skipped || sum.Status != index.StatusOK || sum.RunID == 0 {
		t.Fatalf("summary = %+v", sum)
	}

	groups, err := svc.ListGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %+v", groups)
	}

	detail, err := svc.GetGroup(ctx, "A", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if detail.Total != 3 || detail.Records[2].PageID != "4" || detail.Records[2].Depth != 2 {
		t.Errorf("detail = %+v", detail)
	}
	if detail.URL != base+"/spaces/X/pages/1" {
		t.Errorf("group url = %q", detail.URL)
	}

	csv, err := svc.GroupCSV(ctx, "B")
	if err != nil || string(csv) != "id,title,url\n" {
		t.Errorf("B csv = %q, %v", csv, err)
	}

	for _, k := range []string{EventStarted, EventGroupOK, EventCompleted} {
		if !events.has(k) {
			t.Errorf("missing event %s", k)
		}
	}
}

func TestExport_SkipsUnchangedInput(t *testing.T) {
	input := testutil.WriteInput(t, testutil.ScenarioJSON)
	svc, events := testService(t, input)
	ctx := context.Background()

	if _, err := svc.Export(ctx, false); err != nil {
		t.Fatal(err)
	}
	sum, err := svc.Export(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !sum.Skipped || !events.has(EventSkipped) {
		t.Errorf("second run should be skipped: %+v", sum)
	}

	sum, err = svc.Export(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped {
		t.Error("forced run should not be skipped")
	}

	updated := strings.Replace(testutil.ScenarioJSON, `"A2a"`, `"A2a renamed"`, 1)
	if err := os.WriteFile(input, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	sum, err = svc.Export(ctx, false)
	if err != nil || sum.Skipped {
		t.Errorf("changed input should export: %+v, %v", sum, err)
	}
}

func TestExport_PartialRun(t *testing.T) {
	input := testutil.WriteInput(t, `{"results": [{"id": "1", "title": "A", "children": {"results": [{"title": "no id"}]}}]}`)
	svc, events := testService(t, input)

	sum, err := svc.Export(context.Background(), false)
	if !errors.Is(err, partition.ErrMalformedNode) {
		t.Fatalf("err = %v", err)
	}
	if sum == nil || sum.Status != index.StatusPartial {
		t.Fatalf("summary = %+v", sum)
	}
	run, err := svc.LatestRun(context.Background())
	if err != nil || run.Status != index.StatusPartial || run.Error == "" {
		t.Errorf("run = %+v, %v", run, err)
	}
	if !events.has(EventGroupFail) {
		t.Error("missing group.failed event")
	}
}

func TestExport_MissingInput(t *testing.T) {
	svc, _ := testService(t, "/nonexistent/articles.json")
	if _, err := svc.Export(context.Background(), false); err == nil {
		t.Error("expected error for missing input")
	}
}

func TestGroupCSV_NotFound(t *testing.T) {
	svc, _ := testService(t, testutil.WriteInput(t, testutil.ScenarioJSON))
	if _, err := svc.GroupCSV(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestIndexDisabled(t *testing.T) {
	_, store := testutil.TestOutput(t)
	svc := NewService(testutil.WriteInput(t, testutil.ScenarioJSON), store, export.Options{})
	ctx := context.Background()

	if _, err := svc.Export(ctx, false); err != nil {
		t.Fatalf("Export without index: %v", err)
	}
	if _, err := svc.ListGroups(ctx); !errors.Is(err, apperr.ErrIndexDisabled) {
		t.Errorf("err = %v, want ErrIndexDisabled", err)
	}
	if _, err := svc.GroupCSV(ctx, "A"); err != nil {
		t.Errorf("GroupCSV should work without index: %v", err)
	}
}

func TestExport_CancelledRunIsRecorded(t *testing.T) {
	_, store := testutil.TestOutput(t)
	db := testutil.TestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewService(testutil.WriteInput(t, testutil.ScenarioJSON), store,
		export.Options{Partition: partition.Options{BaseURL: base}},
		WithIndex(db), WithEvents(func(kind string, _ map[string]any) {
			if kind == EventGroupOK {
				cancel()
			}
		}))

	sum, err := svc.Export(ctx, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if sum == nil || sum.Status != index.StatusCancelled || sum.RunID == 0 {
		t.Fatalf("summary = %+v", sum)
	}

	bg := context.Background()
	groups, err := svc.ListGroups(bg)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 || groups[0].Key != "A" {
		t.Errorf("groups = %+v, want only A", groups)
	}
	run, err := svc.LatestRun(bg)
	if err != nil || run.Status != index.StatusCancelled || run.Error == "" {
		t.Errorf("run = %+v, %v", run, err)
	}

	// A cancelled run does not make the unchanged input count as exported.
	sum, err = svc.Export(bg, false)
	if err != nil || sum.Skipped {
		t.Errorf("rerun after cancel = %+v, %v", sum, err)
	}
}
