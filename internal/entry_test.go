package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/pagetree/internal/partition"
	"github.com/starford/pagetree/internal/testutil"
)

func exportConfig(t *testing.T, input string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Export.Input = testutil.WriteInput(t, input)
	cfg.Export.OutputDir = filepath.Join(t.TempDir(), "csv")
	cfg.Export.BaseURL = "https://wiki.example.com/wiki"
	return cfg
}

func TestRunExport_WritesGroups(t *testing.T) {
	cfg := exportConfig(t, testutil.ScenarioJSON)
	if err := RunExport(context.Background(), WithConfig(cfg)); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	a, err := os.ReadFile(filepath.Join(cfg.Export.OutputDir, "A.csv"))
	if err != nil {
		t.Fatal(err)
	}
	want := "id,title,url\n" +
		"2,A1,https://wiki.example.com/wiki/spaces/X/pages/2\n" +
		"3,A2,https://wiki.example.com/wiki/spaces/X/pages/3\n" +
		"4,A2a,https://wiki.example.com/wiki/spaces/X/pages/4\n"
	if string(a) != want {
		t.Errorf("A.csv = %q", a)
	}
	b, err := os.ReadFile(filepath.Join(cfg.Export.OutputDir, "B.csv"))
	if err != nil || string(b) != "id,title,url\n" {
		t.Errorf("B.csv = %q, %v", b, err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Export.OutputDir, defaultIndexFile)); !os.IsNotExist(err) {
		t.Error("export without sqlite.path should not create an index")
	}
}

func TestRunExport_WithIndex(t *testing.T) {
	cfg := exportConfig(t, testutil.ScenarioJSON)
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "index.db")

	for i := 0; i < 2; i++ {
		if err := RunExport(context.Background(), WithConfig(cfg)); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if _, err := os.Stat(cfg.SQLite.Path); err != nil {
		t.Errorf("index not created: %v", err)
	}
}

func TestRunExport_DryRun(t *testing.T) {
	cfg := exportConfig(t, testutil.ScenarioJSON)
	if err := RunExport(context.Background(), WithConfig(cfg), WithDryRun(true)); err != nil {
		t.Fatalf("RunExport: %v", err)
	}
	if _, err := os.Stat(cfg.Export.OutputDir); !os.IsNotExist(err) {
		t.Errorf("dry run should not create the output dir: %v", err)
	}
}

func TestRunExport_MalformedFails(t *testing.T) {
	cfg := exportConfig(t, `{"results": [{"id": "1", "title": "A", "children": {"results": [{"id": "2"}]}}]}`)
	err := RunExport(context.Background(), WithConfig(cfg))
	if !errors.Is(err, partition.ErrMalformedNode) {
		t.Fatalf("err = %v, want ErrMalformedNode", err)
	}
	data, err := os.ReadFile(filepath.Join(cfg.Export.OutputDir, "A.csv"))
	if err != nil || string(data) != "id,title,url\n" {
		t.Errorf("A.csv = %q, %v", data, err)
	}
}

func TestRunExport_RequiresConfig(t *testing.T) {
	if err := RunExport(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}
