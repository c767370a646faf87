// Package exportservice coordinates parsing, exporting and indexing of a
// page export document.
package exportservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/pagetree/internal/apperr"
	"github.com/starford/pagetree/internal/checksum"
	"github.com/starford/pagetree/internal/export"
	"github.com/starford/pagetree/internal/index"
	"github.com/starford/pagetree/internal/parser"
	"github.com/starford/pagetree/internal/storage"
)

// Event kinds passed to EventFunc.
const (
	EventStarted   = "export.started"
	EventSkipped   = "export.skipped"
	EventCompleted = "export.completed"
	EventGroupOK   = "group.written"
	EventGroupFail = "group.failed"
)

// EventFunc receives export lifecycle events. It may be called from several
// goroutines when the exporter runs with more than one worker.
type EventFunc func(kind string, data map[string]any)

// Summary describes one call to Export.
type Summary struct {
	RunID    int64          `json:"run_id,omitempty"`
	Input    string         `json:"input"`
	Checksum string         `json:"checksum"`
	Skipped  bool           `json:"skipped"`
	Status   string         `json:"status,omitempty"`
	Report   *export.Report `json:"-"`
}

// GroupDetail is a group with one page of its records.
type GroupDetail struct {
	index.GroupRow
	Records []index.RecordRow `json:"records"`
	Total   int               `json:"total"`
}

// Service coordinates the input document, output storage and the export index.
type Service struct {
	input  string
	store  storage.Provider
	db     index.ExportIndex // nil when the index is disabled
	opts   export.Options
	logger *slog.Logger
	events EventFunc

	mu sync.Mutex // one export at a time
}

// Option configures a Service.
type Option func(*Service)

// WithIndex records every run in db.
func WithIndex(db index.ExportIndex) Option {
	return func(s *Service) { s.db = db }
}

// WithEvents forwards lifecycle events to fn.
func WithEvents(fn EventFunc) Option {
	return func(s *Service) { s.events = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new export service for the document at input.
func NewService(input string, store storage.Provider, opts export.Options, options ...Option) *Service {
	s := &Service{input: input, store: store, opts: opts, logger: slog.Default()}
	for _, o := range options {
		o(s)
	}
	return s
}

func (s *Service) emit(kind string, data map[string]any) {
	if s.events != nil {
		s.events(kind, data)
	}
}

// Export runs a full export of the input document. Unless force is set, a run
// is skipped when the index already holds a run for an identical input.
//
// The returned error joins every per-group problem of the run; the Summary is
// still returned in that case so callers can report partial output.
func (s *Service) Export(ctx context.Context, force bool) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := &Summary{Input: s.input}
	cs, err := checksum.File(s.input)
	if err != nil {
		return nil, fmt.Errorf("exportservice: %w", err)
	}
	sum.Checksum = cs

	if !force && s.db != nil && !s.opts.DryRun {
		last, err := s.db.LastChecksum(s.input)
		if err != nil {
			return nil, err
		}
		if last == cs {
			sum.Skipped = true
			s.logger.Info("export: input unchanged, skipping", slog.String("path", s.input))
			s.emit(EventSkipped, map[string]any{"input": s.input, "checksum": cs})
			return sum, nil
		}
	}

	res, err := parser.Load(s.input)
	if err != nil {
		return nil, err
	}

	s.emit(EventStarted, map[string]any{"input": s.input, "checksum": cs})

	opts := s.opts
	opts.OnGroup = func(g export.GroupResult) {
		data := map[string]any{"group": g.Group.Key, "records": len(g.Records)}
		if g.Err != nil {
			data["error"] = g.Err.Error()
			s.emit(EventGroupFail, data)
			return
		}
		s.emit(EventGroupOK, data)
	}

	rep, err := export.New(s.store, opts, s.logger).Run(ctx, res.Document)
	if rep == nil {
		return nil, err
	}
	sum.Report = rep
	runErr := errors.Join(rep.Err(), err)

	sum.Status = index.StatusOK
	switch {
	case rep.DryRun:
		sum.Status = index.StatusDryRun
	case err != nil:
		sum.Status = index.StatusCancelled
	case runErr != nil:
		sum.Status = index.StatusPartial
	}

	if s.db != nil {
		id, err := s.db.RecordRun(runRow(sum, rep, runErr), groupRows(rep))
		if err != nil {
			return sum, errors.Join(runErr, err)
		}
		sum.RunID = id
	}

	s.emit(EventCompleted, map[string]any{
		"run_id":  sum.RunID,
		"status":  sum.Status,
		"groups":  len(rep.Groups),
		"records": rep.RecordCount(),
	})
	return sum, runErr
}

func runRow(sum *Summary, rep *export.Report, runErr error) index.RunRow {
	row := index.RunRow{
		Input:      sum.Input,
		Checksum:   sum.Checksum,
		Status:     sum.Status,
		Groups:     len(rep.Groups),
		Records:    rep.RecordCount(),
		StartedAt:  rep.Started,
		FinishedAt: rep.Finished,
	}
	if runErr != nil {
		row.Error = runErr.Error()
	}
	return row
}

func groupRows(rep *export.Report) []index.GroupRow {
	out := make([]index.GroupRow, 0, len(rep.Groups))
	for _, g := range rep.Groups {
		row := index.GroupRow{
			Key:    g.Group.Key,
			PageID: g.Group.ID,
			Title:  g.Group.Title,
			URL:    g.Group.URL,
			File:   g.File,
		}
		if g.Err != nil {
			row.Error = g.Err.Error()
		}
		for _, r := range g.Records {
			row.Records = append(row.Records, index.RecordRow{
				GroupKey: g.Group.Key,
				PageID:   r.ID,
				Title:    r.Title,
				URL:      r.URL,
				Depth:    r.Depth,
				ParentID: r.ParentID,
			})
		}
		out = append(out, row)
	}
	return out
}

func (s *Service) requireIndex() (index.ExportIndex, error) {
	if s.db == nil {
		return nil, apperr.ErrIndexDisabled
	}
	return s.db, nil
}

// ListGroups returns the groups of the latest export.
func (s *Service) ListGroups(_ context.Context) ([]index.GroupRow, error) {
	db, err := s.requireIndex()
	if err != nil {
		return nil, err
	}
	return db.ListGroups()
}

// GetGroup returns a group and one page of its records.
func (s *Service) GetGroup(_ context.Context, key string, limit, offset int) (*GroupDetail, error) {
	db, err := s.requireIndex()
	if err != nil {
		return nil, err
	}
	g, err := db.GetGroup(key)
	if err != nil {
		return nil, err
	}
	recs, total, err := db.GroupRecords(key, limit, offset)
	if err != nil {
		return nil, err
	}
	return &GroupDetail{GroupRow: *g, Records: recs, Total: total}, nil
}

// GroupCSV returns the raw CSV file of a group.
func (s *Service) GroupCSV(_ context.Context, key string) ([]byte, error) {
	file := export.FileName(key)
	ok, err := s.store.Exists(file)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return s.store.Read(file)
}

// Search finds records by title.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	db, err := s.requireIndex()
	if err != nil {
		return nil, err
	}
	return db.Search(query, limit)
}

// Duplicates lists pages exported into more than one group.
func (s *Service) Duplicates(_ context.Context) ([]index.DuplicatePage, error) {
	db, err := s.requireIndex()
	if err != nil {
		return nil, err
	}
	return db.Duplicates()
}

// LatestRun returns the most recent recorded run.
func (s *Service) LatestRun(_ context.Context) (*index.RunRow, error) {
	db, err := s.requireIndex()
	if err != nil {
		return nil, err
	}
	return db.LatestRun()
}
