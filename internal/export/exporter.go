package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/pagetree/internal/models"
	"github.com/starford/pagetree/internal/partition"
	"github.com/starford/pagetree/internal/storage"
)

// Options configures an Exporter.
type Options struct {
	Partition partition.Options
	// Workers > 1 exports that many groups concurrently. Each group is owned
	// by exactly one worker, so per-group row order does not change.
	Workers int
	// DryRun partitions the tree without touching the output directory.
	DryRun bool
	// OnGroup, if non-nil, is called after each group finishes.
	OnGroup func(GroupResult)
}

// GroupResult is the outcome of exporting one group.
type GroupResult struct {
	Group   models.TopLevelGroup
	File    string
	Records []models.FlatRecord
	Err     error
}

// Report summarizes one export run.
type Report struct {
	Groups   []GroupResult
	Skipped  []error
	Started  time.Time
	Finished time.Time
	DryRun   bool
}

// RecordCount returns the number of records emitted across all groups.
func (r *Report) RecordCount() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Records)
	}
	return n
}

// Err joins every per-group and skipped-page error of the run.
func (r *Report) Err() error {
	errs := append([]error(nil), r.Skipped...)
	for _, g := range r.Groups {
		if g.Err != nil {
			errs = append(errs, g.Err)
		}
	}
	return errors.Join(errs...)
}

// Exporter drives the partitioner and hands each record to the group writer
// as soon as it is discovered.
type Exporter struct {
	part   *partition.Partitioner
	store  storage.Provider
	opts   Options
	logger *slog.Logger
}

// New creates an Exporter writing into store. store may be nil for dry runs.
func New(store storage.Provider, opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		part:   partition.New(opts.Partition),
		store:  store,
		opts:   opts,
		logger: logger,
	}
}

// Run exports every top-level page of doc. The returned error is non-nil only
// when no group could be written at all (a duplicate group key under the
// "error" policy, a missing output store, or ctx cancellation); per-group
// problems are collected in the Report. When ctx is cancelled mid-run the
// Report of the groups finished so far is returned together with ctx.Err().
func (e *Exporter) Run(ctx context.Context, doc *models.Document) (*Report, error) {
	rep := &Report{Started: time.Now(), DryRun: e.opts.DryRun}
	if !e.opts.DryRun && e.store == nil {
		return nil, errors.New("export: no output store configured")
	}

	plan, err := e.part.Plan(doc.Roots())
	if err != nil {
		return nil, fmt.Errorf("export: plan groups: %w", err)
	}
	for _, s := range plan.Skipped {
		e.logger.Warn("export: top-level page skipped", slog.String("error", s.Error()))
	}
	rep.Skipped = plan.Skipped
	rep.Groups = make([]GroupResult, len(plan.Groups))

	var writer *GroupWriter
	if !e.opts.DryRun {
		writer = NewGroupWriter(e.store)
	}

	if e.opts.Workers <= 1 {
		for i, g := range plan.Groups {
			if err := ctx.Err(); err != nil {
				rep.Groups = rep.Groups[:i]
				rep.Finished = time.Now()
				return rep, err
			}
			rep.Groups[i] = e.exportGroup(writer, g)
		}
	} else {
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(e.opts.Workers)
		for i, g := range plan.Groups {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				rep.Groups[i] = e.exportGroup(writer, g)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			rep.Groups = finished(rep.Groups)
			rep.Finished = time.Now()
			return rep, err
		}
	}

	rep.Finished = time.Now()
	e.logger.Info("export: run finished",
		slog.Int("groups", len(rep.Groups)),
		slog.Int("records", rep.RecordCount()),
		slog.Int("skipped", len(rep.Skipped)),
		slog.Bool("dry_run", rep.DryRun),
		slog.Duration("elapsed", rep.Finished.Sub(rep.Started)))
	return rep, nil
}

func (e *Exporter) exportGroup(w *GroupWriter, g *partition.Group) GroupResult {
	res := GroupResult{Group: g.TopLevelGroup, File: FileName(g.Key)}
	defer func() {
		if e.opts.OnGroup != nil {
			e.opts.OnGroup(res)
		}
	}()

	if w != nil {
		if err := w.EnsureGroup(g.TopLevelGroup); err != nil {
			res.Err = err
			e.logger.Error("export: create group file failed",
				slog.String("group", g.Key), slog.String("error", err.Error()))
			return res
		}
	}

	res.Err = e.part.Descendants(g, func(rec models.FlatRecord) error {
		if w != nil {
			if err := w.Append(g.TopLevelGroup, rec); err != nil {
				return err
			}
		}
		res.Records = append(res.Records, rec)
		return nil
	})

	if res.Err != nil {
		level := slog.LevelWarn
		if errors.Is(res.Err, ErrOutputWrite) {
			level = slog.LevelError
		}
		e.logger.Log(context.Background(), level, "export: group incomplete",
			slog.String("group", g.Key),
			slog.Int("records", len(res.Records)),
			slog.String("error", res.Err.Error()))
		return res
	}
	e.logger.Debug("export: group written",
		slog.String("group", g.Key), slog.String("path", res.File), slog.Int("records", len(res.Records)))
	return res
}

// finished drops the slots of groups that never started.
func finished(groups []GroupResult) []GroupResult {
	out := groups[:0]
	for _, g := range groups {
		if g.File != "" {
			out = append(out, g)
		}
	}
	return out
}
