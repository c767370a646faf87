package index

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/starford/pagetree/internal/apperr"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusDryRun  = "dry-run"
	// StatusCancelled marks a run interrupted before every group was written.
	StatusCancelled = "cancelled"
)

// RunRow represents a row in the export_runs table.
type RunRow struct {
	ID         int64     `json:"id"`
	Input      string    `json:"input"`
	Checksum   string    `json:"checksum"`
	Status     string    `json:"status"`
	Groups     int       `json:"groups"`
	Records    int       `json:"records"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// GroupRow represents a row in the export_groups table. Records is only
// populated when writing.
type GroupRow struct {
	Key         string      `json:"key"`
	RunID       int64       `json:"run_id"`
	PageID      string      `json:"page_id"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	File        string      `json:"file"`
	RecordCount int         `json:"record_count"`
	Error       string      `json:"error,omitempty"`
	Records     []RecordRow `json:"-"`
}

// RecordRow represents a row in the export_records table.
type RecordRow struct {
	GroupKey string `json:"group"`
	Seq      int    `json:"seq"`
	PageID   string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Depth    int    `json:"depth"`
	ParentID string `json:"parent_id,omitempty"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	GroupKey string `json:"group"`
	PageID   string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet,omitempty"`
}

// DuplicatePage is a page id that was exported into more than one group.
type DuplicatePage struct {
	PageID string   `json:"id"`
	Groups []string `json:"groups"`
}

// RecordRun stores a finished run and replaces the current group snapshot
// with groups, all within one transaction. Dry runs are logged in
// export_runs but leave the snapshot untouched.
func (db *DB) RecordRun(run RunRow, groups []GroupRow) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`
		INSERT INTO export_runs (input, checksum, status, group_count, records, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Input, run.Checksum, run.Status, run.Groups, run.Records, run.Error,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("index: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("index: run id: %w", err)
	}

	if run.Status == StatusDryRun {
		return runID, tx.Commit()
	}

	if _, err := tx.Exec(`DELETE FROM export_records`); err != nil {
		return 0, fmt.Errorf("index: clear records: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM export_groups`); err != nil {
		return 0, fmt.Errorf("index: clear groups: %w", err)
	}

	groupStmt, err := tx.Prepare(`
		INSERT INTO export_groups (key, run_id, page_id, title, url, file, record_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("index: prepare group insert: %w", err)
	}
	defer groupStmt.Close()

	recStmt, err := tx.Prepare(`
		INSERT INTO export_records (group_key, seq, page_id, title, url, depth, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("index: prepare record insert: %w", err)
	}
	defer recStmt.Close()

	for _, g := range groups {
		if _, err := groupStmt.Exec(g.Key, runID, g.PageID, g.Title, g.URL, g.File, len(g.Records), g.Error); err != nil {
			return 0, fmt.Errorf("index: insert group %s: %w", g.Key, err)
		}
		for i, r := range g.Records {
			if _, err := recStmt.Exec(g.Key, i+1, r.PageID, r.Title, r.URL, r.Depth, r.ParentID); err != nil {
				return 0, fmt.Errorf("index: insert record %s/%d: %w", g.Key, i+1, err)
			}
		}
	}

	if err := ftsRebuild(tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("index: commit: %w", err)
	}
	return runID, nil
}

const runColumns = `id, input, checksum, status, group_count, records, error, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (*RunRow, error) {
	var r RunRow
	if err := row.Scan(&r.ID, &r.Input, &r.Checksum, &r.Status, &r.Groups, &r.Records, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRun returns the most recent run.
func (db *DB) LatestRun() (*RunRow, error) {
	r, err := scanRun(db.conn.QueryRow(`SELECT ` + runColumns + ` FROM export_runs ORDER BY id DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: latest run: %w", err)
	}
	return r, nil
}

// LastChecksum returns the input checksum of the latest run for input that
// was neither a dry run nor cancelled, or empty string if there is none.
func (db *DB) LastChecksum(input string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`
		SELECT checksum FROM export_runs
		WHERE input = ? AND status NOT IN (?, ?)
		ORDER BY id DESC LIMIT 1
	`, input, StatusDryRun, StatusCancelled).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: last checksum: %w", err)
	}
	return cs, nil
}

const groupColumns = `key, run_id, page_id, title, url, file, record_count, error`

// ListGroups returns every group of the current snapshot, ordered by key.
func (db *DB) ListGroups() ([]GroupRow, error) {
	rows, err := db.conn.Query(`SELECT ` + groupColumns + ` FROM export_groups ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("index: list groups: %w", err)
	}
	defer rows.Close()

	out := []GroupRow{}
	for rows.Next() {
		var g GroupRow
		if err := rows.Scan(&g.Key, &g.RunID, &g.PageID, &g.Title, &g.URL, &g.File, &g.RecordCount, &g.Error); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetGroup returns one group by key.
func (db *DB) GetGroup(key string) (*GroupRow, error) {
	var g GroupRow
	err := db.conn.QueryRow(`SELECT `+groupColumns+` FROM export_groups WHERE key = ?`, key).
		Scan(&g.Key, &g.RunID, &g.PageID, &g.Title, &g.URL, &g.File, &g.RecordCount, &g.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get group: %w", err)
	}
	return &g, nil
}

// GroupRecords returns a page of a group's records in export order and the
// group's total record count.
func (db *DB) GroupRecords(key string, limit, offset int) ([]RecordRow, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM export_records WHERE group_key = ?`, key).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count records: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT group_key, seq, page_id, title, url, depth, parent_id
		FROM export_records
		WHERE group_key = ?
		ORDER BY seq
		LIMIT ? OFFSET ?
	`, key, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: group records: %w", err)
	}
	defer rows.Close()

	out := []RecordRow{}
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.GroupKey, &r.Seq, &r.PageID, &r.Title, &r.URL, &r.Depth, &r.ParentID); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// keySeparator joins group keys in aggregate queries. Group keys never
// contain control characters.
const keySeparator = "\x1f"

// Duplicates returns page ids that appear in more than one group.
func (db *DB) Duplicates() ([]DuplicatePage, error) {
	rows, err := db.conn.Query(`
		SELECT page_id, group_concat(group_key, char(31))
		FROM (SELECT DISTINCT page_id, group_key FROM export_records)
		GROUP BY page_id
		HAVING count(*) > 1
		ORDER BY page_id
	`)
	if err != nil {
		return nil, fmt.Errorf("index: duplicates: %w", err)
	}
	defer rows.Close()

	out := []DuplicatePage{}
	for rows.Next() {
		var d DuplicatePage
		var groups string
		if err := rows.Scan(&d.PageID, &groups); err != nil {
			return nil, err
		}
		d.Groups = strings.Split(groups, keySeparator)
		sort.Strings(d.Groups)
		out = append(out, d)
	}
	return out, rows.Err()
}
