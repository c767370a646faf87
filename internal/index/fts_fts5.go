//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			group_key UNINDEXED,
			page_id UNINDEXED,
			title,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsRebuild mirrors export_records into records_fts. The snapshot is
// replaced wholesale on every run, so the FTS table is too.
func ftsRebuild(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM records_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	_, err := tx.Exec(`
		INSERT INTO records_fts (group_key, page_id, title)
		SELECT group_key, page_id, title FROM export_records ORDER BY group_key, seq
	`)
	if err != nil {
		return fmt.Errorf("index: fill fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 title search and returns matching records with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT group_key,
		       page_id,
		       title,
		       snippet(records_fts, 2, '<b>', '</b>', '...', 16)
		FROM records_fts
		WHERE records_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.GroupKey, &r.PageID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
