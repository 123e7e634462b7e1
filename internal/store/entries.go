package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// InsertEntry creates a new pending entry and its FTS row (indexing only
// file_path until annotation) inside a single transaction, and returns the
// new entry id.
func (s *Store) InsertEntry(promptIndex int, filePath, entryType string, calls []ToolCall) (int64, error) {
	callsJSON, err := json.Marshal(calls)
	if err != nil {
		return 0, fmt.Errorf("marshaling tool calls: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO entries (prompt_index, file_path, entry_type, tool_calls, annotation_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, promptIndex, filePath, entryType, string(callsJSON), StatusPending, nowMillis())
	if err != nil {
		return 0, fmt.Errorf("inserting entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertFTSRow(tx, id, filePath, "", "", ""); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// AnnotateEntry overwrites an entry's annotation fields and reindexes its
// FTS row, all inside one transaction, per the FTS-bijection invariant: a
// crash between the old row's deletion and the new row's insertion must
// never be observable by a concurrent reader, hence the single transaction.
func (s *Store) AnnotateEntry(id int64, description, tags, semanticGroup string, relatedFiles []string, confidence float64, lowRelevance bool) error {
	relatedJSON, err := json.Marshal(relatedFiles)
	if err != nil {
		return fmt.Errorf("marshaling related files: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var filePath string
	if err := tx.QueryRow(`SELECT file_path FROM entries WHERE id = ?`, id).Scan(&filePath); err != nil {
		return fmt.Errorf("looking up entry %d: %w", id, err)
	}

	_, err = tx.Exec(`
		UPDATE entries
		SET description = ?, tags = ?, related_files = ?, semantic_group = ?,
		    confidence = ?, low_relevance = ?, annotation_status = ?
		WHERE id = ?
	`, description, tags, string(relatedJSON), semanticGroup, confidence, boolToInt(lowRelevance), StatusAnnotated, id)
	if err != nil {
		return fmt.Errorf("updating entry %d: %w", id, err)
	}

	if err := reindexFTSRow(tx, id, filePath, description, tags, semanticGroup); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertSummary creates a turn-overview entry that bypasses the pending
// state machine: it is pre-marked annotated and indexes only
// {description, tags} into FTS (file_path and semantic_group stay empty).
func (s *Store) InsertSummary(promptIndex int, description, tags string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO entries (prompt_index, file_path, entry_type, tool_calls, description, tags,
		                      semantic_group, confidence, low_relevance, annotation_status, created_at)
		VALUES (?, '', ?, '[]', ?, ?, '', 1.0, 0, ?, ?)
	`, promptIndex, TypeSummary, description, tags, StatusAnnotated, nowMillis())
	if err != nil {
		return 0, fmt.Errorf("inserting summary entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := insertFTSRow(tx, id, "", description, tags, ""); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// MarkFailed transitions every pending/annotating entry at promptIndex to
// failed. Used both for the retry path and for LLM-Annotator error recovery.
func (s *Store) MarkFailed(promptIndex int) error {
	_, err := s.db.Exec(`
		UPDATE entries SET annotation_status = ?
		WHERE prompt_index = ? AND annotation_status IN (?, ?)
	`, StatusFailed, promptIndex, StatusPending, StatusAnnotating)
	return err
}

// MarkAnnotating transitions the given entries to annotating.
func (s *Store) MarkAnnotating(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := idPlaceholders(ids)
	args = append([]any{StatusAnnotating}, args...)
	_, err := s.db.Exec(`UPDATE entries SET annotation_status = ? WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// MarkIDsFailed transitions the given entries to failed, regardless of
// their current prompt_index. Used by the LLM-Annotator to fail entries the
// provider's response omitted, including retried entries from earlier turns.
func (s *Store) MarkIDsFailed(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := idPlaceholders(ids)
	args = append([]any{StatusFailed}, args...)
	_, err := s.db.Exec(`UPDATE entries SET annotation_status = ? WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// InsertLink records a directed, typed edge between two entries. Duplicate
// (source, target, type) triples are silently ignored per the schema's
// uniqueness constraint.
func (s *Store) InsertLink(sourceID, targetID int64, linkType string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO entry_links (source_id, target_id, link_type) VALUES (?, ?, ?)
	`, sourceID, targetID, linkType)
	return err
}

// GetCounts returns the number of entries per annotation_status.
func (s *Store) GetCounts() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT annotation_status, COUNT(*) FROM entries GROUP BY annotation_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// insertFTSRow inserts a new (unmapped) FTS row and records its rowid in
// fts_map against entryID.
func insertFTSRow(tx *sql.Tx, entryID int64, filePath, description, tags, semanticGroup string) error {
	res, err := tx.Exec(`
		INSERT INTO entries_fts (file_path, description, tags, semantic_group) VALUES (?, ?, ?, ?)
	`, filePath, description, tags, semanticGroup)
	if err != nil {
		return fmt.Errorf("inserting fts row: %w", err)
	}
	ftsRowID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO fts_map (fts_rowid, entry_id) VALUES (?, ?)`, ftsRowID, entryID); err != nil {
		return fmt.Errorf("inserting fts map row: %w", err)
	}
	return nil
}

// reindexFTSRow deletes the old FTS row (and map row) for entryID and
// inserts a fresh one, atomically within the caller's transaction.
func reindexFTSRow(tx *sql.Tx, entryID int64, filePath, description, tags, semanticGroup string) error {
	var oldRowID int64
	err := tx.QueryRow(`SELECT fts_rowid FROM fts_map WHERE entry_id = ?`, entryID).Scan(&oldRowID)
	switch err {
	case nil:
		if _, err := tx.Exec(`DELETE FROM entries_fts WHERE rowid = ?`, oldRowID); err != nil {
			return fmt.Errorf("deleting old fts row: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM fts_map WHERE entry_id = ?`, entryID); err != nil {
			return fmt.Errorf("deleting old fts map row: %w", err)
		}
	case sql.ErrNoRows:
		// No existing row (shouldn't happen given InsertEntry's invariant,
		// but tolerate it rather than corrupt state).
	default:
		return fmt.Errorf("looking up fts map row: %w", err)
	}

	return insertFTSRow(tx, entryID, filePath, description, tags, semanticGroup)
}

func idPlaceholders(ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
