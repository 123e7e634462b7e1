package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// fullEntryColumns lists every column scanEntry expects, in order.
const fullEntryColumns = `id, prompt_index, file_path, entry_type, tool_calls, description, tags,
	related_files, semantic_group, confidence, low_relevance, annotation_status, created_at`

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var toolCallsJSON, relatedJSON string
	var lowRelevance int
	if err := rows.Scan(&e.ID, &e.PromptIndex, &e.FilePath, &e.EntryType, &toolCallsJSON,
		&e.Description, &e.Tags, &relatedJSON, &e.SemanticGroup, &e.Confidence,
		&lowRelevance, &e.AnnotationStatus, &e.CreatedAt); err != nil {
		return e, err
	}
	e.LowRelevance = lowRelevance != 0
	if toolCallsJSON != "" {
		_ = json.Unmarshal([]byte(toolCallsJSON), &e.ToolCalls)
	}
	if relatedJSON != "" {
		_ = json.Unmarshal([]byte(relatedJSON), &e.RelatedFiles)
	}
	return e, nil
}

// GetPending returns every entry at promptIndex whose annotation_status is
// pending or annotating (i.e. the current turn's unfinished batch), with
// full tool-call data.
func (s *Store) GetPending(promptIndex int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT `+fullEntryColumns+` FROM entries
		WHERE prompt_index = ? AND annotation_status IN (?, ?)
		ORDER BY id ASC
	`, promptIndex, StatusPending, StatusAnnotating)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// GetFailed returns up to limit of the most recently created failed
// entries across the whole session, for the LLM-Annotator's retry channel.
func (s *Store) GetFailed(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT `+fullEntryColumns+` FROM entries
		WHERE annotation_status = ?
		ORDER BY id DESC
		LIMIT ?
	`, StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// GetHistorical returns up to limit of the most recent annotated entries
// strictly before beforePromptIndex. Only the metadata fields the
// LLM-Annotator needs for context are populated (tool_calls is left nil).
func (s *Store) GetHistorical(beforePromptIndex, limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, prompt_index, file_path, description, tags, semantic_group
		FROM entries
		WHERE annotation_status = ? AND prompt_index < ?
		ORDER BY prompt_index DESC, id DESC
		LIMIT ?
	`, StatusAnnotated, beforePromptIndex, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PromptIndex, &e.FilePath, &e.Description, &e.Tags, &e.SemanticGroup); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetEntry fetches a single entry by id.
func (s *Store) GetEntry(id int64) (Entry, bool, error) {
	rows, err := s.db.Query(`SELECT `+fullEntryColumns+` FROM entries WHERE id = ?`, id)
	if err != nil {
		return Entry{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return Entry{}, false, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// ListRecentEntries returns up to limit entries across the whole session,
// most recent first, for the `inspect` subcommand.
func (s *Store) ListRecentEntries(limit int) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT `+fullEntryColumns+` FROM entries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// GetSummaryForPrompt returns the summary entry for a given turn, if any.
func (s *Store) GetSummaryForPrompt(promptIndex int) (*Entry, bool, error) {
	rows, err := s.db.Query(`
		SELECT `+fullEntryColumns+` FROM entries
		WHERE entry_type = ? AND prompt_index = ?
		LIMIT 1
	`, TypeSummary, promptIndex)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, false, err
	}
	return &e, true, nil
}

// SearchResult pairs a matched entry with its FTS rank (lower = better).
type SearchResult struct {
	Entry Entry
	Rank  float64
}

// SearchFTS runs matchExpr (already formatted as an FTS5 MATCH query)
// against the full-text index, joined back to entries via the rowid map,
// filtered to retrieval-eligible rows, and ordered by rank ascending.
func (s *Store) SearchFTS(matchExpr string, currentPromptIndex, limit int) ([]SearchResult, error) {
	rows, err := s.db.Query(`
		SELECT `+prefixColumns("e.", fullEntryColumns)+`, entries_fts.rank
		FROM entries_fts
		JOIN fts_map ON fts_map.fts_rowid = entries_fts.rowid
		JOIN entries e ON e.id = fts_map.entry_id
		WHERE entries_fts MATCH ?
		  AND e.low_relevance = 0
		  AND e.annotation_status = ?
		  AND e.prompt_index < ?
		ORDER BY entries_fts.rank ASC
		LIMIT ?
	`, matchExpr, StatusAnnotated, currentPromptIndex, limit)
	if err != nil {
		return nil, fmt.Errorf("searching fts: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var e Entry
		var toolCallsJSON, relatedJSON string
		var lowRelevance int
		var rank float64
		if err := rows.Scan(&e.ID, &e.PromptIndex, &e.FilePath, &e.EntryType, &toolCallsJSON,
			&e.Description, &e.Tags, &relatedJSON, &e.SemanticGroup, &e.Confidence,
			&lowRelevance, &e.AnnotationStatus, &e.CreatedAt, &rank); err != nil {
			return nil, err
		}
		e.LowRelevance = lowRelevance != 0
		if toolCallsJSON != "" {
			_ = json.Unmarshal([]byte(toolCallsJSON), &e.ToolCalls)
		}
		if relatedJSON != "" {
			_ = json.Unmarshal([]byte(relatedJSON), &e.RelatedFiles)
		}
		results = append(results, SearchResult{Entry: e, Rank: rank})
	}
	return results, rows.Err()
}

// GetGroupEntries returns up to limit additional annotated entries sharing
// semanticGroup, excluding ids already selected, ordered by prompt_index
// descending (most recent work in that stream first).
func (s *Store) GetGroupEntries(semanticGroup string, excludeIDs []int64, beforePromptIndex, limit int) ([]Entry, error) {
	query := `
		SELECT ` + fullEntryColumns + ` FROM entries
		WHERE semantic_group = ? AND low_relevance = 0 AND annotation_status = ? AND prompt_index < ?
	`
	args := []any{semanticGroup, StatusAnnotated, beforePromptIndex}
	if len(excludeIDs) > 0 {
		placeholders, excludeArgs := idPlaceholders(excludeIDs)
		query += " AND id NOT IN (" + placeholders + ")"
		args = append(args, excludeArgs...)
	}
	query += " ORDER BY prompt_index DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// prefixColumns rewrites a comma-separated column list to prefix each
// column with alias (e.g. "id, x" -> "e.id, e. x"; the original whitespace
// after each comma is kept, which SQL ignores), for disambiguating joins.
func prefixColumns(alias, columns string) string {
	out := alias
	for _, r := range columns {
		out += string(r)
		if r == ',' {
			out += " " + alias
		}
	}
	return out
}
