package store

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("sess abc/123", t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSanitizeSessionID(t *testing.T) {
	got := SanitizeSessionID("sess abc/123:x")
	want := "sess_abc_123_x"
	if got != want {
		t.Errorf("SanitizeSessionID = %q, want %q", got, want)
	}
}

func TestOpenCreatesDBFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open("mysession", dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "mysession.db")); err != nil {
		t.Errorf("expected db file to exist: %v", err)
	}
}

func TestInsertEntryPending(t *testing.T) {
	s := openTestStore(t)

	id, err := s.InsertEntry(1, "foo.go", TypeFileChange, []ToolCall{{Tool: "Edit", Key: "foo.go"}})
	if err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	pending, err := s.GetPending(1)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("len(pending) = %d, want 1", len(pending))
	}
	if pending[0].AnnotationStatus != StatusPending {
		t.Errorf("status = %q, want pending", pending[0].AnnotationStatus)
	}
	if len(pending[0].ToolCalls) != 1 || pending[0].ToolCalls[0].Tool != "Edit" {
		t.Errorf("tool calls not round-tripped: %+v", pending[0].ToolCalls)
	}
}

// TestAnnotateEntryMaintainsFTSBijection verifies that annotating an entry
// leaves exactly one FTS row mapped to it, and that the row reflects the new
// description rather than the original empty placeholder.
func TestAnnotateEntryMaintainsFTSBijection(t *testing.T) {
	s := openTestStore(t)

	id, err := s.InsertEntry(1, "foo.go", TypeFileChange, []ToolCall{{Tool: "Edit", Key: "foo.go"}})
	if err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	if err := s.AnnotateEntry(id, "refactored the parser", "parser,refactor", "parser", nil, 0.3, false); err != nil {
		t.Fatalf("AnnotateEntry: %v", err)
	}

	var ftsRows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fts_map WHERE entry_id = ?`, id).Scan(&ftsRows); err != nil {
		t.Fatalf("counting fts_map rows: %v", err)
	}
	if ftsRows != 1 {
		t.Fatalf("fts_map rows for entry = %d, want 1", ftsRows)
	}

	results, err := s.SearchFTS(`"refactored"`, 2, 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != id {
		t.Errorf("SearchFTS did not find reannotated entry: %+v", results)
	}
}

// TestAnnotateEntryIsIdempotent reannotating the same entry twice must still
// leave exactly one FTS row behind (the bijection invariant).
func TestAnnotateEntryIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	id, _ := s.InsertEntry(1, "foo.go", TypeFileChange, nil)
	if err := s.AnnotateEntry(id, "first pass", "a", "g", nil, 0.3, false); err != nil {
		t.Fatalf("first AnnotateEntry: %v", err)
	}
	if err := s.AnnotateEntry(id, "second pass", "b", "g", nil, 0.9, false); err != nil {
		t.Fatalf("second AnnotateEntry: %v", err)
	}

	var ftsRows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM fts_map WHERE entry_id = ?`, id).Scan(&ftsRows); err != nil {
		t.Fatalf("counting fts_map rows: %v", err)
	}
	if ftsRows != 1 {
		t.Fatalf("fts_map rows after reannotate = %d, want 1", ftsRows)
	}

	results, err := s.SearchFTS(`"pass"`, 2, 10)
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one match for reannotated entry, got %d", len(results))
	}
}

func TestMarkFailedAndGetFailed(t *testing.T) {
	s := openTestStore(t)

	id, _ := s.InsertEntry(3, "x.go", TypeFileChange, nil)
	if err := s.MarkFailed(3); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	failed, err := s.GetFailed(10)
	if err != nil {
		t.Fatalf("GetFailed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != id {
		t.Fatalf("GetFailed = %+v, want one entry with id %d", failed, id)
	}
}

func TestGetHistoricalOnlyReturnsAnnotated(t *testing.T) {
	s := openTestStore(t)

	pendingID, _ := s.InsertEntry(1, "a.go", TypeFileChange, nil)
	annotatedID, _ := s.InsertEntry(1, "b.go", TypeFileChange, nil)
	if err := s.AnnotateEntry(annotatedID, "did b", "b", "g1", nil, 0.3, false); err != nil {
		t.Fatalf("AnnotateEntry: %v", err)
	}
	_ = pendingID

	hist, err := s.GetHistorical(2, 10)
	if err != nil {
		t.Fatalf("GetHistorical: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != annotatedID {
		t.Fatalf("GetHistorical = %+v, want only annotated entry %d", hist, annotatedID)
	}
}

func TestGetGroupEntriesExcludesGivenIDs(t *testing.T) {
	s := openTestStore(t)

	id1, _ := s.InsertEntry(1, "a.go", TypeFileChange, nil)
	id2, _ := s.InsertEntry(1, "b.go", TypeFileChange, nil)
	if err := s.AnnotateEntry(id1, "a", "", "group1", nil, 0.3, false); err != nil {
		t.Fatal(err)
	}
	if err := s.AnnotateEntry(id2, "b", "", "group1", nil, 0.3, false); err != nil {
		t.Fatal(err)
	}

	group, err := s.GetGroupEntries("group1", []int64{id1}, 2, 10)
	if err != nil {
		t.Fatalf("GetGroupEntries: %v", err)
	}
	if len(group) != 1 || group[0].ID != id2 {
		t.Fatalf("GetGroupEntries = %+v, want only id %d", group, id2)
	}
}

func TestInsertLinkIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)

	id1, _ := s.InsertEntry(1, "a.go", TypeFileChange, nil)
	id2, _ := s.InsertEntry(1, "b.go", TypeFileChange, nil)

	if err := s.InsertLink(id1, id2, LinkRelated); err != nil {
		t.Fatalf("InsertLink: %v", err)
	}
	if err := s.InsertLink(id1, id2, LinkRelated); err != nil {
		t.Fatalf("InsertLink (duplicate): %v", err)
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entry_links`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("entry_links rows = %d, want 1 (duplicate should be ignored)", n)
	}
}

func TestPromptIndexRoundTrip(t *testing.T) {
	s := openTestStore(t)

	n, err := s.GetPromptIndex()
	if err != nil {
		t.Fatalf("GetPromptIndex: %v", err)
	}
	if n != 0 {
		t.Errorf("default GetPromptIndex = %d, want 0", n)
	}

	if err := s.SetPromptIndex(5); err != nil {
		t.Fatalf("SetPromptIndex: %v", err)
	}
	n, err = s.GetPromptIndex()
	if err != nil {
		t.Fatalf("GetPromptIndex: %v", err)
	}
	if n != 5 {
		t.Errorf("GetPromptIndex after set = %d, want 5", n)
	}
}

func TestGetCounts(t *testing.T) {
	s := openTestStore(t)

	id1, _ := s.InsertEntry(1, "a.go", TypeFileChange, nil)
	s.InsertEntry(1, "b.go", TypeFileChange, nil)
	if err := s.AnnotateEntry(id1, "a", "", "", nil, 0.3, false); err != nil {
		t.Fatal(err)
	}

	counts, err := s.GetCounts()
	if err != nil {
		t.Fatalf("GetCounts: %v", err)
	}
	if counts[StatusAnnotated] != 1 {
		t.Errorf("annotated count = %d, want 1", counts[StatusAnnotated])
	}
	if counts[StatusPending] != 1 {
		t.Errorf("pending count = %d, want 1", counts[StatusPending])
	}
}
