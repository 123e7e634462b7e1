package annotate

import (
	"regexp"
	"testing"

	"github.com/anthropics/distill/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("self-annotate-test", t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSelfAnnotateSingleEdit covers scenario 1 end to end through the
// self-annotator: description, semantic group, and the accompanying
// summary entry.
func TestSelfAnnotateSingleEdit(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetPromptIndex(1); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPrompt(1, "fix the login bug"); err != nil {
		t.Fatal(err)
	}

	calls := []store.ToolCall{
		{Tool: "Read", Key: "src/login.ts"},
		{Tool: "Edit", Key: "src/login.ts", Extra: map[string]string{"old": "a", "new": "b"}},
	}
	if _, err := s.InsertEntry(1, "src/login.ts", store.TypeFileChange, calls); err != nil {
		t.Fatalf("InsertEntry: %v", err)
	}

	if err := SelfAnnotate(s, 1); err != nil {
		t.Fatalf("SelfAnnotate: %v", err)
	}

	var description, semanticGroup, entryType string
	var confidence float64
	row := s.DB().QueryRow(`SELECT description, semantic_group, entry_type, confidence FROM entries WHERE entry_type = ?`, store.TypeFileChange)
	if err := row.Scan(&description, &semanticGroup, &entryType, &confidence); err != nil {
		t.Fatalf("querying annotated entry: %v", err)
	}

	re := regexp.MustCompile(`^Modified .*login\.ts \(1 edit\)$`)
	if !re.MatchString(description) {
		t.Errorf("description = %q, does not match expected pattern", description)
	}
	if semanticGroup != "src" {
		t.Errorf("semantic_group = %q, want src", semanticGroup)
	}
	if confidence != SelfConfidence {
		t.Errorf("confidence = %v, want %v", confidence, SelfConfidence)
	}

	summary, ok, err := s.GetSummaryForPrompt(1)
	if err != nil {
		t.Fatalf("GetSummaryForPrompt: %v", err)
	}
	if !ok {
		t.Fatal("expected a summary entry to exist")
	}
	if summary.AnnotationStatus != store.StatusAnnotated {
		t.Errorf("summary status = %q, want annotated", summary.AnnotationStatus)
	}
}

func TestSelfAnnotateNoopOnEmptyBatch(t *testing.T) {
	s := openTestStore(t)
	if err := SelfAnnotate(s, 1); err != nil {
		t.Fatalf("SelfAnnotate on empty batch: %v", err)
	}
	_, ok, err := s.GetSummaryForPrompt(1)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no summary entry when there were no pending entries")
	}
}

func TestStatusClosureAfterSelfAnnotate(t *testing.T) {
	s := openTestStore(t)

	s.InsertEntry(2, "a.go", store.TypeFileChange, []store.ToolCall{{Tool: "Write", Key: "a.go"}})
	s.InsertEntry(2, "b.go", store.TypeResearch, []store.ToolCall{{Tool: "Read", Key: "b.go"}})

	if err := SelfAnnotate(s, 2); err != nil {
		t.Fatalf("SelfAnnotate: %v", err)
	}

	pending, err := s.GetPending(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending entries after self-annotate = %d, want 0", len(pending))
	}
}

func TestDescribeEntryCreatedForWriteOnly(t *testing.T) {
	e := store.Entry{
		EntryType: store.TypeFileChange,
		FilePath:  "new.go",
		ToolCalls: []store.ToolCall{{Tool: "Write", Key: "new.go"}},
	}
	got := describeEntry(e)
	if got != "Created new.go" {
		t.Errorf("describeEntry = %q, want %q", got, "Created new.go")
	}
}

func TestDescribeEntrySearched(t *testing.T) {
	e := store.Entry{
		EntryType: store.TypeResearch,
		FilePath:  "foo",
		ToolCalls: []store.ToolCall{{Tool: "Grep", Key: "foo"}},
	}
	got := describeEntry(e)
	if got != `Searched for "foo"` {
		t.Errorf("describeEntry = %q, want %q", got, `Searched for "foo"`)
	}
}

func TestShortPathTruncatesDeepPaths(t *testing.T) {
	got := shortPath("a/b/c/d/e.go")
	want := ".../c/d/e.go"
	if got != want {
		t.Errorf("shortPath = %q, want %q", got, want)
	}
	if shortPath("e.go") != "e.go" {
		t.Errorf("shortPath on shallow path should be unchanged")
	}
}

func TestDeriveSemanticGroupFallsBackToEntryType(t *testing.T) {
	e := store.Entry{EntryType: store.TypeCommand, FilePath: ""}
	if got := deriveSemanticGroup(e); got != store.TypeCommand {
		t.Errorf("deriveSemanticGroup = %q, want %q", got, store.TypeCommand)
	}
}
