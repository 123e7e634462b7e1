package retrieve

import (
	"strings"
	"testing"

	"github.com/anthropics/distill/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("retrieve-test", t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestContinuityBlockUnconditional covers scenario 4: the previous turn's
// summary appears even when the new prompt shares no tokens with it.
func TestContinuityBlockUnconditional(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.InsertSummary(1, "Refactored auth", "auth,refactor"); err != nil {
		t.Fatalf("InsertSummary: %v", err)
	}

	ctx, ok := Retrieve(s, "what about login?", 2, DefaultTokenBudget)
	if !ok {
		t.Fatal("expected a context block")
	}
	if !strings.Contains(ctx, "<last_activity>Refactored auth</last_activity>") {
		t.Errorf("context missing continuity block: %s", ctx)
	}
}

func TestRetrieveReturnsFalseWhenNothingAvailable(t *testing.T) {
	s := openTestStore(t)
	_, ok := Retrieve(s, "anything at all", 1, DefaultTokenBudget)
	if ok {
		t.Error("expected no context for a fresh session")
	}
}

func TestRetrieveFindsMatchingEntry(t *testing.T) {
	s := openTestStore(t)

	id, err := s.InsertEntry(1, "src/login.ts", store.TypeFileChange, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AnnotateEntry(id, "Fixed the login bug", "login,bugfix", "src", nil, 0.3, false); err != nil {
		t.Fatal(err)
	}

	ctx, ok := Retrieve(s, "tell me about the login bug", 2, DefaultTokenBudget)
	if !ok {
		t.Fatal("expected a context block")
	}
	if !strings.Contains(ctx, "Fixed the login bug") {
		t.Errorf("context missing matched entry: %s", ctx)
	}
}

func TestRetrievalExcludesUnannotatedAndLowRelevance(t *testing.T) {
	s := openTestStore(t)

	pendingID, _ := s.InsertEntry(1, "a.go", store.TypeFileChange, nil)
	lowRelID, _ := s.InsertEntry(1, "b.go", store.TypeFileChange, nil)
	if err := s.AnnotateEntry(lowRelID, "Noise about widgets", "widgets", "g", nil, 0.3, true); err != nil {
		t.Fatal(err)
	}
	_ = pendingID

	ctx, ok := Retrieve(s, "widgets widgets widgets", 2, DefaultTokenBudget)
	if ok && strings.Contains(ctx, "widgets") {
		t.Errorf("low_relevance entry leaked into context: %s", ctx)
	}
}

func TestRetrieveExcludesCurrentAndFutureTurns(t *testing.T) {
	s := openTestStore(t)

	id, _ := s.InsertEntry(2, "a.go", store.TypeFileChange, nil)
	if err := s.AnnotateEntry(id, "Widget work", "widget", "g", nil, 0.3, false); err != nil {
		t.Fatal(err)
	}

	ctx, ok := Retrieve(s, "widget widget widget", 2, DefaultTokenBudget)
	if ok && strings.Contains(ctx, "Widget work") {
		t.Errorf("entry at current prompt_index should not be retrievable: %s", ctx)
	}
}

// TestBudgetRespectedAndTruncatesAtLineBoundary covers scenario 5.
func TestBudgetRespectedAndTruncatesAtLineBoundary(t *testing.T) {
	s := openTestStore(t)

	for i := 1; i <= 20; i++ {
		id, err := s.InsertEntry(1, "file.go", store.TypeFileChange, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.AnnotateEntry(id, "Widget change number describing a lot of detail here", "widget", "g", nil, 0.3, false); err != nil {
			t.Fatal(err)
		}
	}

	const tokenBudget = 50 // 200 chars
	ctx, ok := Retrieve(s, "widget change describing detail", 2, tokenBudget)
	if !ok {
		t.Fatal("expected a context block")
	}
	if len(ctx) > tokenBudget*CharsPerToken+100 { // allow for wrapper tags outside the budgeted lines
		t.Errorf("context length %d suspiciously large for a %d-char line budget", len(ctx), tokenBudget*CharsPerToken)
	}

	// Every line inside relevant_context must be a complete formatted line,
	// not a mid-line truncation.
	start := strings.Index(ctx, "<relevant_context>\n") + len("<relevant_context>\n")
	end := strings.Index(ctx, "\n</relevant_context>")
	inner := ctx[start:end]
	for _, line := range strings.Split(inner, "\n") {
		if !strings.HasPrefix(line, "[Prompt ") {
			t.Errorf("truncated mid-line content: %q", line)
		}
	}
}

func TestBuildQueryDropsStopwordsAndShortTokens(t *testing.T) {
	q := buildQuery("Can you fix the login bug in src/auth.ts?")
	if strings.Contains(q, `"the"`) || strings.Contains(q, `"in"`) {
		t.Errorf("query should drop stopwords: %q", q)
	}
	if !strings.Contains(q, `"login"`) || !strings.Contains(q, `"bug"`) {
		t.Errorf("query should keep content terms: %q", q)
	}
}

func TestBuildQueryEmptyWhenAllStopwords(t *testing.T) {
	q := buildQuery("the a an")
	if q != "" {
		t.Errorf("expected empty query, got %q", q)
	}
}
