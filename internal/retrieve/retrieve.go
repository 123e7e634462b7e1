// Package retrieve builds the context block injected into a new user
// prompt: the previous turn's summary (unconditional continuity), plus a
// BM25 lexical search over prior entries expanded across semantic groups,
// assembled under a fixed character budget.
package retrieve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/distill/internal/store"
)

// CharsPerToken approximates token length for budgeting purposes.
const CharsPerToken = 4

// DefaultTokenBudget matches the config default.
const DefaultTokenBudget = 4000

const maxQueryTerms = 16
const maxSearchResults = 50
const maxGroupExpansion = 3

var queryCharRe = regexp.MustCompile(`[^a-z0-9_/.\-]`)

// stopWords excludes common English function words and coding verbs from
// query construction, distinct from the self-annotator's tag stopword set
// since the two filters serve different precision/recall tradeoffs.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "else": true, "for": true, "in": true, "on": true,
	"at": true, "to": true, "of": true, "with": true, "from": true, "by": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "it": true, "its": true,
	"they": true, "them": true, "their": true, "you": true, "your": true,
	"we": true, "our": true, "i": true, "my": true, "me": true, "he": true,
	"she": true, "his": true, "her": true, "what": true, "which": true,
	"who": true, "whom": true, "when": true, "where": true, "why": true,
	"how": true, "all": true, "any": true, "both": true, "each": true,
	"few": true, "more": true, "most": true, "other": true, "some": true,
	"such": true, "no": true, "nor": true, "not": true, "only": true,
	"own": true, "same": true, "so": true, "than": true, "too": true,
	"very": true, "just": true, "now": true, "also": true, "about": true,
	"into": true, "over": true, "after": true, "before": true, "again": true,
	"there": true, "here": true, "once": true, "please": true, "want": true,
	"need": true, "like": true, "make": true, "fix": true, "add": true,
	"update": true, "change": true, "create": true, "implement": true,
	"write": true, "run": true, "check": true, "look": true, "help": true,
	"get": true, "set": true, "use": true, "using": true, "let": true,
}

// BuildQuery exposes the query-construction step for callers outside this
// package (the `search` CLI subcommand runs a raw query through the same
// tokenizer the retriever uses internally).
func BuildQuery(prompt string) string {
	return buildQuery(prompt)
}

// buildQuery tokenizes prompt into at most maxQueryTerms FTS5 MATCH terms,
// each quoted for exact-term matching and joined by OR.
func buildQuery(prompt string) string {
	lower := strings.ToLower(prompt)
	cleaned := queryCharRe.ReplaceAllString(lower, " ")

	var terms []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		terms = append(terms, fmt.Sprintf("%q", tok))
		if len(terms) >= maxQueryTerms {
			break
		}
	}
	return strings.Join(terms, " OR ")
}

func formatLine(e store.Entry) string {
	key := e.FilePath
	if key == "" {
		key = e.EntryType
	}
	group := e.SemanticGroup
	if group == "" {
		group = e.EntryType
	}
	return fmt.Sprintf("[Prompt %d]: %s (%s) — %s", e.PromptIndex, key, group, e.Description)
}

// budget accumulates lines under a character ceiling, tracking which
// entries and semantic groups have been consumed.
type budget struct {
	maxChars  int
	used      int
	lines     []string
	seenIDs   map[int64]bool
	groupSeen map[string]bool
	groups    []string
}

func newBudget(maxChars int) *budget {
	return &budget{maxChars: maxChars, seenIDs: make(map[int64]bool), groupSeen: make(map[string]bool)}
}

// add appends a formatted line for e if it has a description and still fits
// within the remaining budget. Returns false once the budget is exhausted,
// signaling the caller to stop offering more entries.
func (b *budget) add(e store.Entry) bool {
	if b.seenIDs[e.ID] {
		return true
	}
	if strings.TrimSpace(e.Description) == "" {
		return true
	}
	line := formatLine(e)
	// +1 for the newline that will separate this line from the next.
	if b.used+len(line)+1 > b.maxChars {
		return false
	}
	b.lines = append(b.lines, line)
	b.used += len(line) + 1
	b.seenIDs[e.ID] = true
	if e.SemanticGroup != "" && !b.groupSeen[e.SemanticGroup] {
		b.groupSeen[e.SemanticGroup] = true
		b.groups = append(b.groups, e.SemanticGroup)
	}
	return true
}

func (b *budget) excludeIDs() []int64 {
	ids := make([]int64, 0, len(b.seenIDs))
	for id := range b.seenIDs {
		ids = append(ids, id)
	}
	return ids
}

// Retrieve assembles the context block for a new user prompt, or returns
// ok=false if there is nothing worth injecting.
func Retrieve(s *store.Store, promptText string, currentPromptIndex, tokenBudget int) (string, bool) {
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	maxChars := tokenBudget * CharsPerToken

	var continuity string
	if currentPromptIndex > 0 {
		if prev, ok, err := s.GetSummaryForPrompt(currentPromptIndex - 1); err == nil && ok {
			continuity = fmt.Sprintf("<last_activity>%s</last_activity>", prev.Description)
		}
	}

	b := newBudget(maxChars)
	matchExpr := buildQuery(promptText)
	if matchExpr != "" {
		results, err := s.SearchFTS(matchExpr, currentPromptIndex, maxSearchResults)
		if err == nil {
			for _, r := range results {
				if !b.add(r.Entry) {
					break
				}
			}

			for _, group := range b.groups {
				extra, err := s.GetGroupEntries(group, b.excludeIDs(), currentPromptIndex, maxGroupExpansion)
				if err != nil {
					continue
				}
				for _, e := range extra {
					if !b.add(e) {
						break
					}
				}
			}
		}
	}

	var sections []string
	if continuity != "" {
		sections = append(sections, continuity)
	}
	if len(b.lines) > 0 {
		sections = append(sections, "<relevant_context>\n"+strings.Join(b.lines, "\n")+"\n</relevant_context>")
	}
	if len(sections) == 0 {
		return "", false
	}
	return "<distilled_session_context>\n" + strings.Join(sections, "\n") + "\n</distilled_session_context>", true
}
