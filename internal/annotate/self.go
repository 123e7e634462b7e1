// Package annotate implements both enrichment passes over freshly grouped
// entries: the synchronous, rule-based self-annotator and the asynchronous,
// best-effort LLM-annotator.
package annotate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/anthropics/distill/internal/store"
)

// stopWords excludes common function words and coding verbs from keyword
// extraction so tags stay signal-dense.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "can": true, "had": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "day": true, "get": true, "has": true,
	"him": true, "his": true, "how": true, "man": true, "new": true, "now": true,
	"old": true, "see": true, "two": true, "way": true, "who": true, "boy": true,
	"did": true, "its": true, "let": true, "put": true, "say": true, "she": true,
	"too": true, "use": true, "that": true, "with": true, "have": true, "this": true,
	"will": true, "your": true, "from": true, "they": true, "know": true, "want": true,
	"been": true, "good": true, "much": true, "some": true, "time": true, "very": true,
	"when": true, "come": true, "here": true, "just": true, "like": true, "long": true,
	"make": true, "many": true, "over": true, "such": true, "take": true, "than": true,
	"them": true, "well": true, "were": true, "what": true, "into": true, "need": true,
	"should": true, "would": true, "could": true, "about": true, "there": true,
	"their": true, "these": true, "which": true, "please": true,
	"fix": true, "add": true, "update": true, "change": true,
	"create": true, "implement": true, "write": true, "run": true, "check": true,
	"look": true, "find": true, "help": true, "using": true,
}

func normTool(tool string) string {
	var b strings.Builder
	for _, r := range tool {
		switch r {
		case '-', '_', ' ':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}

// shortPath renders p as ".../a/b/c" when it has more than three path
// segments, and returns it unchanged otherwise.
func shortPath(p string) string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	if len(parts) <= 3 {
		return p
	}
	return ".../" + strings.Join(parts[len(parts)-3:], "/")
}

func truncateEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func extractKeywords(text string, limit int) []string {
	var keywords []string
	seen := make(map[string]bool)
	var cur strings.Builder
	flush := func() {
		w := strings.ToLower(cur.String())
		cur.Reset()
		if len(w) <= 2 || stopWords[w] || seen[w] {
			return
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	for _, r := range text {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isAlnum {
			cur.WriteRune(r)
		} else {
			flush()
		}
		if limit > 0 && len(keywords) >= limit {
			break
		}
	}
	flush()
	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// describeEntry applies the entry_type description templates.
func describeEntry(e store.Entry) string {
	short := shortPath(e.FilePath)

	switch e.EntryType {
	case store.TypeFileChange:
		edits := 0
		allWrites := len(e.ToolCalls) > 0
		for _, tc := range e.ToolCalls {
			n := normTool(tc.Tool)
			if n == "edit" {
				edits++
			}
			if n != "write" {
				allWrites = false
			}
		}
		switch {
		case edits > 0:
			plural := "s"
			if edits == 1 {
				plural = ""
			}
			return truncateEllipsis(fmt.Sprintf("Modified %s (%d edit%s)", short, edits, plural), 80)
		case allWrites:
			return truncateEllipsis(fmt.Sprintf("Created %s", short), 80)
		default:
			return truncateEllipsis(fmt.Sprintf("Changed %s", short), 80)
		}

	case store.TypeResearch:
		var pattern, subagentDesc string
		hasRead := false
		for _, tc := range e.ToolCalls {
			switch normTool(tc.Tool) {
			case "glob", "grep":
				if pattern == "" {
					pattern = tc.Key
				}
			case "read":
				hasRead = true
			case "subagenttask":
				if subagentDesc == "" && tc.Extra != nil {
					subagentDesc = tc.Extra["description"]
				}
			}
		}
		switch {
		case pattern != "":
			return truncateEllipsis(fmt.Sprintf("Searched for %q", pattern), 80)
		case hasRead:
			return truncateEllipsis(fmt.Sprintf("Read %s", short), 80)
		case subagentDesc != "":
			return truncateEllipsis(fmt.Sprintf("Subagent: %s", subagentDesc), 80)
		default:
			return truncateEllipsis(fmt.Sprintf("Researched %s", short), 80)
		}

	case store.TypeCommand:
		desc := ""
		cmd := e.FilePath
		for _, tc := range e.ToolCalls {
			if tc.Extra != nil && tc.Extra["description"] != "" {
				desc = tc.Extra["description"]
			}
			if tc.Key != "" {
				cmd = tc.Key
			}
		}
		if desc != "" {
			return truncateEllipsis("Ran: "+desc, 80)
		}
		return truncateEllipsis("Ran: "+cmd, 80)

	case store.TypeWeb:
		isFetch := false
		for _, tc := range e.ToolCalls {
			if normTool(tc.Tool) == "webfetch" {
				isFetch = true
			}
		}
		if isFetch {
			return truncateEllipsis("Fetched: "+e.FilePath, 80)
		}
		return truncateEllipsis(fmt.Sprintf("Web search: %s", e.FilePath), 80)

	default:
		return truncateEllipsis(fmt.Sprintf("Activity: %s", short), 80)
	}
}

// deriveTags builds the tag set for one entry.
func deriveTags(e store.Entry, promptText string) string {
	seen := make(map[string]bool)
	var tags []string
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		tags = append(tags, v)
	}

	if e.FilePath != "" {
		base := filepath.Base(e.FilePath)
		add(base)
		if ext := filepath.Ext(base); ext != "" {
			add(strings.TrimPrefix(ext, "."))
		}
		add(filepath.Base(filepath.Dir(e.FilePath)))
	}
	add(e.EntryType)
	for _, tc := range e.ToolCalls {
		add(normTool(tc.Tool))
		if tc.Extra != nil {
			for _, v := range tc.Extra {
				for _, kw := range extractKeywords(v, 0) {
					add(kw)
				}
			}
		}
	}
	for _, kw := range extractKeywords(promptText, 5) {
		add(kw)
	}

	return strings.Join(tags, ",")
}

// deriveSemanticGroup returns file_path's immediate parent directory, or its
// first path segment when there is no parent, falling back to entry_type.
func deriveSemanticGroup(e store.Entry) string {
	if e.FilePath == "" {
		return e.EntryType
	}
	dir := filepath.Dir(filepath.ToSlash(e.FilePath))
	if dir == "." || dir == "" {
		parts := strings.SplitN(filepath.ToSlash(e.FilePath), "/", 2)
		if len(parts) > 0 && parts[0] != "" {
			return parts[0]
		}
		return e.EntryType
	}
	return filepath.Base(dir)
}

// SelfConfidence is the fixed, advisory-only confidence rule-based
// annotation reports; retrieval never filters on it.
const SelfConfidence = 0.3

// SelfAnnotate synchronously annotates every pending entry for promptIndex
// and inserts a turn summary entry. It never returns an error for
// individual description/tag derivation (those are pure functions); the
// only failures possible are store I/O.
func SelfAnnotate(s *store.Store, promptIndex int) error {
	entries, err := s.GetPending(promptIndex)
	if err != nil {
		return fmt.Errorf("fetching pending entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	promptText, _, err := s.GetPrompt(promptIndex)
	if err != nil {
		return fmt.Errorf("fetching prompt text: %w", err)
	}

	var descriptions []string
	allTags := make(map[string]bool)
	var tagOrder []string

	for _, e := range entries {
		desc := describeEntry(e)
		tags := deriveTags(e, promptText)
		group := deriveSemanticGroup(e)

		if err := s.AnnotateEntry(e.ID, desc, tags, group, nil, SelfConfidence, false); err != nil {
			return fmt.Errorf("annotating entry %d: %w", e.ID, err)
		}

		descriptions = append(descriptions, desc)
		for _, t := range strings.Split(tags, ",") {
			if t == "" || allTags[t] {
				continue
			}
			allTags[t] = true
			tagOrder = append(tagOrder, t)
		}
	}

	var summary string
	if len(descriptions) == 1 {
		summary = descriptions[0]
	} else {
		n := 3
		if n > len(descriptions) {
			n = len(descriptions)
		}
		summary = fmt.Sprintf("%d activities: %s...", len(descriptions), strings.Join(descriptions[:n], "; "))
	}

	if _, err := s.InsertSummary(promptIndex, summary, strings.Join(tagOrder, ",")); err != nil {
		return fmt.Errorf("inserting summary: %w", err)
	}
	return nil
}
