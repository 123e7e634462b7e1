// Package grouper folds a flat list of buffered tool calls into the logical
// entries the store persists: calls against the same file are merged into
// one group, while calls against unrelated things each become their own
// standalone entry.
package grouper

import (
	"strings"

	"github.com/anthropics/distill/internal/buffer"
	"github.com/anthropics/distill/internal/store"
)

// ignoredTools are planning/mode and todo/task-list tools that never
// represent recordable work.
var ignoredTools = map[string]bool{
	"enterplanmode":     true,
	"exitplanmode":      true,
	"askuserquestion":   true,
	"todoread":          true,
	"todowrite":         true,
	"taskcreate":        true,
	"taskupdate":        true,
	"tasklist":          true,
	"taskget":           true,
}

// fileTools key by a path-like field and may be merged into a group.
var fileTools = map[string]bool{
	"read":          true,
	"write":         true,
	"edit":          true,
	"notebookedit":  true,
	"glob":          true,
	"grep":          true,
}

// writeTools mark a file-keyed group as a file_change rather than research.
var writeTools = map[string]bool{
	"write":        true,
	"edit":         true,
	"notebookedit": true,
}

// keyField names the input field that supplies a file tool's grouping key.
var keyField = map[string]string{
	"read":         "file_path",
	"write":        "file_path",
	"edit":         "file_path",
	"notebookedit": "notebook_path",
	"glob":         "pattern",
	"grep":         "pattern",
}

// standaloneKeyField names the input field used for non-file tools, purely
// for descriptive purposes (it becomes the entry's file_path column).
var standaloneKeyField = map[string]string{
	"bash":         "command",
	"websearch":    "query",
	"webfetch":     "url",
	"subagenttask": "prompt",
}

const unknownKey = "_unknown"

// normalize collapses a tool name to a comparison key: lowercase, no
// separators. This absorbs naming variance such as "Notebook-Edit" vs
// "NotebookEdit" vs "notebook_edit".
func normalize(tool string) string {
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

// group is one pending cluster of calls sharing a file key, or a single
// standalone call, in first-seen order.
type group struct {
	key       string
	tool      string
	isFile    bool
	calls     []buffer.Call
}

// Group folds calls into ordered entry groups, dropping ignored tools. The
// returned order matches first-occurrence order of each group's key so that
// Flush produces deterministic entry ordering across runs on the same input.
func Group(calls []buffer.Call) []group {
	var order []*group
	byKey := make(map[string]*group)

	for _, c := range calls {
		norm := normalize(c.Tool)
		if ignoredTools[norm] {
			continue
		}

		if fileTools[norm] {
			key := stringField(c, keyField[norm])
			if key == "" {
				key = unknownKey
			}
			g, ok := byKey[key]
			if !ok {
				g = &group{key: key, tool: norm, isFile: true}
				byKey[key] = g
				order = append(order, g)
			}
			g.calls = append(g.calls, c)
			continue
		}

		g := &group{key: standaloneTitle(norm, c), tool: norm, isFile: false}
		g.calls = append(g.calls, c)
		order = append(order, g)
	}

	result := make([]group, len(order))
	for i, g := range order {
		result[i] = *g
	}
	return result
}

func standaloneTitle(norm string, c buffer.Call) string {
	field := standaloneKeyField[norm]
	if field == "" {
		return unknownKey
	}
	v := stringField(c, field)
	if v == "" {
		return unknownKey
	}
	return v
}

func stringField(c buffer.Call, field string) string {
	if field == "" || c.Input == nil {
		return ""
	}
	v, ok := c.Input[field]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// entryType classifies a group per the grouping policy.
func entryType(g group) string {
	if g.isFile {
		for _, c := range g.calls {
			if writeTools[normalize(c.Tool)] {
				return store.TypeFileChange
			}
		}
		return store.TypeResearch
	}

	switch g.tool {
	case "bash":
		return store.TypeCommand
	case "websearch", "webfetch":
		return store.TypeWeb
	case "subagenttask":
		return store.TypeResearch
	default:
		return store.TypeResearch
	}
}

const (
	maxKeyLen   = 300
	maxExtraLen = 200
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// summarizeCall converts one buffered call into its compact, persisted form.
func summarizeCall(norm string, c buffer.Call, key string) store.ToolCall {
	tc := store.ToolCall{Tool: c.Tool, Key: truncate(key, maxKeyLen)}

	extra := make(map[string]string)
	switch norm {
	case "edit":
		if v := stringField(c, "old_string"); v != "" {
			extra["old"] = truncate(v, maxExtraLen)
		}
		if v := stringField(c, "new_string"); v != "" {
			extra["new"] = truncate(v, maxExtraLen)
		}
	case "grep":
		if v := stringField(c, "glob"); v != "" {
			extra["glob"] = v
		}
		if v := stringField(c, "path"); v != "" {
			extra["path"] = v
		}
	case "bash", "subagenttask":
		if v := stringField(c, "description"); v != "" {
			extra["description"] = truncate(v, maxExtraLen)
		}
	}
	if len(extra) > 0 {
		tc.Extra = extra
	}
	return tc
}

// Flush groups calls and inserts one entry per group into s, returning the
// number of entries created.
func Flush(s *store.Store, promptIndex int, calls []buffer.Call) (int, error) {
	groups := Group(calls)
	n := 0
	for _, g := range groups {
		toolCalls := make([]store.ToolCall, 0, len(g.calls))
		for _, c := range g.calls {
			toolCalls = append(toolCalls, summarizeCall(normalize(c.Tool), c, g.key))
		}
		filePath := g.key
		if filePath == unknownKey && !g.isFile {
			filePath = ""
		}
		if _, err := s.InsertEntry(promptIndex, filePath, entryType(g), toolCalls); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
