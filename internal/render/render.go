// Package render formats operator CLI output: session lists, status
// counts, entry inspection, and search results. It is not on the hook
// path — hooks only ever emit the wire-format JSON.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/anthropics/distill/internal/store"
)

var (
	colorPurple = lipgloss.Color("#A855F7")
	colorGreen  = lipgloss.Color("#22C55E")
	colorRed    = lipgloss.Color("#EF4444")
	colorYellow = lipgloss.Color("#EAB308")
	colorDim    = lipgloss.Color("#6B7280")
	colorCyan   = lipgloss.Color("#06B6D4")

	headingStyle = lipgloss.NewStyle().Foreground(colorPurple).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
	idStyle      = lipgloss.NewStyle().Foreground(colorCyan)
	failedStyle  = lipgloss.NewStyle().Foreground(colorRed)
	pendingStyle = lipgloss.NewStyle().Foreground(colorYellow)
	okStyle      = lipgloss.NewStyle().Foreground(colorGreen)
)

// Sessions renders a list of session ids for the `sessions` subcommand.
func Sessions(ids []string) string {
	if len(ids) == 0 {
		return dimStyle.Render("no sessions recorded")
	}
	var b strings.Builder
	b.WriteString(headingStyle.Render("Sessions") + "\n")
	for _, id := range ids {
		fmt.Fprintf(&b, "  %s\n", idStyle.Render(id))
	}
	return b.String()
}

// Status renders the annotation-status breakdown for the `status` subcommand.
func Status(sessionID string, counts map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", headingStyle.Render("Session"), idStyle.Render(sessionID))
	fmt.Fprintf(&b, "  %s %d\n", okStyle.Render("annotated:"), counts[store.StatusAnnotated])
	fmt.Fprintf(&b, "  %s %d\n", pendingStyle.Render("pending:"), counts[store.StatusPending]+counts[store.StatusAnnotating])
	fmt.Fprintf(&b, "  %s %d\n", failedStyle.Render("failed:"), counts[store.StatusFailed])
	return b.String()
}

// Entry renders one entry for the `inspect` subcommand, as Markdown
// rendered through glamour for terminal output.
func Entry(e store.Entry) string {
	var md strings.Builder
	fmt.Fprintf(&md, "## Entry %d (turn %d)\n\n", e.ID, e.PromptIndex)
	fmt.Fprintf(&md, "- **type:** %s\n", e.EntryType)
	fmt.Fprintf(&md, "- **status:** %s\n", e.AnnotationStatus)
	if e.FilePath != "" {
		fmt.Fprintf(&md, "- **file:** %s\n", e.FilePath)
	}
	if e.SemanticGroup != "" {
		fmt.Fprintf(&md, "- **group:** %s\n", e.SemanticGroup)
	}
	if e.Tags != "" {
		fmt.Fprintf(&md, "- **tags:** %s\n", e.Tags)
	}
	fmt.Fprintf(&md, "- **confidence:** %.1f\n", e.Confidence)
	if e.Description != "" {
		fmt.Fprintf(&md, "\n%s\n", e.Description)
	}
	if len(e.ToolCalls) > 0 {
		md.WriteString("\n**calls:**\n\n")
		for _, tc := range e.ToolCalls {
			fmt.Fprintf(&md, "- `%s`: %s\n", tc.Tool, tc.Key)
		}
	}

	out, err := glamour.Render(md.String(), "dark")
	if err != nil {
		return md.String()
	}
	return out
}

// SearchResults renders BM25 search hits for the `search` subcommand.
func SearchResults(results []store.SearchResult) string {
	if len(results) == 0 {
		return dimStyle.Render("no matches")
	}
	var b strings.Builder
	for _, r := range results {
		key := r.Entry.FilePath
		if key == "" {
			key = r.Entry.EntryType
		}
		fmt.Fprintf(&b, "%s %s %s — %s\n",
			idStyle.Render(fmt.Sprintf("[%d]", r.Entry.ID)),
			dimStyle.Render(fmt.Sprintf("(prompt %d)", r.Entry.PromptIndex)),
			key, r.Entry.Description)
	}
	return b.String()
}
