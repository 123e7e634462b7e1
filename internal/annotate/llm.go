package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/distill/internal/provider"
	"github.com/anthropics/distill/internal/store"
)

// MaxRetries bounds how many failed entries are carried into the next
// turn's LLM call, so a run of persistent failures can't grow the prompt
// without bound.
const MaxRetries = 10

// MaxHistorical bounds how many prior annotated entries are offered as
// context.
const MaxHistorical = 30

const systemPrompt = `You annotate a coding assistant's recorded tool activity for later retrieval.
You will receive the user's prompt for this turn, a set of newly recorded entries (with their
full tool-call data), optional historical entries for context, and optional retry entries from a
previous failed attempt.

Respond with a single JSON object and nothing else, matching this schema:

{
  "annotations": [
    {
      "id": <entry id, integer>,
      "description": "<1-2 sentence human-readable summary>",
      "tags": "<comma-separated lowercase keywords>",
      "semantic_group": "<short kebab-case label>",
      "related_files": ["<path>", ...],
      "confidence": <float 0.0-1.0>,
      "low_relevance": <bool>
    }
  ],
  "links": [
    {"source": <id>, "target": <id>, "type": "depends_on|extends|reverts|related"}
  ],
  "prompt_summary": "<1-2 sentence overview of the whole turn, or empty string>"
}

Every id in "current entries" and "retry entries" should appear exactly once in "annotations"
unless you genuinely cannot describe it. Omit entries you cannot annotate rather than guessing.`

type annotationResult struct {
	ID            int64    `json:"id"`
	Description   string   `json:"description"`
	Tags          string   `json:"tags"`
	SemanticGroup string   `json:"semantic_group"`
	RelatedFiles  []string `json:"related_files"`
	Confidence    float64  `json:"confidence"`
	LowRelevance  bool     `json:"low_relevance"`
}

type linkResult struct {
	Source int64  `json:"source"`
	Target int64  `json:"target"`
	Type   string `json:"type"`
}

type llmResponse struct {
	Annotations   []annotationResult `json:"annotations"`
	Links         []linkResult       `json:"links"`
	PromptSummary string             `json:"prompt_summary"`
}

// historicalEntry is the metadata-only shape offered for context entries,
// deliberately omitting tool_calls to keep the prompt compact.
type historicalEntry struct {
	ID            int64  `json:"id"`
	PromptIndex   int    `json:"prompt_index"`
	FilePath      string `json:"file_path"`
	Description   string `json:"description"`
	Tags          string `json:"tags"`
	SemanticGroup string `json:"semantic_group"`
}

// LLMAnnotate runs the asynchronous, best-effort enrichment pass for
// promptIndex. It never returns an error to a caller that cares about hook
// latency — it is meant to be invoked from a detached process where the
// caller only logs the result.
func LLMAnnotate(ctx context.Context, s *store.Store, promptIndex int, p provider.Provider) error {
	current, err := s.GetPending(promptIndex)
	if err != nil {
		return fmt.Errorf("fetching pending entries: %w", err)
	}
	retries, err := s.GetFailed(MaxRetries)
	if err != nil {
		return fmt.Errorf("fetching retry entries: %w", err)
	}
	if len(current) == 0 && len(retries) == 0 {
		return nil
	}

	inScope := make([]int64, 0, len(current)+len(retries))
	for _, e := range current {
		inScope = append(inScope, e.ID)
	}
	for _, e := range retries {
		inScope = append(inScope, e.ID)
	}
	if err := s.MarkAnnotating(inScope); err != nil {
		return failAndReport(s, promptIndex, fmt.Errorf("marking entries annotating: %w", err))
	}

	historical, err := s.GetHistorical(promptIndex, MaxHistorical)
	if err != nil {
		return failAndReport(s, promptIndex, fmt.Errorf("fetching historical entries: %w", err))
	}

	promptText, _, err := s.GetPrompt(promptIndex)
	if err != nil {
		return failAndReport(s, promptIndex, fmt.Errorf("fetching prompt text: %w", err))
	}

	userMsg, err := buildUserMessage(promptText, current, historical, retries)
	if err != nil {
		return failAndReport(s, promptIndex, fmt.Errorf("building prompt: %w", err))
	}

	raw, err := p.Annotate(ctx, systemPrompt, userMsg)
	if err != nil {
		return failAndReport(s, promptIndex, fmt.Errorf("calling provider: %w", err))
	}

	var resp llmResponse
	if err := json.Unmarshal([]byte(provider.StripCodeFence(raw)), &resp); err != nil {
		return failAndReport(s, promptIndex, fmt.Errorf("parsing provider response: %w", err))
	}

	applied := make(map[int64]bool, len(resp.Annotations))
	for _, a := range resp.Annotations {
		if err := s.AnnotateEntry(a.ID, a.Description, a.Tags, a.SemanticGroup, a.RelatedFiles, a.Confidence, a.LowRelevance); err != nil {
			fmt.Fprintf(os.Stderr, "distill: applying annotation for entry %d: %v\n", a.ID, err)
			continue
		}
		applied[a.ID] = true
	}

	for _, l := range resp.Links {
		if err := s.InsertLink(l.Source, l.Target, l.Type); err != nil {
			fmt.Fprintf(os.Stderr, "distill: inserting link %d->%d: %v\n", l.Source, l.Target, err)
		}
	}

	if strings.TrimSpace(resp.PromptSummary) != "" {
		if _, err := s.InsertSummary(promptIndex, resp.PromptSummary, ""); err != nil {
			fmt.Fprintf(os.Stderr, "distill: inserting prompt summary: %v\n", err)
		}
	}

	var unapplied []int64
	for _, id := range inScope {
		if !applied[id] {
			unapplied = append(unapplied, id)
		}
	}
	if err := s.MarkIDsFailed(unapplied); err != nil {
		fmt.Fprintf(os.Stderr, "distill: marking unreturned entries failed: %v\n", err)
	}

	return nil
}

// failAndReport marks promptIndex's in-scope entries failed, logs a short
// line to stderr, and swallows the original error so callers on the
// detached annotation path never propagate a failure.
func failAndReport(s *store.Store, promptIndex int, cause error) error {
	if err := s.MarkFailed(promptIndex); err != nil {
		fmt.Fprintf(os.Stderr, "distill: marking prompt %d failed: %v\n", promptIndex, err)
	}
	fmt.Fprintf(os.Stderr, "distill: llm annotation failed: %v\n", cause)
	return nil
}

func buildUserMessage(promptText string, current, historical, retries []store.Entry) (string, error) {
	var b strings.Builder

	b.WriteString("<user_prompt>\n")
	b.WriteString(promptText)
	b.WriteString("\n</user_prompt>\n")

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return "", err
	}
	b.WriteString("<current_entries>\n")
	b.Write(currentJSON)
	b.WriteString("\n</current_entries>\n")

	histSlim := make([]historicalEntry, len(historical))
	for i, e := range historical {
		histSlim[i] = historicalEntry{
			ID: e.ID, PromptIndex: e.PromptIndex, FilePath: e.FilePath,
			Description: e.Description, Tags: e.Tags, SemanticGroup: e.SemanticGroup,
		}
	}
	histJSON, err := json.Marshal(histSlim)
	if err != nil {
		return "", err
	}
	b.WriteString("<historical_entries>\n")
	b.Write(histJSON)
	b.WriteString("\n</historical_entries>\n")

	retriesJSON, err := json.Marshal(retries)
	if err != nil {
		return "", err
	}
	b.WriteString("<retry_entries>\n")
	b.Write(retriesJSON)
	b.WriteString("\n</retry_entries>\n")

	return b.String(), nil
}
