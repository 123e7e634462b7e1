package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anthropics/distill/internal/annotate"
	"github.com/anthropics/distill/internal/config"
	"github.com/anthropics/distill/internal/provider"
	"github.com/anthropics/distill/internal/store"
)

// annotateCmd runs the LLM-Annotator for one session/turn. This is what
// the Stop hook spawns as a detached background process in "haiku" mode;
// it can also be invoked manually to retry a turn.
func annotateCmd() *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "annotate <session_id> <prompt_index>",
		Short: "Run the LLM annotation pass for one session turn (used internally by the Stop hook)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var promptIndex int
			if _, err := fmt.Sscanf(args[1], "%d", &promptIndex); err != nil {
				return fmt.Errorf("invalid prompt_index %q: %w", args[1], err)
			}
			if runID == "" {
				// Manual invocations get their own id so their log lines
				// aren't mistaken for a hook-spawned run.
				runID = uuid.NewString()
			}
			return runAnnotate(args[0], promptIndex, runID)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id tagging this process's log lines (set by the Stop hook when spawning detached)")
	return cmd
}

func runAnnotate(sessionID string, promptIndex int, runID string) error {
	cfg := loadConfig()

	sessionsDir, err := config.SessionsDir()
	if err != nil {
		return fmt.Errorf("resolving sessions dir: %w", err)
	}

	s, err := store.Open(sessionID, sessionsDir)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer s.Close()

	if cfg.APIKey == "" {
		// Missing API key only fails this background process; the hook
		// path is already done by the time this subcommand runs.
		logger.Error("annotate: no API key configured; leaving entries for self-annotation only", "run_id", runID)
		return nil
	}

	p := providerFromConfig(cfg)
	if err := annotate.LLMAnnotate(context.Background(), s, promptIndex, p); err != nil {
		logger.Error("annotate: llm annotation failed", "run_id", runID, "session", sessionID, "prompt_index", promptIndex, "err", err)
	}
	return nil
}

func providerFromConfig(cfg *config.Config) provider.Provider {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return provider.OpenAICompat{BaseURL: cfg.APIBaseURL, APIKey: cfg.APIKey, Model: cfg.Model}
	default:
		return provider.Anthropic{BaseURL: cfg.APIBaseURL, APIKey: cfg.APIKey, Model: cfg.Model}
	}
}
