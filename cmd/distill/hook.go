package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/anthropics/distill/internal/config"
	"github.com/anthropics/distill/internal/hooks"
)

func newDispatcher() *hooks.Dispatcher {
	cfg := loadConfig()

	sessionsDir, err := config.SessionsDir()
	if err != nil {
		logger.Error("resolving sessions dir", "err", err)
	}
	buffersDir, err := config.BuffersDir()
	if err != nil {
		logger.Error("resolving buffers dir", "err", err)
	}

	return &hooks.Dispatcher{Config: cfg, SessionsDir: sessionsDir, BuffersDir: buffersDir}
}

// readStdin decodes one JSON object from stdin into v. Any failure is
// reported to the caller rather than swallowed here, so each hook handler
// can decide how to fail safe (always: emit {} and exit 0).
func readStdin(v any) error {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	if err := enc.Encode(v); err != nil {
		logger.Error("encoding hook output", "err", err)
	}
}

// emptyOutput is what every hook falls back to on any internal error, per
// the "never propagate to the host" error-handling policy.
func emptyOutput() map[string]any { return map[string]any{} }

func hookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Internal hook handlers invoked by the host assistant runtime",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "session-start",
			RunE: func(cmd *cobra.Command, args []string) error { return runSessionStart() },
		},
		&cobra.Command{
			Use:  "on-prompt",
			RunE: func(cmd *cobra.Command, args []string) error { return runOnPrompt() },
		},
		&cobra.Command{
			Use:  "on-tool",
			RunE: func(cmd *cobra.Command, args []string) error { return runOnTool() },
		},
		&cobra.Command{
			Use:  "on-stop",
			RunE: func(cmd *cobra.Command, args []string) error { return runOnStop() },
		},
	)
	return cmd
}

func runSessionStart() error {
	var in hooks.SessionStartInput
	if err := readStdin(&in); err != nil {
		logger.Error("session-start: decoding input", "err", err)
		writeJSON(emptyOutput())
		return nil
	}
	writeJSON(newDispatcher().SessionStart(in))
	return nil
}

func runOnPrompt() error {
	var in hooks.UserPromptSubmitInput
	if err := readStdin(&in); err != nil {
		logger.Error("on-prompt: decoding input", "err", err)
		writeJSON(emptyOutput())
		return nil
	}
	writeJSON(newDispatcher().UserPromptSubmit(in))
	return nil
}

func runOnTool() error {
	var in hooks.PostToolUseInput
	if err := readStdin(&in); err != nil {
		logger.Error("on-tool: decoding input", "err", err)
		writeJSON(emptyOutput())
		return nil
	}
	writeJSON(newDispatcher().PostToolUse(in))
	return nil
}

func runOnStop() error {
	var in hooks.StopInput
	if err := readStdin(&in); err != nil {
		logger.Error("on-stop: decoding input", "err", err)
		writeJSON(emptyOutput())
		return nil
	}
	writeJSON(newDispatcher().Stop(in))
	return nil
}
