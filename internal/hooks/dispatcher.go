// Package hooks implements the four event handlers the host assistant
// runtime invokes around a session's lifecycle: SessionStart, on-prompt
// (UserPromptSubmit), on-tool (PostToolUse), and Stop. Each handler reads
// one JSON object from stdin and writes one JSON object to stdout; no
// error it encounters is ever allowed to propagate to the host.
package hooks

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/anthropics/distill/internal/annotate"
	"github.com/anthropics/distill/internal/buffer"
	"github.com/anthropics/distill/internal/config"
	"github.com/anthropics/distill/internal/grouper"
	"github.com/anthropics/distill/internal/retrieve"
	"github.com/anthropics/distill/internal/store"
)

// Dispatcher wires the Store, Buffer, Grouper, Self-Annotator, and
// Retriever into the four hook handlers. One Dispatcher is constructed per
// hook invocation — hooks are short-lived processes.
type Dispatcher struct {
	Config     *config.Config
	SessionsDir string
	BuffersDir  string

	// DistillBinary is the path to this program, used to spawn the
	// detached annotate subcommand. Defaults to os.Executable() if empty.
	DistillBinary string
}

// SessionStartInput is the SessionStart hook's stdin payload.
type SessionStartInput struct {
	SessionID string `json:"session_id"`
	Source    string `json:"source"`
	Cwd       string `json:"cwd,omitempty"`
}

// UserPromptSubmitInput is the UserPromptSubmit hook's stdin payload.
type UserPromptSubmitInput struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
	Cwd       string `json:"cwd,omitempty"`
}

// PostToolUseInput is the PostToolUse hook's stdin payload.
type PostToolUseInput struct {
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	Cwd       string         `json:"cwd,omitempty"`
}

// StopInput is the Stop hook's stdin payload.
type StopInput struct {
	SessionID string `json:"session_id"`
	Cwd       string `json:"cwd,omitempty"`
}

type hookSpecificOutput struct {
	HookEventName    string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

type userPromptSubmitOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

func (d *Dispatcher) bufferPath(sessionID string) string {
	return filepath.Join(d.BuffersDir, store.SanitizeSessionID(sessionID)+".jsonl")
}

// enabled reports whether distill should act on a hook firing in cwd,
// honoring the project-local .distill/.nodistill override of the global
// config flag.
func (d *Dispatcher) enabled(cwd string) bool {
	global := true
	if d.Config != nil {
		global = d.Config.Enabled
	}
	if cwd == "" {
		return global
	}
	return config.ProjectEnabled(cwd, global)
}

// SessionStart opens (creating on first use) the session database, then
// closes it. Any failure is swallowed — SessionStart has no meaningful
// output beyond "ok".
func (d *Dispatcher) SessionStart(in SessionStartInput) map[string]any {
	if !d.enabled(in.Cwd) {
		return map[string]any{}
	}
	s, err := store.Open(in.SessionID, d.SessionsDir)
	if err != nil {
		logErr("session-start", err)
		return map[string]any{}
	}
	defer s.Close()
	return map[string]any{}
}

// UserPromptSubmit advances prompt_index, persists the raw prompt text, and
// — from the second turn onward — runs the Retriever and returns its
// context block as hookSpecificOutput.additionalContext.
func (d *Dispatcher) UserPromptSubmit(in UserPromptSubmitInput) map[string]any {
	if !d.enabled(in.Cwd) {
		return map[string]any{}
	}
	s, err := store.Open(in.SessionID, d.SessionsDir)
	if err != nil {
		logErr("on-prompt", err)
		return map[string]any{}
	}
	defer s.Close()

	idx, err := s.GetPromptIndex()
	if err != nil {
		logErr("on-prompt", err)
		return map[string]any{}
	}
	idx++
	if err := s.SetPromptIndex(idx); err != nil {
		logErr("on-prompt", err)
		return map[string]any{}
	}
	if err := s.SetPrompt(idx, in.Prompt); err != nil {
		logErr("on-prompt", err)
		return map[string]any{}
	}

	if idx <= 1 {
		return map[string]any{}
	}

	budget := config.DefaultTokenBudget
	if d.Config != nil && d.Config.TokenBudget > 0 {
		budget = d.Config.TokenBudget
	}

	ctx, ok := retrieve.Retrieve(s, in.Prompt, idx, budget)
	if !ok {
		return map[string]any{}
	}

	out := userPromptSubmitOutput{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:      "UserPromptSubmit",
			AdditionalContext: ctx,
		},
	}
	var raw map[string]any
	b, _ := json.Marshal(out)
	_ = json.Unmarshal(b, &raw)
	return raw
}

// PostToolUse appends one record to the session's buffer file. It never
// touches the database.
func (d *Dispatcher) PostToolUse(in PostToolUseInput) map[string]any {
	if !d.enabled(in.Cwd) {
		return map[string]any{}
	}
	if err := os.MkdirAll(d.BuffersDir, 0o700); err != nil {
		logErr("on-tool", err)
		return map[string]any{}
	}
	call := buffer.Call{Tool: in.ToolName, Input: in.ToolInput, Timestamp: time.Now().UnixMilli()}
	if err := buffer.Append(d.bufferPath(in.SessionID), call); err != nil {
		logErr("on-tool", err)
	}
	return map[string]any{}
}

// Stop drains the buffer, groups the calls into entries, self-annotates
// them, and — in LLM mode — spawns a detached annotate subprocess.
func (d *Dispatcher) Stop(in StopInput) map[string]any {
	if !d.enabled(in.Cwd) {
		return map[string]any{}
	}
	calls, err := buffer.ReadAndClear(d.bufferPath(in.SessionID))
	if err != nil {
		logErr("on-stop", err)
		return map[string]any{}
	}
	if len(calls) == 0 {
		return map[string]any{}
	}

	s, err := store.Open(in.SessionID, d.SessionsDir)
	if err != nil {
		logErr("on-stop", err)
		return map[string]any{}
	}
	defer s.Close()

	promptIndex, err := s.GetPromptIndex()
	if err != nil {
		logErr("on-stop", err)
		return map[string]any{}
	}

	if _, err := grouper.Flush(s, promptIndex, calls); err != nil {
		logErr("on-stop", err)
		return map[string]any{}
	}
	if err := annotate.SelfAnnotate(s, promptIndex); err != nil {
		logErr("on-stop", err)
		return map[string]any{}
	}

	if d.Config != nil && d.Config.Annotator == config.AnnotatorHaiku {
		d.spawnAnnotate(in.SessionID, promptIndex)
	}

	return map[string]any{}
}

// spawnAnnotate launches `distill annotate <session_id> <prompt_index>` as
// a fully detached child: no stdio, own process group, not waited on. Best
// effort — a failure to spawn is logged and otherwise ignored.
//
// Each spawn gets its own run id, since two detached annotate processes for
// the same session (e.g. a retry racing the original run) can otherwise log
// interleaved, indistinguishable lines.
func (d *Dispatcher) spawnAnnotate(sessionID string, promptIndex int) {
	bin := d.DistillBinary
	if bin == "" {
		var err error
		bin, err = os.Executable()
		if err != nil {
			logErr("on-stop", fmt.Errorf("resolving distill binary: %w", err))
			return
		}
	}

	runID := uuid.NewString()
	cmd := exec.Command(bin, "annotate", sessionID, fmt.Sprintf("%d", promptIndex), "--run-id", runID)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetached(cmd)

	if err := cmd.Start(); err != nil {
		logErr("on-stop", fmt.Errorf("spawning annotate process: %w", err))
		return
	}
	fmt.Fprintf(os.Stderr, "distill: on-stop: spawned annotate run_id=%s session=%s prompt_index=%d\n", runID, sessionID, promptIndex)
	// Deliberately not Wait()'d: the host's Stop hook must return well
	// before the LLM call completes.
	go cmd.Process.Release()
}

func logErr(hook string, err error) {
	fmt.Fprintf(os.Stderr, "distill: %s: %v\n", hook, err)
}
