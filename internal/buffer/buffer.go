// Package buffer implements the append-only, per-session scratch file that
// holds tool calls between a PostToolUse hook firing and the next Stop hook
// folding them into entries.
//
// The buffer is a JSONL file: each PostToolUse invocation appends exactly
// one line, independent of any other process touching the file, so the
// append path never needs to read the file at all. The Stop hook instead
// drains it with ReadAndClear, which renames the file out from under any
// concurrent appender before parsing it — a crash or interleaved append
// during the rename either lands entirely in the old file (still readable
// from its new name) or entirely in a newly created file, never split
// across both. A crash between that rename and the rotated file's removal
// leaves an orphaned `.processing.<nanos>` file; the next ReadAndClear call
// finds and drains it before touching the current buffer.
package buffer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Call is one buffered tool invocation, as reported by a PostToolUse hook.
type Call struct {
	Tool      string            `json:"tool"`
	Input     map[string]any    `json:"input"`
	Timestamp int64             `json:"timestamp"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// Append adds call to the buffer file at path, creating it if absent.
func Append(path string, call Call) error {
	line, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("marshaling buffered call: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening buffer file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending to buffer file: %w", err)
	}
	return nil
}

// ReadAndClear drains the buffer at path, returning every well-formed call
// it contains. Malformed lines are skipped rather than aborting the whole
// read. A missing file is a no-op that returns a nil slice.
//
// Before touching path itself, it recovers any `.processing.<nanos>` files
// left behind by a crash between a prior rename and its deferred removal —
// their calls are older than anything in the current buffer and are
// prepended ahead of it.
func ReadAndClear(path string) ([]Call, error) {
	calls, err := recoverOrphans(path)
	if err != nil {
		return nil, err
	}

	processingPath := fmt.Sprintf("%s.processing.%d", path, time.Now().UnixNano())

	if err := os.Rename(path, processingPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return calls, nil
		}
		return calls, fmt.Errorf("rotating buffer file: %w", err)
	}
	defer os.Remove(processingPath)

	current, err := readCallsFile(processingPath)
	if err != nil {
		return calls, err
	}
	return append(calls, current...), nil
}

// recoverOrphans finds and drains every `.processing.*` sibling of path left
// over from an interrupted prior ReadAndClear, oldest first, removing each
// once parsed.
func recoverOrphans(path string) ([]Call, error) {
	matches, err := filepath.Glob(path + ".processing.*")
	if err != nil {
		return nil, fmt.Errorf("globbing orphaned buffer files: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Strings(matches)

	var calls []Call
	for _, m := range matches {
		fileCalls, err := readCallsFile(m)
		if err != nil {
			continue
		}
		calls = append(calls, fileCalls...)
		os.Remove(m)
	}
	return calls, nil
}

func readCallsFile(path string) ([]Call, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening buffer file: %w", err)
	}
	defer f.Close()

	var calls []Call
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Call
		if err := json.Unmarshal(line, &c); err != nil {
			continue
		}
		calls = append(calls, c)
	}
	if err := scanner.Err(); err != nil {
		return calls, fmt.Errorf("scanning buffer file: %w", err)
	}
	return calls, nil
}
