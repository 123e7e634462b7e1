package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

// GetState returns the value stored under key, or ok=false if absent.
func (s *Store) GetState(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM session_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetState upserts a key/value pair in the session-state scratchpad.
func (s *Store) SetState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO session_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// GetPromptIndex returns the session's current prompt index, defaulting to 0.
func (s *Store) GetPromptIndex() (int, error) {
	raw, ok, err := s.GetState("prompt_index")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing stored prompt_index: %w", err)
	}
	return n, nil
}

// SetPromptIndex persists the session's current prompt index.
func (s *Store) SetPromptIndex(n int) error {
	return s.SetState("prompt_index", strconv.Itoa(n))
}

// SetPrompt stores the raw user prompt text for a given turn.
func (s *Store) SetPrompt(promptIndex int, text string) error {
	return s.SetState(promptKey(promptIndex), text)
}

// GetPrompt returns the raw user prompt text recorded for a given turn.
func (s *Store) GetPrompt(promptIndex int) (string, bool, error) {
	return s.GetState(promptKey(promptIndex))
}

func promptKey(promptIndex int) string {
	return fmt.Sprintf("prompt_%d", promptIndex)
}
