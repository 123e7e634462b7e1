package main

import (
	"fmt"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/anthropics/distill/internal/config"
	"github.com/anthropics/distill/internal/render"
	"github.com/anthropics/distill/internal/store"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.SessionsDir()
			if err != nil {
				return err
			}
			ids, err := store.ListSessions(dir)
			if err != nil {
				return err
			}
			fmt.Print(render.Sessions(ids))
			return nil
		},
	}
}

// resolveSessionID accepts an exact session id or a fuzzy fragment of one
// (handy on the command line when sanitized ids are long), returning the
// best match among recorded sessions.
func resolveSessionID(input string) (string, error) {
	dir, err := config.SessionsDir()
	if err != nil {
		return "", err
	}
	ids, err := store.ListSessions(dir)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		if id == store.SanitizeSessionID(input) {
			return id, nil
		}
	}

	matches := fuzzy.Find(input, ids)
	if len(matches) == 0 {
		return "", fmt.Errorf("no session matching %q", input)
	}
	return ids[matches[0].Index], nil
}
