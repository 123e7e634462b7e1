package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anthropics/distill/internal/config"
	"github.com/anthropics/distill/internal/render"
	"github.com/anthropics/distill/internal/store"
)

const defaultInspectLimit = 20

func inspectCmd() *cobra.Command {
	var entryID int64
	var limit int
	cmd := &cobra.Command{
		Use:   "inspect <session_id>",
		Short: "Show recent entries for a session, or one entry with --entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveSessionID(args[0])
			if err != nil {
				return err
			}
			sessionsDir, err := config.SessionsDir()
			if err != nil {
				return err
			}
			s, err := store.Open(id, sessionsDir)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer s.Close()

			if entryID != 0 {
				e, ok, err := s.GetEntry(entryID)
				if err != nil {
					return fmt.Errorf("fetching entry: %w", err)
				}
				if !ok {
					return fmt.Errorf("no entry with id %d", entryID)
				}
				fmt.Print(render.Entry(e))
				return nil
			}

			entries, err := s.ListRecentEntries(limit)
			if err != nil {
				return fmt.Errorf("listing entries: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("no entries recorded")
				return nil
			}
			var b strings.Builder
			for _, e := range entries {
				b.WriteString(render.Entry(e))
			}
			fmt.Print(b.String())
			return nil
		},
	}
	cmd.Flags().Int64Var(&entryID, "entry", 0, "show a single entry by id")
	cmd.Flags().IntVar(&limit, "limit", defaultInspectLimit, "max recent entries to show")
	return cmd
}
