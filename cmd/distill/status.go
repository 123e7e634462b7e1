package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anthropics/distill/internal/config"
	"github.com/anthropics/distill/internal/render"
	"github.com/anthropics/distill/internal/store"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session_id>",
		Short: "Show annotation-status counts for a session",
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

			counts, err := s.GetCounts()
			if err != nil {
				return fmt.Errorf("counting entries: %w", err)
			}
			fmt.Print(render.Status(id, counts))
			return nil
		},
	}
}
