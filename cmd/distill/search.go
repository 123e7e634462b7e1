package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anthropics/distill/internal/config"
	"github.com/anthropics/distill/internal/render"
	"github.com/anthropics/distill/internal/retrieve"
	"github.com/anthropics/distill/internal/store"
)

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <session_id> <query>",
		Short: "Run a BM25 lexical search over a session's annotated entries",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveSessionID(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")

			sessionsDir, err := config.SessionsDir()
			if err != nil {
				return err
			}
			s, err := store.Open(id, sessionsDir)
			if err != nil {
				return fmt.Errorf("opening session store: %w", err)
			}
			defer s.Close()

			matchExpr := retrieve.BuildQuery(query)
			if matchExpr == "" {
				fmt.Println("query has no searchable terms")
				return nil
			}

			// A CLI search has no "current turn" to exclude future entries
			// from; pass math.MaxInt so every annotated entry is eligible.
			results, err := s.SearchFTS(matchExpr, math.MaxInt, 20)
			if err != nil {
				return fmt.Errorf("searching: %w", err)
			}
			fmt.Print(render.SearchResults(results))
			return nil
		},
	}
}
