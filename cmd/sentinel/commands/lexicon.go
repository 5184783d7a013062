package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
)

// NewLexiconCmd groups lexicon release operations.
func NewLexiconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexicon",
		Short: "Lexicon release operations",
	}
	cmd.AddCommand(newLexiconShowCmd())
	return cmd
}

func newLexiconShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active lexicon release as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			var repo lexicon.Repository = &lexicon.FileRepository{Path: settings.LexiconSeed}
			if settings.DatabaseURL != "" {
				pool, err := pgxpool.New(cmd.Context(), settings.DatabaseURL)
				if err != nil {
					return fmt.Errorf("failed to create database pool: %w", err)
				}
				defer pool.Close()
				repo = &lexicon.FallbackRepository{
					Primary:  &lexicon.PostgresRepository{Pool: pool},
					Fallback: repo,
				}
			}
			snapshot, err := repo.FetchActive(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(snapshot, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
