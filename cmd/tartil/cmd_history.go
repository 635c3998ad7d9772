package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tartil/internal/config"
	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/pkg/types"
)

func newHistoryCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect analyses stored by the server",
		Long: `Inspect analyses stored by the server.

Only the postgres history backend outlives the server process, so these
commands require history.backend: postgres.`,
	}
	cmd.AddCommand(newHistoryListCommand(root))
	cmd.AddCommand(newHistoryProgressCommand(root))
	return cmd
}

// withHistory opens the persistent history store and passes it to fn.
func withHistory(cmd *cobra.Command, root *rootOptions, fn func(history.Store) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if cfg.History.Backend != config.HistoryPostgres {
		return types.NewInputError("history", "history.backend must be postgres, got %q", cfg.History.Backend)
	}
	store, closeStore, err := openHistory(cmd.Context(), cfg.History)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

func newHistoryListCommand(root *rootOptions) *cobra.Command {
	var (
		text  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored analyses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return types.NewInputError("history", "--limit must not be negative")
			}
			return withHistory(cmd, root, func(s history.Store) error {
				records, err := s.List(cmd.Context(), history.ListOptions{ReferenceText: text, Limit: limit})
				if err != nil {
					return err
				}
				return writeRecords(cmd, records)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "only analyses of this reference text")
	cmd.Flags().IntVar(&limit, "limit", history.DefaultListLimit, "maximum number of analyses")
	return cmd
}

func writeRecords(cmd *cobra.Command, records []history.Record) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tOVERALL\tCONFIDENCE\tTEXT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Overall, r.Confidence, r.ReferenceText)
	}
	return tw.Flush()
}

func newHistoryProgressCommand(root *rootOptions) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Summarise the stored analyses of one passage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if text == "" {
				return types.NewInputError("history", "--text is required")
			}
			return withHistory(cmd, root, func(s history.Store) error {
				p, err := s.Progress(cmd.Context(), text)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "the reference text (required)")
	return cmd
}
