package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tartil/internal/tajweed"
)

func newRulesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the Tajweed rule catalog",
	}
	cmd.AddCommand(newRulesListCommand(root))
	cmd.AddCommand(newRulesShowCommand(root))
	return cmd
}

// rulesEngine returns the configured engine. Rule inspection works even when
// checking is disabled, so that falls back to the built-in catalog.
func rulesEngine(root *rootOptions) (*tajweed.Engine, error) {
	cfg, err := root.loadConfig()
	if err != nil {
		return nil, err
	}
	engine, err := cfg.Tajweed.Engine()
	if err != nil {
		return nil, err
	}
	if engine == nil {
		engine = tajweed.NewEngine(nil)
	}
	return engine, nil
}

func newRulesListCommand(root *rootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules of the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := rulesEngine(root)
			if err != nil {
				return err
			}
			rules := engine.Catalog().Rules()
			if category != "" {
				c, err := tajweed.ParseCategory(category)
				if err != nil {
					return err
				}
				rules = engine.RulesByCategory(c)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tCOUNTS\tNAME")
			for _, r := range rules {
				counts := "-"
				if r.Counts > 0 {
					counts = fmt.Sprintf("%g", r.Counts)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Category, r.Severity, counts, r.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list rules of this category (e.g. elongation)")
	return cmd
}

func newRulesShowCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <rule-id>",
		Short: "Explain one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := rulesEngine(root)
			if err != nil {
				return err
			}
			r, err := engine.Rule(args[0])
			if err != nil {
				return err
			}
			explanation, err := engine.Explain(r.ID)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s)\n", r.Name, r.ID)
			fmt.Fprintf(w, "  Category : %s\n", r.Category)
			fmt.Fprintf(w, "  Severity : %s\n", r.Severity)
			if r.Letters != "" {
				fmt.Fprintf(w, "  Letters  : %s\n", r.Letters)
			}
			if r.Counts > 0 {
				fmt.Fprintf(w, "  Counts   : %g\n", r.Counts)
			}
			fmt.Fprintf(w, "\n%s\n", explanation)
			return nil
		},
	}
}
