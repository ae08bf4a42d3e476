package main

import (
	"github.com/spf13/cobra"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
	"github.com/Border-Link/immigration-ai-sub000/internal/store"
)

var (
	rulesDocID         string
	rulesStatus        string
	rulesMinConfidence float64
	rulesLimit         int
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List parsed rules for a document version",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rules, err := st.ListRules(ctx, rulesDocID, store.RuleFilter{
			Status:        model.RuleStatus(rulesStatus),
			MinConfidence: rulesMinConfidence,
			Limit:         rulesLimit,
		})
		if err != nil {
			return err
		}
		return printJSON(rules)
	},
}

func init() {
	rulesCmd.Flags().StringVar(&rulesDocID, "doc", "", "document version ID")
	rulesCmd.Flags().StringVar(&rulesStatus, "status", "", "filter by status: pending, approved, rejected")
	rulesCmd.Flags().Float64Var(&rulesMinConfidence, "min-confidence", 0, "filter by minimum confidence")
	rulesCmd.Flags().IntVar(&rulesLimit, "limit", 100, "maximum rules to list")
	_ = rulesCmd.MarkFlagRequired("doc")
	rootCmd.AddCommand(rulesCmd)
}
