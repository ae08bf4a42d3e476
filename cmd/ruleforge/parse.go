package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	parseDocID        string
	parseFile         string
	parseJurisdiction string
	parseSource       string
	parseShowAudit    bool
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Extract rules from a regulatory document",
	Long:  "Runs the extraction pipeline over one document version. Pass --doc to parse an ingested version, or --file with --jurisdiction to ingest a text file and parse it in one step. Re-parsing an already-parsed version is a no-op.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		docID := parseDocID
		if parseFile != "" {
			raw, err := os.ReadFile(parseFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", parseFile)
			}
			dv, err := st.CreateDocumentVersion(ctx, string(raw), parseJurisdiction, parseSource)
			if err != nil {
				return err
			}
			zap.L().Info("document ingested",
				zap.String("document_version_id", dv.ID),
				zap.String("content_hash", dv.ContentHash),
			)
			docID = dv.ID
		}
		if docID == "" {
			return eris.New("either --doc or --file is required")
		}

		result, err := initOrchestrator(ctx, st).Parse(ctx, docID)
		if err != nil {
			return err
		}
		if err := printJSON(result); err != nil {
			return err
		}

		if parseShowAudit {
			entries, err := st.ListAudit(ctx, docID)
			if err != nil {
				return err
			}
			return printJSON(entries)
		}
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseDocID, "doc", "", "document version ID to parse")
	parseCmd.Flags().StringVar(&parseFile, "file", "", "path to a regulatory text file to ingest and parse")
	parseCmd.Flags().StringVar(&parseJurisdiction, "jurisdiction", "", "jurisdiction code for --file, e.g. UK")
	parseCmd.Flags().StringVar(&parseSource, "source", "", "source name for --file, e.g. gov.uk")
	parseCmd.Flags().BoolVar(&parseShowAudit, "show-audit", false, "print the document's audit trail after parsing")
	parseCmd.MarkFlagsMutuallyExclusive("doc", "file")
	parseCmd.MarkFlagsRequiredTogether("file", "jurisdiction")
	rootCmd.AddCommand(parseCmd)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
