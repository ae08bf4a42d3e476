package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Border-Link/immigration-ai-sub000/internal/extract"
)

var (
	batchIDsFile         string
	batchConcurrency     int
	batchContinueOnError bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [document-version-id...]",
	Short: "Extract rules from multiple documents concurrently",
	Long:  "Fans the extraction pipeline out over a set of document versions, given as arguments or one per line via --ids-file. Per-document failures are isolated; the exit code reflects whether any document failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ids := args
		if batchIDsFile != "" {
			fileIDs, err := readIDs(batchIDsFile)
			if err != nil {
				return err
			}
			ids = append(ids, fileIDs...)
		}
		if len(ids) == 0 {
			return eris.New("no document version IDs given")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		concurrency := batchConcurrency
		if !cmd.Flags().Changed("concurrency") {
			concurrency = cfg.Batch.Concurrency
		}
		continueOnError := batchContinueOnError
		if !cmd.Flags().Changed("continue-on-error") {
			continueOnError = cfg.Batch.ContinueOnError
		}

		stats := initOrchestrator(ctx, st).ParseBatch(ctx, ids, extract.BatchOptions{
			Concurrency:     concurrency,
			ContinueOnError: continueOnError,
		})
		if err := printJSON(stats); err != nil {
			return err
		}
		if stats.Failed > 0 {
			return eris.Errorf("%d of %d documents failed", stats.Failed, stats.Total)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchIDsFile, "ids-file", "", "file with one document version ID per line")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 3, "concurrent document workers")
	batchCmd.Flags().BoolVar(&batchContinueOnError, "continue-on-error", true, "keep scheduling documents after a failure")
	rootCmd.AddCommand(batchCmd)
}

func readIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return ids, nil
}
