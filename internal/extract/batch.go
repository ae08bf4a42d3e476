package extract

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Border-Link/immigration-ai-sub000/internal/audit"
	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// BatchOptions controls a batch run.
type BatchOptions struct {
	// Concurrency bounds the worker pool. Default 3.
	Concurrency int
	// ContinueOnError keeps scheduling after a document fails. When false,
	// the first failure stops new work; in-flight documents run to
	// completion.
	ContinueOnError bool
}

// ParseBatch fans the orchestrator out over a set of document versions.
// Each document's failure is isolated and reported in its item.
func (o *Orchestrator) ParseBatch(ctx context.Context, documentVersionIDs []string, opts BatchOptions) *model.BatchStats {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	start := time.Now()

	items := make([]model.BatchItemResult, len(documentVersionIDs))
	var stopped atomic.Bool

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, id := range documentVersionIDs {
		if stopped.Load() {
			items[i] = model.BatchItemResult{
				DocumentVersionID: id,
				Error:             "not scheduled: batch stopped after earlier failure",
			}
			continue
		}
		g.Go(func() error {
			// Re-check after waiting for a worker slot.
			if stopped.Load() {
				items[i] = model.BatchItemResult{
					DocumentVersionID: id,
					Error:             "not scheduled: batch stopped after earlier failure",
				}
				return nil
			}
			// The parent ctx, not the group ctx: a sibling failure must not
			// cancel in-flight work.
			res, err := o.Parse(ctx, id)
			if err != nil {
				items[i] = model.BatchItemResult{DocumentVersionID: id, Error: err.Error()}
				if !opts.ContinueOnError {
					stopped.Store(true)
				}
				zap.L().Warn("batch: document failed",
					zap.String("document_version_id", id),
					zap.Error(err),
				)
				return nil
			}
			items[i] = model.BatchItemResult{DocumentVersionID: id, Result: res}
			return nil
		})
	}
	_ = g.Wait()

	stats := aggregate(items)
	audit.BatchMetrics(stats, time.Since(start))
	return stats
}

// aggregate folds per-item results into batch statistics.
func aggregate(items []model.BatchItemResult) *model.BatchStats {
	stats := &model.BatchStats{
		Total: len(items),
		Items: items,
	}

	var totalDurationMS int64
	var completed int
	for _, item := range items {
		if item.Result == nil {
			stats.Failed++
			continue
		}
		stats.Succeeded++
		if item.Result.AlreadyParsed {
			stats.AlreadyParsed++
		}
		stats.RulesCreated += item.Result.RulesCreated
		stats.TokenUsage.Add(item.Result.TokenUsage)
		stats.EstimatedCost += item.Result.EstimatedCost
		totalDurationMS += item.Result.DurationMS
		completed++
	}

	if completed > 0 {
		stats.AvgDurationMS = totalDurationMS / int64(completed)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Total)
	}
	return stats
}
