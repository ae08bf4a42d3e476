// Package audit emits pipeline audit entries and metrics records.
// Emission is fire-and-forget: a failed write is logged and swallowed,
// never failing the operation that produced the event.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// Sink persists audit entries. The store satisfies it.
type Sink interface {
	AppendAudit(ctx context.Context, entries ...model.AuditEntry) error
}

// Recorder writes audit events through a Sink.
type Recorder struct {
	sink Sink
}

// NewRecorder creates a Recorder. A nil sink disables persistence; events
// are still logged.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Emit records one or more audit events, best-effort.
func (r *Recorder) Emit(ctx context.Context, entries ...model.AuditEntry) {
	if len(entries) == 0 {
		return
	}
	for _, e := range entries {
		zap.L().Debug("audit: event",
			zap.String("event", e.Event),
			zap.String("document_version_id", e.DocumentVersionID),
		)
	}
	if r.sink == nil {
		return
	}
	if err := r.sink.AppendAudit(ctx, entries...); err != nil {
		zap.L().Warn("audit: append failed", zap.Error(err))
	}
}

// ParseMetrics logs the structured metrics record for one extraction run.
func ParseMetrics(result *model.ParseResult) {
	zap.L().Info("extraction metrics",
		zap.String("document_version_id", result.DocumentVersionID),
		zap.Bool("already_parsed", result.AlreadyParsed),
		zap.Bool("cache_hit", result.CacheHit),
		zap.Bool("streamed", result.Streamed),
		zap.Int("chunks", result.Chunks),
		zap.Int("rules_created", result.RulesCreated),
		zap.Int("tasks_created", result.TasksCreated),
		zap.Int("rule_errors", len(result.RuleErrors)),
		zap.Int64("input_tokens", result.TokenUsage.InputTokens),
		zap.Int64("output_tokens", result.TokenUsage.OutputTokens),
		zap.Float64("estimated_cost", result.EstimatedCost),
		zap.Int64("duration_ms", result.DurationMS),
	)
}

// BatchMetrics logs the aggregate record for one batch run.
func BatchMetrics(stats *model.BatchStats, elapsed time.Duration) {
	zap.L().Info("batch metrics",
		zap.Int("total", stats.Total),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
		zap.Int("already_parsed", stats.AlreadyParsed),
		zap.Int("rules_created", stats.RulesCreated),
		zap.Int64("total_tokens", stats.TokenUsage.Total()),
		zap.Float64("estimated_cost", stats.EstimatedCost),
		zap.Float64("success_rate", stats.SuccessRate),
		zap.Duration("elapsed", elapsed),
	)
}
