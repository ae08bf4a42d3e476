// Package extract orchestrates the rule extraction pipeline: idempotency,
// text preparation, model calls (single-shot or chunked), response parsing,
// and per-rule validation, scoring, and persistence.
package extract

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Border-Link/immigration-ai-sub000/internal/audit"
	"github.com/Border-Link/immigration-ai-sub000/internal/cache"
	"github.com/Border-Link/immigration-ai-sub000/internal/config"
	"github.com/Border-Link/immigration-ai-sub000/internal/gateway"
	"github.com/Border-Link/immigration-ai-sub000/internal/model"
	"github.com/Border-Link/immigration-ai-sub000/internal/respparse"
	"github.com/Border-Link/immigration-ai-sub000/internal/scorer"
	"github.com/Border-Link/immigration-ai-sub000/internal/textprep"
	"github.com/Border-Link/immigration-ai-sub000/internal/validator"
)

// Extractor sends one extraction request for prepared text. The gateway
// satisfies it; tests substitute deterministic fakes.
type Extractor interface {
	Extract(ctx context.Context, text, jurisdiction string) (*gateway.Result, error)
}

// Store is the persistence surface the orchestrator depends on.
type Store interface {
	GetDocumentVersion(ctx context.Context, id string) (*model.DocumentVersion, error)
	HasRules(ctx context.Context, documentVersionID string) (bool, error)
	WithDocumentLock(ctx context.Context, documentVersionID string, fn func(ctx context.Context) error) error
	CreateRuleWithTask(ctx context.Context, rule *model.ParsedRule, task *model.ValidationTask) (bool, error)
}

// Orchestrator runs one atomic extraction unit per document version.
type Orchestrator struct {
	store    Store
	cache    cache.Cache
	gw       Extractor
	prep     *textprep.Preparator
	scorer   *scorer.Scorer
	recorder *audit.Recorder
	cfg      config.PipelineConfig
	cacheTTL time.Duration
}

// New wires an Orchestrator. cache may be nil to disable response caching.
func New(st Store, c cache.Cache, gw Extractor, sc *scorer.Scorer, recorder *audit.Recorder, cfg config.PipelineConfig, cacheTTL time.Duration) *Orchestrator {
	if cfg.StreamingThreshold <= 0 {
		cfg.StreamingThreshold = 15000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 12000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 500
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = 3
	}
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Orchestrator{
		store:    st,
		cache:    c,
		gw:       gw,
		prep:     textprep.New(cfg.MinTextLength),
		scorer:   sc,
		recorder: recorder,
		cfg:      cfg,
		cacheTTL: cacheTTL,
	}
}

// extraction is the merged model output for one document, whichever path
// produced it.
type extraction struct {
	candidates   []model.CandidateRule
	usage        model.TokenUsage
	cost         float64
	modelName    string
	processingMS int64
	cacheHit     bool
	streamed     bool
	chunks       int
}

// Parse runs the full extraction unit for one document version. Concurrent
// invocations for the same document serialize on the store's document lock;
// the loser observes the winner's rules and reports already-parsed.
func (o *Orchestrator) Parse(ctx context.Context, documentVersionID string) (*model.ParseResult, error) {
	start := time.Now()

	dv, err := o.store.GetDocumentVersion(ctx, documentVersionID)
	if err != nil {
		return nil, err
	}

	result := &model.ParseResult{DocumentVersionID: documentVersionID}

	err = o.store.WithDocumentLock(ctx, documentVersionID, func(ctx context.Context) error {
		has, err := o.store.HasRules(ctx, documentVersionID)
		if err != nil {
			return err
		}
		if has {
			result.AlreadyParsed = true
			return nil
		}
		return o.parseLocked(ctx, dv, result)
	})
	result.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		o.recorder.Emit(ctx, model.AuditEntry{
			DocumentVersionID: documentVersionID,
			Event:             model.AuditParseFailed,
			Detail:            map[string]any{"error": err.Error()},
		})
		return nil, err
	}

	if !result.AlreadyParsed {
		o.recorder.Emit(ctx, model.AuditEntry{
			DocumentVersionID: documentVersionID,
			Event:             model.AuditParseCompleted,
			Detail: map[string]any{
				"rules_created": result.RulesCreated,
				"tasks_created": result.TasksCreated,
				"rule_errors":   len(result.RuleErrors),
				"cache_hit":     result.CacheHit,
				"streamed":      result.Streamed,
			},
		})
	}
	audit.ParseMetrics(result)
	return result, nil
}

// parseLocked is the pipeline body, entered with the document lock held and
// no rules present.
func (o *Orchestrator) parseLocked(ctx context.Context, dv *model.DocumentVersion, result *model.ParseResult) error {
	o.recorder.Emit(ctx, model.AuditEntry{
		DocumentVersionID: dv.ID,
		Event:             model.AuditParseStarted,
	})

	prep, err := o.prep.Prepare(dv.RawText, o.cfg.RedactPII)
	if err != nil {
		return err
	}
	if prep.Redacted {
		o.recorder.Emit(ctx, model.AuditEntry{
			DocumentVersionID: dv.ID,
			Event:             model.AuditPIIRedacted,
			Detail:            map[string]any{"count": prep.RedactionCount, "categories": prep.RedactionCounts},
		})
	}

	var ext *extraction
	if len(prep.Text) > o.cfg.StreamingThreshold {
		ext, err = o.streamExtract(ctx, dv, prep.Text)
	} else {
		ext, err = o.singleExtract(ctx, dv, prep.Text)
	}
	if err != nil {
		return err
	}

	result.CacheHit = ext.cacheHit
	result.Streamed = ext.streamed
	result.Chunks = ext.chunks
	result.TokenUsage = ext.usage
	result.EstimatedCost = ext.cost

	o.persistCandidates(ctx, dv, prep.Text, ext, result)
	return nil
}

// singleExtract sends the whole prepared text in one request, consulting
// the response cache first. A successful parse is cached for reuse.
func (o *Orchestrator) singleExtract(ctx context.Context, dv *model.DocumentVersion, text string) (*extraction, error) {
	key := cache.ExtractionKey(dv.ContentHash, dv.Jurisdiction)

	if o.cache != nil {
		if cached, ok, err := o.cache.Get(ctx, key); err != nil {
			zap.L().Warn("extract: cache lookup failed", zap.Error(err))
		} else if ok {
			var res gateway.Result
			if err := json.Unmarshal(cached, &res); err != nil {
				zap.L().Warn("extract: discarding undecodable cache entry", zap.Error(err))
			} else if candidates, err := respparse.Parse(res.Text); err == nil {
				o.recorder.Emit(ctx, model.AuditEntry{
					DocumentVersionID: dv.ID,
					Event:             model.AuditCacheHit,
				})
				return &extraction{
					candidates: candidates,
					modelName:  res.Model,
					cacheHit:   true,
				}, nil
			}
		}
	}

	res, err := o.gw.Extract(ctx, text, dv.Jurisdiction)
	if err != nil {
		return nil, err
	}

	candidates, err := respparse.Parse(res.Text)
	if err != nil {
		return nil, err
	}

	// Cached only after the parser confirmed the response is usable.
	if o.cache != nil {
		if payload, err := json.Marshal(res); err == nil {
			if err := o.cache.Set(ctx, key, payload, o.cacheTTL); err != nil {
				zap.L().Warn("extract: cache write failed", zap.Error(err))
			}
		}
	}

	return &extraction{
		candidates:   candidates,
		usage:        res.Usage,
		cost:         res.EstimatedCost,
		modelName:    res.Model,
		processingMS: res.ProcessingMS,
	}, nil
}

// persistCandidates runs per-rule validation, scoring, and persistence.
// Candidate failures are collected, never fatal.
func (o *Orchestrator) persistCandidates(ctx context.Context, dv *model.DocumentVersion, sourceText string, ext *extraction, result *model.ParseResult) {
	for _, c := range ext.candidates {
		vres := validator.ValidateRule(c)
		if !vres.Valid {
			result.RuleErrors = append(result.RuleErrors, model.RuleError{
				RequirementCode: c.RequirementCode,
				Reasons:         vres.Errors,
			})
			zap.L().Warn("extract: candidate failed validation",
				zap.String("requirement_code", c.RequirementCode),
				zap.Strings("errors", vres.Errors),
			)
			continue
		}

		exprErrs, exprWarnings := validator.ValidateExpression(c.Conditions)
		exprValid := len(exprErrs) == 0
		if !exprValid {
			// Persisted anyway, without the valid-logic bonus, but the
			// problems still surface in the result.
			result.RuleErrors = append(result.RuleErrors, model.RuleError{
				RequirementCode: c.RequirementCode,
				Reasons:         exprErrs,
			})
			zap.L().Warn("extract: candidate expression failed json-logic checks",
				zap.String("requirement_code", c.RequirementCode),
				zap.Strings("errors", exprErrs),
			)
		}
		if len(exprWarnings) > 0 {
			zap.L().Debug("extract: expression warnings",
				zap.String("requirement_code", c.RequirementCode),
				zap.Strings("warnings", exprWarnings),
			)
		}

		sc := o.scorer.Score(c, sourceText, exprValid)

		rule := &model.ParsedRule{
			DocumentVersionID: dv.ID,
			VisaCode:          c.VisaCode,
			RequirementCode:   c.RequirementCode,
			Description:       c.Description,
			Category:          vres.Category,
			Conditions:        c.Conditions,
			Confidence:        sc.Confidence,
			Status:            model.RuleStatusPending,
			SourceExcerpt:     c.SourceExcerpt,
			Provenance: model.Provenance{
				ModelName:     ext.modelName,
				InputTokens:   ext.usage.InputTokens,
				OutputTokens:  ext.usage.OutputTokens,
				EstimatedCost: ext.cost,
				ProcessingMS:  ext.processingMS,
			},
		}
		task := &model.ValidationTask{
			SLADeadline: sc.SLADeadline,
			Status:      model.TaskStatusPending,
		}

		created, err := o.store.CreateRuleWithTask(ctx, rule, task)
		if err != nil {
			result.RuleErrors = append(result.RuleErrors, model.RuleError{
				RequirementCode: c.RequirementCode,
				Reasons:         []string{eris.ToString(err, false)},
			})
			zap.L().Error("extract: rule persistence failed",
				zap.String("requirement_code", c.RequirementCode),
				zap.Error(err),
			)
			continue
		}
		if !created {
			// Overlapping chunks or repeated model output for the same
			// requirement; first write wins.
			zap.L().Debug("extract: duplicate rule skipped",
				zap.String("requirement_code", c.RequirementCode),
			)
			continue
		}
		result.RulesCreated++
		result.TasksCreated++
	}
}
