// Package eligibility combines deterministic rule evaluation with model
// reasoning into one eligibility decision, detecting conflicts and
// escalating low-confidence or contradictory results to human review.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// Escalation reasons, in assignment order. Reasons stack but only the
// first assigned one is reported.
const (
	ReasonConflict      = "rule_ai_conflict"
	ReasonLowConfidence = "low_confidence"
	ReasonMissingFacts  = "missing_facts"
)

// StrategyWorkload assigns escalated reviews to the least-loaded reviewer.
const StrategyWorkload = "workload"

// DefaultEscalationThreshold is the combined-confidence floor below which
// every decision is escalated.
const DefaultEscalationThreshold = 0.6

// CaseLoader loads the case under evaluation and its facts.
type CaseLoader interface {
	GetCase(ctx context.Context, caseID string) (*model.Case, error)
	GetVisaType(ctx context.Context, visaTypeID string) (*model.VisaType, error)
	LoadFacts(ctx context.Context, caseID string) (map[string]any, error)
}

// RulesEngine runs the deterministic evaluation of the active rule version.
type RulesEngine interface {
	RunEvaluation(ctx context.Context, caseID, visaTypeID string, date *time.Time) (*model.RuleEvaluation, error)
}

// ReasoningRequest grounds the model reasoning call.
type ReasoningRequest struct {
	CaseID       string
	VisaTypeID   string
	VisaCode     string
	Jurisdiction string
	Facts        map[string]any
	RuleSummary  *model.RuleEvaluation
}

// Reasoner produces free-form model reasoning about a case.
type Reasoner interface {
	RunReasoning(ctx context.Context, req ReasoningRequest) (*model.ReasoningResult, error)
}

// ReviewService creates human-review tasks for escalated decisions.
type ReviewService interface {
	CreateReview(ctx context.Context, caseID string, autoAssign bool, strategy string) (string, error)
}

// ResultStore persists eligibility results.
type ResultStore interface {
	CreateEligibilityResult(ctx context.Context, result *model.EligibilityResult) error
}

// CheckRequest parameterizes one eligibility check.
type CheckRequest struct {
	CaseID          string
	VisaTypeID      string
	EvaluationDate  *time.Time
	EnableReasoning bool
}

// Engine is the eligibility decision engine.
type Engine struct {
	cases     CaseLoader
	rules     RulesEngine
	reasoner  Reasoner
	reviews   ReviewService
	results   ResultStore
	threshold float64
}

// NewEngine wires an Engine. reasoner and reviews may be nil, disabling
// those collaborations.
func NewEngine(cases CaseLoader, rules RulesEngine, reasoner Reasoner, reviews ReviewService, results ResultStore, escalationThreshold float64) *Engine {
	if escalationThreshold <= 0 {
		escalationThreshold = DefaultEscalationThreshold
	}
	return &Engine{
		cases:     cases,
		rules:     rules,
		reasoner:  reasoner,
		reviews:   reviews,
		results:   results,
		threshold: escalationThreshold,
	}
}

// Check runs one eligibility evaluation and persists its result. It always
// returns a decision when the rule evaluation succeeds; degraded sub-steps
// surface as warnings and flags, never as errors.
func (e *Engine) Check(ctx context.Context, req CheckRequest) (*model.CheckResult, error) {
	cs, err := e.cases.GetCase(ctx, req.CaseID)
	if err != nil {
		return nil, eris.Wrapf(err, "eligibility: load case %s", req.CaseID)
	}
	visa, err := e.cases.GetVisaType(ctx, req.VisaTypeID)
	if err != nil {
		return nil, eris.Wrapf(err, "eligibility: load visa type %s", req.VisaTypeID)
	}
	facts, err := e.cases.LoadFacts(ctx, req.CaseID)
	if err != nil {
		return nil, eris.Wrapf(err, "eligibility: load facts for case %s", req.CaseID)
	}

	eval, err := e.rules.RunEvaluation(ctx, req.CaseID, req.VisaTypeID, req.EvaluationDate)
	if err != nil {
		return nil, eris.Wrapf(err, "eligibility: rule evaluation for case %s", req.CaseID)
	}

	result := &model.CheckResult{
		Outcome:      eval.Outcome,
		Confidence:   eval.Confidence,
		MissingFacts: eval.MissingFacts,
		Warnings:     append([]string(nil), eval.Warnings...),
	}

	var reasoning *model.ReasoningResult
	if req.EnableReasoning && e.reasoner != nil {
		reasoning = e.runReasoning(ctx, req, visa, facts, eval, result)
	}

	e.combine(eval, reasoning, result)

	if result.Confidence < e.threshold {
		escalate(result, ReasonLowConfidence)
	}
	if len(eval.MissingFacts) > 0 {
		escalate(result, ReasonMissingFacts)
	}

	status := model.StatusForOutcome(result.Outcome)
	if len(eval.MissingFacts) > 0 {
		status = model.StatusMissingFacts
	}
	result.Status = status

	summary := result.Summary
	if summary == "" {
		summary = fmt.Sprintf("Rule evaluation: %d of %d requirements passed; outcome %s.",
			eval.RequirementsPassed, eval.RequirementsTotal, eval.Outcome)
		result.Summary = summary
	}

	record := &model.EligibilityResult{
		CaseID:           cs.ID,
		VisaTypeID:       visa.ID,
		RuleVersionID:    eval.RuleVersionID,
		Status:           status,
		Confidence:       result.Confidence,
		ReasoningSummary: summary,
		MissingFacts:     eval.MissingFacts,
	}
	if err := e.results.CreateEligibilityResult(ctx, record); err != nil {
		return nil, eris.Wrapf(err, "eligibility: persist result for case %s", req.CaseID)
	}
	result.ResultID = record.ID

	if result.RequiresHumanReview {
		e.createReview(ctx, cs.ID, result)
	}

	zap.L().Info("eligibility: check completed",
		zap.String("case_id", cs.ID),
		zap.String("visa_type_id", visa.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.String("status", string(result.Status)),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("conflict", result.Conflict),
		zap.Bool("requires_human_review", result.RequiresHumanReview),
	)
	return result, nil
}

// runReasoning invokes the reasoning collaborator. Any failure degrades to
// rule-engine-only results.
func (e *Engine) runReasoning(ctx context.Context, req CheckRequest, visa *model.VisaType, facts map[string]any, eval *model.RuleEvaluation, result *model.CheckResult) *model.ReasoningResult {
	rr, err := e.reasoner.RunReasoning(ctx, ReasoningRequest{
		CaseID:       req.CaseID,
		VisaTypeID:   req.VisaTypeID,
		VisaCode:     visa.Code,
		Jurisdiction: visa.Jurisdiction,
		Facts:        facts,
		RuleSummary:  eval,
	})
	if err != nil || rr == nil || !rr.Success {
		zap.L().Warn("eligibility: reasoning unavailable, using rule engine only",
			zap.String("case_id", req.CaseID),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, "AI reasoning unavailable; using rule engine only")
		return nil
	}
	return rr
}

// combine folds the reasoning result into the rule-evaluation outcome.
// Conflict is strictly opposite determinations; on conflict the outcome is
// forced to possible with the minimum confidence. When the two agree or are
// merely adjacent, the reasoning outcome and confidence win.
func (e *Engine) combine(eval *model.RuleEvaluation, reasoning *model.ReasoningResult, result *model.CheckResult) {
	if reasoning == nil {
		return
	}

	aiOutcome := ExtractOutcome(reasoning.Response)
	aiConfidence := ExtractConfidence(reasoning.Response, eval.Confidence)
	result.Summary = reasoning.Response

	if isConflict(eval.Outcome, aiOutcome) {
		result.Conflict = true
		result.Outcome = model.OutcomePossible
		result.Confidence = min(eval.Confidence, aiConfidence)
		escalate(result, ReasonConflict)
		zap.L().Warn("eligibility: rule and reasoning outcomes conflict",
			zap.String("rule_outcome", string(eval.Outcome)),
			zap.String("ai_outcome", string(aiOutcome)),
		)
		return
	}

	result.Outcome = aiOutcome
	result.Confidence = aiConfidence
}

// isConflict reports whether the two determinations are strict opposites.
func isConflict(rule, ai model.Outcome) bool {
	return (rule == model.OutcomeUnlikely && ai == model.OutcomeLikely) ||
		(rule == model.OutcomeLikely && ai == model.OutcomeUnlikely)
}

// escalate flags human review, keeping the first assigned reason.
func escalate(result *model.CheckResult, reason string) {
	result.RequiresHumanReview = true
	if result.EscalationReason == "" {
		result.EscalationReason = reason
	}
}

// createReview opens a human-review task for an escalated decision,
// best-effort.
func (e *Engine) createReview(ctx context.Context, caseID string, result *model.CheckResult) {
	if e.reviews == nil {
		return
	}
	reviewID, err := e.reviews.CreateReview(ctx, caseID, true, StrategyWorkload)
	if err != nil {
		zap.L().Warn("eligibility: review creation failed",
			zap.String("case_id", caseID),
			zap.Error(err),
		)
		result.Warnings = append(result.Warnings, "review task creation failed")
		return
	}
	result.ReviewID = reviewID
}
