package model

import "time"

// Outcome is the three-valued eligibility determination shared by the rule
// engine and the reasoning extractor.
type Outcome string

const (
	OutcomeLikely   Outcome = "likely"
	OutcomePossible Outcome = "possible"
	OutcomeUnlikely Outcome = "unlikely"
)

// ResultStatus is the persisted eligibility outcome.
type ResultStatus string

const (
	StatusEligible       ResultStatus = "eligible"
	StatusRequiresReview ResultStatus = "requires_review"
	StatusNotEligible    ResultStatus = "not_eligible"
	StatusMissingFacts   ResultStatus = "missing_facts"
)

// StatusForOutcome maps a combined outcome to its persisted status.
func StatusForOutcome(o Outcome) ResultStatus {
	switch o {
	case OutcomeLikely:
		return StatusEligible
	case OutcomeUnlikely:
		return StatusNotEligible
	default:
		return StatusRequiresReview
	}
}

// Case is the applicant case under evaluation, loaded from an external
// collaborator.
type Case struct {
	ID          string    `json:"id"`
	ApplicantID string    `json:"applicant_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// VisaType identifies the visa product a case is checked against.
type VisaType struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Jurisdiction string `json:"jurisdiction"`
}

// RuleEvaluation is the deterministic rule-engine result consumed by the
// decision engine.
type RuleEvaluation struct {
	Outcome            Outcome  `json:"outcome"`
	Confidence         float64  `json:"confidence"`
	RequirementsPassed int      `json:"requirements_passed"`
	RequirementsTotal  int      `json:"requirements_total"`
	Warnings           []string `json:"warnings,omitempty"`
	MissingFacts       []string `json:"missing_facts,omitempty"`
	RuleVersionID      string   `json:"rule_version_id"`
}

// ReasoningResult is the model-reasoning collaborator's response.
type ReasoningResult struct {
	Success        bool   `json:"success"`
	Response       string `json:"response"`
	ReasoningLogID string `json:"reasoning_log_id,omitempty"`
	Error          string `json:"error,omitempty"`
}

// EligibilityResult is the persisted record of one evaluation run. Each run
// produces a fresh record; there is no in-place transition.
type EligibilityResult struct {
	ID               string       `json:"id"`
	CaseID           string       `json:"case_id"`
	VisaTypeID       string       `json:"visa_type_id"`
	RuleVersionID    string       `json:"rule_version_id"`
	Status           ResultStatus `json:"status"`
	Confidence       float64      `json:"confidence"`
	ReasoningSummary string       `json:"reasoning_summary"`
	MissingFacts     []string     `json:"missing_facts,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// CheckResult is returned to the caller of an eligibility check. It always
// carries a decision, with flags making any degraded sub-steps visible.
type CheckResult struct {
	ResultID            string       `json:"result_id"`
	Outcome             Outcome      `json:"outcome"`
	Status              ResultStatus `json:"status"`
	Confidence          float64      `json:"confidence"`
	Summary             string       `json:"summary"`
	Conflict            bool         `json:"conflict"`
	RequiresHumanReview bool         `json:"requires_human_review"`
	EscalationReason    string       `json:"escalation_reason,omitempty"`
	ReviewID            string       `json:"review_id,omitempty"`
	MissingFacts        []string     `json:"missing_facts,omitempty"`
	Warnings            []string     `json:"warnings,omitempty"`
}
