package model

import "time"

// RuleCategory classifies what a parsed rule governs.
type RuleCategory string

const (
	CategoryEligibility    RuleCategory = "eligibility"
	CategoryDocument       RuleCategory = "document"
	CategoryFee            RuleCategory = "fee"
	CategoryProcessingTime RuleCategory = "processing_time"
	CategoryOther          RuleCategory = "other"
)

// RuleStatus is the review lifecycle state of a parsed rule.
type RuleStatus string

const (
	RuleStatusPending  RuleStatus = "pending"
	RuleStatusApproved RuleStatus = "approved"
	RuleStatusRejected RuleStatus = "rejected"
)

// CandidateRule is an unvalidated rule recovered from a model response.
// It is transient: produced by the response parser, consumed by the
// validator and scorer, never persisted.
type CandidateRule struct {
	VisaCode        string         `json:"visa_code"`
	RequirementCode string         `json:"requirement_code"`
	Description     string         `json:"description"`
	Conditions      map[string]any `json:"conditions"`
	SourceExcerpt   string         `json:"source_excerpt,omitempty"`
}

// Provenance records how a parsed rule was produced.
type Provenance struct {
	ModelName     string  `json:"model_name"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	ProcessingMS  int64   `json:"processing_ms"`
}

// ParsedRule is a persisted, scored extraction pending or past human review.
type ParsedRule struct {
	ID                string         `json:"id"`
	DocumentVersionID string         `json:"document_version_id"`
	VisaCode          string         `json:"visa_code"`
	RequirementCode   string         `json:"requirement_code"`
	Description       string         `json:"description"`
	Category          RuleCategory   `json:"category"`
	Conditions        map[string]any `json:"conditions"`
	Confidence        float64        `json:"confidence"`
	Status            RuleStatus     `json:"status"`
	SourceExcerpt     string         `json:"source_excerpt,omitempty"`
	Provenance        Provenance     `json:"provenance"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// TaskStatus is the lifecycle state of a validation task.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusApproved TaskStatus = "approved"
	TaskStatusRejected TaskStatus = "rejected"
)

// ValidationTask is the human-review unit tied one-to-one with a parsed
// rule. The SLA deadline is derived from the rule's confidence score.
type ValidationTask struct {
	ID            string     `json:"id"`
	RuleID        string     `json:"rule_id"`
	SLADeadline   time.Time  `json:"sla_deadline"`
	AssignedTo    string     `json:"assigned_to,omitempty"`
	Status        TaskStatus `json:"status"`
	ReviewerNotes string     `json:"reviewer_notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// RuleError records problems found in a single candidate. Rule-level
// failures are collected, not fatal to the document; a candidate with only
// expression errors is still persisted.
type RuleError struct {
	RequirementCode string   `json:"requirement_code"`
	Reasons         []string `json:"reasons"`
}
