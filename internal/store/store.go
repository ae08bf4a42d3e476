// Package store provides persistence for document versions, parsed rules,
// validation tasks, eligibility results, and the audit log.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrNoActiveRuleVersion is surfaced by the rules engine collaborator when
// a visa type has no published rule set to evaluate against.
var ErrNoActiveRuleVersion = eris.New("store: no active rule version")

// RuleFilter specifies criteria for listing parsed rules.
type RuleFilter struct {
	Status        model.RuleStatus `json:"status,omitempty"`
	MinConfidence float64          `json:"min_confidence,omitempty"`
	Limit         int              `json:"limit,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline and
// decision engine.
type Store interface {
	// Documents
	CreateDocumentVersion(ctx context.Context, rawText, jurisdiction, sourceName string) (*model.DocumentVersion, error)
	GetDocumentVersion(ctx context.Context, id string) (*model.DocumentVersion, error)
	// HasRules reports whether a document version already has parsed rules.
	HasRules(ctx context.Context, documentVersionID string) (bool, error)

	// WithDocumentLock serializes concurrent work on one document version.
	// fn runs while the lock is held.
	WithDocumentLock(ctx context.Context, documentVersionID string, fn func(ctx context.Context) error) error

	// Rules + tasks. CreateRuleWithTask persists the pair atomically; the
	// bool reports whether the rule was created (false on duplicate).
	CreateRuleWithTask(ctx context.Context, rule *model.ParsedRule, task *model.ValidationTask) (bool, error)
	ListRules(ctx context.Context, documentVersionID string, filter RuleFilter) ([]model.ParsedRule, error)

	// CloseTask applies a review decision: the task is closed and the
	// rule's status flips to match, in one transaction.
	CloseTask(ctx context.Context, taskID string, decision model.TaskStatus, reviewer, notes string) error
	ListOpenTasks(ctx context.Context, limit int) ([]model.ValidationTask, error)

	// Eligibility results
	CreateEligibilityResult(ctx context.Context, result *model.EligibilityResult) error

	// Audit log (append-only)
	AppendAudit(ctx context.Context, entries ...model.AuditEntry) error
	ListAudit(ctx context.Context, documentVersionID string) ([]model.AuditEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
