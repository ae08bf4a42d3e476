package model

import "time"

// Audit event names emitted by the pipeline.
const (
	AuditParseStarted   = "parse_started"
	AuditParseCompleted = "parse_completed"
	AuditParseFailed    = "parse_failed"
	AuditCacheHit       = "cache_hit"
	AuditPIIRedacted    = "pii_redacted"
)

// AuditEntry is an append-only record of a pipeline event. Entries are
// never mutated or deleted.
type AuditEntry struct {
	ID                string         `json:"id"`
	DocumentVersionID string         `json:"document_version_id,omitempty"`
	Event             string         `json:"event"`
	Detail            map[string]any `json:"detail,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
