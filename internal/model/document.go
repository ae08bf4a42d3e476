// Package model defines the shared data types for the rule extraction and
// eligibility pipeline.
package model

import "time"

// DocumentVersion is an immutable snapshot of ingested regulatory text.
// Created once at ingestion and never mutated.
type DocumentVersion struct {
	ID           string    `json:"id"`
	ContentHash  string    `json:"content_hash"`
	RawText      string    `json:"raw_text"`
	Jurisdiction string    `json:"jurisdiction"`
	SourceName   string    `json:"source_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
