package model

// ParseResult summarizes one orchestrated extraction run over a single
// document version.
type ParseResult struct {
	DocumentVersionID string      `json:"document_version_id"`
	AlreadyParsed     bool        `json:"already_parsed"`
	CacheHit          bool        `json:"cache_hit"`
	Streamed          bool        `json:"streamed"`
	Chunks            int         `json:"chunks,omitempty"`
	RulesCreated      int         `json:"rules_created"`
	TasksCreated      int         `json:"tasks_created"`
	RuleErrors        []RuleError `json:"rule_errors,omitempty"`
	TokenUsage        TokenUsage  `json:"token_usage"`
	EstimatedCost     float64     `json:"estimated_cost"`
	DurationMS        int64       `json:"duration_ms"`
}

// BatchItemResult is the per-document outcome within a batch run.
type BatchItemResult struct {
	DocumentVersionID string       `json:"document_version_id"`
	Result            *ParseResult `json:"result,omitempty"`
	Error             string       `json:"error,omitempty"`
}

// BatchStats aggregates a batch run across document versions.
type BatchStats struct {
	Total         int               `json:"total"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	AlreadyParsed int               `json:"already_parsed"`
	RulesCreated  int               `json:"rules_created"`
	TokenUsage    TokenUsage        `json:"token_usage"`
	EstimatedCost float64           `json:"estimated_cost"`
	AvgDurationMS int64             `json:"avg_duration_ms"`
	SuccessRate   float64           `json:"success_rate"`
	Items         []BatchItemResult `json:"items"`
}
