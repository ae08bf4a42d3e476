// Package scorer computes a multi-factor confidence score for extracted
// rules and derives the review SLA deadline from it. The score is the
// single input driving review urgency and downstream auto-escalation.
package scorer

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// Config holds the scoring weights and SLA parameters.
type Config struct {
	// BaseScore is the starting confidence for any rule that passed
	// validation. Default: 0.5.
	BaseScore float64

	// NumericMatchBonus is added when a numeric value in the condition
	// expression appears in the source text. Default: 0.2.
	NumericMatchBonus float64

	// StandardCodeBonus is added for well-known requirement codes.
	// Default: 0.15.
	StandardCodeBonus float64

	// ValidLogicBonus is added when the condition expression passed
	// json-logic validation. Default: 0.15.
	ValidLogicBonus float64

	// MaxScore caps the final confidence. Default: 0.95.
	MaxScore float64

	// HighConfidenceThreshold selects the urgent SLA. Default: 0.8.
	HighConfidenceThreshold float64

	// UrgentDays and DefaultDays set the SLA deadline offsets.
	// Defaults: 2 and 5.
	UrgentDays  int
	DefaultDays int
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		BaseScore:               0.5,
		NumericMatchBonus:       0.2,
		StandardCodeBonus:       0.15,
		ValidLogicBonus:         0.15,
		MaxScore:                0.95,
		HighConfidenceThreshold: 0.8,
		UrgentDays:              2,
		DefaultDays:             5,
	}
}

// Score is the scoring outcome for one rule.
type Score struct {
	Confidence  float64
	SLADeadline time.Time
	Factors     []string
}

// Scorer scores candidate rules.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// New creates a Scorer. Zero-valued config fields fall back to defaults.
func New(cfg Config) *Scorer {
	def := DefaultConfig()
	if cfg.BaseScore <= 0 {
		cfg.BaseScore = def.BaseScore
	}
	if cfg.NumericMatchBonus <= 0 {
		cfg.NumericMatchBonus = def.NumericMatchBonus
	}
	if cfg.StandardCodeBonus <= 0 {
		cfg.StandardCodeBonus = def.StandardCodeBonus
	}
	if cfg.ValidLogicBonus <= 0 {
		cfg.ValidLogicBonus = def.ValidLogicBonus
	}
	if cfg.MaxScore <= 0 {
		cfg.MaxScore = def.MaxScore
	}
	if cfg.HighConfidenceThreshold <= 0 {
		cfg.HighConfidenceThreshold = def.HighConfidenceThreshold
	}
	if cfg.UrgentDays <= 0 {
		cfg.UrgentDays = def.UrgentDays
	}
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = def.DefaultDays
	}
	return &Scorer{cfg: cfg, now: time.Now}
}

// standardCodes are well-known requirement codes seen across jurisdictions.
var standardCodes = map[string]bool{
	"MIN_SALARY":           true,
	"MIN_AGE":              true,
	"MAX_AGE":              true,
	"ENGLISH_LANGUAGE":     true,
	"APPLICATION_FEE":      true,
	"HEALTH_SURCHARGE":     true,
	"MAINTENANCE_FUNDS":    true,
	"SPONSOR_LICENSE":      true,
	"PASSPORT_VALIDITY":    true,
	"CRIMINAL_RECORD":      true,
	"TB_TEST":              true,
	"QUALIFICATION_LEVEL":  true,
	"CONTINUOUS_RESIDENCE": true,
}

// Score computes the weighted confidence for a candidate and its SLA
// deadline. exprValid reports whether the condition expression passed
// json-logic validation.
func (s *Scorer) Score(c model.CandidateRule, sourceText string, exprValid bool) Score {
	conf := s.cfg.BaseScore
	var factors []string

	if hasNumericMatch(c.Conditions, sourceText) {
		conf += s.cfg.NumericMatchBonus
		factors = append(factors, "numeric_value_in_source")
	}

	if isStandardCode(c.RequirementCode) {
		conf += s.cfg.StandardCodeBonus
		factors = append(factors, "standard_requirement_code")
	}

	if exprValid {
		conf += s.cfg.ValidLogicBonus
		factors = append(factors, "valid_json_logic")
	}

	if conf > s.cfg.MaxScore {
		conf = s.cfg.MaxScore
	}

	deadline := s.Deadline(conf)

	zap.L().Debug("scorer: rule scored",
		zap.String("requirement_code", c.RequirementCode),
		zap.Float64("confidence", conf),
		zap.Strings("factors", factors),
		zap.Time("sla_deadline", deadline),
	)

	return Score{Confidence: conf, SLADeadline: deadline, Factors: factors}
}

// Deadline computes the SLA deadline for a given confidence: high
// confidence gets the short urgent window, everything else the default.
func (s *Scorer) Deadline(confidence float64) time.Time {
	days := s.cfg.DefaultDays
	if confidence >= s.cfg.HighConfidenceThreshold {
		days = s.cfg.UrgentDays
	}
	return s.now().Add(time.Duration(days) * 24 * time.Hour)
}

// isStandardCode reports whether the code is, or extends, a well-known
// requirement code.
func isStandardCode(code string) bool {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if standardCodes[upper] {
		return true
	}
	for std := range standardCodes {
		if strings.HasPrefix(upper, std+"_") || strings.HasSuffix(upper, "_"+std) {
			return true
		}
	}
	// Fragment match for compound codes like UK_MIN_SALARY_GENERAL.
	for std := range standardCodes {
		if strings.Contains(upper, std) {
			return true
		}
	}
	return false
}

// hasNumericMatch reports whether any numeric literal in the condition
// expression appears in the source text. Thousands separators in the
// source are ignored so "25600" matches "£25,600".
func hasNumericMatch(expr map[string]any, sourceText string) bool {
	if len(expr) == 0 || sourceText == "" {
		return false
	}
	normalized := strings.ReplaceAll(sourceText, ",", "")
	for _, n := range collectNumbers(expr) {
		if strings.Contains(normalized, n) {
			return true
		}
	}
	return false
}

// collectNumbers walks the expression tree gathering numeric literals as
// strings.
func collectNumbers(node any) []string {
	var out []string
	switch v := node.(type) {
	case map[string]any:
		for _, arg := range v {
			out = append(out, collectNumbers(arg)...)
		}
	case []any:
		for _, item := range v {
			out = append(out, collectNumbers(item)...)
		}
	case float64:
		if v == float64(int64(v)) {
			out = append(out, strconv.FormatInt(int64(v), 10))
		} else {
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		}
	case int:
		out = append(out, strconv.Itoa(v))
	}
	return out
}
