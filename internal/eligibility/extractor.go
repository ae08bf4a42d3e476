package eligibility

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// Best-effort extraction of a structured determination from free-form
// reasoning text. Inherently fragile: ambiguity defaults to "possible" and
// a missing confidence falls back to the rule-engine value.

var (
	percentRe = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	decimalRe = regexp.MustCompile(`\b(0\.\d+|1\.0+)\b`)
)

// ExtractOutcome scans reasoning text for a determination keyword.
func ExtractOutcome(text string) model.Outcome {
	t := strings.ToLower(text)

	negative := strings.Contains(t, "unlikely") ||
		strings.Contains(t, "not eligible") ||
		strings.Contains(t, "ineligible")

	// Remove negative phrasings so their substrings do not read as
	// positive signals ("unlikely" contains "likely").
	stripped := strings.NewReplacer(
		"unlikely", "",
		"not eligible", "",
		"ineligible", "",
	).Replace(t)
	positive := strings.Contains(stripped, "likely") || strings.Contains(stripped, "eligible")

	switch {
	case negative && !positive:
		return model.OutcomeUnlikely
	case positive && !negative:
		return model.OutcomeLikely
	default:
		return model.OutcomePossible
	}
}

// ExtractConfidence scans reasoning text for a percentage or decimal
// confidence, returning fallback when none is found.
func ExtractConfidence(text string, fallback float64) float64 {
	if m := percentRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp01(v / 100)
		}
	}
	if m := decimalRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp01(v)
		}
	}
	return fallback
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
