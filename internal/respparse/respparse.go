// Package respparse recovers a JSON object from a possibly-decorated model
// response and maps it to candidate rules. Models wrap JSON in prose,
// markdown fences, or trailing commentary; the recovery ladder tries
// progressively more forgiving strategies.
package respparse

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

// ErrNoStructuredResult is returned when no JSON object can be recovered
// from the response. Document-level fatal.
var ErrNoStructuredResult = eris.New("respparse: no structured result in model response")

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	lastResortRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

// RecoverJSON attempts, in order: direct parse, fenced-block extraction,
// brace-balanced span scanning, and a last-resort regex match. Returns the
// first strategy that yields a JSON object.
func RecoverJSON(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)

	// (a) The whole response is one JSON value.
	if obj := tryParse(trimmed); obj != nil {
		return obj, nil
	}

	// (b) First fenced code block.
	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		if obj := tryParse(strings.TrimSpace(m[1])); obj != nil {
			return obj, nil
		}
	}

	// (c) Minimal balanced span from the first opening brace.
	if span := balancedSpan(trimmed); span != "" {
		if obj := tryParse(span); obj != nil {
			return obj, nil
		}
	}

	// (d) Greedy regex fallback.
	if m := lastResortRe.FindString(trimmed); m != "" {
		if obj := tryParse(m); obj != nil {
			return obj, nil
		}
	}

	return nil, ErrNoStructuredResult
}

func tryParse(s string) map[string]any {
	if s == "" || !strings.HasPrefix(s, "{") {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// balancedSpan scans for the first '{' and returns the minimal brace-
// balanced span, honoring JSON string literals and escapes.
func balancedSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// Parse recovers a JSON object from the raw response and maps it to
// candidate rules. Malformed requirement items are dropped with a logged
// reason; only a fully unrecoverable response is an error.
func Parse(raw string) ([]model.CandidateRule, error) {
	obj, err := RecoverJSON(raw)
	if err != nil {
		return nil, err
	}
	return MapCandidates(obj), nil
}

// MapCandidates converts a recovered JSON object into candidate rules. A
// payload with a `requirements` list shares its visa code across items; a
// payload that is itself a single requirement yields one candidate.
func MapCandidates(obj map[string]any) []model.CandidateRule {
	visaCode, _ := obj["visa_code"].(string)
	if visaCode == "" {
		visaCode = "UNKNOWN"
	}

	if reqs, ok := obj["requirements"].([]any); ok {
		out := make([]model.CandidateRule, 0, len(reqs))
		for i, item := range reqs {
			m, ok := item.(map[string]any)
			if !ok {
				zap.L().Warn("respparse: dropping non-object requirement item",
					zap.Int("index", i),
				)
				continue
			}
			cand, reason := mapOne(visaCode, m)
			if reason != "" {
				zap.L().Warn("respparse: dropping malformed requirement item",
					zap.Int("index", i),
					zap.String("reason", reason),
				)
				continue
			}
			out = append(out, cand)
		}
		return out
	}

	// The object itself may be a single requirement.
	if _, ok := obj["requirement_code"]; ok {
		cand, reason := mapOne(visaCode, obj)
		if reason != "" {
			zap.L().Warn("respparse: dropping malformed single requirement",
				zap.String("reason", reason),
			)
			return nil
		}
		return []model.CandidateRule{cand}
	}

	return nil
}

func mapOne(visaCode string, m map[string]any) (model.CandidateRule, string) {
	code, _ := m["requirement_code"].(string)
	if strings.TrimSpace(code) == "" {
		return model.CandidateRule{}, "missing requirement_code"
	}

	desc, _ := m["description"].(string)
	conds, _ := m["conditions"].(map[string]any)
	excerpt, _ := m["source_excerpt"].(string)

	if vc, ok := m["visa_code"].(string); ok && vc != "" {
		visaCode = vc
	}

	return model.CandidateRule{
		VisaCode:        visaCode,
		RequirementCode: strings.TrimSpace(code),
		Description:     strings.TrimSpace(desc),
		Conditions:      conds,
		SourceExcerpt:   strings.TrimSpace(excerpt),
	}, ""
}
