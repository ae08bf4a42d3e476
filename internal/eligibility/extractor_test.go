package eligibility

import (
	"testing"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
)

func TestExtractOutcome_Pinned(t *testing.T) {
	cases := []struct {
		text string
		want model.Outcome
	}{
		{"The applicant is likely to qualify for this visa.", model.OutcomeLikely},
		{"Based on the facts, the applicant appears eligible.", model.OutcomeLikely},
		{"It is unlikely that the applicant meets the salary threshold.", model.OutcomeUnlikely},
		{"The applicant is not eligible under the current rules.", model.OutcomeUnlikely},
		{"The applicant is ineligible due to insufficient funds.", model.OutcomeUnlikely},
		{"The applicant may possibly qualify depending on further evidence.", model.OutcomePossible},
		{"The outcome is hard to determine from these facts.", model.OutcomePossible},
		// Contradictory signals are ambiguous.
		{"Approval is likely, although some factors make it unlikely.", model.OutcomePossible},
		{"", model.OutcomePossible},
	}
	for _, tc := range cases {
		if got := ExtractOutcome(tc.text); got != tc.want {
			t.Errorf("ExtractOutcome(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestExtractConfidence_Pinned(t *testing.T) {
	cases := []struct {
		text     string
		fallback float64
		want     float64
	}{
		{"I am 85% confident in this assessment.", 0.5, 0.85},
		{"Confidence: 72.5%", 0.5, 0.725},
		{"My confidence is 0.9 given the evidence.", 0.5, 0.9},
		{"No numeric signal here.", 0.42, 0.42},
		{"An absurd 400% confident claim.", 0.5, 1.0},
	}
	for _, tc := range cases {
		got := ExtractConfidence(tc.text, tc.fallback)
		if got < tc.want-1e-9 || got > tc.want+1e-9 {
			t.Errorf("ExtractConfidence(%q) = %f, want %f", tc.text, got, tc.want)
		}
	}
}
