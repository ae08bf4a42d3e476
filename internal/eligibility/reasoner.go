package eligibility

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
	"github.com/Border-Link/immigration-ai-sub000/pkg/anthropic"
)

const reasoningSystemPrompt = `You are an immigration eligibility analyst. You receive a case's facts, the visa type under consideration, and the deterministic rule engine's evaluation. Reason about whether the applicant qualifies.

Your answer must:
1. State a determination using one of the words "likely", "possible", or "unlikely".
2. State a confidence as a percentage, e.g. "Confidence: 80%".
3. Briefly explain which facts drove the determination.`

// ModelReasoner runs case reasoning through the Anthropic API. It satisfies
// Reasoner.
type ModelReasoner struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewModelReasoner wires a ModelReasoner.
func NewModelReasoner(client anthropic.Client, modelName string, maxTokens int64) *ModelReasoner {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &ModelReasoner{client: client, model: modelName, maxTokens: maxTokens}
}

// RunReasoning sends one reasoning request and returns the free-form
// response. Callers treat any error as a degraded sub-step, never fatal.
func (r *ModelReasoner) RunReasoning(ctx context.Context, req ReasoningRequest) (*model.ReasoningResult, error) {
	prompt, err := buildReasoningPrompt(req)
	if err != nil {
		return nil, err
	}

	temp := 0.0
	resp, err := r.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(reasoningSystemPrompt),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "reasoner: create message")
	}
	resp.Usage.LogCost(resp.Model, "reasoning")

	text := resp.Text()
	if text == "" {
		return nil, eris.New("reasoner: empty response")
	}
	return &model.ReasoningResult{
		Success:        true,
		Response:       text,
		ReasoningLogID: resp.ID,
	}, nil
}

// buildReasoningPrompt renders the case facts and rule summary for the model.
func buildReasoningPrompt(req ReasoningRequest) (string, error) {
	facts, err := json.MarshalIndent(req.Facts, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "reasoner: marshal facts")
	}

	prompt := fmt.Sprintf("Visa type: %s (%s)\n\nCase facts:\n%s\n",
		req.VisaCode, req.Jurisdiction, facts)

	if req.RuleSummary != nil {
		prompt += fmt.Sprintf("\nRule engine evaluation: outcome %s, confidence %.2f, %d of %d requirements passed.\n",
			req.RuleSummary.Outcome, req.RuleSummary.Confidence,
			req.RuleSummary.RequirementsPassed, req.RuleSummary.RequirementsTotal)
		if len(req.RuleSummary.MissingFacts) > 0 {
			prompt += fmt.Sprintf("Missing facts: %v\n", req.RuleSummary.MissingFacts)
		}
	}

	prompt += "\nProvide your determination, confidence, and reasoning."
	return prompt, nil
}
