package eligibility

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Border-Link/immigration-ai-sub000/internal/model"
	"github.com/Border-Link/immigration-ai-sub000/pkg/anthropic"
)

type fakeAnthropicClient struct {
	lastReq anthropic.MessageRequest
	text    string
	err     error
}

func (c *fakeAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return &anthropic.MessageResponse{
		ID:      "msg-1",
		Model:   req.Model,
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.text}},
	}, nil
}

func reasoningReq() ReasoningRequest {
	return ReasoningRequest{
		CaseID:       "case-1",
		VisaCode:     "UK_SKILLED_WORKER",
		Jurisdiction: "UK",
		Facts:        map[string]any{"applicant.salary": 30000},
		RuleSummary: &model.RuleEvaluation{
			Outcome:            model.OutcomeLikely,
			Confidence:         0.8,
			RequirementsPassed: 3,
			RequirementsTotal:  4,
			MissingFacts:       []string{"applicant.english_level"},
		},
	}
}

func TestModelReasoner_Success(t *testing.T) {
	client := &fakeAnthropicClient{text: "The applicant is likely to qualify. Confidence: 85%."}
	r := NewModelReasoner(client, "claude-sonnet-4-5-20250929", 0)

	res, err := r.RunReasoning(context.Background(), reasoningReq())
	if err != nil {
		t.Fatalf("RunReasoning: %v", err)
	}
	if !res.Success {
		t.Error("expected success")
	}
	if res.Response != client.text {
		t.Errorf("response = %q", res.Response)
	}
	if res.ReasoningLogID != "msg-1" {
		t.Errorf("log id = %q", res.ReasoningLogID)
	}
}

func TestModelReasoner_PromptContents(t *testing.T) {
	client := &fakeAnthropicClient{text: "likely, 90%"}
	r := NewModelReasoner(client, "claude-sonnet-4-5-20250929", 1024)

	if _, err := r.RunReasoning(context.Background(), reasoningReq()); err != nil {
		t.Fatalf("RunReasoning: %v", err)
	}

	if len(client.lastReq.Messages) != 1 {
		t.Fatalf("messages = %d", len(client.lastReq.Messages))
	}
	prompt := client.lastReq.Messages[0].Content
	for _, want := range []string{
		"UK_SKILLED_WORKER",
		"applicant.salary",
		"3 of 4 requirements passed",
		"applicant.english_level",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if len(client.lastReq.System) == 0 {
		t.Error("system prompt missing")
	}
	if client.lastReq.Temperature == nil || *client.lastReq.Temperature != 0 {
		t.Error("expected temperature pinned to 0")
	}
}

func TestModelReasoner_APIFailure(t *testing.T) {
	client := &fakeAnthropicClient{err: errors.New("overloaded")}
	r := NewModelReasoner(client, "claude-sonnet-4-5-20250929", 1024)

	if _, err := r.RunReasoning(context.Background(), reasoningReq()); err == nil {
		t.Fatal("expected error")
	}
}

func TestModelReasoner_EmptyResponse(t *testing.T) {
	client := &fakeAnthropicClient{text: ""}
	r := NewModelReasoner(client, "claude-sonnet-4-5-20250929", 1024)

	if _, err := r.RunReasoning(context.Background(), reasoningReq()); err == nil {
		t.Fatal("expected error for empty response")
	}
}
