package anthropic

import (
	"math"
	"testing"
)

func TestEstimateCost_KnownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 500_000}
	got := u.EstimateCost("claude-haiku-4-5-20251001")
	want := 0.80 + 0.5*4.00
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EstimateCost = %f, want %f", got, want)
	}
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000}
	if got := u.EstimateCost("not-a-model"); got != 0 {
		t.Errorf("expected 0 for unknown model, got %f", got)
	}
}

func TestEstimateCost_CacheTokens(t *testing.T) {
	u := TokenUsage{CacheCreationInputTokens: 1_000_000, CacheReadInputTokens: 1_000_000}
	got := u.EstimateCost("claude-sonnet-4-5-20250929")
	want := 3.00*1.25 + 3.00*0.1
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EstimateCost = %f, want %f", got, want)
	}
}

func TestMessageResponse_Text(t *testing.T) {
	r := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "world"},
	}}
	if got := r.Text(); got != "hello world" {
		t.Errorf("Text() = %q", got)
	}
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("system prompt")
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].CacheControl == nil || blocks[0].CacheControl.TTL != "1h" {
		t.Errorf("expected 1h cache control, got %+v", blocks[0].CacheControl)
	}
}
