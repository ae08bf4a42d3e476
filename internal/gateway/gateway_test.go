package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Border-Link/immigration-ai-sub000/internal/config"
	"github.com/Border-Link/immigration-ai-sub000/internal/resilience"
	"github.com/Border-Link/immigration-ai-sub000/pkg/anthropic"
)

// fakeClient scripts CreateMessage responses for tests.
type fakeClient struct {
	calls int
	fn    func(call int) (*anthropic.MessageResponse, error)
}

func (f *fakeClient) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	return f.fn(f.calls)
}

func testGateway(client anthropic.Client) *Gateway {
	return New(client,
		config.AnthropicConfig{Model: "claude-sonnet-4-5-20250929", MaxTokens: 4096, RequestsPerSec: 1000, TimeoutSecs: 5},
		resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2},
		resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()),
	)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:   "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func TestExtract_Success(t *testing.T) {
	g := testGateway(&fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return textResponse(`{"visa_code":"UK_SKILLED","requirements":[]}`), nil
	}})

	res, err := g.Extract(context.Background(), "some regulatory text", "UK")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Model != "claude-sonnet-4-5-20250929" {
		t.Errorf("model = %q", res.Model)
	}
	if res.Usage.InputTokens != 100 || res.Usage.OutputTokens != 50 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if res.EstimatedCost <= 0 {
		t.Errorf("expected positive cost, got %f", res.EstimatedCost)
	}
}

func TestExtract_RetriesTransientThenSucceeds(t *testing.T) {
	fc := &fakeClient{fn: func(call int) (*anthropic.MessageResponse, error) {
		if call < 3 {
			return nil, errors.New("anthropic: 529 overloaded")
		}
		return textResponse(`{}`), nil
	}}
	g := testGateway(fc)

	if _, err := g.Extract(context.Background(), "text", "UK"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fc.calls != 3 {
		t.Errorf("calls = %d, want 3", fc.calls)
	}
}

func TestExtract_RateLimitKind(t *testing.T) {
	g := testGateway(&fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return nil, errors.New("anthropic: 429 rate limit exceeded")
	}})

	_, err := g.Extract(context.Background(), "text", "UK")
	kind, ok := KindOf(err)
	if !ok || kind != KindRateLimit {
		t.Errorf("kind = %v ok=%v, want rate_limit", kind, ok)
	}
}

func TestExtract_AuthKind_NotRetried(t *testing.T) {
	fc := &fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return nil, errors.New("anthropic: 401 invalid api key")
	}}
	g := testGateway(fc)

	_, err := g.Extract(context.Background(), "text", "UK")
	kind, ok := KindOf(err)
	if !ok || kind != KindAuth {
		t.Errorf("kind = %v ok=%v, want authentication", kind, ok)
	}
	if fc.calls != 1 {
		t.Errorf("auth errors must not be retried, calls = %d", fc.calls)
	}
}

func TestExtract_EmptyResponse_InvalidKind(t *testing.T) {
	g := testGateway(&fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return textResponse("   "), nil
	}})

	_, err := g.Extract(context.Background(), "text", "UK")
	kind, ok := KindOf(err)
	if !ok || kind != KindInvalidResponse {
		t.Errorf("kind = %v ok=%v, want invalid_response", kind, ok)
	}
}

func TestExtract_CircuitOpen_Unavailable(t *testing.T) {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	g := New(&fakeClient{fn: func(int) (*anthropic.MessageResponse, error) {
		return nil, errors.New("boom")
	}},
		config.AnthropicConfig{Model: "m", MaxTokens: 100, RequestsPerSec: 1000, TimeoutSecs: 5},
		resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond},
		breaker,
	)

	_, _ = g.Extract(context.Background(), "text", "UK") // trips the breaker
	_, err := g.Extract(context.Background(), "text", "UK")
	kind, ok := KindOf(err)
	if !ok || kind != KindUnavailable {
		t.Errorf("kind = %v ok=%v, want service_unavailable", kind, ok)
	}
}
