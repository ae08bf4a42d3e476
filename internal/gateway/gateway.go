// Package gateway sends extraction requests to the language model. It owns
// the transport-boundary resilience policy (retry, circuit breaker, rate
// limit) and surfaces failures as typed errors; callers never retry.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Border-Link/immigration-ai-sub000/internal/config"
	"github.com/Border-Link/immigration-ai-sub000/internal/model"
	"github.com/Border-Link/immigration-ai-sub000/internal/resilience"
	"github.com/Border-Link/immigration-ai-sub000/pkg/anthropic"
)

// ErrorKind tags a gateway failure for observability and error handling.
type ErrorKind string

const (
	KindRateLimit       ErrorKind = "rate_limit"
	KindTimeout         ErrorKind = "timeout"
	KindUnavailable     ErrorKind = "service_unavailable"
	KindAuth            ErrorKind = "authentication"
	KindInvalidResponse ErrorKind = "invalid_response"
)

// APIError is a typed gateway failure.
type APIError struct {
	Kind ErrorKind
	Err  error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Kind, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the error kind if err is (or wraps) an APIError.
func KindOf(err error) (ErrorKind, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// Result is the raw model output plus usage accounting for one extraction
// request.
type Result struct {
	Text          string           `json:"text"`
	Model         string           `json:"model"`
	Usage         model.TokenUsage `json:"usage"`
	EstimatedCost float64          `json:"estimated_cost"`
	ProcessingMS  int64            `json:"processing_ms"`
}

const extractionSystemText = `You are an immigration policy analyst extracting structured eligibility rules from regulatory text. Return a valid JSON object:
{"visa_code": "<visa code or UNKNOWN>", "requirements": [{"requirement_code": "<UPPER_SNAKE_CASE>", "description": "<plain-language requirement>", "conditions": {<json-logic expression over case facts>}, "source_excerpt": "<verbatim supporting text>"}]}
Use json-logic operators (==, !=, >, >=, <, <=, and, or, !, in, var) over fact names like applicant.salary or applicant.age. Emit one requirement per distinct rule. If no rules are present, return {"visa_code": "UNKNOWN", "requirements": []}.`

const extractionPromptTmpl = `Jurisdiction: %s

Regulatory text:
%s

Extract every eligibility, document, fee, and processing-time requirement as structured rules. Return valid JSON matching the schema in the system prompt.`

// Gateway sends extraction requests through the injected resilience policy.
type Gateway struct {
	client  anthropic.Client
	cfg     config.AnthropicConfig
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
}

// New creates a Gateway. The retry and circuit breaker policies are
// injected so callers can tune or disable them.
func New(client anthropic.Client, cfg config.AnthropicConfig, retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) *Gateway {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2.0
	}
	return &Gateway{
		client:  client,
		cfg:     cfg,
		retry:   retry,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Extract sends one extraction request for prepared text. The returned
// error, if any, is an *APIError; no partial result is returned on failure.
func (g *Gateway) Extract(ctx context.Context, text, jurisdiction string) (*Result, error) {
	timeout := time.Duration(g.cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &APIError{Kind: KindTimeout, Err: err}
	}

	req := anthropic.MessageRequest{
		Model:     g.cfg.Model,
		MaxTokens: g.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(extractionSystemText),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(extractionPromptTmpl, jurisdiction, text)},
		},
	}

	start := time.Now()
	resp, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			r, callErr := g.client.CreateMessage(ctx, req)
			if callErr != nil {
				return nil, markTransient(callErr)
			}
			return r, nil
		})
	})
	elapsed := time.Since(start)

	if err != nil {
		apiErr := classify(ctx, err)
		zap.L().Warn("gateway: extraction call failed",
			zap.String("jurisdiction", jurisdiction),
			zap.String("kind", string(apiErr.Kind)),
			zap.Error(err),
		)
		return nil, apiErr
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, &APIError{Kind: KindInvalidResponse, Err: eris.New("empty model response")}
	}

	resp.Usage.LogCost(resp.Model, "extraction")

	return &Result{
		Text:  raw,
		Model: resp.Model,
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		EstimatedCost: resp.Usage.EstimateCost(resp.Model),
		ProcessingMS:  elapsed.Milliseconds(),
	}, nil
}

// markTransient wraps retryable transport failures so the retry policy and
// circuit breaker treat them as such.
func markTransient(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return resilience.NewTransientError(err, 429)
	case strings.Contains(msg, "529") || strings.Contains(msg, "overloaded"):
		return resilience.NewTransientError(err, 529)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return resilience.NewTransientError(err, 503)
	default:
		return err
	}
}

// classify maps a transport error onto the typed failure taxonomy.
func classify(ctx context.Context, err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &APIError{Kind: KindTimeout, Err: err}
	}

	var te *resilience.TransientError
	if errors.As(err, &te) {
		if te.StatusCode == 429 {
			return &APIError{Kind: KindRateLimit, Err: err}
		}
		return &APIError{Kind: KindUnavailable, Err: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return &APIError{Kind: KindUnavailable, Err: err}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		return &APIError{Kind: KindAuth, Err: err}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return &APIError{Kind: KindTimeout, Err: err}
	default:
		return &APIError{Kind: KindInvalidResponse, Err: err}
	}
}
