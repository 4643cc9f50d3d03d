// Package llm abstracts the external completion providers the
// assistant delegates text generation to.
//
// Two production providers are implemented (Anthropic and OpenAI) plus
// a template provider that never fails; callers treat ErrUnavailable
// as a signal to degrade to heuristic or template paths rather than a
// fatal error.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// ErrUnavailable indicates the completion provider is down,
// unauthenticated, or otherwise unable to serve the request. Callers
// must degrade gracefully and never surface this as fatal.
var ErrUnavailable = errors.New("completion provider unavailable")

// Request is a completion request.
type Request struct {
	// Prompt is the user-facing content to respond to.
	Prompt string

	// Persona is the system prompt shaping the assistant's voice.
	Persona string

	// Temperature in [0,2]; 0 uses the provider default.
	Temperature float64

	// MaxTokens bounds the response length; 0 uses the provider
	// default.
	MaxTokens int
}

// IntentHint is the provider's read on an inbound message, blended by
// the classifier with its own heuristics.
type IntentHint struct {
	Intent  models.Intent
	Urgency float64 // 0..1
}

// Provider is the interface to an external completion service.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider name for logging and metrics.
	Name() string

	// Generate produces a response to the request.
	Generate(ctx context.Context, req *Request) (string, error)

	// AnalyzeIntent extracts intent and an urgency hint from raw text.
	AnalyzeIntent(ctx context.Context, text string) (*IntentHint, error)
}

// retrier holds shared retry configuration for providers.
type retrier struct {
	maxRetries int
	retryDelay time.Duration
}

func newRetrier(maxRetries int, retryDelay time.Duration) retrier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return retrier{maxRetries: maxRetries, retryDelay: retryDelay}
}

// do executes op with linear backoff while isRetryable returns true.
func (r retrier) do(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt >= r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}
