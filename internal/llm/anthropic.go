package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicProvider implements Provider against Anthropic's Messages
// API with linear-backoff retries for transient failures.
//
// Safe for concurrent use.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int
	retrier   retrier
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(options...),
		model:     config.Model,
		maxTokens: config.MaxTokens,
		retrier:   newRetrier(config.MaxRetries, config.RetryDelay),
	}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate produces a completion for the request. Transport, rate
// limit and server errors surface as ErrUnavailable after retries are
// exhausted.
func (p *AnthropicProvider) Generate(ctx context.Context, req *Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Persona != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.Persona}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	var message *anthropic.Message
	err := p.retrier.do(ctx, isRetryableProviderError, func() error {
		var callErr error
		message, callErr = p.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: anthropic: %v", ErrUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: anthropic returned empty completion", ErrUnavailable)
	}
	return text, nil
}

// AnalyzeIntent asks the model for a structured intent/urgency read on
// the text.
func (p *AnthropicProvider) AnalyzeIntent(ctx context.Context, text string) (*IntentHint, error) {
	raw, err := p.Generate(ctx, &Request{
		Prompt:    intentAnalysisPrompt(text),
		Persona:   intentAnalysisPersona,
		MaxTokens: 100,
	})
	if err != nil {
		return nil, err
	}
	return parseIntentHint(raw)
}

// isRetryableProviderError reports whether an SDK error looks like an
// overload or transient server failure worth retrying.
func isRetryableProviderError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "rate limit", "overloaded",
		"500", "502", "503", "504",
		"timeout", "connection reset", "connection refused", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
