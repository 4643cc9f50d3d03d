package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI provider.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider implements Provider against OpenAI's chat completions
// API. Unlike the Anthropic API, the system prompt travels inside the
// messages array.
//
// Safe for concurrent use.
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
	retrier   retrier
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4o
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     config.Model,
		maxTokens: config.MaxTokens,
		retrier:   newRetrier(config.MaxRetries, config.RetryDelay),
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Generate produces a completion for the request.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.Persona != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Persona,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	var resp openai.ChatCompletionResponse
	err := p.retrier.do(ctx, isRetryableProviderError, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, chatReq)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: openai: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrUnavailable)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: openai returned empty completion", ErrUnavailable)
	}
	return text, nil
}

// AnalyzeIntent asks the model for a structured intent/urgency read on
// the text.
func (p *OpenAIProvider) AnalyzeIntent(ctx context.Context, text string) (*IntentHint, error) {
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
