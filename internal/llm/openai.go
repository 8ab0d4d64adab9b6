package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIGenerator answers prompts through the OpenAI chat completions API.
type OpenAIGenerator struct {
	client     openai.Client
	model      string
	timeout    time.Duration
	maxRetries int
}

// NewOpenAIGenerator creates a generator for the given chat model.
func NewOpenAIGenerator(apiKey, baseURL, model string, timeout time.Duration, maxRetries int) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIGenerator{
		client:     openai.NewClient(opts...),
		model:      model,
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

// Generate runs one chat completion at temperature 0, retrying rate-limit
// and server errors with exponential backoff.
func (g *OpenAIGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User()),
		},
		Temperature: openai.Float(0),
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoffWait(ctx, attempt); err != nil {
				return "", &GenerateError{Provider: "openai", Err: err}
			}
		}

		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			return "", &GenerateError{Provider: "openai", Err: err}
		}

		if len(completion.Choices) == 0 {
			return "", &GenerateError{Provider: "openai", Err: fmt.Errorf("no completion choices returned")}
		}
		return completion.Choices[0].Message.Content, nil
	}

	return "", &GenerateError{Provider: "openai", Err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

// isRetryable reports whether an OpenAI API error is transient.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

var _ Generator = (*OpenAIGenerator)(nil)
