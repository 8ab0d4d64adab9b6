package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// maxBatchSize is the largest number of inputs sent per embeddings API call.
const maxBatchSize = 100

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimension  int
	timeout    time.Duration
	maxRetries int
}

// NewOpenAIEmbedder creates an embedder for the given model and dimension.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension int, timeout time.Duration, maxRetries int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		model:      model,
		dimension:  dimension,
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

// Dimension returns the configured vector dimensionality.
func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// Embed generates one vector per input text, batching up to 100 inputs per
// API call. Transient API errors are retried with exponential backoff; once
// retries are exhausted the whole operation fails with an EmbedError.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &EmbedError{Provider: "openai", Err: errors.New("no texts provided")}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoffWait(ctx, attempt); err != nil {
				return nil, &EmbedError{Provider: "openai", Err: err}
			}
		}

		resp, err := e.client.Embeddings.New(ctx, params)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			return nil, &EmbedError{Provider: "openai", Err: err}
		}

		if len(resp.Data) != len(texts) {
			return nil, &EmbedError{Provider: "openai", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))}
		}

		vectors := make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			vec := make([]float32, len(data.Embedding))
			for j, v := range data.Embedding {
				vec[j] = float32(v)
			}
			vectors[i] = vec
		}
		return vectors, nil
	}

	return nil, &EmbedError{Provider: "openai", Err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

// isRetryable reports whether an OpenAI API error is transient: rate limits
// and server-side failures are retried, everything else is not.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

var _ Embedder = (*OpenAIEmbedder)(nil)
