package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaEmbedder generates embeddings using a local Ollama server.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	maxRetries int
}

// NewOllamaEmbedder creates an embedder backed by Ollama's /api/embeddings.
func NewOllamaEmbedder(baseURL, model string, dimension int, timeout time.Duration, maxRetries int) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedder{
		baseURL:    baseURL,
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// Dimension returns the configured vector dimensionality.
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Embed generates one vector per input text. Ollama's embeddings endpoint
// takes a single prompt per call, so inputs are embedded sequentially; any
// failure aborts the whole batch so callers never see partial output.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, &EmbedError{Provider: "ollama", Err: fmt.Errorf("no texts provided")}
	}

	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (e *OllamaEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &EmbedError{Provider: "ollama", Err: fmt.Errorf("text cannot be empty")}
	}

	payload, err := json.Marshal(map[string]any{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, &EmbedError{Provider: "ollama", Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoffWait(ctx, attempt); err != nil {
				return nil, &EmbedError{Provider: "ollama", Err: err}
			}
		}

		vec, retryable, err := e.doRequest(ctx, payload)
		if err != nil {
			lastErr = err
			if retryable {
				continue
			}
			return nil, &EmbedError{Provider: "ollama", Err: err}
		}
		return vec, nil
	}

	return nil, &EmbedError{Provider: "ollama", Err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

func (e *OllamaEmbedder) doRequest(ctx context.Context, payload []byte) (vec []float32, retryable bool, err error) {
	url := fmt.Sprintf("%s/api/embeddings", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Connection-level failures are worth retrying.
		return nil, true, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, false, fmt.Errorf("empty embedding returned")
	}
	return result.Embedding, false, nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
