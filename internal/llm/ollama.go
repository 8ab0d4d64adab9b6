package llm

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

// OllamaGenerator answers prompts through a local Ollama server.
type OllamaGenerator struct {
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewOllamaGenerator creates a generator backed by Ollama's /api/generate.
func NewOllamaGenerator(baseURL, model string, timeout time.Duration, maxRetries int) *OllamaGenerator {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaGenerator{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	System string `json:"system,omitempty"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate runs one generation call, retrying transient failures.
func (g *OllamaGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  g.model,
		System: p.System,
		Prompt: p.User(),
		Stream: true,
	})
	if err != nil {
		return "", &GenerateError{Provider: "ollama", Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			if err := backoffWait(ctx, attempt); err != nil {
				return "", &GenerateError{Provider: "ollama", Err: err}
			}
		}

		answer, retryable, err := g.doRequest(ctx, payload)
		if err != nil {
			lastErr = err
			if retryable {
				continue
			}
			return "", &GenerateError{Provider: "ollama", Err: err}
		}
		return answer, nil
	}

	return "", &GenerateError{Provider: "ollama", Err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

func (g *OllamaGenerator) doRequest(ctx context.Context, payload []byte) (answer string, retryable bool, err error) {
	url := fmt.Sprintf("%s/api/generate", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, string(body))
	}

	var result strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for {
		var genResp generateResponse
		if err := decoder.Decode(&genResp); err != nil {
			if err == io.EOF {
				break
			}
			return "", false, fmt.Errorf("failed to decode response: %w", err)
		}
		result.WriteString(genResp.Response)
		if genResp.Done {
			break
		}
	}
	return result.String(), false, nil
}

var _ Generator = (*OllamaGenerator)(nil)
